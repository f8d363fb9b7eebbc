package demodata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormationReferencesRoster(t *testing.T) {
	known := map[string]bool{}
	for _, p := range Players() {
		known[p.ID] = true
	}

	f := CurrentFormation()
	require.Len(t, f.FrontRow, 3)
	require.Len(t, f.BackRow, 3)
	for _, id := range append(f.FrontRow, f.BackRow...) {
		assert.True(t, known[id], "formation references unknown player %s", id)
	}
}

func TestEventsReferenceRoster(t *testing.T) {
	known := map[string]bool{}
	for _, p := range Players() {
		known[p.ID] = true
	}

	for _, e := range Events() {
		assert.True(t, known[e.PlayerID], "event %s references unknown player", e.ID)
		assert.NotEmpty(t, e.VideoTime)
	}
}

func TestStatsAreConsistent(t *testing.T) {
	s := Stats()
	assert.LessOrEqual(t, s.Serves.Aces+s.Serves.Faults, s.Serves.Attempts)
	assert.LessOrEqual(t, s.Attacks.Kills+s.Attacks.Errors, s.Attacks.Attempts)
	assert.InDelta(t, 0.82, s.DigSuccessRate, 1e-9)
}
