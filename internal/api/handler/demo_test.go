package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvents_ReturnsSeededTimeline(t *testing.T) {
	h := NewEventsHandler()

	r := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/events/m1", nil), "matchID", "m1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, "m1", data["match_id"])
	assert.NotEmpty(t, data["players"])
	assert.NotEmpty(t, data["events"])
	assert.NotNil(t, data["formation"])
}

func TestStats_ReturnsMatchStats(t *testing.T) {
	h := NewStatsHandler()

	r := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/stats/m1", nil), "matchID", "m1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, "m1", data["match_id"])
	require.NotNil(t, data["stats"])
}
