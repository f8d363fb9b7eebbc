// Package demodata serves the fixture payloads backing the demo analytics
// endpoints. Everything here is stateless seed data for a sample three-set
// match; none of it comes from real video analysis.
package demodata

import "time"

var matchStart = time.Date(2024, time.March, 2, 18, 30, 0, 0, time.UTC)

// Player is one roster entry of the sample match.
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position string `json:"position"`
}

// Event is one annotated rally action on the sample timeline.
type Event struct {
	ID        string  `json:"id"`
	Timestamp float64 `json:"timestamp"`
	Label     string  `json:"label"`
	PlayerID  string  `json:"player_id"`
	Outcome   string  `json:"outcome"`
	VideoTime string  `json:"video_time"`
}

// Formation is a front/back row snapshot by player id.
type Formation struct {
	FrontRow []string `json:"front_row"`
	BackRow  []string `json:"back_row"`
}

// MatchStats is the aggregate stat line for the sample match.
type MatchStats struct {
	Serves         ServeStats  `json:"serves"`
	Attacks        AttackStats `json:"attacks"`
	Blocks         BlockStats  `json:"blocks"`
	DigSuccessRate float64     `json:"dig_success_rate"`
}

type ServeStats struct {
	Attempts int `json:"attempts"`
	Aces     int `json:"aces"`
	Faults   int `json:"faults"`
}

type AttackStats struct {
	Attempts int `json:"attempts"`
	Kills    int `json:"kills"`
	Errors   int `json:"errors"`
}

type BlockStats struct {
	Solo     int `json:"solo"`
	Assisted int `json:"assisted"`
}

// Players returns the sample roster.
func Players() []Player {
	return []Player{
		{ID: "p1", Name: "Avery Lang", Position: "Setter"},
		{ID: "p2", Name: "Noah Patel", Position: "Outside Hitter"},
		{ID: "p3", Name: "Marin Ortega", Position: "Libero"},
		{ID: "p4", Name: "Theo Wells", Position: "Middle Blocker"},
		{ID: "p5", Name: "Isla Chen", Position: "Opposite"},
		{ID: "p6", Name: "River James", Position: "Middle Blocker"},
	}
}

// Events returns the deterministic sample timeline.
func Events() []Event {
	return []Event{
		{
			ID: "e1", Timestamp: 12.4, Label: "Serve", PlayerID: "p2", Outcome: "ace",
			VideoTime: matchStart.Add(12 * time.Second).Format(time.RFC3339),
		},
		{
			ID: "e2", Timestamp: 38.7, Label: "Block", PlayerID: "p4", Outcome: "point",
			VideoTime: matchStart.Add(39 * time.Second).Format(time.RFC3339),
		},
		{
			ID: "e3", Timestamp: 55.2, Label: "Dig", PlayerID: "p3", Outcome: "save",
			VideoTime: matchStart.Add(55 * time.Second).Format(time.RFC3339),
		},
	}
}

// CurrentFormation returns the sample rotation snapshot.
func CurrentFormation() Formation {
	return Formation{
		FrontRow: []string{"p2", "p4", "p5"},
		BackRow:  []string{"p1", "p3", "p6"},
	}
}

// Stats returns the sample aggregate stat line.
func Stats() MatchStats {
	return MatchStats{
		Serves:         ServeStats{Attempts: 27, Aces: 5, Faults: 2},
		Attacks:        AttackStats{Attempts: 31, Kills: 14, Errors: 4},
		Blocks:         BlockStats{Solo: 3, Assisted: 7},
		DigSuccessRate: 0.82,
	}
}
