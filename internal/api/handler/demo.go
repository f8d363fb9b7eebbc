package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rallysight/rallysight/internal/api/response"
	"github.com/rallysight/rallysight/internal/demodata"
)

// NewEventsHandler returns an http.HandlerFunc for GET /api/v1/events/{matchID}.
// Until event detection lands, every match id serves the seeded demo timeline.
func NewEventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, map[string]any{
			"match_id":  chi.URLParam(r, "matchID"),
			"players":   demodata.Players(),
			"events":    demodata.Events(),
			"formation": demodata.CurrentFormation(),
		})
	}
}

// NewStatsHandler returns an http.HandlerFunc for GET /api/v1/stats/{matchID}.
func NewStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, map[string]any{
			"match_id": chi.URLParam(r, "matchID"),
			"stats":    demodata.Stats(),
		})
	}
}
