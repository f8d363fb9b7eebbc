// Package api assembles the HTTP surface: router, middleware, handlers, and
// the response envelope shared by all of them.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/rallysight/rallysight/internal/api/middleware"
	"github.com/rallysight/rallysight/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler       http.HandlerFunc
	IngestHealthHandler http.HandlerFunc
	UploadHandler       http.HandlerFunc
	StartIngestHandler  http.HandlerFunc
	IngestStatusHandler http.HandlerFunc

	SaveCalibrationHandler http.HandlerFunc
	GetCalibrationHandler  http.HandlerFunc
	PixelToCourtHandler    http.HandlerFunc
	CourtToPixelHandler    http.HandlerFunc

	ListAnnotationsHandler  http.HandlerFunc
	AppendAnnotationHandler http.HandlerFunc

	EventsHandler http.HandlerFunc
	StatsHandler  http.HandlerFunc

	// AssetsDir, when set, is served read-only under /assets/ so clients can
	// fetch originals, mezzanines, proxies, and thumbnails directly.
	AssetsDir string
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Route("/api/v1/ingest", func(r chi.Router) {
		r.Get("/health", orNotImplemented(deps.IngestHealthHandler))

		// Upload is the only rate-limited route; everything else is cheap.
		upload := orNotImplemented(deps.UploadHandler)
		if deps.RateLimit != nil {
			r.With(deps.RateLimit.Limit).Post("/upload", upload)
		} else {
			r.Post("/upload", upload)
		}

		r.Post("/{uploadID}/start", orNotImplemented(deps.StartIngestHandler))
		r.Get("/{uploadID}/status", orNotImplemented(deps.IngestStatusHandler))
	})

	r.Route("/api/v1/calibration", func(r chi.Router) {
		r.Post("/{uploadID}", orNotImplemented(deps.SaveCalibrationHandler))
		r.Get("/{uploadID}", orNotImplemented(deps.GetCalibrationHandler))
		r.Post("/{uploadID}/pixel-to-court", orNotImplemented(deps.PixelToCourtHandler))
		r.Post("/{uploadID}/court-to-pixel", orNotImplemented(deps.CourtToPixelHandler))
	})

	r.Route("/api/v1/annotations", func(r chi.Router) {
		r.Get("/{uploadID}", orNotImplemented(deps.ListAnnotationsHandler))
		r.Post("/{uploadID}", orNotImplemented(deps.AppendAnnotationHandler))
	})

	r.Get("/api/v1/events/{matchID}", orNotImplemented(deps.EventsHandler))
	r.Get("/api/v1/stats/{matchID}", orNotImplemented(deps.StatsHandler))

	if deps.AssetsDir != "" {
		fileServer := http.StripPrefix("/assets/", http.FileServer(http.Dir(deps.AssetsDir)))
		r.Get("/assets/*", fileServer.ServeHTTP)
	}

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
