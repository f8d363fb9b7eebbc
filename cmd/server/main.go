// Package main is the entrypoint for the RallySight API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rallysight/rallysight/internal/annotations"
	"github.com/rallysight/rallysight/internal/api"
	"github.com/rallysight/rallysight/internal/api/handler"
	mw "github.com/rallysight/rallysight/internal/api/middleware"
	"github.com/rallysight/rallysight/internal/api/response"
	"github.com/rallysight/rallysight/internal/cache"
	"github.com/rallysight/rallysight/internal/calibration"
	"github.com/rallysight/rallysight/internal/config"
	"github.com/rallysight/rallysight/internal/ingest"
	"github.com/rallysight/rallysight/internal/ingest/state"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "data_root", cfg.Media.DataRoot, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Prepare the media tree
	layout := ingest.Layout{Root: cfg.Media.DataRoot}
	if err := layout.EnsureDirs(); err != nil {
		return fmt.Errorf("prepare data root: %w", err)
	}

	// 3. Restore job state from the snapshot
	jobStore := state.NewStore(layout.StatePath())
	jobStore.Load()
	slog.Info("job state loaded", "path", layout.StatePath())

	// 4. Optional Redis cache for upload rate limiting
	var redisCache cache.Cache
	if cfg.Redis.URL != "" {
		rc, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		redisCache = rc
		slog.Info("redis connected")
	} else {
		slog.Info("redis not configured, upload rate limiting disabled")
	}

	// 5. Build the ingest pipeline
	worker := ingest.NewWorker(jobStore, &ingest.ExecRunner{}, layout, ingest.WorkerConfig{
		FFmpegPath:  cfg.Media.FFmpegPath,
		FFprobePath: cfg.Media.FFprobePath,
		UseGPU:      cfg.Media.UseGPU,
	})
	coordinator := ingest.NewCoordinator(ctx, jobStore, worker, layout)

	// 6. Create calibration and annotation services
	calibrationSvc := calibration.NewService(layout.CalibDir())
	annotationStore := annotations.NewStore(layout.AnnotationsDir())

	// 7. Build router with dependencies
	rateLimit := mw.NewRateLimit(redisCache, cfg.Redis.UploadsPerMinute)

	deps := api.Dependencies{
		RateLimit: rateLimit,

		HealthHandler:       healthHandler(layout, redisCache),
		IngestHealthHandler: handler.NewIngestHealthHandler(coordinator),
		UploadHandler:       handler.NewUploadHandler(layout, jobStore),
		StartIngestHandler:  handler.NewStartIngestHandler(coordinator),
		IngestStatusHandler: handler.NewIngestStatusHandler(coordinator),

		SaveCalibrationHandler: handler.NewSaveCalibrationHandler(calibrationSvc),
		GetCalibrationHandler:  handler.NewGetCalibrationHandler(calibrationSvc),
		PixelToCourtHandler:    handler.NewPixelToCourtHandler(calibrationSvc),
		CourtToPixelHandler:    handler.NewCourtToPixelHandler(calibrationSvc),

		ListAnnotationsHandler:  handler.NewListAnnotationsHandler(annotationStore),
		AppendAnnotationHandler: handler.NewAppendAnnotationHandler(annotationStore),

		EventsHandler: handler.NewEventsHandler(),
		StatsHandler:  handler.NewStatsHandler(),

		AssetsDir: cfg.Media.DataRoot,
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks the data root and, when configured, cache connectivity.
func healthHandler(layout ingest.Layout, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"storage": "ok",
		}

		if info, err := os.Stat(layout.OriginalDir()); err != nil || !info.IsDir() {
			checks["storage"] = "degraded"
		}
		if c != nil {
			checks["cache"] = "ok"
			if err := c.Ping(r.Context()); err != nil {
				checks["cache"] = "degraded"
			}
		}

		degraded := false
		for _, status := range checks {
			if status != "ok" {
				degraded = true
			}
		}
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
