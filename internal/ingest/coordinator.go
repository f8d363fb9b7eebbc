package ingest

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/rallysight/rallysight/internal/ingest/state"
)

// ErrSourceNotFound is returned when neither the job metadata nor a
// directory scan can locate an upload's original file.
var ErrSourceNotFound = errors.New("upload source not found")

// StartResult tells a caller what a start request did.
type StartResult string

const (
	// StartResultReady means the job already finished; nothing to do.
	StartResultReady StartResult = "ready"
	// StartResultStarted means a fresh worker was launched.
	StartResultStarted StartResult = "started"
	// StartResultRunning means a worker is already in flight.
	StartResultRunning StartResult = "running"
)

// pipeline is the worker surface the coordinator drives.
type pipeline interface {
	Run(ctx context.Context, uploadID, srcPath string) error
}

// Coordinator guarantees at most one active worker per upload id and gives
// the HTTP layer idempotent start/status semantics. Its task registry has
// its own lock, separate from the state store's, so the store lock is never
// held across registry checks.
type Coordinator struct {
	store  *state.Store
	worker pipeline
	layout Layout

	// baseCtx bounds worker lifetime to the process, not to the request
	// that started the job.
	baseCtx context.Context

	mu    sync.Mutex
	tasks map[string]struct{}
}

func NewCoordinator(baseCtx context.Context, store *state.Store, worker pipeline, layout Layout) *Coordinator {
	return &Coordinator{
		store:   store,
		worker:  worker,
		layout:  layout,
		baseCtx: baseCtx,
		tasks:   make(map[string]struct{}),
	}
}

// IsRunning reports whether a worker is currently registered for the id.
func (c *Coordinator) IsRunning(uploadID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tasks[uploadID]
	return ok
}

// Start launches the pipeline for an upload unless it is already done or
// already running. Returns ErrSourceNotFound when no original file can be
// located for the id.
func (c *Coordinator) Start(uploadID string) (StartResult, error) {
	if job, ok := c.store.GetJob(uploadID); ok && job.Status == state.StatusReady {
		return StartResultReady, nil
	}

	srcPath, ext, err := c.locateSource(uploadID)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if _, running := c.tasks[uploadID]; running {
		c.mu.Unlock()
		return StartResultRunning, nil
	}
	c.tasks[uploadID] = struct{}{}
	c.mu.Unlock()

	if _, ok := c.store.GetJob(uploadID); !ok {
		if _, err := c.store.CreateJob(uploadID, srcPath, OriginalURL(uploadID, ext)); err != nil {
			c.deregister(uploadID)
			return "", err
		}
	}

	go func() {
		defer c.deregister(uploadID)
		if err := c.worker.Run(c.baseCtx, uploadID, srcPath); err != nil {
			slog.Error("ingest worker finished with error", "upload_id", uploadID, "error", err)
		}
	}()

	return StartResultStarted, nil
}

func (c *Coordinator) deregister(uploadID string) {
	c.mu.Lock()
	delete(c.tasks, uploadID)
	c.mu.Unlock()
}

// Status returns the current snapshot for an upload. Unknown ids with an
// original file on disk get a synthesized ready snapshot; anything else
// reads as queued with empty assets, so polling before start is safe.
func (c *Coordinator) Status(uploadID string) state.Job {
	if job, ok := c.store.GetJob(uploadID); ok {
		return job
	}

	if _, ext, ok := c.layout.FindOriginal(uploadID); ok {
		url := OriginalURL(uploadID, ext)
		return state.Job{
			UploadID: uploadID,
			Status:   state.StatusReady,
			Stage:    state.StageReady,
			Progress: 100,
			Assets:   state.Assets{OriginalURL: &url},
		}
	}

	return state.Job{
		UploadID: uploadID,
		Status:   state.StatusQueued,
		Stage:    state.StageQueued,
		Progress: 0,
	}
}

// Healthy reports whether the ingest subsystem is minimally operational:
// the original directory must exist and be writable enough to stat.
func (c *Coordinator) Healthy() bool {
	info, err := os.Stat(c.layout.OriginalDir())
	return err == nil && info.IsDir()
}

// locateSource resolves an upload's original file, preferring the stored
// job metadata and falling back to a directory scan.
func (c *Coordinator) locateSource(uploadID string) (path, ext string, err error) {
	if meta, ok := c.store.GetMeta(uploadID); ok && meta.OriginalPath != "" {
		if _, statErr := os.Stat(meta.OriginalPath); statErr == nil {
			return meta.OriginalPath, filepath.Ext(meta.OriginalPath), nil
		}
	}
	if path, ext, ok := c.layout.FindOriginal(uploadID); ok {
		return path, ext, nil
	}
	return "", "", ErrSourceNotFound
}
