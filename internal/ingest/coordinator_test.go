package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rallysight/rallysight/internal/ingest"
	"github.com/rallysight/rallysight/internal/ingest/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingPipeline holds each Run until released, so tests can observe the
// in-flight window deterministically.
type blockingPipeline struct {
	mu      sync.Mutex
	started chan string
	release chan struct{}
	runs    int
	err     error
}

func newBlockingPipeline() *blockingPipeline {
	return &blockingPipeline{
		started: make(chan string, 8),
		release: make(chan struct{}),
	}
}

func (p *blockingPipeline) Run(_ context.Context, uploadID, _ string) error {
	p.mu.Lock()
	p.runs++
	p.mu.Unlock()
	p.started <- uploadID
	<-p.release
	return p.err
}

func (p *blockingPipeline) runCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs
}

func newCoordinator(t *testing.T, worker *blockingPipeline) (*ingest.Coordinator, *state.Store, ingest.Layout) {
	t.Helper()
	layout := ingest.Layout{Root: t.TempDir()}
	require.NoError(t, layout.EnsureDirs())
	store := state.NewStore(layout.StatePath())
	store.Load()
	return ingest.NewCoordinator(context.Background(), store, worker, layout), store, layout
}

func writeOriginal(t *testing.T, layout ingest.Layout, uploadID, ext string) string {
	t.Helper()
	path := layout.OriginalPath(uploadID, ext)
	require.NoError(t, os.WriteFile(path, []byte("video bytes"), 0o644))
	return path
}

func waitForStart(t *testing.T, p *blockingPipeline) {
	t.Helper()
	select {
	case <-p.started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never started")
	}
}

func waitNotRunning(t *testing.T, c *ingest.Coordinator, uploadID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.IsRunning(uploadID) {
		if time.Now().After(deadline) {
			t.Fatal("worker never deregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStart_UnknownUpload(t *testing.T) {
	coord, _, _ := newCoordinator(t, newBlockingPipeline())

	_, err := coord.Start("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ingest.ErrSourceNotFound)
}

func TestStart_LaunchesWorkerOnce(t *testing.T) {
	worker := newBlockingPipeline()
	coord, store, layout := newCoordinator(t, worker)
	writeOriginal(t, layout, "u1", ".mp4")

	res, err := coord.Start("u1")
	require.NoError(t, err)
	assert.Equal(t, ingest.StartResultStarted, res)
	waitForStart(t, worker)
	assert.True(t, coord.IsRunning("u1"))

	// Second start while the first is in flight reports running and does
	// not register a duplicate task.
	res, err = coord.Start("u1")
	require.NoError(t, err)
	assert.Equal(t, ingest.StartResultRunning, res)
	assert.Equal(t, 1, worker.runCount())

	// A job record was created for the discovered source.
	job, ok := store.GetJob("u1")
	require.True(t, ok)
	assert.Equal(t, state.StatusQueued, job.Status)

	close(worker.release)
	waitNotRunning(t, coord, "u1")
}

func TestStart_ReadyShortCircuits(t *testing.T) {
	worker := newBlockingPipeline()
	coord, store, layout := newCoordinator(t, worker)
	writeOriginal(t, layout, "u1", ".mov")
	_, err := store.CreateJob("u1", layout.OriginalPath("u1", ".mov"), ingest.OriginalURL("u1", ".mov"))
	require.NoError(t, err)
	_, err = store.UpdateJob("u1", state.Update{
		Status: func() *state.Status { s := state.StatusReady; return &s }(),
	})
	require.NoError(t, err)

	res, err := coord.Start("u1")
	require.NoError(t, err)
	assert.Equal(t, ingest.StartResultReady, res)
	assert.Equal(t, 0, worker.runCount())
}

func TestStart_AfterCompletionIsFreshAttempt(t *testing.T) {
	worker := newBlockingPipeline()
	coord, _, layout := newCoordinator(t, worker)
	writeOriginal(t, layout, "u1", ".mp4")

	res, err := coord.Start("u1")
	require.NoError(t, err)
	assert.Equal(t, ingest.StartResultStarted, res)
	waitForStart(t, worker)
	close(worker.release)
	waitNotRunning(t, coord, "u1")

	// Job is not ready (blocking pipeline never updates state), so a new
	// start launches a second worker rather than reporting running.
	worker.release = make(chan struct{})
	res, err = coord.Start("u1")
	require.NoError(t, err)
	assert.Equal(t, ingest.StartResultStarted, res)
	waitForStart(t, worker)
	assert.Equal(t, 2, worker.runCount())
	close(worker.release)
	waitNotRunning(t, coord, "u1")
}

func TestStart_UsesMetaPathBeforeScan(t *testing.T) {
	worker := newBlockingPipeline()
	coord, store, _ := newCoordinator(t, worker)

	// Original stored outside the scanned directory, reachable only through
	// the job metadata.
	path := filepath.Join(t.TempDir(), "relocated-u1.webm")
	require.NoError(t, os.WriteFile(path, []byte("video bytes"), 0o644))
	_, err := store.CreateJob("u1", path, ingest.OriginalURL("u1", ".webm"))
	require.NoError(t, err)

	res, err := coord.Start("u1")
	require.NoError(t, err)
	assert.Equal(t, ingest.StartResultStarted, res)
	waitForStart(t, worker)
	close(worker.release)
	waitNotRunning(t, coord, "u1")
}

func TestStatus_KnownJob(t *testing.T) {
	coord, store, layout := newCoordinator(t, newBlockingPipeline())
	writeOriginal(t, layout, "u1", ".mp4")
	_, err := store.CreateJob("u1", layout.OriginalPath("u1", ".mp4"), ingest.OriginalURL("u1", ".mp4"))
	require.NoError(t, err)

	job := coord.Status("u1")
	assert.Equal(t, state.StatusQueued, job.Status)
	require.NotNil(t, job.Assets.OriginalURL)
	assert.Equal(t, "/assets/original/u1.mp4", *job.Assets.OriginalURL)
}

func TestStatus_SynthesizesReadyFromDisk(t *testing.T) {
	coord, _, layout := newCoordinator(t, newBlockingPipeline())
	writeOriginal(t, layout, "u2", ".mkv")

	job := coord.Status("u2")
	assert.Equal(t, state.StatusReady, job.Status)
	assert.Equal(t, state.StageReady, job.Stage)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.Assets.OriginalURL)
	assert.Equal(t, "/assets/original/u2.mkv", *job.Assets.OriginalURL)
}

func TestStatus_UnknownReadsQueued(t *testing.T) {
	coord, _, _ := newCoordinator(t, newBlockingPipeline())

	job := coord.Status("nobody")
	assert.Equal(t, state.StatusQueued, job.Status)
	assert.Equal(t, state.StageQueued, job.Stage)
	assert.Equal(t, 0, job.Progress)
	assert.Nil(t, job.Assets.OriginalURL)
}

func TestHealthy(t *testing.T) {
	coord, _, layout := newCoordinator(t, newBlockingPipeline())
	assert.True(t, coord.Healthy())

	require.NoError(t, os.RemoveAll(layout.OriginalDir()))
	assert.False(t, coord.Healthy())
}
