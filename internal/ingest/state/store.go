package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNotFound is returned when updating a job that was never created.
var ErrNotFound = errors.New("ingest job not found")

// Store owns the job and meta maps and their on-disk mirror. A single mutex
// serializes every read and write, including the synchronous disk flush:
// job counts are small and writes are rare next to transcode durations, so
// simplicity wins over throughput here.
type Store struct {
	mu   sync.Mutex
	path string
	jobs map[string]*Job
	meta map[string]*Meta
}

// snapshot is the on-disk shape of the full store contents.
type snapshot struct {
	Jobs map[string]*Job  `json:"jobs"`
	Meta map[string]*Meta `json:"meta"`
}

// NewStore creates a store persisting to the given snapshot path. Call Load
// before first use.
func NewStore(path string) *Store {
	return &Store{
		path: path,
		jobs: make(map[string]*Job),
		meta: make(map[string]*Meta),
	}
}

// Load reads the persisted snapshot if one exists. A missing or corrupt
// snapshot never fails startup: the store simply begins empty.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("ingest state unreadable, starting empty", "path", s.path, "error", err)
		}
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("ingest state corrupt, starting empty", "path", s.path, "error", err)
		return
	}

	if snap.Jobs != nil {
		s.jobs = snap.Jobs
	}
	if snap.Meta != nil {
		s.meta = snap.Meta
	}
	for id, job := range s.jobs {
		if job == nil {
			delete(s.jobs, id)
			continue
		}
		job.UploadID = id
	}
	slog.Info("ingest state loaded", "jobs", len(s.jobs))
}

// CreateJob registers a new job with queued status, zero progress, and all
// assets empty except the original URL, then persists immediately. Creating
// an id that already exists overwrites the previous record: the upload
// endpoint always mints fresh ids, so a repeat is a deliberate reset.
func (s *Store) CreateJob(uploadID, originalPath, originalURL string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	url := originalURL
	job := &Job{
		UploadID:  uploadID,
		Status:    StatusQueued,
		Stage:     StageQueued,
		Progress:  0,
		Assets:    Assets{OriginalURL: &url},
		UpdatedAt: time.Now().UTC(),
	}
	s.jobs[uploadID] = job
	s.meta[uploadID] = &Meta{OriginalPath: originalPath, OriginalURL: originalURL}

	if err := s.persistLocked(); err != nil {
		return Job{}, err
	}
	return job.clone(), nil
}

// UpdateJob applies a partial update, persists the full snapshot, and
// returns a copy of the updated record. Asset patches merge into the
// existing asset map; they never replace it wholesale. StartedAt is stamped
// the first time the job leaves queued.
func (s *Store) UpdateJob(uploadID string, u Update) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[uploadID]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, uploadID)
	}

	if u.Status != nil {
		if *u.Status != StatusQueued && job.StartedAt == nil {
			now := time.Now().UTC()
			job.StartedAt = &now
		}
		job.Status = *u.Status
	}
	if u.Stage != nil {
		job.Stage = *u.Stage
	}
	if u.Progress != nil {
		job.Progress = *u.Progress
	}
	if u.ClearMessage {
		job.Message = ""
	} else if u.Message != nil {
		job.Message = *u.Message
	}
	if u.Assets != nil {
		job.Assets.merge(*u.Assets)
	}
	job.UpdatedAt = time.Now().UTC()

	if err := s.persistLocked(); err != nil {
		return Job{}, err
	}
	return job.clone(), nil
}

// GetJob returns a deep copy of the job, if known.
func (s *Store) GetJob(uploadID string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[uploadID]
	if !ok {
		return Job{}, false
	}
	return job.clone(), true
}

// GetMeta returns a copy of the job's source metadata, if known.
func (s *Store) GetMeta(uploadID string) (Meta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.meta[uploadID]
	if !ok {
		return Meta{}, false
	}
	return *meta, true
}

// Reset clears all state and persists the empty snapshot. Intended for
// tests and explicit operator resets.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs = make(map[string]*Job)
	s.meta = make(map[string]*Meta)
	return s.persistLocked()
}

// persistLocked writes the whole store to a temp file in the snapshot's
// directory, syncs it, and renames it over the canonical path so a crash
// mid-write can never leave a partial snapshot. Caller must hold s.mu.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(snapshot{Jobs: s.jobs, Meta: s.meta}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ingest state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ingest_jobs-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
