// Package annotations persists per-upload overlay annotations as an
// append-only, newline-delimited JSON log, one file per upload id.
package annotations

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rallysight/rallysight/internal/geometry"
)

// ErrMissingGeometry is returned when an annotation has neither a rect nor
// a polygon.
var ErrMissingGeometry = errors.New("annotation requires rect or poly geometry")

// Rect is an axis-aligned box in normalized frame coordinates.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Poly is a closed polygon of at least three points.
type Poly struct {
	Pts []geometry.Point `json:"pts"`
}

// Annotation is one overlay record. ID and CreatedAt are assigned on append.
type Annotation struct {
	ID        string    `json:"id"`
	FrameT    float64   `json:"frame_t"`
	Rect      *Rect     `json:"rect,omitempty"`
	Poly      *Poly     `json:"poly,omitempty"`
	Jersey    *int      `json:"jersey,omitempty"`
	Label     string    `json:"label,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store appends and lists annotation logs under one directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Append validates the annotation's geometry, stamps an id and creation
// time, and appends one JSON line to the upload's log.
func (s *Store) Append(uploadID string, a Annotation) (Annotation, error) {
	if a.Rect == nil && (a.Poly == nil || len(a.Poly.Pts) < 3) {
		return Annotation{}, ErrMissingGeometry
	}

	a.ID = uuid.NewString()
	a.CreatedAt = time.Now().UTC()

	line, err := json.Marshal(a)
	if err != nil {
		return Annotation{}, fmt.Errorf("encode annotation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(uploadID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Annotation{}, fmt.Errorf("create annotations directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Annotation{}, fmt.Errorf("open annotation log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return Annotation{}, fmt.Errorf("append annotation: %w", err)
	}
	return a, nil
}

// List returns all annotations for an upload in append order. A missing log
// reads as empty; malformed lines are skipped rather than failing the read.
func (s *Store) List(uploadID string) ([]Annotation, error) {
	f, err := os.Open(s.path(uploadID))
	if err != nil {
		if os.IsNotExist(err) {
			return []Annotation{}, nil
		}
		return nil, fmt.Errorf("open annotation log: %w", err)
	}
	defer f.Close()

	records := []Annotation{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var a Annotation
		if err := json.Unmarshal([]byte(line), &a); err != nil {
			continue
		}
		records = append(records, a)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read annotation log: %w", err)
	}
	return records, nil
}

func (s *Store) path(uploadID string) string {
	safe := strings.ReplaceAll(uploadID, "/", "_")
	return filepath.Join(s.dir, safe+".jsonl")
}
