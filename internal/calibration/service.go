// Package calibration stores per-upload court calibrations: the homography
// between image pixels and court meters, derived from four corner clicks.
package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rallysight/rallysight/internal/geometry"
)

var (
	// ErrNotFound is returned when no calibration exists for an upload.
	ErrNotFound = errors.New("calibration not found")
	// ErrMissingMatrix is returned when a stored calibration lacks the
	// requested transform direction.
	ErrMissingMatrix = errors.New("calibration missing homography")
)

// TemplateIndoor18x9 is the one supported court template: a standard indoor
// court, 18m baseline to baseline and 9m sideline to sideline.
const TemplateIndoor18x9 = "indoor_fivb_18x9"

// templateCorners returns the real-world corner coordinates for a template,
// ordered left-near, right-near, right-far, left-far.
func templateCorners(template string) ([]geometry.Point, bool) {
	if template != TemplateIndoor18x9 {
		return nil, false
	}
	return []geometry.Point{
		{X: 0, Y: 0},
		{X: 18, Y: 0},
		{X: 18, Y: 9},
		{X: 0, Y: 9},
	}, true
}

// Record is a persisted calibration. It is written wholesale on every save;
// there is no merge with a previous calibration.
type Record struct {
	FrameT         float64          `json:"frame_t"`
	ImageSize      [2]int           `json:"image_size"`
	ImagePoints    []geometry.Point `json:"image_points"`
	CourtTemplate  string           `json:"court_template"`
	CourtPoints    []geometry.Point `json:"court_points"`
	NetPoints      []geometry.Point `json:"net_points"`
	NetCourtPoints []geometry.Point `json:"net_court_points"`
	Homography     geometry.Matrix3 `json:"homography"`
	HomographyInv  geometry.Matrix3 `json:"homography_inv"`
}

// SaveInput is the client-supplied calibration geometry.
type SaveInput struct {
	FrameT        float64
	ImageSize     [2]int
	ImagePoints   []geometry.Point
	CourtTemplate string
	NetPoints     []geometry.Point
}

// Service computes and persists calibrations, one JSON file per upload id.
type Service struct {
	dir string
}

func NewService(dir string) *Service {
	return &Service{dir: dir}
}

// Save validates the geometry, computes the forward and inverse homography,
// projects the net points into court space, and persists the record,
// replacing any previous calibration for the id.
func (s *Service) Save(uploadID string, in SaveInput) (Record, error) {
	if len(in.ImagePoints) != 4 {
		return Record{}, fmt.Errorf("%w: exactly four court corner points are required", geometry.ErrInvalidInput)
	}
	if len(in.NetPoints) != 2 {
		return Record{}, fmt.Errorf("%w: exactly two net tape points are required", geometry.ErrInvalidInput)
	}
	template := in.CourtTemplate
	if template == "" {
		template = TemplateIndoor18x9
	}
	courtPoints, ok := templateCorners(template)
	if !ok {
		return Record{}, fmt.Errorf("%w: unknown court template %q", geometry.ErrInvalidInput, template)
	}

	h, err := geometry.ComputeHomography(in.ImagePoints, courtPoints)
	if err != nil {
		return Record{}, err
	}
	inv, err := h.Invert()
	if err != nil {
		return Record{}, err
	}

	record := Record{
		FrameT:         in.FrameT,
		ImageSize:      in.ImageSize,
		ImagePoints:    in.ImagePoints,
		CourtTemplate:  template,
		CourtPoints:    courtPoints,
		NetPoints:      in.NetPoints,
		NetCourtPoints: h.Apply(in.NetPoints),
		Homography:     h,
		HomographyInv:  inv,
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return Record{}, fmt.Errorf("encode calibration: %w", err)
	}
	path := s.path(uploadID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Record{}, fmt.Errorf("create calibration directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Record{}, fmt.Errorf("write calibration: %w", err)
	}
	return record, nil
}

// Get loads the persisted calibration for an upload id.
func (s *Service) Get(uploadID string) (Record, error) {
	data, err := os.ReadFile(s.path(uploadID))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, uploadID)
		}
		return Record{}, fmt.Errorf("read calibration: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("decode calibration: %w", err)
	}
	return record, nil
}

// PixelToCourt maps image-space points into court meters via the forward
// homography.
func (s *Service) PixelToCourt(uploadID string, pts []geometry.Point) ([]geometry.Point, error) {
	record, err := s.Get(uploadID)
	if err != nil {
		return nil, err
	}
	if record.Homography[2][2] == 0 {
		return nil, ErrMissingMatrix
	}
	return record.Homography.Apply(pts), nil
}

// CourtToPixel maps court-space points back into image pixels via the
// inverse homography.
func (s *Service) CourtToPixel(uploadID string, pts []geometry.Point) ([]geometry.Point, error) {
	record, err := s.Get(uploadID)
	if err != nil {
		return nil, err
	}
	if record.HomographyInv[2][2] == 0 {
		return nil, ErrMissingMatrix
	}
	return record.HomographyInv.Apply(pts), nil
}

func (s *Service) path(uploadID string) string {
	safe := strings.ReplaceAll(uploadID, "/", "_")
	return filepath.Join(s.dir, safe+".json")
}
