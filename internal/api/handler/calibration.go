package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rallysight/rallysight/internal/api/response"
	"github.com/rallysight/rallysight/internal/calibration"
	"github.com/rallysight/rallysight/internal/geometry"
)

// Calibrator defines the calibration operations the handlers depend on.
type Calibrator interface {
	Save(uploadID string, in calibration.SaveInput) (calibration.Record, error)
	Get(uploadID string) (calibration.Record, error)
	PixelToCourt(uploadID string, pts []geometry.Point) ([]geometry.Point, error)
	CourtToPixel(uploadID string, pts []geometry.Point) ([]geometry.Point, error)
}

// NewSaveCalibrationHandler returns an http.HandlerFunc for
// POST /api/v1/calibration/{uploadID}.
func NewSaveCalibrationHandler(svc Calibrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uploadID := chi.URLParam(r, "uploadID")

		var req struct {
			FrameT        float64          `json:"frame_t"`
			ImageSize     [2]int           `json:"image_size"`
			ImagePoints   []geometry.Point `json:"image_points"`
			CourtTemplate string           `json:"court_template"`
			NetPoints     []geometry.Point `json:"net_points"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		record, err := svc.Save(uploadID, calibration.SaveInput{
			FrameT:        req.FrameT,
			ImageSize:     req.ImageSize,
			ImagePoints:   req.ImagePoints,
			CourtTemplate: req.CourtTemplate,
			NetPoints:     req.NetPoints,
		})
		if err != nil {
			switch {
			case errors.Is(err, geometry.ErrInvalidInput), errors.Is(err, geometry.ErrSingularMatrix):
				response.Error(w, http.StatusBadRequest, "INVALID_GEOMETRY", err.Error(), nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to save calibration", nil)
			}
			return
		}

		response.JSON(w, record)
	}
}

// NewGetCalibrationHandler returns an http.HandlerFunc for
// GET /api/v1/calibration/{uploadID}.
func NewGetCalibrationHandler(svc Calibrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uploadID := chi.URLParam(r, "uploadID")

		record, err := svc.Get(uploadID)
		if err != nil {
			if errors.Is(err, calibration.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Calibration not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load calibration", nil)
			return
		}

		response.JSON(w, record)
	}
}

// NewPixelToCourtHandler returns an http.HandlerFunc for
// POST /api/v1/calibration/{uploadID}/pixel-to-court.
func NewPixelToCourtHandler(svc Calibrator) http.HandlerFunc {
	return transformHandler("uv", svc.PixelToCourt)
}

// NewCourtToPixelHandler returns an http.HandlerFunc for
// POST /api/v1/calibration/{uploadID}/court-to-pixel.
func NewCourtToPixelHandler(svc Calibrator) http.HandlerFunc {
	return transformHandler("px", svc.CourtToPixel)
}

func transformHandler(field string, apply func(string, []geometry.Point) ([]geometry.Point, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uploadID := chi.URLParam(r, "uploadID")

		var req struct {
			Pts []geometry.Point `json:"pts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if len(req.Pts) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "pts is required", nil)
			return
		}

		out, err := apply(uploadID, req.Pts)
		if err != nil {
			switch {
			case errors.Is(err, calibration.ErrNotFound):
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Calibration not found", nil)
			case errors.Is(err, calibration.ErrMissingMatrix):
				response.Error(w, http.StatusBadRequest, "CALIBRATION_INCOMPLETE", err.Error(), nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to transform points", nil)
			}
			return
		}

		response.JSON(w, map[string][]geometry.Point{field: out})
	}
}
