package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rallysight/rallysight/internal/annotations"
	"github.com/rallysight/rallysight/internal/api/response"
)

// AnnotationStore defines the annotation operations the handlers depend on.
type AnnotationStore interface {
	Append(uploadID string, a annotations.Annotation) (annotations.Annotation, error)
	List(uploadID string) ([]annotations.Annotation, error)
}

// NewListAnnotationsHandler returns an http.HandlerFunc for
// GET /api/v1/annotations/{uploadID}. An upload with no annotations reads
// as an empty list, not an error.
func NewListAnnotationsHandler(store AnnotationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uploadID := chi.URLParam(r, "uploadID")

		records, err := store.List(uploadID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load annotations", nil)
			return
		}

		response.JSON(w, map[string][]annotations.Annotation{"annotations": records})
	}
}

// NewAppendAnnotationHandler returns an http.HandlerFunc for
// POST /api/v1/annotations/{uploadID}. The server assigns id and created_at;
// values supplied by the client are ignored.
func NewAppendAnnotationHandler(store AnnotationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uploadID := chi.URLParam(r, "uploadID")

		var a annotations.Annotation
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		saved, err := store.Append(uploadID, a)
		if err != nil {
			if errors.Is(err, annotations.ErrMissingGeometry) {
				response.Error(w, http.StatusBadRequest, "INVALID_GEOMETRY", err.Error(), nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to save annotation", nil)
			return
		}

		response.Created(w, saved)
	}
}
