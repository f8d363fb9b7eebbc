package handler

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rallysight/rallysight/internal/api/response"
	"github.com/rallysight/rallysight/internal/ingest"
	"github.com/rallysight/rallysight/internal/ingest/state"
)

// uploadChunkSize is the copy buffer used when streaming an upload to disk.
const uploadChunkSize = 4 << 20

// JobCreator registers a freshly uploaded asset as a queued job.
type JobCreator interface {
	CreateJob(uploadID, originalPath, originalURL string) (state.Job, error)
}

// Coordinator is the ingest control surface the handlers depend on.
type Coordinator interface {
	Start(uploadID string) (ingest.StartResult, error)
	Status(uploadID string) state.Job
	Healthy() bool
}

// NewUploadHandler returns an http.HandlerFunc for POST /api/v1/ingest/upload.
// The file part is streamed to disk in fixed-size chunks; it is never
// buffered in memory.
func NewUploadHandler(layout ingest.Layout, jobs JobCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mr, err := r.MultipartReader()
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Request must be multipart/form-data", nil)
			return
		}

		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"Malformed multipart body", nil)
				return
			}
			if part.FormName() != "file" {
				part.Close()
				continue
			}

			ext := strings.ToLower(filepath.Ext(part.FileName()))
			if !ingest.ExtensionAllowed(ext) {
				part.Close()
				response.Error(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE",
					"Unsupported file type", map[string]string{"ext": ext})
				return
			}

			uploadID := uuid.NewString()
			dstPath := layout.OriginalPath(uploadID, ext)
			if err := streamToFile(dstPath, part); err != nil {
				part.Close()
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to store uploaded file", nil)
				return
			}
			part.Close()

			originalURL := ingest.OriginalURL(uploadID, ext)
			job, err := jobs.CreateJob(uploadID, dstPath, originalURL)
			if err != nil {
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to record upload", nil)
				return
			}

			response.Created(w, uploadResponse{
				UploadID:    uploadID,
				OriginalURL: originalURL,
				Status:      string(job.Status),
			})
			return
		}

		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			"file field is required", nil)
	}
}

type uploadResponse struct {
	UploadID    string `json:"upload_id"`
	OriginalURL string `json:"original_url"`
	Status      string `json:"status"`
}

func streamToFile(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	buf := make([]byte, uploadChunkSize)
	if _, err := io.CopyBuffer(dst, src, buf); err != nil {
		dst.Close()
		os.Remove(path)
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// NewStartIngestHandler returns an http.HandlerFunc for
// POST /api/v1/ingest/{uploadID}/start. Starting is idempotent: an upload
// that is already processed or already in flight reports so without
// launching another pipeline.
func NewStartIngestHandler(coord Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uploadID := chi.URLParam(r, "uploadID")
		if uploadID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"uploadID is required", nil)
			return
		}

		result, err := coord.Start(uploadID)
		if err != nil {
			if errors.Is(err, ingest.ErrSourceNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND",
					"No uploaded file found for this id", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to start ingest", nil)
			return
		}

		body := startResponse{UploadID: uploadID, Result: string(result)}
		if result == ingest.StartResultStarted {
			response.Accepted(w, body)
			return
		}
		response.JSON(w, body)
	}
}

type startResponse struct {
	UploadID string `json:"upload_id"`
	Result   string `json:"result"`
}

// NewIngestStatusHandler returns an http.HandlerFunc for
// GET /api/v1/ingest/{uploadID}/status.
func NewIngestStatusHandler(coord Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uploadID := chi.URLParam(r, "uploadID")
		if uploadID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"uploadID is required", nil)
			return
		}
		response.JSON(w, coord.Status(uploadID))
	}
}

// NewIngestHealthHandler returns an http.HandlerFunc for
// GET /api/v1/ingest/health.
func NewIngestHealthHandler(coord Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, map[string]any{
			"ok":     coord.Healthy(),
			"module": "ingest",
		})
	}
}
