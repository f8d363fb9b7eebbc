package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rallysight/rallysight/internal/calibration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func calibrationBody() map[string]any {
	return map[string]any{
		"frame_t":    12.5,
		"image_size": []int{1920, 1080},
		"image_points": [][]float64{
			{210, 840}, {1710, 845}, {1410, 390}, {505, 388},
		},
		"court_template": "indoor_fivb_18x9",
		"net_points":     [][]float64{{640, 350}, {1280, 352}},
	}
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(method, target, bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestSaveCalibration_ComputesHomography(t *testing.T) {
	svc := calibration.NewService(t.TempDir())
	h := NewSaveCalibrationHandler(svc)

	r := withURLParam(jsonRequest(t, http.MethodPost, "/api/v1/calibration/u1", calibrationBody()), "uploadID", "u1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeData(t, rec)
	assert.Equal(t, "indoor_fivb_18x9", data["court_template"])
	assert.NotNil(t, data["homography"])
	assert.NotNil(t, data["homography_inv"])
	assert.Len(t, data["net_court_points"], 2)

	// The record is persisted and readable back through the service.
	_, err := svc.Get("u1")
	assert.NoError(t, err)
}

func TestSaveCalibration_BadGeometry(t *testing.T) {
	svc := calibration.NewService(t.TempDir())
	h := NewSaveCalibrationHandler(svc)

	body := calibrationBody()
	body["image_points"] = [][]float64{{0, 0}, {1, 1}, {2, 2}}

	r := withURLParam(jsonRequest(t, http.MethodPost, "/api/v1/calibration/u1", body), "uploadID", "u1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_GEOMETRY", decodeErrorCode(t, rec))
}

func TestSaveCalibration_InvalidJSON(t *testing.T) {
	h := NewSaveCalibrationHandler(calibration.NewService(t.TempDir()))

	r := httptest.NewRequest(http.MethodPost, "/api/v1/calibration/u1", bytes.NewReader([]byte("{broken")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withURLParam(r, "uploadID", "u1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeErrorCode(t, rec))
}

func TestGetCalibration_NotFound(t *testing.T) {
	h := NewGetCalibrationHandler(calibration.NewService(t.TempDir()))

	r := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/calibration/ghost", nil), "uploadID", "ghost")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeErrorCode(t, rec))
}

func TestGetCalibration_ReturnsSavedRecord(t *testing.T) {
	svc := calibration.NewService(t.TempDir())
	save := NewSaveCalibrationHandler(svc)
	get := NewGetCalibrationHandler(svc)

	rec := httptest.NewRecorder()
	save.ServeHTTP(rec, withURLParam(jsonRequest(t, http.MethodPost, "/api/v1/calibration/u1", calibrationBody()), "uploadID", "u1"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	get.ServeHTTP(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/calibration/u1", nil), "uploadID", "u1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 12.5, decodeData(t, rec)["frame_t"])
}

func TestTransform_RoundTrip(t *testing.T) {
	svc := calibration.NewService(t.TempDir())
	save := NewSaveCalibrationHandler(svc)

	rec := httptest.NewRecorder()
	save.ServeHTTP(rec, withURLParam(jsonRequest(t, http.MethodPost, "/api/v1/calibration/u1", calibrationBody()), "uploadID", "u1"))
	require.Equal(t, http.StatusOK, rec.Code)

	// Image corner -> court space lands on the template corner.
	toCourt := NewPixelToCourtHandler(svc)
	rec = httptest.NewRecorder()
	toCourt.ServeHTTP(rec, withURLParam(
		jsonRequest(t, http.MethodPost, "/api/v1/calibration/u1/pixel-to-court",
			map[string]any{"pts": [][]float64{{210, 840}}}), "uploadID", "u1"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var courtEnv struct {
		Data struct {
			UV [][]float64 `json:"uv"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&courtEnv))
	require.Len(t, courtEnv.Data.UV, 1)
	assert.InDelta(t, 0, courtEnv.Data.UV[0][0], 1e-6)
	assert.InDelta(t, 0, courtEnv.Data.UV[0][1], 1e-6)

	// And back again through the inverse.
	toPixel := NewCourtToPixelHandler(svc)
	rec = httptest.NewRecorder()
	toPixel.ServeHTTP(rec, withURLParam(
		jsonRequest(t, http.MethodPost, "/api/v1/calibration/u1/court-to-pixel",
			map[string]any{"pts": [][]float64{{0, 0}}}), "uploadID", "u1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var pixelEnv struct {
		Data struct {
			PX [][]float64 `json:"px"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&pixelEnv))
	require.Len(t, pixelEnv.Data.PX, 1)
	assert.InDelta(t, 210, pixelEnv.Data.PX[0][0], 1e-6)
	assert.InDelta(t, 840, pixelEnv.Data.PX[0][1], 1e-6)
}

func TestTransform_NoCalibration(t *testing.T) {
	h := NewPixelToCourtHandler(calibration.NewService(t.TempDir()))

	r := withURLParam(jsonRequest(t, http.MethodPost, "/api/v1/calibration/ghost/pixel-to-court",
		map[string]any{"pts": [][]float64{{1, 2}}}), "uploadID", "ghost")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransform_EmptyPoints(t *testing.T) {
	h := NewPixelToCourtHandler(calibration.NewService(t.TempDir()))

	r := withURLParam(jsonRequest(t, http.MethodPost, "/api/v1/calibration/u1/pixel-to-court",
		map[string]any{"pts": [][]float64{}}), "uploadID", "u1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeErrorCode(t, rec))
}
