package detect

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/roadwatch/internal/config"
)

func TestDetectSendsFrameAndParsesDetections(t *testing.T) {
	image := []byte("jpeg-bytes")
	meta := FrameMeta{
		CameraID:  uuid.New(),
		FrameID:   uuid.New(),
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Latitude:  40.71,
		Longitude: -74.0,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/inference", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req inferenceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, meta.CameraID, req.CameraID)
		assert.Equal(t, meta.FrameID, req.FrameID)
		assert.Equal(t, base64.StdEncoding.EncodeToString(image), req.Image)
		assert.Equal(t, meta.Latitude, req.Latitude)

		json.NewEncoder(w).Encode(map[string]any{
			"detections": []map[string]any{
				{"class": "car", "confidence": 0.91, "bbox": map[string]float64{"x": 10, "y": 20, "w": 100, "h": 50}},
				{"class": "person", "confidence": 0.42},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(config.DetectionConfig{ServiceURL: srv.URL})
	raws, err := c.Detect(context.Background(), image, meta)
	require.NoError(t, err)

	require.Len(t, raws, 2)
	assert.Equal(t, "car", raws[0].Class)
	assert.Equal(t, 0.91, raws[0].Confidence)
	assert.Equal(t, 100.0, raws[0].BBox.W)
	assert.Equal(t, "person", raws[1].Class)
}

func TestDetectNon200IsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(config.DetectionConfig{ServiceURL: srv.URL})
	_, err := c.Detect(context.Background(), []byte("x"), FrameMeta{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestDetectTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(config.DetectionConfig{ServiceURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := c.Detect(context.Background(), []byte("x"), FrameMeta{})
	require.Error(t, err)
}

func TestDetectGarbageResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>proxy error</html>"))
	}))
	defer srv.Close()

	c := NewClient(config.DetectionConfig{ServiceURL: srv.URL})
	_, err := c.Detect(context.Background(), []byte("x"), FrameMeta{})
	require.Error(t, err)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(config.DetectionConfig{ServiceURL: srv.URL})
	assert.NoError(t, c.Ping(context.Background()))

	srv.Close()
	assert.Error(t, c.Ping(context.Background()))
}
