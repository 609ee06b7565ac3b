package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/roadwatch/internal/config"
	"github.com/your-org/roadwatch/internal/observability"
)

// RawDetection is one object reported by the detection service.
type RawDetection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	BBox       struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		W float64 `json:"w"`
		H float64 `json:"h"`
	} `json:"bbox"`
}

type inferenceRequest struct {
	CameraID  uuid.UUID `json:"camera_id"`
	FrameID   uuid.UUID `json:"frame_id"`
	Timestamp time.Time `json:"timestamp"`
	Image     string    `json:"image"` // base64-encoded JPEG
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}

type inferenceResponse struct {
	Detections []RawDetection `json:"detections"`
}

// FrameMeta carries camera metadata alongside the frame image.
type FrameMeta struct {
	CameraID  uuid.UUID
	FrameID   uuid.UUID
	Timestamp time.Time
	Latitude  float64
	Longitude float64
}

// Client calls the external detection service over HTTP.
type Client struct {
	serviceURL string
	httpClient *http.Client
}

func NewClient(cfg config.DetectionConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		serviceURL: cfg.ServiceURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Detect submits one frame image and returns the detected objects.
func (c *Client) Detect(ctx context.Context, image []byte, meta FrameMeta) ([]RawDetection, error) {
	req := inferenceRequest{
		CameraID:  meta.CameraID,
		FrameID:   meta.FrameID,
		Timestamp: meta.Timestamp,
		Image:     base64.StdEncoding.EncodeToString(image),
		Latitude:  meta.Latitude,
		Longitude: meta.Longitude,
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal inference request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.serviceURL+"/api/v1/inference", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create inference request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("detection service: %w", err)
	}
	defer resp.Body.Close()
	observability.DetectionDuration.Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read inference response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detection service returned %d: %s", resp.StatusCode, body)
	}

	var infResp inferenceResponse
	if err := json.Unmarshal(body, &infResp); err != nil {
		return nil, fmt.Errorf("parse inference response: %w", err)
	}

	return infResp.Detections, nil
}

// Ping checks that the detection service is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serviceURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("detection service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detection service returned %d", resp.StatusCode)
	}
	return nil
}
