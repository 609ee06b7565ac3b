package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/roadwatch/internal/models"
)

type DetectionResponse struct {
	ID                uuid.UUID   `json:"id"`
	CameraID          uuid.UUID   `json:"camera_id"`
	FrameID           uuid.UUID   `json:"frame_id"`
	Class             string      `json:"class"`
	Confidence        float64     `json:"confidence"`
	BBox              models.BBox `json:"bbox"`
	PotentialAccident bool        `json:"potential_accident"`
	AccidentID        *uuid.UUID  `json:"accident_id,omitempty"`
	DetectedAt        string      `json:"detected_at"`
}

type DetectionListResponse struct {
	Detections []DetectionResponse `json:"detections"`
	Total      int                 `json:"total"`
}

type AccidentResponse struct {
	ID                uuid.UUID `json:"id"`
	CameraID          uuid.UUID `json:"camera_id"`
	Latitude          float64   `json:"latitude"`
	Longitude         float64   `json:"longitude"`
	Description       string    `json:"description,omitempty"`
	Severity          string    `json:"severity"`
	Status            string    `json:"status"`
	Source            string    `json:"source"`
	OccurredAt        string    `json:"occurred_at"`
	VerificationCount int       `json:"verification_count"`
}

type CameraLogResponse struct {
	ID        uuid.UUID `json:"id"`
	CameraID  uuid.UUID `json:"camera_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	CreatedAt string    `json:"created_at"`
}

type StatsResponse struct {
	CameraID        uuid.UUID        `json:"camera_id"`
	FramesProcessed int64            `json:"frames_processed"`
	Detections      int64            `json:"detections"`
	Accidents       int64            `json:"accidents"`
	LastDetectionAt string           `json:"last_detection_at,omitempty"`
	RecentByClass   map[string]int64 `json:"recent_by_class,omitempty"`
}

// WSEvent is the envelope pushed to websocket subscribers. CameraID lets the
// hub route events to clients subscribed to a single camera.
type WSEvent struct {
	Type     string    `json:"type"`
	CameraID uuid.UUID `json:"camera_id"`
	Data     any       `json:"data"`
}
