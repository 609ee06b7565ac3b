package models

import (
	"time"

	"github.com/google/uuid"
)

// Frame is one still image decoded from a segment or clip. The image file is
// transient; ImagePath is only meaningful while the dispatch is in flight.
type Frame struct {
	ID             uuid.UUID `json:"id" db:"id"`
	CameraID       uuid.UUID `json:"camera_id" db:"camera_id"`
	FrameNumber    int       `json:"frame_number" db:"frame_number"`
	CapturedAt     time.Time `json:"captured_at" db:"captured_at"`
	ImagePath      string    `json:"-" db:"image_path"`
	Processed      bool      `json:"processed" db:"processed"`
	DetectionCount int       `json:"detection_count" db:"detection_count"`
}

// BBox is an axis-aligned bounding box in frame pixel coordinates.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type Detection struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	CameraID          uuid.UUID  `json:"camera_id" db:"camera_id"`
	FrameID           uuid.UUID  `json:"frame_id" db:"frame_id"`
	DetectedAt        time.Time  `json:"detected_at" db:"detected_at"`
	Class             string     `json:"class" db:"class"`
	Confidence        float64    `json:"confidence" db:"confidence"`
	BBox              BBox       `json:"bbox"`
	PotentialAccident bool       `json:"potential_accident" db:"potential_accident"`
	AccidentID        *uuid.UUID `json:"accident_id,omitempty" db:"accident_id"`
}

type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

type Accident struct {
	ID                uuid.UUID `json:"id" db:"id"`
	CameraID          uuid.UUID `json:"camera_id" db:"camera_id"`
	Latitude          float64   `json:"latitude" db:"latitude"`
	Longitude         float64   `json:"longitude" db:"longitude"`
	Description       string    `json:"description" db:"description"`
	Severity          Severity  `json:"severity" db:"severity"`
	Status            string    `json:"status" db:"status"`
	Source            string    `json:"source" db:"source"`
	OccurredAt        time.Time `json:"occurred_at" db:"occurred_at"`
	VerificationCount int       `json:"verification_count" db:"verification_count"`
}

// CaptureJob is the message published to NATS when a periodic-capture camera
// uploads a clip for out-of-band detection.
type CaptureJob struct {
	CameraID  uuid.UUID `json:"camera_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
	ClipRef   string    `json:"clip_ref"` // MinIO object key
}

// DetectionEvent is published after a committed dispatch so the API can feed
// live dashboards.
type DetectionEvent struct {
	DetectionID uuid.UUID  `json:"detection_id"`
	CameraID    uuid.UUID  `json:"camera_id"`
	FrameID     uuid.UUID  `json:"frame_id"`
	DetectedAt  time.Time  `json:"detected_at"`
	Class       string     `json:"class"`
	Confidence  float64    `json:"confidence"`
	BBox        BBox       `json:"bbox"`
	AccidentID  *uuid.UUID `json:"accident_id,omitempty"`
}
