package models

import (
	"time"

	"github.com/google/uuid"
)

type StreamKind string

const (
	// StreamKindHLS is a segmented HTTP stream polled via its playlist.
	StreamKindHLS StreamKind = "hls"
	// StreamKindRTSP is a connection-oriented stream sampled by periodic capture.
	StreamKindRTSP StreamKind = "rtsp"
)

type CameraStatus string

const (
	CameraStatusActive      CameraStatus = "active"
	CameraStatusInactive    CameraStatus = "inactive"
	CameraStatusMaintenance CameraStatus = "maintenance"
	CameraStatusRecording   CameraStatus = "recording"
	CameraStatusError       CameraStatus = "error"
)

// CanTransition reports whether a camera status change is allowed.
// Valid moves: inactive/maintenance→active, active↔recording,
// any→error, error→active.
func CanTransition(from, to CameraStatus) bool {
	if to == CameraStatusError {
		return true
	}
	switch from {
	case CameraStatusInactive, CameraStatusMaintenance, CameraStatusError:
		return to == CameraStatusActive || to == CameraStatusInactive || to == CameraStatusMaintenance
	case CameraStatusActive:
		return to == CameraStatusRecording || to == CameraStatusInactive || to == CameraStatusMaintenance || to == CameraStatusActive
	case CameraStatusRecording:
		return to == CameraStatusActive
	}
	return false
}

type Camera struct {
	ID           uuid.UUID    `json:"id" db:"id"`
	Name         string       `json:"name" db:"name"`
	Location     string       `json:"location" db:"location"`
	Latitude     float64      `json:"latitude" db:"latitude"`
	Longitude    float64      `json:"longitude" db:"longitude"`
	StreamURL    string       `json:"stream_url" db:"stream_url"`
	StreamKind   StreamKind   `json:"stream_kind" db:"stream_kind"`
	Resolution   string       `json:"resolution" db:"resolution"`
	FrameRate    int          `json:"frame_rate" db:"frame_rate"`
	Status       CameraStatus `json:"status" db:"status"`
	IsOnline     bool         `json:"is_online" db:"is_online"`
	IsRecording  bool         `json:"is_recording" db:"is_recording"`
	LastActiveAt *time.Time   `json:"last_active_at,omitempty" db:"last_active_at"`
	LastError    string       `json:"last_error,omitempty" db:"last_error"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

type LogStatus string

const (
	LogStatusOnline  LogStatus = "online"
	LogStatusOffline LogStatus = "offline"
	LogStatusError   LogStatus = "error"
)

// CameraLog is an append-only operational event record.
type CameraLog struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CameraID  uuid.UUID `json:"camera_id" db:"camera_id"`
	Status    LogStatus `json:"status" db:"status"`
	Message   string    `json:"message,omitempty" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CameraStats aggregates live processing counters for one camera.
type CameraStats struct {
	CameraID        uuid.UUID  `json:"camera_id"`
	FramesProcessed int64      `json:"frames_processed"`
	Detections      int64      `json:"detections"`
	Accidents       int64      `json:"accidents"`
	LastDetectionAt *time.Time `json:"last_detection_at,omitempty"`
}
