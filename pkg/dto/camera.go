package dto

import (
	"github.com/google/uuid"
)

type CreateCameraRequest struct {
	Name       string  `json:"name" binding:"required"`
	Location   string  `json:"location"`
	Latitude   float64 `json:"latitude" binding:"required"`
	Longitude  float64 `json:"longitude" binding:"required"`
	StreamURL  string  `json:"stream_url" binding:"required"`
	StreamKind string  `json:"stream_kind" binding:"required,oneof=hls rtsp"`
	Resolution string  `json:"resolution"`
	FrameRate  int     `json:"frame_rate"`
}

type UpdateCameraRequest struct {
	Name       string  `json:"name" binding:"required"`
	Location   string  `json:"location"`
	Latitude   float64 `json:"latitude" binding:"required"`
	Longitude  float64 `json:"longitude" binding:"required"`
	StreamURL  string  `json:"stream_url" binding:"required"`
	StreamKind string  `json:"stream_kind" binding:"required,oneof=hls rtsp"`
	Resolution string  `json:"resolution"`
	FrameRate  int     `json:"frame_rate"`
	Status     string  `json:"status" binding:"omitempty,oneof=active inactive maintenance"`
}

type CameraResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Location     string    `json:"location"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	StreamURL    string    `json:"stream_url"`
	StreamKind   string    `json:"stream_kind"`
	Resolution   string    `json:"resolution,omitempty"`
	FrameRate    int       `json:"frame_rate,omitempty"`
	Status       string    `json:"status"`
	IsOnline     bool      `json:"is_online"`
	IsRecording  bool      `json:"is_recording"`
	LastActiveAt string    `json:"last_active_at,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	CreatedAt    string    `json:"created_at"`
	UpdatedAt    string    `json:"updated_at"`
}

type CameraListResponse struct {
	Cameras []CameraResponse `json:"cameras"`
	Total   int              `json:"total"`
}
