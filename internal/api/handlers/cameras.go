package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/roadwatch/internal/models"
	"github.com/your-org/roadwatch/internal/queue"
	"github.com/your-org/roadwatch/internal/storage"
	"github.com/your-org/roadwatch/pkg/dto"
)

type CameraHandler struct {
	db       *storage.PostgresStore
	producer *queue.Producer
}

func NewCameraHandler(db *storage.PostgresStore, producer *queue.Producer) *CameraHandler {
	return &CameraHandler{db: db, producer: producer}
}

func (h *CameraHandler) Create(c *gin.Context) {
	var req dto.CreateCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	frameRate := req.FrameRate
	if frameRate <= 0 {
		frameRate = 30
	}

	cam := &models.Camera{
		Name:       req.Name,
		Location:   req.Location,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		StreamURL:  req.StreamURL,
		StreamKind: models.StreamKind(req.StreamKind),
		Resolution: req.Resolution,
		FrameRate:  frameRate,
		Status:     models.CameraStatusInactive,
	}

	if err := h.db.CreateCamera(c.Request.Context(), cam); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, cameraToResponse(cam))
}

func (h *CameraHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid camera id"})
		return
	}

	cam, err := h.db.GetCamera(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cam == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
		return
	}

	c.JSON(http.StatusOK, cameraToResponse(cam))
}

func (h *CameraHandler) List(c *gin.Context) {
	cameras, err := h.db.ListCameras(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.CameraResponse, 0, len(cameras))
	for _, cam := range cameras {
		resp = append(resp, cameraToResponse(&cam))
	}

	c.JSON(http.StatusOK, dto.CameraListResponse{Cameras: resp, Total: len(resp)})
}

func (h *CameraHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid camera id"})
		return
	}

	var req dto.UpdateCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cam, err := h.db.GetCamera(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cam == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
		return
	}

	if req.Status != "" {
		next := models.CameraStatus(req.Status)
		if !models.CanTransition(cam.Status, next) {
			c.JSON(http.StatusConflict, gin.H{"error": "invalid status transition"})
			return
		}
		cam.Status = next
	}

	cam.Name = req.Name
	cam.Location = req.Location
	cam.Latitude = req.Latitude
	cam.Longitude = req.Longitude
	cam.StreamURL = req.StreamURL
	cam.StreamKind = models.StreamKind(req.StreamKind)
	cam.Resolution = req.Resolution
	if req.FrameRate > 0 {
		cam.FrameRate = req.FrameRate
	}

	if err := h.db.UpdateCamera(c.Request.Context(), cam); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, cameraToResponse(cam))
}

func (h *CameraHandler) Start(c *gin.Context) {
	h.control(c, "start")
}

func (h *CameraHandler) Stop(c *gin.Context) {
	h.control(c, "stop")
}

func (h *CameraHandler) Restart(c *gin.Context) {
	h.control(c, "restart")
}

// control publishes a monitoring command to NATS. The monitor process owns the
// sessions; the API only forwards intent.
func (h *CameraHandler) control(c *gin.Context, action string) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid camera id"})
		return
	}

	cam, err := h.db.GetCamera(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cam == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
		return
	}

	if action == "start" && cam.StreamURL == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "camera has no stream url"})
		return
	}

	cmdData, _ := json.Marshal(map[string]string{
		"action":    action,
		"camera_id": id.String(),
	})
	if err := h.producer.PublishControl(cmdData); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send command"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": action, "camera_id": id})
}

func (h *CameraHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid camera id"})
		return
	}

	// Stop monitoring first if the camera is being watched
	cam, err := h.db.GetCamera(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cam != nil && (cam.Status == models.CameraStatusActive || cam.Status == models.CameraStatusRecording) {
		cmdData, _ := json.Marshal(map[string]string{
			"action":    "stop",
			"camera_id": id.String(),
		})
		_ = h.producer.PublishControl(cmdData)
	}

	if err := h.db.DeleteCamera(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func cameraToResponse(cam *models.Camera) dto.CameraResponse {
	resp := dto.CameraResponse{
		ID:          cam.ID,
		Name:        cam.Name,
		Location:    cam.Location,
		Latitude:    cam.Latitude,
		Longitude:   cam.Longitude,
		StreamURL:   cam.StreamURL,
		StreamKind:  string(cam.StreamKind),
		Resolution:  cam.Resolution,
		FrameRate:   cam.FrameRate,
		Status:      string(cam.Status),
		IsOnline:    cam.IsOnline,
		IsRecording: cam.IsRecording,
		LastError:   cam.LastError,
		CreatedAt:   cam.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   cam.UpdatedAt.Format(time.RFC3339),
	}
	if cam.LastActiveAt != nil {
		resp.LastActiveAt = cam.LastActiveAt.Format(time.RFC3339)
	}
	return resp
}
