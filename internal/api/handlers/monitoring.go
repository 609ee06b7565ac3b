package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/your-org/roadwatch/internal/models"
	"github.com/your-org/roadwatch/internal/queue"
	"github.com/your-org/roadwatch/internal/storage"
)

type MonitoringHandler struct {
	db       *storage.PostgresStore
	producer *queue.Producer
}

func NewMonitoringHandler(db *storage.PostgresStore, producer *queue.Producer) *MonitoringHandler {
	return &MonitoringHandler{db: db, producer: producer}
}

// Status summarises the monitoring fleet: per-camera state plus the capture
// queue backlog. Session liveness is owned by the monitor process; here we
// report the persisted view.
func (h *MonitoringHandler) Status(c *gin.Context) {
	cameras, err := h.db.ListCameras(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	monitored := lo.CountBy(cameras, func(cam models.Camera) bool {
		return cam.Status == models.CameraStatusActive || cam.Status == models.CameraStatusRecording
	})
	online := lo.CountBy(cameras, func(cam models.Camera) bool {
		return cam.IsOnline
	})

	var queueDepth uint64
	if depth, err := h.producer.QueueDepth(c.Request.Context()); err == nil {
		queueDepth = depth
	}

	summary := lo.Map(cameras, func(cam models.Camera, _ int) gin.H {
		return gin.H{
			"camera_id":    cam.ID,
			"name":         cam.Name,
			"status":       cam.Status,
			"is_online":    cam.IsOnline,
			"is_recording": cam.IsRecording,
			"last_error":   cam.LastError,
		}
	})

	c.JSON(http.StatusOK, gin.H{
		"total":       len(cameras),
		"monitored":   monitored,
		"online":      online,
		"queue_depth": queueDepth,
		"cameras":     summary,
	})
}
