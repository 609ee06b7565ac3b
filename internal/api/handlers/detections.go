package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/your-org/roadwatch/internal/models"
	"github.com/your-org/roadwatch/internal/storage"
	"github.com/your-org/roadwatch/pkg/dto"
)

type DetectionHandler struct {
	db *storage.PostgresStore
}

func NewDetectionHandler(db *storage.PostgresStore) *DetectionHandler {
	return &DetectionHandler{db: db}
}

// ListDetections returns recent detections for a camera, newest first.
func (h *DetectionHandler) ListDetections(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}

	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	detections, total, err := h.db.ListDetections(c.Request.Context(), id, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := lo.Map(detections, func(d models.Detection, _ int) dto.DetectionResponse {
		return dto.DetectionResponse{
			ID:                d.ID,
			CameraID:          d.CameraID,
			FrameID:           d.FrameID,
			Class:             d.Class,
			Confidence:        d.Confidence,
			BBox:              d.BBox,
			PotentialAccident: d.PotentialAccident,
			AccidentID:        d.AccidentID,
			DetectedAt:        d.DetectedAt.Format(time.RFC3339),
		}
	})

	c.JSON(http.StatusOK, dto.DetectionListResponse{Detections: resp, Total: total})
}

func (h *DetectionHandler) ListAccidents(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}

	limit := intQuery(c, "limit", 50)

	accidents, err := h.db.ListAccidents(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := lo.Map(accidents, func(a models.Accident, _ int) dto.AccidentResponse {
		return dto.AccidentResponse{
			ID:                a.ID,
			CameraID:          a.CameraID,
			Latitude:          a.Latitude,
			Longitude:         a.Longitude,
			Description:       a.Description,
			Severity:          string(a.Severity),
			Status:            a.Status,
			Source:            a.Source,
			OccurredAt:        a.OccurredAt.Format(time.RFC3339),
			VerificationCount: a.VerificationCount,
		}
	})

	c.JSON(http.StatusOK, gin.H{"accidents": resp, "total": len(resp)})
}

func (h *DetectionHandler) ListLogs(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}

	limit := intQuery(c, "limit", 100)

	logs, err := h.db.ListCameraLogs(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := lo.Map(logs, func(l models.CameraLog, _ int) dto.CameraLogResponse {
		return dto.CameraLogResponse{
			ID:        l.ID,
			CameraID:  l.CameraID,
			Status:    string(l.Status),
			Message:   l.Message,
			CreatedAt: l.CreatedAt.Format(time.RFC3339),
		}
	})

	c.JSON(http.StatusOK, gin.H{"logs": resp, "total": len(resp)})
}

func (h *DetectionHandler) Stats(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}

	stats, err := h.db.GetCameraStats(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.StatsResponse{
		CameraID:        stats.CameraID,
		FramesProcessed: stats.FramesProcessed,
		Detections:      stats.Detections,
		Accidents:       stats.Accidents,
	}
	if stats.LastDetectionAt != nil {
		resp.LastDetectionAt = stats.LastDetectionAt.Format(time.RFC3339)
	}
	if recent, err := h.db.RecentDetectionCounts(c.Request.Context(), id, time.Now().Add(-24*time.Hour)); err == nil {
		resp.RecentByClass = recent
	}

	c.JSON(http.StatusOK, resp)
}

func cameraID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid camera id"})
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v < 0 {
		return def
	}
	return v
}
