package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/roadwatch/internal/api/handlers"
	"github.com/your-org/roadwatch/internal/api/ws"
	"github.com/your-org/roadwatch/internal/queue"
	"github.com/your-org/roadwatch/internal/storage"
)

type RouterConfig struct {
	DB       *storage.PostgresStore
	MinIO    *storage.MinIOStore
	Producer *queue.Producer
	Hub      *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Cameras
	cameraH := handlers.NewCameraHandler(cfg.DB, cfg.Producer)
	v1.POST("/cameras", cameraH.Create)
	v1.GET("/cameras", cameraH.List)
	v1.GET("/cameras/:id", cameraH.Get)
	v1.PUT("/cameras/:id", cameraH.Update)
	v1.DELETE("/cameras/:id", cameraH.Delete)
	v1.POST("/cameras/:id/start", cameraH.Start)
	v1.POST("/cameras/:id/stop", cameraH.Stop)
	v1.POST("/cameras/:id/restart", cameraH.Restart)

	// Detections & accidents
	detH := handlers.NewDetectionHandler(cfg.DB)
	v1.GET("/cameras/:id/detections", detH.ListDetections)
	v1.GET("/cameras/:id/accidents", detH.ListAccidents)
	v1.GET("/cameras/:id/logs", detH.ListLogs)
	v1.GET("/cameras/:id/stats", detH.Stats)

	// Monitoring overview
	monH := handlers.NewMonitoringHandler(cfg.DB, cfg.Producer)
	v1.GET("/monitoring/status", monH.Status)

	return r
}
