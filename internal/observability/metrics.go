package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roadwatch",
		Name:      "frames_processed_total",
		Help:      "Total number of frames dispatched for detection",
	}, []string{"camera_id"})

	DetectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roadwatch",
		Name:      "detections_total",
		Help:      "Total number of objects detected",
	}, []string{"camera_id", "class"})

	AccidentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roadwatch",
		Name:      "accidents_created_total",
		Help:      "Total number of accident records created from camera detections",
	}, []string{"camera_id"})

	DetectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "roadwatch",
		Name:      "detection_rpc_duration_seconds",
		Help:      "Duration of detection service calls",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	SegmentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roadwatch",
		Name:      "segments_processed_total",
		Help:      "Total number of stream segments downloaded and decoded",
	}, []string{"camera_id"})

	CycleErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roadwatch",
		Name:      "cycle_errors_total",
		Help:      "Total number of failed processing cycles",
	}, []string{"camera_id"})

	ProbeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roadwatch",
		Name:      "probe_failures_total",
		Help:      "Total number of failed health probes",
	}, []string{"camera_id"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "roadwatch",
		Name:      "active_sessions",
		Help:      "Number of currently active camera monitoring sessions",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "roadwatch",
		Name:      "queue_depth",
		Help:      "Number of pending capture jobs in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "roadwatch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "roadwatch",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
