package monitor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/roadwatch/internal/detect"
	"github.com/your-org/roadwatch/internal/models"
	"github.com/your-org/roadwatch/internal/storage"
)

// Store is the persistence surface the monitoring core depends on.
// *storage.PostgresStore satisfies it.
type Store interface {
	GetCamera(ctx context.Context, id uuid.UUID) (*models.Camera, error)
	ListCameras(ctx context.Context) ([]models.Camera, error)
	ListCamerasByStatus(ctx context.Context, status models.CameraStatus) ([]models.Camera, error)
	UpdateCameraStatus(ctx context.Context, id uuid.UUID, status models.CameraStatus, lastErr string) error
	SetCameraOnline(ctx context.Context, id uuid.UUID, online bool) error
	SetCameraRecording(ctx context.Context, id uuid.UUID, recording bool) error
	AppendCameraLog(ctx context.Context, cameraID uuid.UUID, status models.LogStatus, message string) error
	GetCameraStats(ctx context.Context, cameraID uuid.UUID) (*models.CameraStats, error)
	InTx(ctx context.Context, fn func(tx storage.DispatchTx) error) error
}

// Detector calls the external detection service.
type Detector interface {
	Detect(ctx context.Context, image []byte, meta detect.FrameMeta) ([]detect.RawDetection, error)
}

// Decoder wraps the subprocess media decoder.
type Decoder interface {
	ExtractFrames(ctx context.Context, inputPath string, interval time.Duration, width int, outDir string) ([]string, error)
	Capture(ctx context.Context, streamURL string, duration time.Duration, outPath string) error
}

// ClipSink stores captured clips and returns a stable reference.
type ClipSink interface {
	UploadFile(ctx context.Context, key, localPath, contentType string) (string, error)
}

// JobPublisher enqueues capture jobs for out-of-band detection.
type JobPublisher interface {
	PublishCapture(ctx context.Context, cameraID string, data interface{}) error
}

// EventPublisher emits committed detection events for live consumers.
type EventPublisher interface {
	PublishEvent(ctx context.Context, cameraID string, data interface{}) error
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
