package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/your-org/roadwatch/internal/config"
	"github.com/your-org/roadwatch/internal/models"
	"github.com/your-org/roadwatch/internal/observability"
)

// CaptureProcessor samples a connection-oriented stream on a fixed interval:
// record a short clip, upload it and enqueue a detection job. Each tick is
// independent; a failed tick does not cancel the next one.
type CaptureProcessor struct {
	cam     *models.Camera
	store   Store
	decoder Decoder
	sink    ClipSink
	jobs    JobPublisher
	cfg     config.MonitorConfig
}

func NewCaptureProcessor(cam *models.Camera, store Store, decoder Decoder, sink ClipSink, jobs JobPublisher, cfg config.MonitorConfig) *CaptureProcessor {
	return &CaptureProcessor{
		cam:     cam,
		store:   store,
		decoder: decoder,
		sink:    sink,
		jobs:    jobs,
		cfg:     cfg,
	}
}

func (p *CaptureProcessor) Run(ctx context.Context) {
	slog.Info("capture processor started", "camera_id", p.cam.ID,
		"interval", p.cfg.CaptureInterval, "clip", p.cfg.CaptureDuration)
	defer slog.Info("capture processor stopped", "camera_id", p.cam.ID)

	ticker := time.NewTicker(p.cfg.CaptureInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.cycle(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				p.recordError(err)
			}
		}
	}
}

func (p *CaptureProcessor) cycle(ctx context.Context) error {
	now := time.Now().UTC()
	clipPath := filepath.Join(p.cfg.TempDir,
		fmt.Sprintf("roadwatch-clip-%s-%d.mp4", p.cam.ID, now.UnixNano()))
	defer os.Remove(clipPath)

	if err := p.store.SetCameraRecording(ctx, p.cam.ID, true); err != nil {
		return fmt.Errorf("mark recording: %w", err)
	}
	captureErr := p.decoder.Capture(ctx, p.cam.StreamURL, p.cfg.CaptureDuration, clipPath)
	if err := p.store.SetCameraRecording(ctx, p.cam.ID, false); err != nil {
		slog.Warn("clear recording flag", "camera_id", p.cam.ID, "error", err)
	}
	if captureErr != nil {
		return fmt.Errorf("record clip: %w", captureErr)
	}

	key := fmt.Sprintf("clips/%s/%s.mp4", p.cam.ID, now.Format("20060102T150405.000000000Z"))
	ref, err := p.sink.UploadFile(ctx, key, clipPath, "video/mp4")
	if err != nil {
		return fmt.Errorf("upload clip: %w", err)
	}

	job := models.CaptureJob{
		CameraID:  p.cam.ID,
		Latitude:  p.cam.Latitude,
		Longitude: p.cam.Longitude,
		Timestamp: now,
		ClipRef:   ref,
	}
	if err := p.jobs.PublishCapture(ctx, p.cam.ID.String(), job); err != nil {
		return fmt.Errorf("publish capture job: %w", err)
	}

	if err := p.store.UpdateCameraStatus(ctx, p.cam.ID, models.CameraStatusActive, ""); err != nil {
		slog.Warn("update camera status", "camera_id", p.cam.ID, "error", err)
	}

	slog.Debug("clip captured", "camera_id", p.cam.ID, "clip_ref", ref)
	return nil
}

func (p *CaptureProcessor) recordError(err error) {
	slog.Warn("capture cycle failed", "camera_id", p.cam.ID, "error", err)
	observability.CycleErrors.WithLabelValues(p.cam.ID.String()).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if dbErr := p.store.UpdateCameraStatus(ctx, p.cam.ID, models.CameraStatusError, err.Error()); dbErr != nil {
		slog.Error("update camera status", "camera_id", p.cam.ID, "error", dbErr)
	}
	if dbErr := p.store.AppendCameraLog(ctx, p.cam.ID, models.LogStatusError, err.Error()); dbErr != nil {
		slog.Error("append camera log", "camera_id", p.cam.ID, "error", dbErr)
	}
}
