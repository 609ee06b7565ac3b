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
)

// ClipFetcher retrieves a previously uploaded clip by reference.
type ClipFetcher interface {
	DownloadFile(ctx context.Context, key, localPath string) error
}

// ClipProcessor handles queued capture jobs out of band: it downloads the
// clip, decodes frames and runs the same detection dispatch as the stream
// path. Used by the worker service.
type ClipProcessor struct {
	store      Store
	clips      ClipFetcher
	decoder    Decoder
	dispatcher *Dispatcher
	cfg        config.MonitorConfig
}

func NewClipProcessor(store Store, clips ClipFetcher, decoder Decoder, dispatcher *Dispatcher, cfg config.MonitorConfig) *ClipProcessor {
	return &ClipProcessor{
		store:      store,
		clips:      clips,
		decoder:    decoder,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// Process runs one capture job. All temp files are removed before it returns,
// success or failure.
func (p *ClipProcessor) Process(ctx context.Context, job models.CaptureJob) error {
	cam, err := p.store.GetCamera(ctx, job.CameraID)
	if err != nil {
		return fmt.Errorf("load camera: %w", err)
	}
	if cam == nil {
		// Camera deleted since the job was enqueued; nothing to do.
		slog.Warn("capture job for unknown camera", "camera_id", job.CameraID, "clip_ref", job.ClipRef)
		return nil
	}

	clipPath := filepath.Join(p.cfg.TempDir,
		fmt.Sprintf("roadwatch-job-%s-%d.mp4", job.CameraID, job.Timestamp.UnixNano()))
	if err := p.clips.DownloadFile(ctx, job.ClipRef, clipPath); err != nil {
		return fmt.Errorf("fetch clip %s: %w", job.ClipRef, err)
	}
	defer os.Remove(clipPath)

	frameDir, err := os.MkdirTemp(p.cfg.TempDir, "roadwatch-job-frames-")
	if err != nil {
		return fmt.Errorf("create frame dir: %w", err)
	}
	defer os.RemoveAll(frameDir)

	frames, err := p.decoder.ExtractFrames(ctx, clipPath, p.cfg.FrameInterval, p.cfg.FrameWidth, frameDir)
	if err != nil {
		return fmt.Errorf("decode clip %s: %w", job.ClipRef, err)
	}

	for i, framePath := range frames {
		capturedAt := job.Timestamp.Add(time.Duration(i) * p.cfg.FrameInterval)
		err := p.dispatcher.DispatchFrame(ctx, cam, i, capturedAt, framePath)
		os.Remove(framePath)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A redelivered job would re-insert frames that already
			// committed on this attempt, so a per-frame failure is
			// logged and the rest of the clip still runs.
			slog.Error("dispatch clip frame failed",
				"camera_id", job.CameraID, "clip_ref", job.ClipRef, "frame", i, "error", err)
		}
	}

	slog.Info("capture job processed", "camera_id", job.CameraID, "clip_ref", job.ClipRef, "frames", len(frames))
	return nil
}
