package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/your-org/roadwatch/internal/config"
	"github.com/your-org/roadwatch/internal/models"
	"github.com/your-org/roadwatch/internal/observability"
)

// StreamProcessor polls a segmented HTTP stream, decodes new segments into
// frames and dispatches each frame for detection. One instance per camera
// session; cycles are strictly sequential.
type StreamProcessor struct {
	cam        *models.Camera
	store      Store
	decoder    Decoder
	dispatcher *Dispatcher
	cfg        config.MonitorConfig
	seen       *seenSet
	httpClient *http.Client
}

func NewStreamProcessor(cam *models.Camera, store Store, decoder Decoder, dispatcher *Dispatcher, cfg config.MonitorConfig) *StreamProcessor {
	return &StreamProcessor{
		cam:        cam,
		store:      store,
		decoder:    decoder,
		dispatcher: dispatcher,
		cfg:        cfg,
		seen:       newSeenSet(cfg.DedupCapacity),
		// Per-call deadlines come from the cycle contexts.
		httpClient: &http.Client{},
	}
}

// Run loops until ctx is cancelled. Cycle failures are logged and retried
// after a fixed backoff; they never terminate the loop.
func (p *StreamProcessor) Run(ctx context.Context) {
	slog.Info("stream processor started", "camera_id", p.cam.ID, "url", p.cam.StreamURL)
	defer slog.Info("stream processor stopped", "camera_id", p.cam.ID)

	for {
		if ctx.Err() != nil {
			return
		}

		if err := p.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.recordError(err)
			sleepCtx(ctx, p.cfg.ErrorBackoff)
			continue
		}

		sleepCtx(ctx, p.cfg.PollInterval)
	}
}

func (p *StreamProcessor) cycle(ctx context.Context) error {
	mediaURL, err := p.resolveMediaPlaylist(ctx)
	if err != nil {
		return err
	}

	segmentURL, segmentID, err := p.nextSegment(ctx, mediaURL)
	if err != nil {
		return err
	}
	if segmentID == "" {
		// No unconsumed segment; wait for the source to produce one.
		sleepCtx(ctx, time.Second)
		return nil
	}
	p.seen.Add(segmentID)

	segmentPath, err := p.downloadSegment(ctx, segmentURL)
	if err != nil {
		return err
	}
	defer os.Remove(segmentPath)

	frameDir, err := os.MkdirTemp(p.cfg.TempDir, "roadwatch-frames-")
	if err != nil {
		return fmt.Errorf("create frame dir: %w", err)
	}
	defer os.RemoveAll(frameDir)

	frames, err := p.decoder.ExtractFrames(ctx, segmentPath, p.cfg.FrameInterval, p.cfg.FrameWidth, frameDir)
	if err != nil {
		return fmt.Errorf("decode segment: %w", err)
	}

	observability.SegmentsProcessed.WithLabelValues(p.cam.ID.String()).Inc()
	capturedAt := time.Now().UTC()

	for i, framePath := range frames {
		err := p.dispatcher.DispatchFrame(ctx, p.cam, i, capturedAt.Add(time.Duration(i)*p.cfg.FrameInterval), framePath)
		os.Remove(framePath)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.recordError(err)
		}
	}

	return nil
}

// resolveMediaPlaylist fetches the master playlist and returns the resolved
// URL of its first media playlist.
func (p *StreamProcessor) resolveMediaPlaylist(ctx context.Context) (*url.URL, error) {
	masterURL, err := url.Parse(p.cam.StreamURL)
	if err != nil {
		return nil, fmt.Errorf("parse stream url: %w", err)
	}

	body, err := p.fetch(ctx, masterURL.String(), p.cfg.ManifestTimeout)
	if err != nil {
		return nil, fmt.Errorf("fetch master playlist: %w", err)
	}

	ref := findMediaPlaylist(string(body))
	if ref == "" {
		// Some sources serve the media playlist directly.
		if len(playlistEntries(string(body))) > 0 {
			return masterURL, nil
		}
		return nil, fmt.Errorf("no media playlist in %s", p.cam.StreamURL)
	}

	mediaURL, err := masterURL.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("resolve media playlist %q: %w", ref, err)
	}
	return mediaURL, nil
}

// nextSegment fetches the media playlist and selects the newest unconsumed
// segment. Returns an empty id when the chosen segment was already processed.
func (p *StreamProcessor) nextSegment(ctx context.Context, mediaURL *url.URL) (*url.URL, string, error) {
	body, err := p.fetch(ctx, mediaURL.String(), p.cfg.ManifestTimeout)
	if err != nil {
		return nil, "", fmt.Errorf("fetch media playlist: %w", err)
	}

	entries := playlistEntries(string(body))
	if len(entries) == 0 {
		return nil, "", fmt.Errorf("empty media playlist %s", mediaURL)
	}

	chosen := chooseSegment(entries)
	if p.seen.Contains(chosen) {
		return nil, "", nil
	}

	segmentURL, err := mediaURL.Parse(chosen)
	if err != nil {
		return nil, "", fmt.Errorf("resolve segment %q: %w", chosen, err)
	}
	return segmentURL, chosen, nil
}

func (p *StreamProcessor) downloadSegment(ctx context.Context, segmentURL *url.URL) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.SegmentTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, segmentURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create segment request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download segment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download segment: status %d", resp.StatusCode)
	}

	f, err := os.CreateTemp(p.cfg.TempDir, "roadwatch-segment-*.ts")
	if err != nil {
		return "", fmt.Errorf("create segment file: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close segment file: %w", err)
	}
	return f.Name(), nil
}

func (p *StreamProcessor) fetch(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// recordError logs a cycle failure to the camera log and the camera row.
// Status writes use a fresh context so a cancelled session can still record
// its last error.
func (p *StreamProcessor) recordError(err error) {
	slog.Warn("stream cycle failed", "camera_id", p.cam.ID, "error", err)
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

// findMediaPlaylist returns the first media playlist reference in a master
// playlist, or "" if none is present.
func findMediaPlaylist(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasSuffix(line, ".m3u8") || strings.Contains(line, ".m3u8?") {
			return line
		}
	}
	return ""
}

// playlistEntries returns the segment URIs listed in a media playlist, in
// order of appearance.
func playlistEntries(body string) []string {
	var entries []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	return entries
}

// chooseSegment picks the second-to-last entry so a segment still being
// appended by the source is never read, falling back to the last entry when
// only one is listed.
func chooseSegment(entries []string) string {
	if len(entries) >= 2 {
		return entries[len(entries)-2]
	}
	return entries[len(entries)-1]
}
