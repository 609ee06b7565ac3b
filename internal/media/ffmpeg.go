package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// captureMargin bounds a recording run beyond the requested clip length so a
// stalled source cannot hold the capture loop forever.
const captureMargin = 15 * time.Second

// FFmpeg decodes media files and records clips via the ffmpeg binary.
type FFmpeg struct {
	Binary string // defaults to "ffmpeg" on PATH
}

func (f *FFmpeg) bin() string {
	if f.Binary != "" {
		return f.Binary
	}
	return "ffmpeg"
}

// ExtractFrames decodes one still JPEG roughly every interval of the input's
// duration, downscaled to the given width, into outDir. Returns the extracted
// image paths in frame order.
func (f *FFmpeg) ExtractFrames(ctx context.Context, inputPath string, interval time.Duration, width int, outDir string) ([]string, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	pattern := filepath.Join(outDir, "frame_%04d.jpg")
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-i", inputPath,
		"-vf", fmt.Sprintf("fps=1/%g,scale=%d:-1", interval.Seconds(), width),
		"-q:v", "5",
		"-y",
		pattern,
	}

	if err := f.run(ctx, args); err != nil {
		return nil, fmt.Errorf("extract frames from %s: %w", inputPath, err)
	}

	paths, err := filepath.Glob(filepath.Join(outDir, "frame_*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("glob extracted frames: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Capture records a clip of the given duration from a stream address into
// outPath. The run is bounded by the clip duration plus a fixed margin.
func (f *FFmpeg) Capture(ctx context.Context, streamURL string, duration time.Duration, outPath string) error {
	ctx, cancel := context.WithTimeout(ctx, duration+captureMargin)
	defer cancel()

	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
	}
	args = append(args, protocolArgs(streamURL)...)
	args = append(args,
		"-i", streamURL,
		"-t", fmt.Sprintf("%d", int(duration.Seconds())),
		"-c", "copy",
		"-y",
		outPath,
	)

	if err := f.run(ctx, args); err != nil {
		return fmt.Errorf("capture clip from %s: %w", streamURL, err)
	}
	return nil
}

// protocolArgs returns input options appropriate for the stream's protocol.
func protocolArgs(streamURL string) []string {
	switch {
	case strings.HasPrefix(streamURL, "rtsp://"), strings.HasPrefix(streamURL, "rtsps://"):
		return []string{
			"-rtsp_transport", "tcp",
			"-stimeout", "5000000", // 5s RTSP socket timeout (microseconds)
		}
	case strings.HasPrefix(streamURL, "http://"), strings.HasPrefix(streamURL, "https://"):
		return []string{
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		}
	}
	return nil
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, f.bin(), args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w (%s)", f.bin(), err, stderrTail(stderr.String()))
	}
	return nil
}

// stderrTail keeps the last few lines of ffmpeg output for error messages.
func stderrTail(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	return strings.Join(lines, "; ")
}
