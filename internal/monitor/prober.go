package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/your-org/roadwatch/internal/models"
	"github.com/your-org/roadwatch/internal/observability"
)

// Prober periodically checks a camera's reachability and records
// online/offline transitions in the camera log.
type Prober struct {
	cam      *models.Camera
	store    Store
	interval time.Duration
	timeout  time.Duration

	online bool
}

func NewProber(cam *models.Camera, store Store, interval, timeout time.Duration) *Prober {
	return &Prober{
		cam:      cam,
		store:    store,
		interval: interval,
		timeout:  timeout,
		online:   cam.IsOnline,
	}
}

func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeOnce(ctx)
		}
	}
}

func (p *Prober) probeOnce(ctx context.Context) {
	reachable := probeAddress(ctx, p.cam.StreamURL, p.timeout)

	if err := p.store.SetCameraOnline(ctx, p.cam.ID, reachable); err != nil {
		slog.Error("update camera online flag", "camera_id", p.cam.ID, "error", err)
	}

	if !reachable {
		observability.ProbeFailures.WithLabelValues(p.cam.ID.String()).Inc()
	}

	// Log transitions only, to keep the camera log readable.
	if reachable == p.online {
		return
	}
	p.online = reachable

	status := models.LogStatusOffline
	msg := "camera unreachable"
	if reachable {
		status = models.LogStatusOnline
		msg = "camera reachable"
	}
	slog.Info("camera reachability changed", "camera_id", p.cam.ID, "online", reachable)
	if err := p.store.AppendCameraLog(ctx, p.cam.ID, status, msg); err != nil {
		slog.Error("append camera log", "camera_id", p.cam.ID, "error", err)
	}
}

// probeAddress checks reachability of a stream address. HTTP addresses get a
// GET with a short deadline; anything the server answers, even an error page,
// counts as reachable. Other schemes fall back to a TCP dial.
func probeAddress(ctx context.Context, rawURL string, timeout time.Duration) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	if u.Scheme == "http" || u.Scheme == "https" {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return false
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode < http.StatusInternalServerError
	}

	addr := u.Host
	if !strings.Contains(addr, ":") {
		addr = fmt.Sprintf("%s:%d", addr, defaultPort(u.Scheme))
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func defaultPort(scheme string) int {
	switch scheme {
	case "rtsp":
		return 554
	case "rtsps":
		return 322
	default:
		return 80
	}
}
