package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/your-org/roadwatch/internal/config"
	"github.com/your-org/roadwatch/internal/models"
	"github.com/your-org/roadwatch/internal/observability"
)

type ProcessorKind string

const (
	KindStream  ProcessorKind = "stream"
	KindCapture ProcessorKind = "capture"
)

// stopWait bounds how long Stop waits for a session's loops to drain; a loop
// stuck in a blocking call finishes that call first, bounded by its own
// timeouts.
const stopWait = 15 * time.Second

// Command is a control message from the API.
type Command struct {
	Action   string `json:"action"` // start, stop, restart
	CameraID string `json:"camera_id"`
}

// ParseCommand parses a NATS control message.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("parse command: %w", err)
	}
	return cmd, nil
}

// session is the in-memory handle for one camera's processing loops.
type session struct {
	cameraID uuid.UUID
	kind     ProcessorKind
	cancel   context.CancelFunc
	done     chan struct{}
}

// SessionStatus is one camera's entry in the aggregate status report.
type SessionStatus struct {
	CameraID uuid.UUID           `json:"camera_id"`
	Name     string              `json:"name"`
	Kind     ProcessorKind       `json:"kind,omitempty"`
	Active   bool                `json:"active"`
	Online   bool                `json:"online"`
	Stats    *models.CameraStats `json:"stats,omitempty"`
}

// Manager owns the set of active camera sessions. It is the only writer of
// the session table.
type Manager struct {
	store      Store
	decoder    Decoder
	dispatcher *Dispatcher
	sink       ClipSink
	jobs       JobPublisher
	cfg        config.MonitorConfig

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session
}

func NewManager(store Store, decoder Decoder, dispatcher *Dispatcher, sink ClipSink, jobs JobPublisher, cfg config.MonitorConfig) *Manager {
	return &Manager{
		store:      store,
		decoder:    decoder,
		dispatcher: dispatcher,
		sink:       sink,
		jobs:       jobs,
		cfg:        cfg,
		sessions:   make(map[uuid.UUID]*session),
	}
}

// StartAll starts one session per camera with status=active, staggering
// starts to avoid a burst against the detection service.
func (m *Manager) StartAll(ctx context.Context) error {
	cameras, err := m.store.ListCamerasByStatus(ctx, models.CameraStatusActive)
	if err != nil {
		return fmt.Errorf("list active cameras: %w", err)
	}

	for i := range cameras {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cam := cameras[i]
		if err := m.Start(ctx, &cam); err != nil {
			slog.Error("start camera session", "camera_id", cam.ID, "error", err)
			continue
		}
		if i < len(cameras)-1 {
			sleepCtx(ctx, m.cfg.StartStagger)
		}
	}

	slog.Info("monitoring started", "cameras", len(cameras), "sessions", m.ActiveCount())
	return nil
}

// Start creates a session for the camera. A camera with a running session is
// left untouched; starting it again is a no-op.
func (m *Manager) Start(ctx context.Context, cam *models.Camera) error {
	if cam.StreamURL == "" {
		return fmt.Errorf("camera %s has no stream address", cam.ID)
	}

	kind := KindStream
	if cam.StreamKind == models.StreamKindRTSP {
		kind = KindCapture
	}

	m.mu.Lock()
	if _, exists := m.sessions[cam.ID]; exists {
		m.mu.Unlock()
		return nil
	}

	sessCtx, cancel := context.WithCancel(ctx)
	s := &session{
		cameraID: cam.ID,
		kind:     kind,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	m.sessions[cam.ID] = s
	m.mu.Unlock()

	observability.ActiveSessions.Inc()
	if err := m.store.UpdateCameraStatus(ctx, cam.ID, models.CameraStatusActive, ""); err != nil {
		slog.Warn("update camera status", "camera_id", cam.ID, "error", err)
	}

	slog.Info("starting camera session", "camera_id", cam.ID, "kind", kind, "url", cam.StreamURL)

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.sessions, cam.ID)
			m.mu.Unlock()
			observability.ActiveSessions.Dec()
			close(s.done)
			slog.Info("camera session stopped", "camera_id", cam.ID)
		}()

		prober := NewProber(cam, m.store, m.cfg.ProbeInterval, m.cfg.ProbeTimeout)
		go prober.Run(sessCtx)

		switch kind {
		case KindCapture:
			NewCaptureProcessor(cam, m.store, m.decoder, m.sink, m.jobs, m.cfg).Run(sessCtx)
		default:
			NewStreamProcessor(cam, m.store, m.decoder, m.dispatcher, m.cfg).Run(sessCtx)
		}
	}()

	return nil
}

// Stop cancels the camera's session and waits for its loops to terminate.
// No-op when no session exists.
func (m *Manager) Stop(cameraID uuid.UUID) error {
	m.mu.RLock()
	s, exists := m.sessions[cameraID]
	m.mu.RUnlock()

	if !exists {
		return nil
	}

	s.cancel()
	select {
	case <-s.done:
	case <-time.After(stopWait):
		slog.Warn("session stop timed out", "camera_id", cameraID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.SetCameraRecording(ctx, cameraID, false); err != nil {
		slog.Warn("clear recording flag", "camera_id", cameraID, "error", err)
	}

	return nil
}

// Restart stops the session, re-reads the camera row so configuration edits
// take effect, and starts a fresh session.
func (m *Manager) Restart(ctx context.Context, cameraID uuid.UUID) error {
	if err := m.Stop(cameraID); err != nil {
		return err
	}
	sleepCtx(ctx, time.Second)

	cam, err := m.store.GetCamera(ctx, cameraID)
	if err != nil {
		return fmt.Errorf("reload camera: %w", err)
	}
	if cam == nil {
		return fmt.Errorf("camera %s not found", cameraID)
	}
	return m.Start(ctx, cam)
}

// Status reports, per camera, whether a session is active alongside the
// persisted live statistics.
func (m *Manager) Status(ctx context.Context) ([]SessionStatus, error) {
	cameras, err := m.store.ListCameras(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}

	m.mu.RLock()
	active := make(map[uuid.UUID]ProcessorKind, len(m.sessions))
	for id, s := range m.sessions {
		active[id] = s.kind
	}
	m.mu.RUnlock()

	return lo.Map(cameras, func(cam models.Camera, _ int) SessionStatus {
		st := SessionStatus{
			CameraID: cam.ID,
			Name:     cam.Name,
			Online:   cam.IsOnline,
		}
		if kind, ok := active[cam.ID]; ok {
			st.Active = true
			st.Kind = kind
		}
		if stats, err := m.store.GetCameraStats(ctx, cam.ID); err == nil {
			st.Stats = stats
		}
		return st
	}), nil
}

// ActiveCount returns the number of running sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StopAll cancels every session; used on shutdown and tested camera deletes.
func (m *Manager) StopAll() {
	m.mu.RLock()
	ids := make([]uuid.UUID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.Stop(id)
	}
}

// HandleCommand processes a control command from the API.
func (m *Manager) HandleCommand(ctx context.Context, cmd Command) error {
	id, err := uuid.Parse(cmd.CameraID)
	if err != nil {
		return fmt.Errorf("invalid camera id %q: %w", cmd.CameraID, err)
	}

	switch cmd.Action {
	case "start":
		cam, err := m.store.GetCamera(ctx, id)
		if err != nil {
			return err
		}
		if cam == nil {
			return fmt.Errorf("camera %s not found", id)
		}
		return m.Start(ctx, cam)
	case "stop":
		return m.Stop(id)
	case "restart":
		return m.Restart(ctx, id)
	default:
		return fmt.Errorf("unknown action: %s", cmd.Action)
	}
}
