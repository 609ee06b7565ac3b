package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/roadwatch/internal/models"
)

func newTestManager(t *testing.T, store *fakeStore) *Manager {
	cfg := testMonitorConfig(t)
	// Session loops stay idle for the duration of a test: capture ticks are
	// an hour apart and a failed stream cycle backs off for an hour.
	cfg.CaptureInterval = time.Hour
	cfg.ErrorBackoff = time.Hour
	dispatcher := NewDispatcher(store, &fakeDetector{}, nil)
	return NewManager(store, &fakeDecoder{}, dispatcher, &fakeSink{}, &fakeJobs{}, cfg)
}

// unroutable fails instantly without leaving the host.
const unroutable = "http://127.0.0.1:1/live/master.m3u8"

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestManagerStartIsIdempotent(t *testing.T) {
	cam := testCamera()
	cam.StreamURL = unroutable
	store := newFakeStore(cam)
	m := newTestManager(t, store)
	defer m.StopAll()

	ctx := context.Background()
	require.NoError(t, m.Start(ctx, cam))

	m.mu.RLock()
	first := m.sessions[cam.ID]
	m.mu.RUnlock()
	require.NotNil(t, first)

	// The second start must leave the running session untouched.
	require.NoError(t, m.Start(ctx, cam))

	m.mu.RLock()
	second := m.sessions[cam.ID]
	m.mu.RUnlock()

	assert.Same(t, first, second)
	assert.Equal(t, 1, m.ActiveCount())
}

func TestManagerStartRequiresStreamURL(t *testing.T) {
	cam := testCamera()
	cam.StreamURL = ""
	store := newFakeStore(cam)
	m := newTestManager(t, store)

	err := m.Start(context.Background(), cam)
	require.Error(t, err)
	assert.Equal(t, 0, m.ActiveCount())
}

func TestManagerStopRemovesSession(t *testing.T) {
	cam := testCamera()
	cam.StreamKind = models.StreamKindRTSP
	cam.StreamURL = "rtsp://example.com/live"
	store := newFakeStore(cam)
	m := newTestManager(t, store)

	require.NoError(t, m.Start(context.Background(), cam))
	require.Equal(t, 1, m.ActiveCount())

	require.NoError(t, m.Stop(cam.ID))
	assert.Equal(t, 0, m.ActiveCount())

	// Stopping again is a no-op.
	require.NoError(t, m.Stop(cam.ID))

	// A fresh start after stop creates a new session.
	require.NoError(t, m.Start(context.Background(), cam))
	defer m.StopAll()
	assert.Equal(t, 1, m.ActiveCount())
}

func TestManagerStartAllStartsActiveCameras(t *testing.T) {
	active1 := testCamera()
	active1.StreamURL = unroutable
	active2 := testCamera()
	active2.StreamKind = models.StreamKindRTSP
	active2.StreamURL = "rtsp://example.com/live"
	inactive := testCamera()
	inactive.Status = models.CameraStatusInactive

	store := newFakeStore(active1, active2, inactive)
	m := newTestManager(t, store)
	defer m.StopAll()

	require.NoError(t, m.StartAll(context.Background()))
	assert.Equal(t, 2, m.ActiveCount())
}

func TestManagerHandleCommand(t *testing.T) {
	cam := testCamera()
	cam.StreamKind = models.StreamKindRTSP
	cam.StreamURL = "rtsp://example.com/live"
	store := newFakeStore(cam)
	m := newTestManager(t, store)
	defer m.StopAll()

	ctx := context.Background()

	require.NoError(t, m.HandleCommand(ctx, Command{Action: "start", CameraID: cam.ID.String()}))
	waitFor(t, func() bool { return m.ActiveCount() == 1 })

	require.NoError(t, m.HandleCommand(ctx, Command{Action: "stop", CameraID: cam.ID.String()}))
	assert.Equal(t, 0, m.ActiveCount())

	err := m.HandleCommand(ctx, Command{Action: "reboot", CameraID: cam.ID.String()})
	require.Error(t, err)

	err = m.HandleCommand(ctx, Command{Action: "start", CameraID: "not-a-uuid"})
	require.Error(t, err)

	err = m.HandleCommand(ctx, Command{Action: "start", CameraID: uuid.NewString()})
	require.Error(t, err)
}

func TestManagerStatus(t *testing.T) {
	cam := testCamera()
	cam.StreamURL = unroutable
	store := newFakeStore(cam)
	m := newTestManager(t, store)
	defer m.StopAll()

	require.NoError(t, m.Start(context.Background(), cam))

	statuses, err := m.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Active)
	assert.Equal(t, KindStream, statuses[0].Kind)
	assert.NotNil(t, statuses[0].Stats)
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"action":"restart","camera_id":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, "restart", cmd.Action)
	assert.Equal(t, "abc", cmd.CameraID)

	_, err = ParseCommand([]byte("{"))
	require.Error(t, err)
}
