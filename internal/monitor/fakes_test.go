package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/roadwatch/internal/detect"
	"github.com/your-org/roadwatch/internal/models"
	"github.com/your-org/roadwatch/internal/storage"
)

// fakeTx records writes so a test can inspect what a dispatch would commit.
type fakeTx struct {
	frames     []models.Frame
	detections []models.Detection
	accidents  []models.Accident
	bindings   map[uuid.UUID]uuid.UUID // detection -> accident
	processed  map[uuid.UUID]int       // frame -> detection count

	insertDetectionErr error
	insertAccidentErr  error
}

func newFakeTx() *fakeTx {
	return &fakeTx{
		bindings:  make(map[uuid.UUID]uuid.UUID),
		processed: make(map[uuid.UUID]int),
	}
}

func (t *fakeTx) InsertFrame(_ context.Context, f *models.Frame) error {
	t.frames = append(t.frames, *f)
	return nil
}

func (t *fakeTx) InsertDetection(_ context.Context, d *models.Detection) error {
	if t.insertDetectionErr != nil {
		return t.insertDetectionErr
	}
	t.detections = append(t.detections, *d)
	return nil
}

func (t *fakeTx) InsertAccident(_ context.Context, a *models.Accident) error {
	if t.insertAccidentErr != nil {
		return t.insertAccidentErr
	}
	t.accidents = append(t.accidents, *a)
	return nil
}

func (t *fakeTx) BindDetectionAccident(_ context.Context, detectionID, accidentID uuid.UUID) error {
	t.bindings[detectionID] = accidentID
	return nil
}

func (t *fakeTx) MarkFrameProcessed(_ context.Context, frameID uuid.UUID, detectionCount int) error {
	t.processed[frameID] = detectionCount
	return nil
}

// fakeStore implements Store with in-memory state. InTx stages writes in a
// fakeTx and keeps them only when the callback succeeds, mirroring rollback
// behaviour.
type fakeStore struct {
	mu sync.Mutex

	cameras map[uuid.UUID]*models.Camera
	logs    []models.CameraLog

	committed []*fakeTx
	txErr     func(tx *fakeTx) // optional per-tx fault injection
}

func newFakeStore(cams ...*models.Camera) *fakeStore {
	s := &fakeStore{cameras: make(map[uuid.UUID]*models.Camera)}
	for _, c := range cams {
		s.cameras[c.ID] = c
	}
	return s
}

func (s *fakeStore) GetCamera(_ context.Context, id uuid.UUID) (*models.Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cam, ok := s.cameras[id]
	if !ok {
		return nil, nil
	}
	cp := *cam
	return &cp, nil
}

func (s *fakeStore) ListCameras(_ context.Context) ([]models.Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Camera, 0, len(s.cameras))
	for _, c := range s.cameras {
		out = append(out, *c)
	}
	return out, nil
}

func (s *fakeStore) ListCamerasByStatus(_ context.Context, status models.CameraStatus) ([]models.Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Camera
	for _, c := range s.cameras {
		if c.Status == status {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateCameraStatus(_ context.Context, id uuid.UUID, status models.CameraStatus, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cameras[id]; ok {
		c.Status = status
		c.LastError = lastErr
	}
	return nil
}

func (s *fakeStore) SetCameraOnline(_ context.Context, id uuid.UUID, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cameras[id]; ok {
		c.IsOnline = online
	}
	return nil
}

func (s *fakeStore) SetCameraRecording(_ context.Context, id uuid.UUID, recording bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cameras[id]; ok {
		c.IsRecording = recording
	}
	return nil
}

func (s *fakeStore) AppendCameraLog(_ context.Context, cameraID uuid.UUID, status models.LogStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, models.CameraLog{
		ID:        uuid.New(),
		CameraID:  cameraID,
		Status:    status,
		Message:   message,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *fakeStore) GetCameraStats(_ context.Context, cameraID uuid.UUID) (*models.CameraStats, error) {
	return &models.CameraStats{CameraID: cameraID}, nil
}

func (s *fakeStore) InTx(_ context.Context, fn func(tx storage.DispatchTx) error) error {
	tx := newFakeTx()
	if s.txErr != nil {
		s.txErr(tx)
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.mu.Lock()
	s.committed = append(s.committed, tx)
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) lastTx() *fakeTx {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.committed) == 0 {
		return nil
	}
	return s.committed[len(s.committed)-1]
}

func (s *fakeStore) logCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

// fakeDetector returns canned detections or a fixed error.
type fakeDetector struct {
	raws []detect.RawDetection
	err  error

	mu    sync.Mutex
	calls int
}

func (d *fakeDetector) Detect(_ context.Context, _ []byte, _ detect.FrameMeta) ([]detect.RawDetection, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return d.raws, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []models.DetectionEvent
}

func (e *fakeEvents) PublishEvent(_ context.Context, _ string, data interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ev, ok := data.(models.DetectionEvent); ok {
		e.events = append(e.events, ev)
	}
	return nil
}

// fakeDecoder writes fake frame files instead of shelling out.
type fakeDecoder struct {
	frameCount int
	extractErr error
	captureErr error
}

func (d *fakeDecoder) ExtractFrames(_ context.Context, _ string, _ time.Duration, _ int, outDir string) ([]string, error) {
	if d.extractErr != nil {
		return nil, d.extractErr
	}
	paths := make([]string, 0, d.frameCount)
	for i := 0; i < d.frameCount; i++ {
		p, err := writeTempFrame(outDir, i)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func (d *fakeDecoder) Capture(_ context.Context, _ string, _ time.Duration, outPath string) error {
	if d.captureErr != nil {
		return d.captureErr
	}
	return writeFile(outPath, []byte("clip"))
}

type fakeSink struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (s *fakeSink) UploadFile(_ context.Context, key, _, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	s.keys = append(s.keys, key)
	s.mu.Unlock()
	return key, nil
}

type fakeJobs struct {
	mu   sync.Mutex
	jobs []models.CaptureJob
}

func (j *fakeJobs) PublishCapture(_ context.Context, _ string, data interface{}) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if job, ok := data.(models.CaptureJob); ok {
		j.jobs = append(j.jobs, job)
	}
	return nil
}

func writeTempFrame(dir string, n int) (string, error) {
	p := filepath.Join(dir, fmt.Sprintf("frame_%04d.jpg", n))
	return p, writeFile(p, []byte("jpeg"))
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
