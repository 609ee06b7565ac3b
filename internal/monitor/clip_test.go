package monitor

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/roadwatch/internal/detect"
	"github.com/your-org/roadwatch/internal/models"
)

// fakeClips writes a placeholder clip to the requested path.
type fakeClips struct {
	err error
}

func (f *fakeClips) DownloadFile(_ context.Context, _ string, localPath string) error {
	if f.err != nil {
		return f.err
	}
	return writeFile(localPath, []byte("clip"))
}

func captureJob(cam *models.Camera) models.CaptureJob {
	return models.CaptureJob{
		CameraID:  cam.ID,
		Latitude:  cam.Latitude,
		Longitude: cam.Longitude,
		Timestamp: time.Now().UTC(),
		ClipRef:   "clips/" + cam.ID.String() + "/20260830T120000.mp4",
	}
}

func TestClipProcessorDispatchesFrames(t *testing.T) {
	cam := rtspCamera()
	store := newFakeStore(cam)
	detector := &fakeDetector{raws: []detect.RawDetection{{Class: "car", Confidence: 0.4}}}
	cfg := testMonitorConfig(t)

	p := NewClipProcessor(store, &fakeClips{}, &fakeDecoder{frameCount: 2}, NewDispatcher(store, detector, nil), cfg)
	require.NoError(t, p.Process(context.Background(), captureJob(cam)))

	assert.Equal(t, 2, detector.calls)
	assert.Len(t, store.committed, 2)

	entries, err := os.ReadDir(cfg.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "clip and frames removed after processing")
}

func TestClipProcessorContinuesPastFrameFailure(t *testing.T) {
	cam := rtspCamera()
	store := newFakeStore(cam)
	var txs int
	store.txErr = func(tx *fakeTx) {
		txs++
		if txs == 1 {
			tx.insertDetectionErr = errors.New("connection reset")
		}
	}
	detector := &fakeDetector{raws: []detect.RawDetection{{Class: "truck", Confidence: 0.95}}}

	p := NewClipProcessor(store, &fakeClips{}, &fakeDecoder{frameCount: 2}, NewDispatcher(store, detector, nil), testMonitorConfig(t))

	// A mid-clip dispatch failure must not fail the job: a redelivery would
	// re-insert rows already committed by the first attempt.
	require.NoError(t, p.Process(context.Background(), captureJob(cam)))

	assert.Equal(t, 2, detector.calls)
	require.Len(t, store.committed, 1)
	assert.Len(t, store.committed[0].accidents, 1, "one accident from the surviving frame")
}

func TestClipProcessorUnknownCameraIsDropped(t *testing.T) {
	store := newFakeStore()
	detector := &fakeDetector{}

	p := NewClipProcessor(store, &fakeClips{}, &fakeDecoder{frameCount: 2}, NewDispatcher(store, detector, nil), testMonitorConfig(t))
	job := models.CaptureJob{CameraID: uuid.New(), Timestamp: time.Now(), ClipRef: "clips/x/y.mp4"}

	// Deleted cameras don't fail the job; it would be redelivered forever.
	require.NoError(t, p.Process(context.Background(), job))
	assert.Equal(t, 0, detector.calls)
}

func TestClipProcessorFetchFailure(t *testing.T) {
	cam := rtspCamera()
	store := newFakeStore(cam)

	p := NewClipProcessor(store, &fakeClips{err: errors.New("object not found")}, &fakeDecoder{}, NewDispatcher(store, &fakeDetector{}, nil), testMonitorConfig(t))
	require.Error(t, p.Process(context.Background(), captureJob(cam)))
}
