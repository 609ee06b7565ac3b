package monitor

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/roadwatch/internal/models"
)

func rtspCamera() *models.Camera {
	cam := testCamera()
	cam.StreamKind = models.StreamKindRTSP
	cam.StreamURL = "rtsp://example.com/live"
	return cam
}

func TestCaptureCyclePublishesJob(t *testing.T) {
	cam := rtspCamera()
	store := newFakeStore(cam)
	sink := &fakeSink{}
	jobs := &fakeJobs{}
	cfg := testMonitorConfig(t)

	p := NewCaptureProcessor(cam, store, &fakeDecoder{}, sink, jobs, cfg)
	require.NoError(t, p.cycle(context.Background()))

	require.Len(t, sink.keys, 1)
	assert.True(t, strings.HasPrefix(sink.keys[0], "clips/"+cam.ID.String()+"/"))

	require.Len(t, jobs.jobs, 1)
	job := jobs.jobs[0]
	assert.Equal(t, cam.ID, job.CameraID)
	assert.Equal(t, cam.Latitude, job.Latitude)
	assert.Equal(t, cam.Longitude, job.Longitude)
	assert.Equal(t, sink.keys[0], job.ClipRef)

	got, _ := store.GetCamera(context.Background(), cam.ID)
	assert.False(t, got.IsRecording, "recording flag cleared after the clip")
	assert.Equal(t, models.CameraStatusActive, got.Status)

	// The local clip is deleted once uploaded.
	entries, err := os.ReadDir(cfg.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCaptureCycleClearsRecordingOnFailure(t *testing.T) {
	cam := rtspCamera()
	store := newFakeStore(cam)
	jobs := &fakeJobs{}

	p := NewCaptureProcessor(cam, store, &fakeDecoder{captureErr: errors.New("connection refused")}, &fakeSink{}, jobs, testMonitorConfig(t))
	require.Error(t, p.cycle(context.Background()))

	got, _ := store.GetCamera(context.Background(), cam.ID)
	assert.False(t, got.IsRecording)
	assert.Empty(t, jobs.jobs)
}

func TestCaptureCycleUploadFailure(t *testing.T) {
	cam := rtspCamera()
	store := newFakeStore(cam)
	jobs := &fakeJobs{}

	p := NewCaptureProcessor(cam, store, &fakeDecoder{}, &fakeSink{err: errors.New("bucket gone")}, jobs, testMonitorConfig(t))
	require.Error(t, p.cycle(context.Background()))
	assert.Empty(t, jobs.jobs)
}
