package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/roadwatch/internal/detect"
	"github.com/your-org/roadwatch/internal/models"
)

func testCamera() *models.Camera {
	return &models.Camera{
		ID:         uuid.New(),
		Name:       "I-95 overpass",
		Latitude:   40.71,
		Longitude:  -74.0,
		StreamURL:  "http://example.com/stream.m3u8",
		StreamKind: models.StreamKindHLS,
		Status:     models.CameraStatusActive,
	}
}

func testFrameFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "frame_0000.jpg")
	require.NoError(t, os.WriteFile(p, []byte("jpeg"), 0o644))
	return p
}

func TestDispatchFrameThresholds(t *testing.T) {
	tests := []struct {
		name          string
		raw           detect.RawDetection
		wantPotential bool
		wantAccidents int
		wantSeverity  models.Severity
	}{
		{
			name:          "below potential threshold",
			raw:           detect.RawDetection{Class: "car", Confidence: 0.6},
			wantPotential: false,
		},
		{
			name:          "potential but below accident threshold",
			raw:           detect.RawDetection{Class: "person", Confidence: 0.75},
			wantPotential: true,
		},
		{
			name:          "irrelevant class with high confidence",
			raw:           detect.RawDetection{Class: "traffic light", Confidence: 0.99},
			wantPotential: false,
		},
		{
			name:          "accident at minor severity",
			raw:           detect.RawDetection{Class: "car", Confidence: 0.87},
			wantPotential: true,
			wantAccidents: 1,
			wantSeverity:  models.SeverityMinor,
		},
		{
			name:          "accident at moderate severity",
			raw:           detect.RawDetection{Class: "truck", Confidence: 0.92},
			wantPotential: true,
			wantAccidents: 1,
			wantSeverity:  models.SeverityModerate,
		},
		{
			// Confidence alone never promotes past moderate; severe is
			// reserved for verified reports.
			name:          "near-certain detection stays moderate",
			raw:           detect.RawDetection{Class: "bus", Confidence: 0.99},
			wantPotential: true,
			wantAccidents: 1,
			wantSeverity:  models.SeverityModerate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := testCamera()
			store := newFakeStore(cam)
			detector := &fakeDetector{raws: []detect.RawDetection{tt.raw}}
			d := NewDispatcher(store, detector, nil)

			err := d.DispatchFrame(context.Background(), cam, 0, time.Now(), testFrameFile(t))
			require.NoError(t, err)

			tx := store.lastTx()
			require.NotNil(t, tx)
			require.Len(t, tx.frames, 1)
			require.Len(t, tx.detections, 1)
			assert.Equal(t, tt.wantPotential, tx.detections[0].PotentialAccident)
			assert.Len(t, tx.accidents, tt.wantAccidents)

			if tt.wantAccidents > 0 {
				acc := tx.accidents[0]
				assert.Equal(t, tt.wantSeverity, acc.Severity)
				assert.Equal(t, "reported", acc.Status)
				assert.Equal(t, "camera", acc.Source)
				assert.Equal(t, cam.Latitude, acc.Latitude)
				assert.Equal(t, cam.Longitude, acc.Longitude)
				// The detection row is backfilled with the accident id.
				assert.Equal(t, acc.ID, tx.bindings[tx.detections[0].ID])
			} else {
				assert.Empty(t, tx.bindings)
			}

			assert.Equal(t, 1, tx.processed[tx.frames[0].ID])
		})
	}
}

func TestDispatchFrameReusesAccidentPerClass(t *testing.T) {
	cam := testCamera()
	store := newFakeStore(cam)
	detector := &fakeDetector{raws: []detect.RawDetection{
		{Class: "car", Confidence: 0.9},
		{Class: "car", Confidence: 0.88},
		{Class: "truck", Confidence: 0.95},
	}}
	d := NewDispatcher(store, detector, nil)

	err := d.DispatchFrame(context.Background(), cam, 0, time.Now(), testFrameFile(t))
	require.NoError(t, err)

	tx := store.lastTx()
	require.NotNil(t, tx)
	assert.Len(t, tx.detections, 3)
	// One accident per class, second car detection bound to the first one.
	require.Len(t, tx.accidents, 2)
	assert.Equal(t, tx.bindings[tx.detections[0].ID], tx.bindings[tx.detections[1].ID])
	assert.NotEqual(t, tx.bindings[tx.detections[0].ID], tx.bindings[tx.detections[2].ID])
}

func TestDispatchFrameDetectorFailureCommitsEmptyFrame(t *testing.T) {
	cam := testCamera()
	store := newFakeStore(cam)
	detector := &fakeDetector{err: errors.New("service unavailable")}
	d := NewDispatcher(store, detector, nil)

	err := d.DispatchFrame(context.Background(), cam, 3, time.Now(), testFrameFile(t))
	require.NoError(t, err)

	tx := store.lastTx()
	require.NotNil(t, tx)
	require.Len(t, tx.frames, 1)
	assert.Empty(t, tx.detections)
	assert.Empty(t, tx.accidents)
	assert.Equal(t, 0, tx.processed[tx.frames[0].ID])
}

func TestDispatchFramePersistenceFailureRollsBack(t *testing.T) {
	cam := testCamera()
	store := newFakeStore(cam)
	store.txErr = func(tx *fakeTx) {
		tx.insertDetectionErr = errors.New("disk full")
	}
	detector := &fakeDetector{raws: []detect.RawDetection{{Class: "bus", Confidence: 0.95}}}
	d := NewDispatcher(store, detector, nil)

	err := d.DispatchFrame(context.Background(), cam, 0, time.Now(), testFrameFile(t))
	require.Error(t, err)
	assert.Nil(t, store.lastTx())
}

func TestDispatchFramePublishesCommittedEvents(t *testing.T) {
	cam := testCamera()
	store := newFakeStore(cam)
	events := &fakeEvents{}
	detector := &fakeDetector{raws: []detect.RawDetection{
		{Class: "car", Confidence: 0.5},
		{Class: "motorcycle", Confidence: 0.93},
	}}
	d := NewDispatcher(store, detector, events)

	err := d.DispatchFrame(context.Background(), cam, 0, time.Now(), testFrameFile(t))
	require.NoError(t, err)

	require.Len(t, events.events, 2)
	assert.Nil(t, events.events[0].AccidentID)
	assert.NotNil(t, events.events[1].AccidentID)
}

func TestDispatchFrameMissingImage(t *testing.T) {
	cam := testCamera()
	store := newFakeStore(cam)
	d := NewDispatcher(store, &fakeDetector{}, nil)

	err := d.DispatchFrame(context.Background(), cam, 0, time.Now(), filepath.Join(t.TempDir(), "gone.jpg"))
	require.Error(t, err)
	assert.Nil(t, store.lastTx())
}
