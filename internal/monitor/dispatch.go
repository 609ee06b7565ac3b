package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/roadwatch/internal/detect"
	"github.com/your-org/roadwatch/internal/models"
	"github.com/your-org/roadwatch/internal/observability"
	"github.com/your-org/roadwatch/internal/storage"
)

// Object classes that can mark a detection as accident-relevant.
var potentialClasses = map[string]struct{}{
	"car":        {},
	"truck":      {},
	"bus":        {},
	"person":     {},
	"motorcycle": {},
}

const (
	// potentialThreshold is the confidence floor for the potential-accident flag.
	potentialThreshold = 0.7
	// accidentThreshold is the confidence an accident record requires.
	accidentThreshold = 0.85
	// moderateThreshold splits accident severity tiers.
	moderateThreshold = 0.9
)

func isPotentialAccident(class string, confidence float64) bool {
	_, ok := potentialClasses[class]
	return ok && confidence > potentialThreshold
}

func severityFor(confidence float64) models.Severity {
	if confidence > moderateThreshold {
		return models.SeverityModerate
	}
	return models.SeverityMinor
}

// Dispatcher persists one frame's detections and any inferred accidents in a
// single transaction.
type Dispatcher struct {
	store    Store
	detector Detector
	events   EventPublisher // optional
}

func NewDispatcher(store Store, detector Detector, events EventPublisher) *Dispatcher {
	return &Dispatcher{store: store, detector: detector, events: events}
}

// DispatchFrame reads the frame image, calls the detection service and writes
// the frame, detections and accidents through one transaction. A detection
// service failure is not an error: the frame is committed as processed with
// zero detections. Any persistence failure rolls the whole frame back.
func (d *Dispatcher) DispatchFrame(ctx context.Context, cam *models.Camera, frameNumber int, capturedAt time.Time, imagePath string) error {
	image, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read frame image: %w", err)
	}

	frame := &models.Frame{
		ID:          uuid.New(),
		CameraID:    cam.ID,
		FrameNumber: frameNumber,
		CapturedAt:  capturedAt,
		ImagePath:   imagePath,
	}

	var events []models.DetectionEvent
	var accidents int

	err = d.store.InTx(ctx, func(tx storage.DispatchTx) error {
		if err := tx.InsertFrame(ctx, frame); err != nil {
			return err
		}

		raws, detErr := d.detector.Detect(ctx, image, detect.FrameMeta{
			CameraID:  cam.ID,
			FrameID:   frame.ID,
			Timestamp: capturedAt,
			Latitude:  cam.Latitude,
			Longitude: cam.Longitude,
		})
		if detErr != nil {
			slog.Warn("detection service failed, frame recorded without detections",
				"camera_id", cam.ID, "frame_id", frame.ID, "error", detErr)
			events = nil
			return tx.MarkFrameProcessed(ctx, frame.ID, 0)
		}

		// At most one accident per frame+class; repeats backfill the same id.
		accidentByClass := make(map[string]uuid.UUID)

		for _, raw := range raws {
			det := &models.Detection{
				ID:         uuid.New(),
				CameraID:   cam.ID,
				FrameID:    frame.ID,
				DetectedAt: capturedAt,
				Class:      raw.Class,
				Confidence: raw.Confidence,
				BBox: models.BBox{
					X: raw.BBox.X, Y: raw.BBox.Y, W: raw.BBox.W, H: raw.BBox.H,
				},
				PotentialAccident: isPotentialAccident(raw.Class, raw.Confidence),
			}
			if err := tx.InsertDetection(ctx, det); err != nil {
				return err
			}

			if det.PotentialAccident && raw.Confidence > accidentThreshold {
				accidentID, ok := accidentByClass[raw.Class]
				if !ok {
					acc := &models.Accident{
						ID:        uuid.New(),
						CameraID:  cam.ID,
						Latitude:  cam.Latitude,
						Longitude: cam.Longitude,
						Description: fmt.Sprintf("Camera-detected accident: %s at %.0f%% confidence",
							raw.Class, raw.Confidence*100),
						Severity:   severityFor(raw.Confidence),
						Status:     "reported",
						Source:     "camera",
						OccurredAt: capturedAt,
					}
					if err := tx.InsertAccident(ctx, acc); err != nil {
						return err
					}
					accidentID = acc.ID
					accidentByClass[raw.Class] = accidentID
					accidents++
				}
				if err := tx.BindDetectionAccident(ctx, det.ID, accidentID); err != nil {
					return err
				}
				det.AccidentID = &accidentID
			}

			events = append(events, models.DetectionEvent{
				DetectionID: det.ID,
				CameraID:    det.CameraID,
				FrameID:     det.FrameID,
				DetectedAt:  det.DetectedAt,
				Class:       det.Class,
				Confidence:  det.Confidence,
				BBox:        det.BBox,
				AccidentID:  det.AccidentID,
			})
		}

		return tx.MarkFrameProcessed(ctx, frame.ID, len(raws))
	})
	if err != nil {
		return fmt.Errorf("dispatch frame %d: %w", frameNumber, err)
	}

	camID := cam.ID.String()
	observability.FramesProcessed.WithLabelValues(camID).Inc()
	for _, ev := range events {
		observability.DetectionsTotal.WithLabelValues(camID, ev.Class).Inc()
	}
	if accidents > 0 {
		observability.AccidentsCreated.WithLabelValues(camID).Add(float64(accidents))
		slog.Info("accident records created", "camera_id", cam.ID, "frame_id", frame.ID, "count", accidents)
	}

	if d.events != nil {
		for _, ev := range events {
			if err := d.events.PublishEvent(ctx, camID, ev); err != nil {
				slog.Warn("publish detection event", "camera_id", cam.ID, "error", err)
			}
		}
	}

	return nil
}
