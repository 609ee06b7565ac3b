package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/roadwatch/internal/config"
	"github.com/your-org/roadwatch/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Cameras ---

func (s *PostgresStore) CreateCamera(ctx context.Context, cam *models.Camera) error {
	cam.ID = uuid.New()
	if cam.Status == "" {
		cam.Status = models.CameraStatusInactive
	}
	return s.pool.QueryRow(ctx,
		`INSERT INTO cameras (id, name, location, latitude, longitude, stream_url, stream_kind, resolution, frame_rate, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING created_at, updated_at`,
		cam.ID, cam.Name, cam.Location, cam.Latitude, cam.Longitude,
		cam.StreamURL, cam.StreamKind, cam.Resolution, cam.FrameRate, cam.Status,
	).Scan(&cam.CreatedAt, &cam.UpdatedAt)
}

const cameraColumns = `id, name, location, latitude, longitude, stream_url, stream_kind, resolution,
	frame_rate, status, is_online, is_recording, last_active_at, last_error, created_at, updated_at`

func scanCamera(row pgx.Row) (*models.Camera, error) {
	cam := &models.Camera{}
	err := row.Scan(&cam.ID, &cam.Name, &cam.Location, &cam.Latitude, &cam.Longitude,
		&cam.StreamURL, &cam.StreamKind, &cam.Resolution, &cam.FrameRate, &cam.Status,
		&cam.IsOnline, &cam.IsRecording, &cam.LastActiveAt, &cam.LastError,
		&cam.CreatedAt, &cam.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return cam, nil
}

func (s *PostgresStore) GetCamera(ctx context.Context, id uuid.UUID) (*models.Camera, error) {
	cam, err := scanCamera(s.pool.QueryRow(ctx,
		`SELECT `+cameraColumns+` FROM cameras WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get camera: %w", err)
	}
	return cam, nil
}

func (s *PostgresStore) ListCameras(ctx context.Context) ([]models.Camera, error) {
	return s.listCameras(ctx, `SELECT `+cameraColumns+` FROM cameras ORDER BY created_at DESC`)
}

func (s *PostgresStore) ListCamerasByStatus(ctx context.Context, status models.CameraStatus) ([]models.Camera, error) {
	return s.listCameras(ctx,
		`SELECT `+cameraColumns+` FROM cameras WHERE status = $1 ORDER BY created_at`, status)
}

func (s *PostgresStore) listCameras(ctx context.Context, query string, args ...interface{}) ([]models.Camera, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	defer rows.Close()

	var cameras []models.Camera
	for rows.Next() {
		cam, err := scanCamera(rows)
		if err != nil {
			return nil, fmt.Errorf("scan camera: %w", err)
		}
		cameras = append(cameras, *cam)
	}
	return cameras, nil
}

func (s *PostgresStore) UpdateCamera(ctx context.Context, cam *models.Camera) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE cameras SET name = $1, location = $2, latitude = $3, longitude = $4,
		 stream_url = $5, stream_kind = $6, resolution = $7, frame_rate = $8, status = $9,
		 updated_at = NOW() WHERE id = $10`,
		cam.Name, cam.Location, cam.Latitude, cam.Longitude,
		cam.StreamURL, cam.StreamKind, cam.Resolution, cam.FrameRate, cam.Status, cam.ID)
	if err != nil {
		return fmt.Errorf("update camera: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("camera not found")
	}
	return nil
}

func (s *PostgresStore) UpdateCameraStatus(ctx context.Context, id uuid.UUID, status models.CameraStatus, lastErr string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE cameras SET status = $1, last_error = $2, updated_at = NOW() WHERE id = $3`,
		status, lastErr, id)
	return err
}

func (s *PostgresStore) SetCameraOnline(ctx context.Context, id uuid.UUID, online bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE cameras SET is_online = $1, last_active_at = NOW(), updated_at = NOW() WHERE id = $2`,
		online, id)
	return err
}

func (s *PostgresStore) SetCameraRecording(ctx context.Context, id uuid.UUID, recording bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE cameras SET is_recording = $1, updated_at = NOW() WHERE id = $2`,
		recording, id)
	return err
}

func (s *PostgresStore) DeleteCamera(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cameras WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete camera: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("camera not found")
	}
	return nil
}

// --- Camera logs ---

func (s *PostgresStore) AppendCameraLog(ctx context.Context, cameraID uuid.UUID, status models.LogStatus, message string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO camera_logs (id, camera_id, status, message, created_at) VALUES ($1, $2, $3, $4, NOW())`,
		uuid.New(), cameraID, status, message)
	if err != nil {
		return fmt.Errorf("append camera log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCameraLogs(ctx context.Context, cameraID uuid.UUID, limit int) ([]models.CameraLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, camera_id, status, message, created_at FROM camera_logs
		 WHERE camera_id = $1 ORDER BY created_at DESC LIMIT $2`, cameraID, limit)
	if err != nil {
		return nil, fmt.Errorf("list camera logs: %w", err)
	}
	defer rows.Close()

	var logs []models.CameraLog
	for rows.Next() {
		var l models.CameraLog
		if err := rows.Scan(&l.ID, &l.CameraID, &l.Status, &l.Message, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan camera log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, nil
}

// --- Detection dispatch transaction ---

// DispatchTx is the write surface available inside one dispatch transaction.
type DispatchTx interface {
	InsertFrame(ctx context.Context, f *models.Frame) error
	InsertDetection(ctx context.Context, d *models.Detection) error
	InsertAccident(ctx context.Context, a *models.Accident) error
	BindDetectionAccident(ctx context.Context, detectionID, accidentID uuid.UUID) error
	MarkFrameProcessed(ctx context.Context, frameID uuid.UUID, detectionCount int) error
}

// InTx runs fn inside a transaction, rolling back if fn returns an error.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx DispatchTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&dispatchTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			return fmt.Errorf("rollback: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type dispatchTx struct {
	tx pgx.Tx
}

func (t *dispatchTx) InsertFrame(ctx context.Context, f *models.Frame) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO frames (id, camera_id, frame_number, captured_at, image_path, processed, detection_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.CameraID, f.FrameNumber, f.CapturedAt, f.ImagePath, f.Processed, f.DetectionCount)
	if err != nil {
		return fmt.Errorf("insert frame: %w", err)
	}
	return nil
}

func (t *dispatchTx) InsertDetection(ctx context.Context, d *models.Detection) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO detections (id, camera_id, frame_id, detected_at, class, confidence,
		 bbox_x, bbox_y, bbox_w, bbox_h, potential_accident, accident_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		d.ID, d.CameraID, d.FrameID, d.DetectedAt, d.Class, d.Confidence,
		d.BBox.X, d.BBox.Y, d.BBox.W, d.BBox.H, d.PotentialAccident, d.AccidentID)
	if err != nil {
		return fmt.Errorf("insert detection: %w", err)
	}
	return nil
}

func (t *dispatchTx) InsertAccident(ctx context.Context, a *models.Accident) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO accidents (id, camera_id, latitude, longitude, description, severity,
		 status, source, occurred_at, verification_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.CameraID, a.Latitude, a.Longitude, a.Description, a.Severity,
		a.Status, a.Source, a.OccurredAt, a.VerificationCount)
	if err != nil {
		return fmt.Errorf("insert accident: %w", err)
	}
	return nil
}

func (t *dispatchTx) BindDetectionAccident(ctx context.Context, detectionID, accidentID uuid.UUID) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE detections SET accident_id = $1 WHERE id = $2`, accidentID, detectionID)
	if err != nil {
		return fmt.Errorf("bind detection accident: %w", err)
	}
	return nil
}

func (t *dispatchTx) MarkFrameProcessed(ctx context.Context, frameID uuid.UUID, detectionCount int) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE frames SET processed = TRUE, detection_count = $1, image_path = '' WHERE id = $2`,
		detectionCount, frameID)
	if err != nil {
		return fmt.Errorf("mark frame processed: %w", err)
	}
	return nil
}

// --- Detections & accidents (read side) ---

func (s *PostgresStore) ListDetections(ctx context.Context, cameraID uuid.UUID, limit, offset int) ([]models.Detection, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM detections WHERE camera_id = $1`, cameraID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count detections: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, camera_id, frame_id, detected_at, class, confidence,
		 bbox_x, bbox_y, bbox_w, bbox_h, potential_accident, accident_id
		 FROM detections WHERE camera_id = $1 ORDER BY detected_at DESC LIMIT $2 OFFSET $3`,
		cameraID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list detections: %w", err)
	}
	defer rows.Close()

	var detections []models.Detection
	for rows.Next() {
		var d models.Detection
		if err := rows.Scan(&d.ID, &d.CameraID, &d.FrameID, &d.DetectedAt, &d.Class, &d.Confidence,
			&d.BBox.X, &d.BBox.Y, &d.BBox.W, &d.BBox.H, &d.PotentialAccident, &d.AccidentID); err != nil {
			return nil, 0, fmt.Errorf("scan detection: %w", err)
		}
		detections = append(detections, d)
	}
	return detections, total, nil
}

func (s *PostgresStore) ListAccidents(ctx context.Context, cameraID uuid.UUID, limit int) ([]models.Accident, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, camera_id, latitude, longitude, description, severity, status, source,
		 occurred_at, verification_count
		 FROM accidents WHERE camera_id = $1 ORDER BY occurred_at DESC LIMIT $2`, cameraID, limit)
	if err != nil {
		return nil, fmt.Errorf("list accidents: %w", err)
	}
	defer rows.Close()

	var accidents []models.Accident
	for rows.Next() {
		var a models.Accident
		if err := rows.Scan(&a.ID, &a.CameraID, &a.Latitude, &a.Longitude, &a.Description,
			&a.Severity, &a.Status, &a.Source, &a.OccurredAt, &a.VerificationCount); err != nil {
			return nil, fmt.Errorf("scan accident: %w", err)
		}
		accidents = append(accidents, a)
	}
	return accidents, nil
}

// GetCameraStats aggregates live processing counters for one camera.
func (s *PostgresStore) GetCameraStats(ctx context.Context, cameraID uuid.UUID) (*models.CameraStats, error) {
	st := &models.CameraStats{CameraID: cameraID}
	err := s.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM frames WHERE camera_id = $1 AND processed),
		   (SELECT COUNT(*) FROM detections WHERE camera_id = $1),
		   (SELECT COUNT(*) FROM accidents WHERE camera_id = $1),
		   (SELECT MAX(detected_at) FROM detections WHERE camera_id = $1)`,
		cameraID,
	).Scan(&st.FramesProcessed, &st.Detections, &st.Accidents, &st.LastDetectionAt)
	if err != nil {
		return nil, fmt.Errorf("camera stats: %w", err)
	}
	return st, nil
}

// RecentDetectionCounts returns per-class detection counts for a camera since
// the given time. Used by the statistics endpoint.
func (s *PostgresStore) RecentDetectionCounts(ctx context.Context, cameraID uuid.UUID, since time.Time) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT class, COUNT(*) FROM detections
		 WHERE camera_id = $1 AND detected_at >= $2 GROUP BY class`, cameraID, since)
	if err != nil {
		return nil, fmt.Errorf("recent detection counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var class string
		var n int64
		if err := rows.Scan(&class, &n); err != nil {
			return nil, fmt.Errorf("scan detection count: %w", err)
		}
		counts[class] = n
	}
	return counts, nil
}
