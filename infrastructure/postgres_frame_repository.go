package infrastructure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/visionpipe/video-detection-service/domain"
)

type PostgresFrameRepository struct {
	DB *sql.DB
}

func NewPostgresFrameRepository(db *sql.DB) *PostgresFrameRepository {
	return &PostgresFrameRepository{DB: db}
}

// SaveFrameResult writes the frame row and its detections in one
// transaction. The frame insert is insert-if-absent on
// (video_id, frame_index); when a previous attempt already committed
// this frame the whole unit is skipped, so redelivered tasks never
// produce duplicate rows and readers never see a frame without its
// detections.
func (r *PostgresFrameRepository) SaveFrameResult(ctx context.Context, f *domain.ProcessedFrame, objects []domain.DetectionCandidate) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin frame tx: %w", err)
	}
	defer tx.Rollback()

	var frameID uuid.UUID
	err = tx.QueryRowContext(ctx,
		`INSERT INTO processed_frames
		   (id, video_id, frame_index, timestamp_seconds, storage_key, object_count, processing_millis)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (video_id, frame_index) DO NOTHING
		 RETURNING id`,
		f.ID, f.VideoID, f.FrameIndex, f.TimestampSeconds, f.StorageKey,
		len(objects), f.ProcessingMillis).Scan(&frameID)
	if errors.Is(err, sql.ErrNoRows) {
		// A previous attempt committed this frame already.
		return tx.Commit()
	}
	if err != nil {
		return fmt.Errorf("insert frame %d: %w", f.FrameIndex, err)
	}

	for _, obj := range objects {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO detected_objects
			   (id, frame_id, video_id, label, confidence, bbox_x, bbox_y, bbox_width, bbox_height)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			uuid.New(), frameID, f.VideoID, obj.Label, obj.Confidence,
			obj.Box.X, obj.Box.Y, obj.Box.Width, obj.Box.Height)
		if err != nil {
			return fmt.Errorf("insert detection %q on frame %d: %w", obj.Label, f.FrameIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit frame tx: %w", err)
	}
	f.ObjectCount = len(objects)
	return nil
}

const frameColumns = `id, video_id, frame_index, timestamp_seconds, storage_key, object_count, processing_millis, created_at`

func (r *PostgresFrameRepository) ListFrames(ctx context.Context, videoID uuid.UUID) ([]domain.ProcessedFrame, error) {
	query := `SELECT ` + frameColumns + ` FROM processed_frames ORDER BY video_id, frame_index`
	args := []any{}
	if videoID != uuid.Nil {
		query = `SELECT ` + frameColumns + ` FROM processed_frames WHERE video_id = $1 ORDER BY frame_index`
		args = append(args, videoID)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var frames []domain.ProcessedFrame
	for rows.Next() {
		var f domain.ProcessedFrame
		err := rows.Scan(&f.ID, &f.VideoID, &f.FrameIndex, &f.TimestampSeconds,
			&f.StorageKey, &f.ObjectCount, &f.ProcessingMillis, &f.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

const objectColumns = `id, frame_id, video_id, label, confidence, bbox_x, bbox_y, bbox_width, bbox_height, created_at`

func (r *PostgresFrameRepository) ListObjects(ctx context.Context, videoID uuid.UUID) ([]domain.DetectedObject, error) {
	query := `SELECT ` + objectColumns + ` FROM detected_objects ORDER BY video_id, created_at`
	args := []any{}
	if videoID != uuid.Nil {
		query = `SELECT ` + objectColumns + ` FROM detected_objects WHERE video_id = $1 ORDER BY created_at`
		args = append(args, videoID)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	var objects []domain.DetectedObject
	for rows.Next() {
		var o domain.DetectedObject
		err := rows.Scan(&o.ID, &o.FrameID, &o.VideoID, &o.Label, &o.Confidence,
			&o.Box.X, &o.Box.Y, &o.Box.Width, &o.Box.Height, &o.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		objects = append(objects, o)
	}
	return objects, rows.Err()
}

func (r *PostgresFrameRepository) CountFrames(ctx context.Context, videoID uuid.UUID) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_frames WHERE video_id = $1`, videoID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count frames: %w", err)
	}
	return n, nil
}
