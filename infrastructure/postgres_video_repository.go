package infrastructure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/visionpipe/video-detection-service/domain"
)

type PostgresVideoRepository struct {
	DB *sql.DB
}

func NewPostgresVideoRepository(db *sql.DB) *PostgresVideoRepository {
	return &PostgresVideoRepository{DB: db}
}

const videoColumns = `id, title, description, original_filename, storage_key, status,
	error_message, duration_seconds, frame_count, fps, width, height, size_bytes,
	created_at, updated_at`

func (r *PostgresVideoRepository) CreateWithTask(ctx context.Context, v *domain.Video, t *domain.ProcessingTask) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin submit tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO videos (id, title, description, original_filename, storage_key, status)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		v.ID, v.Title, v.Description, v.OriginalFilename, v.StorageKey, domain.VideoStatusUploaded)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO processing_tasks (id, video_id, status) VALUES ($1, $2, $3)`,
		t.ID, t.VideoID, domain.TaskStatusPending)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	// UPLOADED -> QUEUED inside the same transaction: by the time the
	// rows are visible the video is already queued.
	_, err = tx.ExecContext(ctx,
		`UPDATE videos SET status = $2, updated_at = NOW() WHERE id = $1`,
		v.ID, domain.VideoStatusQueued)
	if err != nil {
		return fmt.Errorf("queue video: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit submit tx: %w", err)
	}
	v.Status = domain.VideoStatusQueued
	t.Status = domain.TaskStatusPending
	return nil
}

func (r *PostgresVideoRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Video, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE id = $1`, id)
	return scanVideo(row)
}

func (r *PostgresVideoRepository) List(ctx context.Context) ([]domain.Video, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+videoColumns+` FROM videos ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	var videos []domain.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, *v)
	}
	return videos, rows.Err()
}

func (r *PostgresVideoRepository) Transition(ctx context.Context, id uuid.UUID, to domain.VideoStatus) error {
	sources := to.AllowedSources()
	allowed := make([]string, len(sources))
	for i, s := range sources {
		allowed[i] = string(s)
	}

	res, err := r.DB.ExecContext(ctx,
		`UPDATE videos SET status = $2, updated_at = NOW()
		 WHERE id = $1 AND status = ANY($3)`,
		id, to, pq.Array(allowed))
	if err != nil {
		return fmt.Errorf("transition video to %s: %w", to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var current string
		err := r.DB.QueryRowContext(ctx, `SELECT status FROM videos WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: video %s is %s, cannot move to %s",
			domain.ErrIllegalTransition, id, current, to)
	}
	return nil
}

func (r *PostgresVideoRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	if err := r.Transition(ctx, id, domain.VideoStatusFailed); err != nil {
		return err
	}
	_, err := r.DB.ExecContext(ctx,
		`UPDATE videos SET error_message = $2, updated_at = NOW() WHERE id = $1`,
		id, errMsg)
	if err != nil {
		return fmt.Errorf("record video error: %w", err)
	}
	return nil
}

func (r *PostgresVideoRepository) SetMetadata(ctx context.Context, id uuid.UUID, m domain.VideoMetadata) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE videos SET duration_seconds = $2, frame_count = $3, fps = $4,
		 width = $5, height = $6, size_bytes = $7, updated_at = NOW()
		 WHERE id = $1`,
		id, m.DurationSeconds, m.FrameCount, m.FPS, m.Width, m.Height, m.SizeBytes)
	if err != nil {
		return fmt.Errorf("set video metadata: %w", err)
	}
	return nil
}

func (r *PostgresVideoRepository) ListStaleQueued(ctx context.Context, olderThan time.Duration) ([]domain.Video, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+qualify(videoColumns, "v")+`
		 FROM videos v
		 JOIN processing_tasks t ON t.video_id = v.id
		 WHERE v.status = $1 AND t.status = $2
		   AND v.updated_at < NOW() - ($3 * INTERVAL '1 second')
		 ORDER BY v.updated_at ASC`,
		domain.VideoStatusQueued, domain.TaskStatusPending, olderThan.Seconds())
	if err != nil {
		return nil, fmt.Errorf("query stale queued videos: %w", err)
	}
	defer rows.Close()

	var videos []domain.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, *v)
	}
	return videos, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*domain.Video, error) {
	var v domain.Video
	var errMsg sql.NullString
	var duration, fps sql.NullFloat64
	var frameCount, width, height sql.NullInt64
	var sizeBytes sql.NullInt64

	err := row.Scan(&v.ID, &v.Title, &v.Description, &v.OriginalFilename, &v.StorageKey,
		&v.Status, &errMsg, &duration, &frameCount, &fps, &width, &height, &sizeBytes,
		&v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan video: %w", err)
	}
	v.ErrorMessage = errMsg.String
	v.Metadata = domain.VideoMetadata{
		DurationSeconds: duration.Float64,
		FrameCount:      int(frameCount.Int64),
		FPS:             fps.Float64,
		Width:           int(width.Int64),
		Height:          int(height.Int64),
		SizeBytes:       sizeBytes.Int64,
	}
	return &v, nil
}

// qualify prefixes every column in a comma-separated list with a table
// alias so the list can be reused in joins.
func qualify(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
