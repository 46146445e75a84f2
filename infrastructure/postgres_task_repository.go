package infrastructure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/visionpipe/video-detection-service/domain"
)

type PostgresTaskRepository struct {
	DB *sql.DB
}

func NewPostgresTaskRepository(db *sql.DB) *PostgresTaskRepository {
	return &PostgresTaskRepository{DB: db}
}

const taskColumns = `id, video_id, status, attempts, error_message, started_at, finished_at, created_at`

func (r *PostgresTaskRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.ProcessingTask, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM processing_tasks WHERE id = $1`, id)
	return scanTask(row)
}

func (r *PostgresTaskRepository) List(ctx context.Context, videoID uuid.UUID) ([]domain.ProcessingTask, error) {
	query := `SELECT ` + taskColumns + ` FROM processing_tasks ORDER BY created_at DESC`
	args := []any{}
	if videoID != uuid.Nil {
		query = `SELECT ` + taskColumns + ` FROM processing_tasks WHERE video_id = $1 ORDER BY created_at DESC`
		args = append(args, videoID)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.ProcessingTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// Claim is the optimistic RUNNING transition. The guarded UPDATE is
// what keeps two workers holding redeliveries of the same message from
// both running the pipeline: only one UPDATE can match, the loser sees
// zero rows and backs off.
func (r *PostgresTaskRepository) Claim(ctx context.Context, id uuid.UUID, maxAttempts int) (*domain.ProcessingTask, error) {
	row := r.DB.QueryRowContext(ctx,
		`UPDATE processing_tasks
		 SET status = $2, attempts = attempts + 1, started_at = NOW(), error_message = NULL
		 WHERE id = $1 AND status = ANY($3) AND attempts < $4
		 RETURNING `+taskColumns,
		id, domain.TaskStatusRunning,
		claimableStatuses(), maxAttempts)

	t, err := scanTask(row)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	// The guarded UPDATE matched nothing. Look at the row to tell a
	// duplicate delivery apart from an exhausted retry budget.
	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status.Claimable() && current.Attempts >= maxAttempts {
		return current, domain.ErrAttemptsExhausted
	}
	return current, domain.ErrDuplicateDelivery
}

func (r *PostgresTaskRepository) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE processing_tasks
		 SET status = $2, finished_at = NOW(), error_message = NULL
		 WHERE id = $1 AND status = $3`,
		id, domain.TaskStatusSucceeded, domain.TaskStatusRunning)
	if err != nil {
		return fmt.Errorf("mark task succeeded: %w", err)
	}
	return requireAffected(res, id, domain.TaskStatusSucceeded)
}

func (r *PostgresTaskRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE processing_tasks
		 SET status = $2, finished_at = NOW(), error_message = $3
		 WHERE id = $1 AND status <> $4`,
		id, domain.TaskStatusFailed, errMsg, domain.TaskStatusSucceeded)
	if err != nil {
		return fmt.Errorf("mark task failed: %w", err)
	}
	return nil
}

func claimableStatuses() any {
	return pq.Array([]string{string(domain.TaskStatusPending), string(domain.TaskStatusFailed)})
}

func requireAffected(res sql.Result, id uuid.UUID, to domain.TaskStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: task %s cannot move to %s", domain.ErrIllegalTransition, id, to)
	}
	return nil
}

func scanTask(row rowScanner) (*domain.ProcessingTask, error) {
	var t domain.ProcessingTask
	var errMsg sql.NullString
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(&t.ID, &t.VideoID, &t.Status, &t.Attempts, &errMsg,
		&startedAt, &finishedAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.ErrorMessage = errMsg.String
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		t.FinishedAt = &finishedAt.Time
	}
	return &t, nil
}
