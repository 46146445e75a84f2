package domain

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

type VideoRepository interface {
	// CreateWithTask inserts the video (UPLOADED, then QUEUED) and its
	// PENDING task in a single transaction, so a queue message can never
	// reference rows that are not durably committed.
	CreateWithTask(ctx context.Context, v *Video, t *ProcessingTask) error
	FindByID(ctx context.Context, id uuid.UUID) (*Video, error)
	List(ctx context.Context) ([]Video, error)
	// Transition moves the video to the target status, guarded by the
	// state machine. Returns ErrIllegalTransition when the current
	// status does not admit the move.
	Transition(ctx context.Context, id uuid.UUID, to VideoStatus) error
	// MarkFailed transitions to FAILED and records the last error.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	SetMetadata(ctx context.Context, id uuid.UUID, m VideoMetadata) error
	// ListStaleQueued returns QUEUED videos older than the threshold
	// whose task is still PENDING, i.e. uploads whose enqueue step was
	// lost and that need re-enqueuing.
	ListStaleQueued(ctx context.Context, olderThan time.Duration) ([]Video, error)
}

type TaskRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*ProcessingTask, error)
	List(ctx context.Context, videoID uuid.UUID) ([]ProcessingTask, error)
	// Claim atomically moves the task to RUNNING and increments the
	// attempt count, but only when the task is claimable and attempts
	// remain. Returns the claimed task, or ErrDuplicateDelivery,
	// ErrAttemptsExhausted, ErrNotFound.
	Claim(ctx context.Context, id uuid.UUID, maxAttempts int) (*ProcessingTask, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
}

type FrameRepository interface {
	// SaveFrameResult persists one frame and its surviving detections as
	// a single atomic unit. If a row for (video, frame index) already
	// exists the whole unit is skipped, which makes retried attempts
	// idempotent.
	SaveFrameResult(ctx context.Context, f *ProcessedFrame, objects []DetectionCandidate) error
	ListFrames(ctx context.Context, videoID uuid.UUID) ([]ProcessedFrame, error)
	ListObjects(ctx context.Context, videoID uuid.UUID) ([]DetectedObject, error)
	CountFrames(ctx context.Context, videoID uuid.UUID) (int, error)
}

type ObjectStore interface {
	// PutVideo stores the raw upload and returns its key. The key is a
	// pure function of the video id and extension, so a retried submit
	// overwrites the same object.
	PutVideo(ctx context.Context, videoID uuid.UUID, ext string, r io.Reader, size int64, contentType string) (string, error)
	GetVideo(ctx context.Context, key string) (io.ReadCloser, error)
	// PutFrame stores a frame image under a key derived from
	// (video id, frame index) and returns it.
	PutFrame(ctx context.Context, videoID uuid.UUID, frameIndex int, jpeg []byte) (string, error)
}

type TaskQueue interface {
	Publish(ctx context.Context, msg TaskMessage) error
}

// Detector is the black-box detection capability. Implementations are
// stateless and must already have filtered out candidates below the
// configured confidence threshold.
type Detector interface {
	Detect(ctx context.Context, frameJPEG []byte) ([]DetectionCandidate, error)
}

// FrameExtractor derives sampled frames from a raw video file.
// Extraction is deterministic: the same file and interval always yield
// the same indices and timestamps, which is what makes retries safe.
type FrameExtractor interface {
	Probe(ctx context.Context, path string) (VideoMetadata, error)
	// ExtractFrames calls fn for every sampled frame in increasing index
	// order and stops at the first error.
	ExtractFrames(ctx context.Context, path string, interval int, fn func(ExtractedFrame) error) error
}
