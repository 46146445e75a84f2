package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/visionpipe/video-detection-service/domain"
)

// Task outcomes, used as metric labels by the worker binary.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeExhausted = "exhausted"
	OutcomeDuplicate = "duplicate"
	OutcomeOrphaned  = "orphaned"
)

// ProcessVideoUseCase is the task protocol one worker runs per queue
// delivery: claim, fetch, extract, detect, persist, transition,
// acknowledge. Every error is converted into a task-state transition
// and a queue disposition; nothing escapes to crash the claim loop.
type ProcessVideoUseCase struct {
	Videos    domain.VideoRepository
	Tasks     domain.TaskRepository
	Frames    domain.FrameRepository
	Store     domain.ObjectStore
	Detector  domain.Detector
	Extractor domain.FrameExtractor

	MaxAttempts         int
	FrameInterval       int
	ConfidenceThreshold float64

	// OnFramePersisted, when set, observes each committed frame unit.
	OnFramePersisted func(detections int)
}

// Execute runs one task attempt and returns the queue disposition plus
// an outcome label. The disposition is applied by the caller only
// after this method returns, which gives the commit-then-acknowledge
// ordering: state transitions are durable before the message goes
// away.
func (uc *ProcessVideoUseCase) Execute(ctx context.Context, msg domain.TaskMessage) (domain.Disposition, string) {
	task, err := uc.Tasks.Claim(ctx, msg.TaskID, uc.MaxAttempts)
	switch {
	case errors.Is(err, domain.ErrDuplicateDelivery):
		// Another worker holds (or held) this task. Ack without work.
		log.Printf("task %s already claimed (status %s), acknowledging duplicate", msg.TaskID, task.Status)
		return domain.DispositionAck, OutcomeDuplicate
	case errors.Is(err, domain.ErrAttemptsExhausted):
		uc.failPermanently(ctx, task, task.ErrorMessage)
		return domain.DispositionAck, OutcomeExhausted
	case errors.Is(err, domain.ErrNotFound):
		log.Printf("ERROR: task %s references no row, dead-lettering", msg.TaskID)
		return domain.DispositionDeadLetter, OutcomeOrphaned
	case err != nil:
		log.Printf("ERROR: claim task %s: %v", msg.TaskID, err)
		return domain.DispositionRetry, OutcomeFailed
	}

	if task.VideoID != msg.VideoID {
		log.Printf("ERROR: task %s belongs to video %s, message says %s; dead-lettering",
			task.ID, task.VideoID, msg.VideoID)
		return domain.DispositionDeadLetter, OutcomeOrphaned
	}

	log.Printf(" [x] processing video %s (task %s, attempt %d/%d)",
		task.VideoID, task.ID, task.Attempts, uc.MaxAttempts)

	if err := uc.run(ctx, task); err != nil {
		return uc.failAttempt(ctx, task, err)
	}

	// All frames committed. Transition video and task before the ack.
	if err := uc.Videos.Transition(ctx, task.VideoID, domain.VideoStatusCompleted); err != nil {
		return uc.failAttempt(ctx, task, &domain.PersistenceError{Op: "complete video", Err: err})
	}
	if err := uc.Tasks.MarkSucceeded(ctx, task.ID); err != nil {
		// The video is COMPLETED; do not retry detection work for a
		// bookkeeping failure, just surface it.
		log.Printf("ERROR: mark task %s succeeded: %v", task.ID, err)
	}
	log.Printf(" [x] video %s completed", task.VideoID)
	return domain.DispositionAck, OutcomeSucceeded
}

// run executes steps 1-3 of the protocol: fetch, extract, and the
// per-frame detect/persist loop in increasing index order.
func (uc *ProcessVideoUseCase) run(ctx context.Context, task *domain.ProcessingTask) error {
	video, err := uc.Videos.FindByID(ctx, task.VideoID)
	if err != nil {
		return &domain.RetrievalError{Key: task.VideoID.String(), Err: err}
	}

	if err := uc.Videos.Transition(ctx, video.ID, domain.VideoStatusProcessing); err != nil {
		return &domain.PersistenceError{Op: "start processing", Err: err}
	}

	path, err := uc.fetchToTemp(ctx, video)
	if err != nil {
		return err
	}
	defer os.Remove(path)

	meta, err := uc.Extractor.Probe(ctx, path)
	if err != nil {
		return &domain.RetrievalError{Key: video.StorageKey, Err: err}
	}
	if err := uc.Videos.SetMetadata(ctx, video.ID, meta); err != nil {
		return &domain.PersistenceError{Op: "video metadata", Err: err}
	}

	return uc.Extractor.ExtractFrames(ctx, path, uc.FrameInterval, func(frame domain.ExtractedFrame) error {
		return uc.processFrame(ctx, video, frame)
	})
}

func (uc *ProcessVideoUseCase) processFrame(ctx context.Context, video *domain.Video, frame domain.ExtractedFrame) error {
	start := time.Now()

	candidates, err := uc.Detector.Detect(ctx, frame.Data)
	if err != nil {
		return &domain.DetectionError{FrameIndex: frame.Index, Err: err}
	}

	// The adapter already enforces the threshold; filtering again here
	// keeps the no-sub-threshold-rows invariant independent of any one
	// detector implementation.
	kept := candidates[:0]
	for _, c := range candidates {
		if c.Confidence >= uc.ConfidenceThreshold {
			kept = append(kept, c)
		}
	}

	key, err := uc.Store.PutFrame(ctx, video.ID, frame.Index, frame.Data)
	if err != nil {
		return &domain.PersistenceError{Op: fmt.Sprintf("frame image %d", frame.Index), Err: err}
	}

	row := &domain.ProcessedFrame{
		ID:               uuid.New(),
		VideoID:          video.ID,
		FrameIndex:       frame.Index,
		TimestampSeconds: frame.TimestampSeconds,
		StorageKey:       key,
		ProcessingMillis: time.Since(start).Milliseconds(),
	}
	if err := uc.Frames.SaveFrameResult(ctx, row, kept); err != nil {
		return &domain.PersistenceError{Op: fmt.Sprintf("frame %d", frame.Index), Err: err}
	}

	if uc.OnFramePersisted != nil {
		uc.OnFramePersisted(len(kept))
	}
	return nil
}

func (uc *ProcessVideoUseCase) fetchToTemp(ctx context.Context, video *domain.Video) (string, error) {
	rc, err := uc.Store.GetVideo(ctx, video.StorageKey)
	if err != nil {
		var rerr *domain.RetrievalError
		if errors.As(err, &rerr) {
			return "", err
		}
		return "", &domain.RetrievalError{Key: video.StorageKey, Err: err}
	}
	defer rc.Close()

	f, err := os.CreateTemp("", "video-*"+filepath.Ext(video.StorageKey))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", &domain.RetrievalError{Key: video.StorageKey, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return f.Name(), nil
}

// failAttempt records a failed attempt. While attempts remain the
// message is returned to the queue; on the last attempt the video is
// failed permanently and the message acknowledged so redelivery stops.
// Partial frame rows are left in place: the next attempt re-derives
// the same indices and skips the committed ones.
func (uc *ProcessVideoUseCase) failAttempt(ctx context.Context, task *domain.ProcessingTask, cause error) (domain.Disposition, string) {
	log.Printf("ERROR: task %s attempt %d failed: %v", task.ID, task.Attempts, cause)

	if err := uc.Tasks.MarkFailed(ctx, task.ID, cause.Error()); err != nil {
		log.Printf("ERROR: mark task %s failed: %v", task.ID, err)
	}

	if task.Attempts >= uc.MaxAttempts {
		uc.failPermanently(ctx, task, cause.Error())
		return domain.DispositionAck, OutcomeExhausted
	}
	return domain.DispositionRetry, OutcomeFailed
}

func (uc *ProcessVideoUseCase) failPermanently(ctx context.Context, task *domain.ProcessingTask, lastErr string) {
	exhausted := &domain.ExhaustedRetriesError{Attempts: task.Attempts, LastErr: lastErr}
	log.Printf("ERROR: task %s: %v; failing video %s permanently", task.ID, exhausted, task.VideoID)

	if err := uc.Tasks.MarkFailed(ctx, task.ID, exhausted.Error()); err != nil {
		log.Printf("ERROR: mark task %s failed: %v", task.ID, err)
	}
	if err := uc.Videos.MarkFailed(ctx, task.VideoID, exhausted.Error()); err != nil {
		log.Printf("ERROR: mark video %s failed: %v", task.VideoID, err)
	}
}
