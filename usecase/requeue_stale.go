package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/visionpipe/video-detection-service/domain"
)

// RequeueStaleUseCase is the reconciliation sweep: it finds videos
// stuck in QUEUED with a still-PENDING task past the age threshold —
// the signature of an enqueue that was lost after the rows committed —
// and publishes a fresh task message for each.
type RequeueStaleUseCase struct {
	Videos domain.VideoRepository
	Tasks  domain.TaskRepository
	Queue  domain.TaskQueue

	Age time.Duration
}

// Execute runs one sweep and returns how many videos were re-enqueued.
func (uc *RequeueStaleUseCase) Execute(ctx context.Context) (int, error) {
	stale, err := uc.Videos.ListStaleQueued(ctx, uc.Age)
	if err != nil {
		return 0, fmt.Errorf("list stale queued videos: %w", err)
	}

	requeued := 0
	for _, v := range stale {
		tasks, err := uc.Tasks.List(ctx, v.ID)
		if err != nil {
			log.Printf("ERROR: reconcile video %s: %v", v.ID, err)
			continue
		}
		var pending *domain.ProcessingTask
		for i := range tasks {
			if tasks[i].Status == domain.TaskStatusPending {
				pending = &tasks[i]
				break
			}
		}
		if pending == nil {
			continue
		}

		msg := domain.TaskMessage{VideoID: v.ID, TaskID: pending.ID}
		if err := uc.Queue.Publish(ctx, msg); err != nil {
			log.Printf("ERROR: re-enqueue video %s: %v", v.ID, err)
			continue
		}
		log.Printf(" [x] re-enqueued stale video %s (task %s)", v.ID, pending.ID)
		requeued++
	}
	return requeued, nil
}
