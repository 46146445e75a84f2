package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/visionpipe/video-detection-service/domain"
)

func TestRequeueStaleOnlyTouchesOldQueuedVideos(t *testing.T) {
	store := newMemStore()
	queue := &fakeQueue{}
	uc := &RequeueStaleUseCase{
		Videos: store,
		Tasks:  taskRepoView{store},
		Queue:  queue,
		Age:    time.Minute,
	}

	// Stale: QUEUED with a PENDING task, last touched long ago.
	staleVideo, staleTask := store.addQueuedVideo("videos/stale.mp4")
	store.videos[staleVideo.ID].UpdatedAt = time.Now().Add(-10 * time.Minute)

	// Fresh: QUEUED but inside the age threshold.
	store.addQueuedVideo("videos/fresh.mp4")

	// In flight: already PROCESSING.
	processing, _ := store.addQueuedVideo("videos/processing.mp4")
	if err := store.Transition(context.Background(), processing.ID, domain.VideoStatusProcessing); err != nil {
		t.Fatalf("seed transition: %v", err)
	}

	n, err := uc.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if n != 1 {
		t.Fatalf("requeued %d videos, want 1", n)
	}
	if len(queue.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(queue.published))
	}
	msg := queue.published[0]
	if msg.VideoID != staleVideo.ID || msg.TaskID != staleTask.ID {
		t.Errorf("re-enqueued %+v, want stale video %s task %s", msg, staleVideo.ID, staleTask.ID)
	}
}

func TestRequeueStaleNoCandidates(t *testing.T) {
	store := newMemStore()
	queue := &fakeQueue{}
	uc := &RequeueStaleUseCase{
		Videos: store,
		Tasks:  taskRepoView{store},
		Queue:  queue,
		Age:    time.Minute,
	}

	n, err := uc.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if n != 0 || len(queue.published) != 0 {
		t.Errorf("requeued %d / published %d, want 0/0", n, len(queue.published))
	}
}
