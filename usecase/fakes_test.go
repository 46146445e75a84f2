package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/visionpipe/video-detection-service/domain"
)

// memStore is an in-memory stand-in for the postgres repositories. It
// implements the same guarded-update semantics (claim, transitions,
// insert-if-absent frame units) behind one mutex.
type memStore struct {
	mu      sync.Mutex
	videos  map[uuid.UUID]*domain.Video
	tasks   map[uuid.UUID]*domain.ProcessingTask
	frames  map[uuid.UUID][]domain.ProcessedFrame
	objects []domain.DetectedObject

	// failure injection
	saveFrameErrAt   int // frame index that fails, -1 disables
	saveFrameErrOnce bool
}

func newMemStore() *memStore {
	return &memStore{
		videos:         map[uuid.UUID]*domain.Video{},
		tasks:          map[uuid.UUID]*domain.ProcessingTask{},
		frames:         map[uuid.UUID][]domain.ProcessedFrame{},
		saveFrameErrAt: -1,
	}
}

// addQueuedVideo seeds a video in QUEUED with a PENDING task, the
// state a successful submit leaves behind.
func (s *memStore) addQueuedVideo(key string) (*domain.Video, *domain.ProcessingTask) {
	v := &domain.Video{
		ID:         uuid.New(),
		StorageKey: key,
		Status:     domain.VideoStatusQueued,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	t := &domain.ProcessingTask{
		ID:        uuid.New(),
		VideoID:   v.ID,
		Status:    domain.TaskStatusPending,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[v.ID] = v
	s.tasks[t.ID] = t
	return v, t
}

func (s *memStore) CreateWithTask(ctx context.Context, v *domain.Video, t *domain.ProcessingTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.Status = domain.VideoStatusQueued
	v.CreatedAt = time.Now()
	v.UpdatedAt = time.Now()
	t.Status = domain.TaskStatusPending
	t.CreatedAt = time.Now()
	s.videos[v.ID] = v
	s.tasks[t.ID] = t
	return nil
}

func (s *memStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *v
	return &copied, nil
}

func (s *memStore) List(ctx context.Context) ([]domain.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Video
	for _, v := range s.videos {
		out = append(out, *v)
	}
	return out, nil
}

func (s *memStore) Transition(ctx context.Context, id uuid.UUID, to domain.VideoStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !to.CanTransitionFrom(v.Status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, v.Status, to)
	}
	v.Status = to
	v.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	if err := s.Transition(ctx, id, domain.VideoStatusFailed); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[id].ErrorMessage = errMsg
	return nil
}

func (s *memStore) SetMetadata(ctx context.Context, id uuid.UUID, m domain.VideoMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return domain.ErrNotFound
	}
	v.Metadata = m
	return nil
}

func (s *memStore) ListStaleQueued(ctx context.Context, olderThan time.Duration) ([]domain.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []domain.Video
	for _, v := range s.videos {
		if v.Status != domain.VideoStatusQueued || !v.UpdatedAt.Before(cutoff) {
			continue
		}
		for _, t := range s.tasks {
			if t.VideoID == v.ID && t.Status == domain.TaskStatusPending {
				out = append(out, *v)
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) FindTask(ctx context.Context, id uuid.UUID) (*domain.ProcessingTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (s *memStore) ListTasks(ctx context.Context, videoID uuid.UUID) ([]domain.ProcessingTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ProcessingTask
	for _, t := range s.tasks {
		if videoID == uuid.Nil || t.VideoID == videoID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *memStore) Claim(ctx context.Context, id uuid.UUID, maxAttempts int) (*domain.ProcessingTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *t
	if !t.Status.Claimable() {
		return &copied, domain.ErrDuplicateDelivery
	}
	if t.Attempts >= maxAttempts {
		return &copied, domain.ErrAttemptsExhausted
	}
	now := time.Now()
	t.Status = domain.TaskStatusRunning
	t.Attempts++
	t.StartedAt = &now
	t.ErrorMessage = ""
	copied = *t
	return &copied, nil
}

func (s *memStore) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	if t.Status != domain.TaskStatusRunning {
		return domain.ErrIllegalTransition
	}
	now := time.Now()
	t.Status = domain.TaskStatusSucceeded
	t.FinishedAt = &now
	return nil
}

func (s *memStore) MarkTaskFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	if t.Status == domain.TaskStatusSucceeded {
		return nil
	}
	now := time.Now()
	t.Status = domain.TaskStatusFailed
	t.ErrorMessage = errMsg
	t.FinishedAt = &now
	return nil
}

func (s *memStore) SaveFrameResult(ctx context.Context, f *domain.ProcessedFrame, objects []domain.DetectionCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveFrameErrAt == f.FrameIndex {
		if s.saveFrameErrOnce {
			s.saveFrameErrAt = -1
		}
		return errors.New("injected frame write failure")
	}

	for _, existing := range s.frames[f.VideoID] {
		if existing.FrameIndex == f.FrameIndex {
			return nil // insert-if-absent: unit already committed
		}
	}
	f.ObjectCount = len(objects)
	s.frames[f.VideoID] = append(s.frames[f.VideoID], *f)
	for _, obj := range objects {
		s.objects = append(s.objects, domain.DetectedObject{
			ID:         uuid.New(),
			FrameID:    f.ID,
			VideoID:    f.VideoID,
			Label:      obj.Label,
			Confidence: obj.Confidence,
			Box:        obj.Box,
			CreatedAt:  time.Now(),
		})
	}
	return nil
}

func (s *memStore) ListFrames(ctx context.Context, videoID uuid.UUID) ([]domain.ProcessedFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ProcessedFrame(nil), s.frames[videoID]...), nil
}

func (s *memStore) ListObjects(ctx context.Context, videoID uuid.UUID) ([]domain.DetectedObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DetectedObject
	for _, o := range s.objects {
		if videoID == uuid.Nil || o.VideoID == videoID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memStore) CountFrames(ctx context.Context, videoID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames[videoID]), nil
}

// taskRepoView adapts memStore to domain.TaskRepository (the method
// names collide with the video repository on the same struct).
type taskRepoView struct{ *memStore }

func (v taskRepoView) FindByID(ctx context.Context, id uuid.UUID) (*domain.ProcessingTask, error) {
	return v.memStore.FindTask(ctx, id)
}

func (v taskRepoView) List(ctx context.Context, videoID uuid.UUID) ([]domain.ProcessingTask, error) {
	return v.memStore.ListTasks(ctx, videoID)
}

func (v taskRepoView) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	return v.memStore.MarkTaskFailed(ctx, id, errMsg)
}

// fakeObjectStore keeps blobs in a map.
type fakeObjectStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	getErr  error
	putErr  error
	puts    int
	gets    int
	framesN int
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{blobs: map[string][]byte{}}
}

func (s *fakeObjectStore) PutVideo(ctx context.Context, videoID uuid.UUID, ext string, r io.Reader, size int64, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return "", s.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("videos/%s%s", videoID, ext)
	s.blobs[key] = data
	s.puts++
	return key, nil
}

func (s *fakeObjectStore) GetVideo(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return nil, &domain.RetrievalError{Key: key, Err: s.getErr}
	}
	data, ok := s.blobs[key]
	if !ok {
		return nil, &domain.RetrievalError{Key: key, Err: errors.New("no such object")}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeObjectStore) PutFrame(ctx context.Context, videoID uuid.UUID, frameIndex int, jpeg []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return "", s.putErr
	}
	key := fmt.Sprintf("frames/%s/frame_%06d.jpg", videoID, frameIndex)
	s.blobs[key] = jpeg
	s.framesN++
	return key, nil
}

// fakeQueue records published messages.
type fakeQueue struct {
	mu         sync.Mutex
	published  []domain.TaskMessage
	publishErr error
}

func (q *fakeQueue) Publish(ctx context.Context, msg domain.TaskMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, msg)
	return nil
}

// fakeDetector returns a fixed candidate set per frame and counts
// invocations. An optional gate makes a call block until released,
// for the concurrent-claim test.
type fakeDetector struct {
	mu         sync.Mutex
	candidates []domain.DetectionCandidate
	err        error
	calls      int
	started    chan struct{}
	release    chan struct{}
}

func (d *fakeDetector) Detect(ctx context.Context, frameJPEG []byte) ([]domain.DetectionCandidate, error) {
	d.mu.Lock()
	d.calls++
	first := d.calls == 1
	d.mu.Unlock()

	if first && d.started != nil {
		close(d.started)
	}
	if d.release != nil {
		<-d.release
	}
	if d.err != nil {
		return nil, d.err
	}
	return append([]domain.DetectionCandidate(nil), d.candidates...), nil
}

func (d *fakeDetector) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// fakeExtractor derives frames purely from (frame count, interval,
// fps), mirroring the determinism contract of the real extractor.
type fakeExtractor struct {
	frameCount int
	fps        float64
	probeErr   error
	extractErr error
}

func (e *fakeExtractor) Probe(ctx context.Context, path string) (domain.VideoMetadata, error) {
	if e.probeErr != nil {
		return domain.VideoMetadata{}, e.probeErr
	}
	return domain.VideoMetadata{
		DurationSeconds: float64(e.frameCount) / e.fps,
		FrameCount:      e.frameCount,
		FPS:             e.fps,
		Width:           640,
		Height:          480,
		SizeBytes:       1024,
	}, nil
}

func (e *fakeExtractor) ExtractFrames(ctx context.Context, path string, interval int, fn func(domain.ExtractedFrame) error) error {
	if e.extractErr != nil {
		return e.extractErr
	}
	if interval < 1 {
		interval = 1
	}
	for i := 0; i*interval < e.frameCount; i++ {
		frame := domain.ExtractedFrame{
			Index:            i,
			TimestampSeconds: float64(i*interval) / e.fps,
			Data:             []byte(fmt.Sprintf("frame-%d", i)),
		}
		if err := fn(frame); err != nil {
			return err
		}
	}
	return nil
}
