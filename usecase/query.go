package usecase

import (
	"context"

	"github.com/google/uuid"

	"github.com/visionpipe/video-detection-service/domain"
)

// QueryUseCase is the read-only projection over the state store. It
// only ever sees committed rows, so a frame is never visible without
// its detections.
type QueryUseCase struct {
	Videos domain.VideoRepository
	Tasks  domain.TaskRepository
	Frames domain.FrameRepository
}

func (uc *QueryUseCase) ListVideos(ctx context.Context) ([]domain.Video, error) {
	return uc.Videos.List(ctx)
}

func (uc *QueryUseCase) GetVideo(ctx context.Context, id uuid.UUID) (*domain.Video, error) {
	return uc.Videos.FindByID(ctx, id)
}

func (uc *QueryUseCase) ListTasks(ctx context.Context, videoID uuid.UUID) ([]domain.ProcessingTask, error) {
	return uc.Tasks.List(ctx, videoID)
}

func (uc *QueryUseCase) ListFrames(ctx context.Context, videoID uuid.UUID) ([]domain.ProcessedFrame, error) {
	return uc.Frames.ListFrames(ctx, videoID)
}

func (uc *QueryUseCase) ListObjects(ctx context.Context, videoID uuid.UUID) ([]domain.DetectedObject, error) {
	return uc.Frames.ListObjects(ctx, videoID)
}
