package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/visionpipe/video-detection-service/domain"
)

// acceptedContainers are the video MIME types the submission service
// admits. Detection is by content sniffing, not filename.
var acceptedContainers = map[string]bool{
	"video/mp4":        true,
	"video/quicktime":  true,
	"video/webm":       true,
	"video/x-matroska": true,
	"video/x-msvideo":  true,
}

type UploadVideoInput struct {
	Content     io.Reader
	Filename    string
	Title       string
	Description string
}

type UploadVideoOutput struct {
	VideoID uuid.UUID
	Status  domain.VideoStatus
}

type UploadVideoUseCase struct {
	Videos domain.VideoRepository
	Store  domain.ObjectStore
	Queue  domain.TaskQueue

	MaxUploadBytes int64
}

// Execute validates the upload, stores the bytes, commits the video
// and task rows, and finally enqueues the task message. The ordering
// matters: the rows must be durable before the message exists, so a
// worker can never claim a task referencing uncommitted state. A
// failed enqueue leaves the video QUEUED for the reconciliation sweep
// to pick up.
func (uc *UploadVideoUseCase) Execute(ctx context.Context, input UploadVideoInput) (*UploadVideoOutput, error) {
	data, err := io.ReadAll(io.LimitReader(input.Content, uc.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, &domain.ValidationError{Reason: "empty file"}
	}
	if int64(len(data)) > uc.MaxUploadBytes {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("file exceeds %d bytes", uc.MaxUploadBytes)}
	}

	mtype := mimetype.Detect(data)
	if !acceptedContainers[mtype.String()] {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("unsupported container %q", mtype.String())}
	}

	videoID := uuid.New()

	key, err := uc.Store.PutVideo(ctx, videoID, mtype.Extension(),
		bytes.NewReader(data), int64(len(data)), mtype.String())
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	video := &domain.Video{
		ID:               videoID,
		Title:            input.Title,
		Description:      input.Description,
		OriginalFilename: input.Filename,
		StorageKey:       key,
	}
	task := &domain.ProcessingTask{
		ID:      uuid.New(),
		VideoID: videoID,
	}
	if err := uc.Videos.CreateWithTask(ctx, video, task); err != nil {
		return nil, fmt.Errorf("record video: %w", err)
	}

	msg := domain.TaskMessage{VideoID: video.ID, TaskID: task.ID}
	if err := uc.Queue.Publish(ctx, msg); err != nil {
		// Rows are committed; the reconciler will re-enqueue this video.
		log.Printf("ERROR: enqueue failed for video %s, leaving QUEUED for reconciliation: %v", video.ID, err)
	} else {
		log.Printf(" [x] queued video %s (task %s)", video.ID, task.ID)
	}

	return &UploadVideoOutput{VideoID: video.ID, Status: video.Status}, nil
}
