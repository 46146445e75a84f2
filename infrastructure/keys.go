package infrastructure

import (
	"fmt"

	"github.com/google/uuid"
)

// Object store key scheme. Keys are pure functions of their inputs so
// retries overwrite the same object and readers can reconstruct keys
// without extra lookups.

func VideoKey(videoID uuid.UUID, ext string) string {
	return fmt.Sprintf("videos/%s%s", videoID, ext)
}

func FrameKey(videoID uuid.UUID, frameIndex int) string {
	return fmt.Sprintf("frames/%s/frame_%06d.jpg", videoID, frameIndex)
}
