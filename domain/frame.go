package domain

import (
	"time"

	"github.com/google/uuid"
)

// BoundingBox locates a detection inside a frame. Coordinates are in
// pixels of the source frame: (X, Y) is the top-left corner.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DetectionCandidate is a single raw result from the detector before
// it is persisted.
type DetectionCandidate struct {
	Label      string
	Confidence float64
	Box        BoundingBox
}

// ProcessedFrame records one sampled frame of a video. FrameIndex is
// the 0-based ordinal of the frame in sampling order, gap-free once
// the video completes.
type ProcessedFrame struct {
	ID               uuid.UUID
	VideoID          uuid.UUID
	FrameIndex       int
	TimestampSeconds float64
	StorageKey       string
	ObjectCount      int
	ProcessingMillis int64
	CreatedAt        time.Time
}

// DetectedObject is one detection that survived the confidence
// threshold. Rows are insert-only.
type DetectedObject struct {
	ID         uuid.UUID
	FrameID    uuid.UUID
	VideoID    uuid.UUID
	Label      string
	Confidence float64
	Box        BoundingBox
	CreatedAt  time.Time
}

// ExtractedFrame is a sampled frame handed from the extractor to the
// detection loop.
type ExtractedFrame struct {
	Index            int
	TimestampSeconds float64
	Data             []byte
}
