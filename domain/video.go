package domain

import (
	"time"

	"github.com/google/uuid"
)

type VideoStatus string

const (
	VideoStatusUploaded   VideoStatus = "UPLOADED"
	VideoStatusQueued     VideoStatus = "QUEUED"
	VideoStatusProcessing VideoStatus = "PROCESSING"
	VideoStatusCompleted  VideoStatus = "COMPLETED"
	VideoStatusFailed     VideoStatus = "FAILED"
)

// videoTransitions maps a target status to the statuses a video may
// move there from. A transition to the current status is always a
// legal no-op so that a redelivered task can re-enter PROCESSING.
var videoTransitions = map[VideoStatus][]VideoStatus{
	VideoStatusQueued:     {VideoStatusUploaded},
	VideoStatusProcessing: {VideoStatusQueued, VideoStatusProcessing},
	VideoStatusCompleted:  {VideoStatusProcessing},
	VideoStatusFailed:     {VideoStatusQueued, VideoStatusProcessing},
}

// AllowedSources returns the statuses from which a video may legally
// transition into to. The returned slice must not be modified.
func (to VideoStatus) AllowedSources() []VideoStatus {
	return videoTransitions[to]
}

// CanTransitionFrom reports whether moving from -> to is a legal
// video status transition.
func (to VideoStatus) CanTransitionFrom(from VideoStatus) bool {
	for _, s := range videoTransitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s VideoStatus) Terminal() bool {
	return s == VideoStatusCompleted || s == VideoStatusFailed
}

// VideoMetadata holds container properties probed from the raw upload.
type VideoMetadata struct {
	DurationSeconds float64
	FrameCount      int
	FPS             float64
	Width           int
	Height          int
	SizeBytes       int64
}

type Video struct {
	ID               uuid.UUID
	Title            string
	Description      string
	OriginalFilename string
	StorageKey       string
	Status           VideoStatus
	ErrorMessage     string
	Metadata         VideoMetadata
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
