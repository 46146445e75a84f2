package infrastructure

import (
	"testing"

	"github.com/google/uuid"
)

func TestKeySchemeIsDeterministic(t *testing.T) {
	id := uuid.MustParse("0b5e7a2e-9f6e-4a6e-8c3d-1f2a3b4c5d6e")

	if got, want := VideoKey(id, ".mp4"), "videos/0b5e7a2e-9f6e-4a6e-8c3d-1f2a3b4c5d6e.mp4"; got != want {
		t.Errorf("VideoKey = %q, want %q", got, want)
	}
	if got, want := FrameKey(id, 7), "frames/0b5e7a2e-9f6e-4a6e-8c3d-1f2a3b4c5d6e/frame_000007.jpg"; got != want {
		t.Errorf("FrameKey = %q, want %q", got, want)
	}

	// Same inputs, same keys: retries overwrite instead of duplicating.
	if VideoKey(id, ".mp4") != VideoKey(id, ".mp4") || FrameKey(id, 7) != FrameKey(id, 7) {
		t.Error("key derivation is not stable")
	}
}
