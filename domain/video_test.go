package domain

import "testing"

func TestVideoStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to VideoStatus
		ok       bool
	}{
		{VideoStatusUploaded, VideoStatusQueued, true},
		{VideoStatusQueued, VideoStatusProcessing, true},
		{VideoStatusProcessing, VideoStatusProcessing, true}, // retry re-entry
		{VideoStatusProcessing, VideoStatusCompleted, true},
		{VideoStatusProcessing, VideoStatusFailed, true},
		{VideoStatusQueued, VideoStatusFailed, true},

		{VideoStatusUploaded, VideoStatusProcessing, false},
		{VideoStatusUploaded, VideoStatusCompleted, false},
		{VideoStatusQueued, VideoStatusCompleted, false},
		{VideoStatusCompleted, VideoStatusProcessing, false},
		{VideoStatusCompleted, VideoStatusFailed, false},
		{VideoStatusFailed, VideoStatusProcessing, false},
		{VideoStatusFailed, VideoStatusQueued, false},
		{VideoStatusCompleted, VideoStatusQueued, false},
	}

	for _, tc := range cases {
		if got := tc.to.CanTransitionFrom(tc.from); got != tc.ok {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestVideoStatusTerminal(t *testing.T) {
	terminal := map[VideoStatus]bool{
		VideoStatusUploaded:   false,
		VideoStatusQueued:     false,
		VideoStatusProcessing: false,
		VideoStatusCompleted:  true,
		VideoStatusFailed:     true,
	}
	for s, want := range terminal {
		if got := s.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, got, want)
		}
	}
}

func TestTaskStatusClaimable(t *testing.T) {
	claimable := map[TaskStatus]bool{
		TaskStatusPending:   true,
		TaskStatusFailed:    true,
		TaskStatusRunning:   false,
		TaskStatusSucceeded: false,
	}
	for s, want := range claimable {
		if got := s.Claimable(); got != want {
			t.Errorf("%s.Claimable() = %v, want %v", s, got, want)
		}
	}
}
