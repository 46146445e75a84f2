package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by repositories when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIllegalTransition is returned when a status write would violate
	// the state machine (for example COMPLETED -> RUNNING).
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrDuplicateDelivery is returned by Claim when the task is already
	// RUNNING or finished; the delivery should be acknowledged without
	// reprocessing.
	ErrDuplicateDelivery = errors.New("task already claimed")

	// ErrAttemptsExhausted is returned by Claim when the attempt budget
	// is spent; the worker must fail the video permanently.
	ErrAttemptsExhausted = errors.New("task attempts exhausted")

	// ErrMalformedMessage marks a queue payload that cannot be decoded
	// or fails validation.
	ErrMalformedMessage = errors.New("malformed task message")
)

// ValidationError rejects an upload synchronously. No pipeline state
// is created when it is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid upload: %s", e.Reason)
}

// RetrievalError means the raw video or a frame could not be read from
// the object store. Retryable.
type RetrievalError struct {
	Key string
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve %q: %v", e.Key, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// DetectionError means the detector invocation failed. Retryable.
type DetectionError struct {
	FrameIndex int
	Err        error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detect frame %d: %v", e.FrameIndex, e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

// PersistenceError means a state store or object store write failed
// mid-frame. Retryable; the retry relies on deterministic frame
// re-derivation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ExhaustedRetriesError is terminal: the video is marked FAILED and the
// message acknowledged so the queue stops redelivering it.
type ExhaustedRetriesError struct {
	Attempts int
	LastErr  string
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("exhausted %d attempts: %s", e.Attempts, e.LastErr)
}
