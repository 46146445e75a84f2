package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// TaskMessage is the queue payload. It carries identities only; all
// mutable state lives in the database so a redelivered message can
// never be stale.
type TaskMessage struct {
	VideoID uuid.UUID `json:"video_id"`
	TaskID  uuid.UUID `json:"task_id"`
}

func (m TaskMessage) Validate() error {
	if m.VideoID == uuid.Nil {
		return fmt.Errorf("%w: missing video_id", ErrMalformedMessage)
	}
	if m.TaskID == uuid.Nil {
		return fmt.Errorf("%w: missing task_id", ErrMalformedMessage)
	}
	return nil
}

// DecodeTaskMessage parses and validates a raw queue body. A failure
// here means the message should go to the dead-letter queue, not be
// retried.
func DecodeTaskMessage(body []byte) (TaskMessage, error) {
	var m TaskMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return TaskMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := m.Validate(); err != nil {
		return TaskMessage{}, err
	}
	return m, nil
}

// Disposition tells the queue layer what to do with a delivery after
// the task protocol has run.
type Disposition int

const (
	// DispositionAck removes the message permanently.
	DispositionAck Disposition = iota
	// DispositionRetry returns the message to the queue for redelivery.
	DispositionRetry
	// DispositionDeadLetter routes the message to the dead-letter queue.
	DispositionDeadLetter
)
