package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/visionpipe/video-detection-service/domain"
)

// RabbitMQQueue carries task messages between the submission side and
// the workers. The queue is durable and messages are persistent;
// delivery is at-least-once with manual acknowledgment. Malformed
// messages are rejected into a dead-letter queue instead of being
// retried.
type RabbitMQQueue struct {
	conn      *amqp.Connection
	queueName string
}

func DialRabbitMQ(url, queueName string) (*RabbitMQQueue, error) {
	var conn *amqp.Connection
	var err error
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			q := &RabbitMQQueue{conn: conn, queueName: queueName}
			if err := q.declareTopology(); err != nil {
				conn.Close()
				return nil, err
			}
			return q, nil
		}
		log.Printf("RabbitMQ not ready, retrying in 5s... (%d/5)", i+1)
		time.Sleep(5 * time.Second)
	}
	return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
}

func (q *RabbitMQQueue) declareTopology() error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	dlx := q.queueName + ".dlx"
	if err := ch.ExchangeDeclare(dlx, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}
	dlq, err := ch.QueueDeclare(q.queueName+".dlq", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(dlq.Name, "", dlx, false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue: %w", err)
	}

	_, err = ch.QueueDeclare(
		q.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-dead-letter-exchange": dlx},
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	return nil
}

func (q *RabbitMQQueue) Publish(ctx context.Context, msg domain.TaskMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal task message: %w", err)
	}

	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx,
		"", q.queueName, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish task message: %w", err)
	}
	return nil
}

// TaskHandler runs the task protocol for one delivery and reports what
// should happen to the message.
type TaskHandler func(ctx context.Context, msg domain.TaskMessage) domain.Disposition

// Consume runs one consumer loop on its own channel with prefetch 1
// and manual acks, blocking until ctx is cancelled or the channel
// closes. The handler is given at most visibility as processing time;
// an unacknowledged message is redelivered after a broker-side
// disconnect, which is the crash-recovery path.
func (q *RabbitMQQueue) Consume(ctx context.Context, tag string, visibility time.Duration, handler TaskHandler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	msgs, err := ch.Consume(
		q.queueName,
		tag,   // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("consumer channel closed")
			}
			q.handleDelivery(ctx, d, visibility, handler)
		}
	}
}

func (q *RabbitMQQueue) handleDelivery(ctx context.Context, d amqp.Delivery, visibility time.Duration, handler TaskHandler) {
	msg, err := domain.DecodeTaskMessage(d.Body)
	if err != nil {
		log.Printf("ERROR: rejecting malformed message to dead-letter: %v", err)
		if err := d.Reject(false); err != nil {
			log.Printf("ERROR: reject failed: %v", err)
		}
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, visibility)
	defer cancel()

	switch handler(taskCtx, msg) {
	case domain.DispositionAck:
		if err := d.Ack(false); err != nil {
			log.Printf("ERROR: ack failed for task %s: %v", msg.TaskID, err)
		}
	case domain.DispositionRetry:
		if err := d.Nack(false, true); err != nil {
			log.Printf("ERROR: nack failed for task %s: %v", msg.TaskID, err)
		}
	case domain.DispositionDeadLetter:
		if err := d.Reject(false); err != nil {
			log.Printf("ERROR: dead-letter reject failed for task %s: %v", msg.TaskID, err)
		}
	}
}

func (q *RabbitMQQueue) Close() error {
	return q.conn.Close()
}

// Healthy reports whether the broker connection is usable.
func (q *RabbitMQQueue) Healthy() bool {
	if q.conn == nil || q.conn.IsClosed() {
		return false
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return false
	}
	ch.Close()
	return true
}
