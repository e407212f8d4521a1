package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

type AMQPConfig struct {
	URL    string
	Queue  string
	Logger *slog.Logger
	// Prefetch bounds unacknowledged deliveries. Defaults to 1.
	Prefetch int
}

// AMQPQueue carries tasks over RabbitMQ so a separate worker process can run
// them. Deliveries are acknowledged only after the task ran.
type AMQPQueue struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	logger *slog.Logger
}

func NewAMQPQueue(config AMQPConfig) (*AMQPQueue, error) {
	if config.Queue == "" {
		config.Queue = "vidrag_jobs"
	}
	if config.Prefetch <= 0 {
		config.Prefetch = 1
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	conn, err := amqp.Dial(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if _, err := ch.QueueDeclare(config.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.Qos(config.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &AMQPQueue{conn: conn, ch: ch, queue: config.Queue, logger: config.Logger}, nil
}

// Dispatch publishes the task as a persistent JSON message.
func (q *AMQPQueue) Dispatch(ctx context.Context, task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Run consumes deliveries into pool until ctx ends or the channel closes.
// Malformed messages are rejected without requeue.
func (q *AMQPQueue) Run(ctx context.Context, pool *Pool) error {
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			var task Task
			if err := json.Unmarshal(d.Body, &task); err != nil || task.JobID == "" {
				q.logger.WarnContext(ctx, "dropping malformed job message", "error", err)
				d.Nack(false, false)
				continue
			}

			delivery := d
			ack := func() {
				if err := delivery.Ack(false); err != nil {
					q.logger.WarnContext(ctx, "failed to ack job message", "job_id", task.JobID, "error", err)
				}
			}
			if err := pool.DispatchWait(ctx, task, ack); err != nil {
				d.Nack(false, true)
				return nil
			}
		}
	}
}

func (q *AMQPQueue) Close() {
	if q.ch != nil {
		q.ch.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
}
