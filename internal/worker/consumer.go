package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mhrncir/parlsync/internal/worker/domain"
)

// startConsumer begins consuming one job type queue and returns a channel
// of validated job messages fed by a dispatcher goroutine.
func (w *Worker) startConsumer(ctx context.Context, jobType string) (<-chan *domain.JobMessage, error) {
	consumerTag := fmt.Sprintf("%s-%s", w.workerID, jobType)

	deliveries, err := w.rabbitClient.Consume(jobType, consumerTag)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", consumerTag),
		slog.String("queue", jobType),
	)

	jobsChan := make(chan *domain.JobMessage)

	w.wg.Add(1)
	go w.dispatchMessages(ctx, jobType, deliveries, jobsChan)

	return jobsChan, nil
}

// dispatchMessages parses raw deliveries and forwards valid job messages
// to the pool. Malformed messages are NACKed without requeue.
func (w *Worker) dispatchMessages(ctx context.Context, jobType string, deliveries <-chan amqp.Delivery, jobsChan chan<- *domain.JobMessage) {
	defer w.wg.Done()
	defer close(jobsChan)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled",
				slog.String("queue", jobType),
			)
			return

		case <-w.stopChan:
			w.logger.Info("Message dispatcher stopped - worker stopping",
				slog.String("queue", jobType),
			)
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed",
					slog.String("queue", jobType),
				)
				return
			}

			var msg domain.JobMessage
			if err := json.Unmarshal(delivery.Body, &msg); err != nil {
				w.logger.Error("Failed to parse message JSON",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				w.nack(delivery, false)
				continue
			}

			if _, err := uuid.Parse(msg.JobID); err != nil {
				w.logger.Error("Invalid job_id format - not a UUID",
					slog.String("job_id", msg.JobID),
					slog.String("error", err.Error()),
				)
				w.nack(delivery, false)
				continue
			}

			msg.DeliveryTag = delivery.DeliveryTag

			select {
			case jobsChan <- &msg:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("job_id", msg.JobID),
					slog.String("queue", jobType),
				)
			case <-ctx.Done():
				// requeue so the message survives shutdown
				w.nack(delivery, true)
				return
			}
		}
	}
}

func (w *Worker) nack(delivery amqp.Delivery, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		w.logger.Error("Failed to NACK message",
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
			slog.String("error", err.Error()),
		)
	}
}
