package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mhrncir/parlsync/internal/worker/domain"
)

// spawnPool spawns the worker goroutines for one job type.
func (w *Worker) spawnPool(ctx context.Context, jobType string, concurrency int, jobsChan <-chan *domain.JobMessage) {
	w.logger.Info("Spawning worker pool",
		slog.String("job_type", jobType),
		slog.Int("concurrency", concurrency),
	)

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, jobType, i, jobsChan)
	}
}

// workerLoop is the main processing loop for each worker goroutine. The
// message is ACKed whenever the job's fate was settled in the database;
// NACK with requeue is reserved for cases where it was not.
func (w *Worker) workerLoop(ctx context.Context, jobType string, workerNum int, jobsChan <-chan *domain.JobMessage) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%s-%d", w.workerID, jobType, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-jobsChan:
			if !ok {
				w.logger.Info("Worker goroutine stopping - jobs channel closed",
					slog.String("worker_name", workerName),
				)
				return
			}

			err := w.processJob(ctx, msg)

			channel := w.rabbitClient.GetChannel()
			if channel == nil {
				w.logger.Error("Failed to get RabbitMQ channel for ACK/NACK",
					slog.String("worker_name", workerName),
					slog.String("job_id", msg.JobID),
				)
				continue
			}

			if err != nil {
				requeue := w.shouldRequeueMessage(err)
				w.logger.Error("Job processing failed",
					slog.String("worker_name", workerName),
					slog.String("job_id", msg.JobID),
					slog.Bool("requeue", requeue),
					slog.String("error", err.Error()),
				)
				if nackErr := channel.Nack(msg.DeliveryTag, false, requeue); nackErr != nil {
					w.logger.Error("Failed to NACK message",
						slog.String("job_id", msg.JobID),
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			if ackErr := channel.Ack(msg.DeliveryTag, false); ackErr != nil {
				w.logger.Error("Failed to ACK message",
					slog.String("job_id", msg.JobID),
					slog.String("error", ackErr.Error()),
				)
			}
		}
	}
}

// shouldRequeueMessage decides the NACK requeue flag. Execution failures
// never reach here: those are settled in the database and the retry rides
// a fresh delayed publish. Only failures to settle at all requeue.
func (w *Worker) shouldRequeueMessage(err error) bool {
	if errors.Is(err, domain.ErrJobAlreadyClaimed) {
		return false
	}
	if errors.Is(err, domain.ErrJobNotFound) {
		return false
	}
	if errors.Is(err, domain.ErrInvalidPayload) {
		return false
	}

	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
