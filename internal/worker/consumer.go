package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vagrigoreva/moderation-be/internal/moderation/domain"
)

// setupConsumer configures QoS and returns the delivery channel for the
// task queue
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	if err := w.rabbitClient.SetQos(w.prefetchCount); err != nil {
		return nil, err
	}

	w.logger.Info("RabbitMQ QoS configured",
		slog.Int("prefetch_count", w.prefetchCount),
	)

	deliveries, err := w.rabbitClient.Consume(w.taskQueue, w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.String("queue", w.taskQueue),
	)

	return deliveries, nil
}

// startMessageDispatcher listens to RabbitMQ deliveries and dispatches
// decoded tasks to the worker pool. Blocks until ctx is canceled or the
// delivery channel closes.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			var msg domain.TaskMessage
			if err := json.Unmarshal(delivery.Body, &msg); err != nil {
				w.handleMalformedDelivery(ctx, delivery, err)
				continue
			}

			if msg.TaskID <= 0 || msg.ItemID <= 0 {
				w.handleMalformedDelivery(ctx, delivery,
					fmt.Errorf("%w: task_id=%d item_id=%d", domain.ErrMalformedMessage, msg.TaskID, msg.ItemID))
				continue
			}

			taskMsg := &taskDelivery{
				msg:         msg,
				deliveryTag: delivery.DeliveryTag,
			}

			select {
			case w.tasksChan <- taskMsg:
				w.logger.Debug("Task dispatched to worker pool",
					slog.Int64("task_id", msg.TaskID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching task")
				// NACK the message so it can be reprocessed
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}

// handleMalformedDelivery dead-letters a message that does not decode
// into a task. Malformed schema is a permanent failure: no retry can fix
// the bytes.
func (w *Worker) handleMalformedDelivery(ctx context.Context, delivery amqp.Delivery, cause error) {
	w.logger.Error("Failed to parse task message",
		slog.String("error", cause.Error()),
		slog.String("body", string(delivery.Body)),
	)

	env := domain.DeadLetterEnvelope{
		FailureReason:  fmt.Sprintf("malformed task message: %s", cause.Error()),
		DeadLetteredAt: time.Now().UTC(),
	}

	if err := w.processor.router.PublishDeadLetter(ctx, env); err != nil {
		w.logger.Error("Failed to dead-letter malformed message, requeueing",
			slog.String("error", err.Error()),
		)
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			w.logger.Error("Failed to NACK malformed message",
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	if ackErr := delivery.Ack(false); ackErr != nil {
		w.logger.Error("Failed to ACK malformed message",
			slog.String("error", ackErr.Error()),
		)
	}
}
