package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vagrigoreva/moderation-be/internal/moderation/domain"
	"github.com/vagrigoreva/moderation-be/shared/rabbitmq"
)

// Publisher publishes task messages to the main task channel. Used by
// the intake boundary and by DLQ replay.
type Publisher struct {
	client         *rabbitmq.Client
	taskRoutingKey string
	logger         *slog.Logger
}

// NewPublisher creates a task publisher over the given bus client
func NewPublisher(client *rabbitmq.Client, taskRoutingKey string, logger *slog.Logger) *Publisher {
	return &Publisher{
		client:         client,
		taskRoutingKey: taskRoutingKey,
		logger:         logger,
	}
}

// PublishTask publishes the task message with publish-side retries
func (p *Publisher) PublishTask(ctx context.Context, msg domain.TaskMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode task message: %w", err)
	}

	if err := p.client.PublishWithRetry(ctx, p.taskRoutingKey, body); err != nil {
		return err
	}

	p.logger.Info("Task published",
		slog.Int64("task_id", msg.TaskID),
		slog.Int64("item_id", msg.ItemID),
		slog.Int("retry_count", msg.RetryCount),
	)

	return nil
}
