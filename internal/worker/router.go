package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vagrigoreva/moderation-be/internal/moderation/domain"
	"github.com/vagrigoreva/moderation-be/shared/rabbitmq"
)

// BusRouter routes failed tasks through the RabbitMQ retry and
// dead-letter channels
type BusRouter struct {
	client               *rabbitmq.Client
	deadLetterRoutingKey string
}

// NewBusRouter creates a router over the given bus client
func NewBusRouter(client *rabbitmq.Client, deadLetterRoutingKey string) *BusRouter {
	return &BusRouter{
		client:               client,
		deadLetterRoutingKey: deadLetterRoutingKey,
	}
}

// PublishRetry publishes the task to the delayed-retry queue; the broker
// redelivers it to the task queue once the delay expires
func (r *BusRouter) PublishRetry(ctx context.Context, msg domain.TaskMessage, delay time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode retry message: %w", err)
	}

	return r.client.PublishDelayed(ctx, body, delay)
}

// PublishDeadLetter publishes the envelope to the dead-letter queue
func (r *BusRouter) PublishDeadLetter(ctx context.Context, env domain.DeadLetterEnvelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode dead letter envelope: %w", err)
	}

	return r.client.Publish(ctx, r.deadLetterRoutingKey, body)
}
