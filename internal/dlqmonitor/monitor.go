package dlqmonitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vagrigoreva/moderation-be/internal/moderation/domain"
)

// ErrEnvelopeNotFound is returned when no retained envelope matches the
// requested task.
var ErrEnvelopeNotFound = errors.New("no dead-letter envelope for task")

// TaskPublisher republishes a task to the main task channel
type TaskPublisher interface {
	PublishTask(ctx context.Context, msg domain.TaskMessage) error
}

// Config holds DLQ monitor configuration
type Config struct {
	Logger      *slog.Logger
	Publisher   TaskPublisher
	HistorySize int
}

// Monitor tails the dead-letter queue and keeps the most recent
// envelopes for inspection. It has no effect on the main pipeline:
// replay happens only on an explicit call, never automatically.
type Monitor struct {
	logger      *slog.Logger
	publisher   TaskPublisher
	historySize int

	mu      sync.Mutex
	history []domain.DeadLetterEnvelope
	seen    int
}

// NewMonitor creates a new DLQ monitor
func NewMonitor(cfg *Config) *Monitor {
	historySize := cfg.HistorySize
	if historySize <= 0 {
		historySize = 100
	}

	return &Monitor{
		logger:      cfg.Logger,
		publisher:   cfg.Publisher,
		historySize: historySize,
	}
}

// Run consumes the dead-letter delivery channel until ctx is canceled
// or the channel closes
func (m *Monitor) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	m.logger.Info("DLQ monitor started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("DLQ monitor stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				m.logger.Warn("DLQ delivery channel closed")
				return
			}

			m.handleDelivery(delivery)
		}
	}
}

func (m *Monitor) handleDelivery(delivery amqp.Delivery) {
	var env domain.DeadLetterEnvelope
	if err := json.Unmarshal(delivery.Body, &env); err != nil {
		m.logger.Error("Failed to parse dead-letter envelope",
			slog.String("error", err.Error()),
			slog.String("body", string(delivery.Body)),
		)
		if ackErr := delivery.Ack(false); ackErr != nil {
			m.logger.Error("Failed to ACK unparseable envelope",
				slog.String("error", ackErr.Error()),
			)
		}
		return
	}

	m.record(env)

	m.logger.Warn("Dead-lettered task observed",
		slog.Int64("task_id", env.OriginalMessage.TaskID),
		slog.Int64("item_id", env.OriginalMessage.ItemID),
		slog.Int("retry_count_at_failure", env.RetryCountAtFailure),
		slog.String("failure_reason", env.FailureReason),
		slog.Time("dead_lettered_at", env.DeadLetteredAt),
	)

	if ackErr := delivery.Ack(false); ackErr != nil {
		m.logger.Error("Failed to ACK dead-letter envelope",
			slog.String("error", ackErr.Error()),
		)
	}
}

// record appends the envelope to the bounded in-memory history
func (m *Monitor) record(env domain.DeadLetterEnvelope) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seen++
	m.history = append(m.history, env)
	if len(m.history) > m.historySize {
		m.history = m.history[len(m.history)-m.historySize:]
	}
}

// History returns a copy of the retained envelopes, oldest first
func (m *Monitor) History() []domain.DeadLetterEnvelope {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.DeadLetterEnvelope, len(m.history))
	copy(out, m.history)
	return out
}

// Seen returns the total number of envelopes observed since start
func (m *Monitor) Seen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen
}

// ReplayTask replays the most recently retained envelope for the given
// task id.
func (m *Monitor) ReplayTask(ctx context.Context, taskID int64) error {
	m.mu.Lock()
	var env domain.DeadLetterEnvelope
	found := false
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].OriginalMessage.TaskID == taskID {
			env = m.history[i]
			found = true
			break
		}
	}
	m.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: task_id=%d", ErrEnvelopeNotFound, taskID)
	}

	return m.Replay(ctx, env)
}

// Replay republishes the envelope's original task with its retry budget
// reset. Only ever triggered explicitly by an operator.
func (m *Monitor) Replay(ctx context.Context, env domain.DeadLetterEnvelope) error {
	if env.OriginalMessage.TaskID == 0 {
		return fmt.Errorf("cannot replay envelope without an original task")
	}

	msg := env.OriginalMessage
	msg.RetryCount = 0
	msg.EnqueuedAt = time.Now().UTC()

	if err := m.publisher.PublishTask(ctx, msg); err != nil {
		return fmt.Errorf("failed to replay task %d: %w", msg.TaskID, err)
	}

	m.logger.Info("Dead-lettered task replayed",
		slog.Int64("task_id", msg.TaskID),
		slog.Int64("item_id", msg.ItemID),
	)

	return nil
}
