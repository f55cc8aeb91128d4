package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vagrigoreva/moderation-be/internal/cache"
	"github.com/vagrigoreva/moderation-be/internal/moderation/domain"
)

// ResultStore is the durable record of each task's lifecycle state.
// Complete and Fail must be conditional on the record still being
// pending, so a redelivered message can never overwrite a terminal row.
type ResultStore interface {
	GetResult(ctx context.Context, taskID int64) (*domain.ModerationResult, error)
	CompleteResult(ctx context.Context, taskID int64, pred domain.Prediction) error
	FailResult(ctx context.Context, taskID int64, errorMessage string) error
}

// AdStore loads the ad a task references
type AdStore interface {
	GetAd(ctx context.Context, itemID int64) (*domain.Ad, error)
}

// PredictionCache maps a content fingerprint to a prior prediction
type PredictionCache interface {
	Get(ctx context.Context, fingerprint string) (domain.Prediction, bool)
	Set(ctx context.Context, fingerprint string, pred domain.Prediction)
}

// Predictor scores an ad. The implementation is an immutable handle
// shared read-only across all workers.
type Predictor interface {
	Predict(ad *domain.Ad) (domain.Prediction, error)
}

// TaskRouter republishes failed tasks to the delayed-retry or
// dead-letter channel
type TaskRouter interface {
	PublishRetry(ctx context.Context, msg domain.TaskMessage, delay time.Duration) error
	PublishDeadLetter(ctx context.Context, env domain.DeadLetterEnvelope) error
}

// Processor runs the per-task state machine: idempotent short-circuit,
// cache lookup, model invocation, result persistence, failure routing.
type Processor struct {
	store  ResultStore
	ads    AdStore
	cache  PredictionCache
	model  Predictor
	router TaskRouter
	logger *slog.Logger
	now    func() time.Time
}

// NewProcessor creates a processor over the given collaborators
func NewProcessor(store ResultStore, ads AdStore, predCache PredictionCache, model Predictor, router TaskRouter, logger *slog.Logger) *Processor {
	return &Processor{
		store:  store,
		ads:    ads,
		cache:  predCache,
		model:  model,
		router: router,
		logger: logger,
		now:    time.Now,
	}
}

// Process handles one delivered task to a terminal outcome. Every domain
// failure is classified and converted into a routing decision; a non-nil
// return means the routing itself could not be executed and the delivery
// must be redelivered by the bus.
func (p *Processor) Process(ctx context.Context, msg domain.TaskMessage) error {
	if err := p.process(ctx, msg); err != nil {
		return p.routeFailure(ctx, msg, err)
	}
	return nil
}

func (p *Processor) process(ctx context.Context, msg domain.TaskMessage) error {
	// Idempotent short-circuit: at-least-once delivery means this task
	// may already have been processed by another worker instance.
	result, err := p.store.GetResult(ctx, msg.TaskID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			// Pending rows are written before the task is published, so
			// a missing row cannot appear on retry either.
			return fmt.Errorf("%w: no result record for task %d", domain.ErrMalformedMessage, msg.TaskID)
		}
		return domain.NewTransientError(fmt.Errorf("failed to load result record: %w", err))
	}

	if result.IsTerminal() {
		p.logger.Info("Task already in terminal state, discarding duplicate delivery",
			slog.Int64("task_id", msg.TaskID),
			slog.String("status", result.Status),
		)
		return nil
	}

	ad, err := p.ads.GetAd(ctx, msg.ItemID)
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			return fmt.Errorf("%w: item_id=%d", domain.ErrItemNotFound, msg.ItemID)
		}
		return domain.NewTransientError(fmt.Errorf("failed to load ad: %w", err))
	}

	fingerprint := cache.Fingerprint(ad)

	pred, hit := p.cache.Get(ctx, fingerprint)
	if hit {
		p.logger.Debug("Prediction cache hit",
			slog.Int64("task_id", msg.TaskID),
			slog.String("fingerprint", fingerprint),
		)
	} else {
		pred, err = p.model.Predict(ad)
		if err != nil {
			return domain.NewTransientError(fmt.Errorf("model invocation failed: %w", err))
		}

		// Best-effort write-back: a cache failure costs recomputation,
		// never correctness.
		p.cache.Set(ctx, fingerprint, pred)
	}

	if err := p.store.CompleteResult(ctx, msg.TaskID, pred); err != nil {
		return domain.NewTransientError(fmt.Errorf("failed to persist result: %w", err))
	}

	p.logger.Info("Task completed",
		slog.Int64("task_id", msg.TaskID),
		slog.Int64("item_id", msg.ItemID),
		slog.Bool("is_violation", pred.IsViolation),
		slog.Float64("probability", pred.Probability),
		slog.Bool("cache_hit", hit),
	)

	return nil
}

// routeFailure converts a processing error into a retry or dead-letter
// publication. The original delivery is only acked after this succeeds.
func (p *Processor) routeFailure(ctx context.Context, msg domain.TaskMessage, cause error) error {
	decision := Decide(Classify(cause), msg.RetryCount, cause)

	switch decision.Action {
	case ActionRetry:
		retryMsg := msg
		retryMsg.RetryCount = decision.NextRetryCount

		if err := p.router.PublishRetry(ctx, retryMsg, decision.Delay); err != nil {
			return fmt.Errorf("failed to publish retry: %w", err)
		}

		p.logger.Warn("Task scheduled for retry",
			slog.Int64("task_id", msg.TaskID),
			slog.Int("retry_count", decision.NextRetryCount),
			slog.Duration("delay", decision.Delay),
			slog.String("cause", cause.Error()),
		)
		return nil

	default:
		// Envelope first, then the failed status. Either write can hit a
		// transient error; returning it makes the worker nack, and the
		// redelivery finds the record still pending and runs this path
		// again. A duplicate envelope is fine under at-least-once; a
		// record stuck pending after the delivery is acked would not be.
		env := domain.DeadLetterEnvelope{
			OriginalMessage:     msg,
			FailureReason:       decision.Reason,
			RetryCountAtFailure: msg.RetryCount,
			DeadLetteredAt:      p.now().UTC(),
		}

		if err := p.router.PublishDeadLetter(ctx, env); err != nil {
			return fmt.Errorf("failed to publish dead letter: %w", err)
		}

		if err := p.store.FailResult(ctx, msg.TaskID, decision.Reason); err != nil {
			return fmt.Errorf("failed to mark result as failed: %w", err)
		}

		p.logger.Error("Task dead-lettered",
			slog.Int64("task_id", msg.TaskID),
			slog.Int64("item_id", msg.ItemID),
			slog.Int("retry_count", msg.RetryCount),
			slog.String("reason", decision.Reason),
		)
		return nil
	}
}
