package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vagrigoreva/moderation-be/internal/moderation/domain"
	"github.com/vagrigoreva/moderation-be/shared/redis"
)

const (
	predictionKeyPrefix = "prediction:fp"
	lookupKeyPrefix     = "prediction:task"
)

// PredictionCache is a read-through Redis cache mapping a content
// fingerprint to a prior prediction. It is an optimization only: every
// method degrades to a miss or a no-op on infrastructure failure, and
// correctness of the result store never depends on it.
type PredictionCache struct {
	client        *redis.Client
	logger        *slog.Logger
	predictionTTL time.Duration
	lookupTTL     time.Duration
}

// Config holds cache TTLs
type Config struct {
	PredictionTTL time.Duration
	LookupTTL     time.Duration
}

// NewPredictionCache creates a prediction cache over the given Redis client
func NewPredictionCache(client *redis.Client, cfg *Config, logger *slog.Logger) *PredictionCache {
	predictionTTL := cfg.PredictionTTL
	if predictionTTL <= 0 {
		predictionTTL = 15 * time.Minute
	}

	lookupTTL := cfg.LookupTTL
	if lookupTTL <= 0 {
		lookupTTL = 5 * time.Minute
	}

	return &PredictionCache{
		client:        client,
		logger:        logger,
		predictionTTL: predictionTTL,
		lookupTTL:     lookupTTL,
	}
}

func predictionKey(fingerprint string) string {
	return fmt.Sprintf("%s:%s", predictionKeyPrefix, fingerprint)
}

func lookupKey(taskID int64) string {
	return fmt.Sprintf("%s:%d", lookupKeyPrefix, taskID)
}

// Get returns a cached prediction for the fingerprint, or ok=false on a
// miss or any cache failure.
func (c *PredictionCache) Get(ctx context.Context, fingerprint string) (domain.Prediction, bool) {
	raw, err := c.client.GetClient().Get(ctx, predictionKey(fingerprint)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.logger.Warn("Failed to read prediction cache",
				slog.String("fingerprint", fingerprint),
				slog.Any("error", err),
			)
		}
		return domain.Prediction{}, false
	}

	var pred domain.Prediction
	if err := json.Unmarshal(raw, &pred); err != nil {
		c.logger.Warn("Failed to decode cached prediction",
			slog.String("fingerprint", fingerprint),
			slog.Any("error", err),
		)
		return domain.Prediction{}, false
	}

	return pred, true
}

// Set stores a prediction under the fingerprint, best-effort. Last write
// wins: concurrent writers compute identical predictions for the same
// fingerprint, so the race is harmless.
func (c *PredictionCache) Set(ctx context.Context, fingerprint string, pred domain.Prediction) {
	payload, err := json.Marshal(pred)
	if err != nil {
		c.logger.Warn("Failed to encode prediction for cache",
			slog.String("fingerprint", fingerprint),
			slog.Any("error", err),
		)
		return
	}

	if err := c.client.GetClient().Set(ctx, predictionKey(fingerprint), payload, c.predictionTTL).Err(); err != nil {
		c.logger.Warn("Failed to write prediction cache",
			slog.String("fingerprint", fingerprint),
			slog.Any("error", err),
		)
	}
}

// LookupSnapshot is a cached terminal moderation result for the lookup
// endpoint.
type LookupSnapshot struct {
	TaskID       int64    `json:"task_id"`
	Status       string   `json:"status"`
	IsViolation  *bool    `json:"is_violation,omitempty"`
	Probability  *float64 `json:"probability,omitempty"`
	ErrorMessage *string  `json:"error_message,omitempty"`
}

// GetLookup returns a cached lookup snapshot for the task, or ok=false.
func (c *PredictionCache) GetLookup(ctx context.Context, taskID int64) (LookupSnapshot, bool) {
	raw, err := c.client.GetClient().Get(ctx, lookupKey(taskID)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.logger.Warn("Failed to read lookup cache",
				slog.Int64("task_id", taskID),
				slog.Any("error", err),
			)
		}
		return LookupSnapshot{}, false
	}

	var snap LookupSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		c.logger.Warn("Failed to decode cached lookup snapshot",
			slog.Int64("task_id", taskID),
			slog.Any("error", err),
		)
		return LookupSnapshot{}, false
	}

	return snap, true
}

// SetLookup caches a lookup snapshot, best-effort. Only terminal
// snapshots are cached: a pending snapshot cached here could be served
// after the task completes.
func (c *PredictionCache) SetLookup(ctx context.Context, snap LookupSnapshot) {
	if snap.Status != domain.StatusCompleted && snap.Status != domain.StatusFailed {
		return
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		c.logger.Warn("Failed to encode lookup snapshot for cache",
			slog.Int64("task_id", snap.TaskID),
			slog.Any("error", err),
		)
		return
	}

	if err := c.client.GetClient().Set(ctx, lookupKey(snap.TaskID), payload, c.lookupTTL).Err(); err != nil {
		c.logger.Warn("Failed to write lookup cache",
			slog.Int64("task_id", snap.TaskID),
			slog.Any("error", err),
		)
	}
}
