package handler

import (
	"context"
	"log/slog"

	"github.com/vagrigoreva/moderation-be/internal/cache"
	"github.com/vagrigoreva/moderation-be/internal/moderation/domain"
)

// ModerationStore is the data-access boundary of the intake layer
type ModerationStore interface {
	CreatePending(ctx context.Context, itemID int64) (int64, error)
	GetResult(ctx context.Context, taskID int64) (*domain.ModerationResult, error)
	FailResult(ctx context.Context, taskID int64, errorMessage string) error
	AdExists(ctx context.Context, itemID int64) (bool, error)
}

// TaskPublisher publishes a task message to the task channel
type TaskPublisher interface {
	PublishTask(ctx context.Context, msg domain.TaskMessage) error
}

// SnapshotCache is the read-through cache the handlers consult before
// hitting the model or the store
type SnapshotCache interface {
	Get(ctx context.Context, fingerprint string) (domain.Prediction, bool)
	Set(ctx context.Context, fingerprint string, pred domain.Prediction)
	GetLookup(ctx context.Context, taskID int64) (cache.LookupSnapshot, bool)
	SetLookup(ctx context.Context, snap cache.LookupSnapshot)
}

// Predictor scores an ad
type Predictor interface {
	Predict(ad *domain.Ad) (domain.Prediction, error)
}

// HealthChecker reports whether a backing dependency is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Storage   ModerationStore
	Publisher TaskPublisher
	Cache     SnapshotCache
	Model     Predictor
	DB        HealthChecker
}

// ModerationHandler handles moderation HTTP requests
type ModerationHandler struct {
	logger    *slog.Logger
	storage   ModerationStore
	publisher TaskPublisher
	cache     SnapshotCache
	model     Predictor
}

// NewModerationHandler creates a new ModerationHandler instance
func NewModerationHandler(deps *Dependencies) *ModerationHandler {
	return &ModerationHandler{
		logger:    deps.Logger,
		storage:   deps.Storage,
		publisher: deps.Publisher,
		cache:     deps.Cache,
		model:     deps.Model,
	}
}
