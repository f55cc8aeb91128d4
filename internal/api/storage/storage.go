package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/vagrigoreva/moderation-be/internal/moderation/domain"
	"github.com/vagrigoreva/moderation-be/shared/postgresql"
)

// Storage handles database operations for the API service
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(pg *postgresql.Client, logger *slog.Logger) *Storage {
	return &Storage{
		db:     pg.GetDB(),
		logger: logger,
	}
}

// CreatePending inserts a pending moderation record and returns its id,
// which becomes the task id. The record must exist before the task
// message is published so a consumer can never observe a task without a
// backing record.
func (s *Storage) CreatePending(ctx context.Context, itemID int64) (int64, error) {
	query := `
		INSERT INTO moderation_results (item_id, status)
		VALUES ($1, $2)
		RETURNING id
	`

	var taskID int64
	if err := s.db.GetContext(ctx, &taskID, query, itemID, domain.StatusPending); err != nil {
		return 0, fmt.Errorf("failed to create pending moderation record: %w", err)
	}

	s.logger.Info("Pending moderation record created",
		slog.Int64("task_id", taskID),
		slog.Int64("item_id", itemID),
	)

	return taskID, nil
}

// GetResult retrieves the moderation result record for a task
func (s *Storage) GetResult(ctx context.Context, taskID int64) (*domain.ModerationResult, error) {
	query := `
		SELECT id, item_id, status, is_violation, probability,
		       error_message, created_at, processed_at
		FROM moderation_results
		WHERE id = $1
	`

	var result domain.ModerationResult
	if err := s.db.GetContext(ctx, &result, query, taskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get moderation result: %w", err)
	}

	return &result, nil
}

// FailResult marks a pending record as failed. Used when the task could
// not be published after the pending record was created. No-op if the
// record is already terminal.
func (s *Storage) FailResult(ctx context.Context, taskID int64, errorMessage string) error {
	query := `
		UPDATE moderation_results
		SET status = $2,
		    error_message = $3,
		    processed_at = NOW()
		WHERE id = $1
		  AND status = $4
	`

	if _, err := s.db.ExecContext(ctx, query, taskID, domain.StatusFailed, errorMessage, domain.StatusPending); err != nil {
		return fmt.Errorf("failed to fail moderation result: %w", err)
	}

	return nil
}

// AdExists reports whether the referenced ad exists
func (s *Storage) AdExists(ctx context.Context, itemID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM ads WHERE id = $1)`

	var exists bool
	if err := s.db.GetContext(ctx, &exists, query, itemID); err != nil {
		return false, fmt.Errorf("failed to check ad existence: %w", err)
	}

	return exists, nil
}
