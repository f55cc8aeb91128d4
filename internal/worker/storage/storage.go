package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/vagrigoreva/moderation-be/internal/moderation/domain"
)

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
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

// CompleteResult transitions a pending record to completed. The status
// guard makes the terminal-state check atomic with the write: for a
// record that is already terminal this is a no-op, so two workers racing
// on a redelivered task cannot both write.
func (s *Storage) CompleteResult(ctx context.Context, taskID int64, pred domain.Prediction) error {
	query := `
		UPDATE moderation_results
		SET status = $2,
		    is_violation = $3,
		    probability = $4,
		    processed_at = NOW()
		WHERE id = $1
		  AND status = $5
	`

	result, err := s.db.ExecContext(ctx, query, taskID, domain.StatusCompleted, pred.IsViolation, pred.Probability, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to complete moderation result: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Complete was a no-op - record already terminal",
			slog.Int64("task_id", taskID),
		)
		return nil
	}

	s.logger.Info("Moderation result completed",
		slog.Int64("task_id", taskID),
		slog.Bool("is_violation", pred.IsViolation),
	)

	return nil
}

// FailResult transitions a pending record to failed with the given
// error message. No-op if the record is already terminal.
func (s *Storage) FailResult(ctx context.Context, taskID int64, errorMessage string) error {
	query := `
		UPDATE moderation_results
		SET status = $2,
		    error_message = $3,
		    processed_at = NOW()
		WHERE id = $1
		  AND status = $4
	`

	result, err := s.db.ExecContext(ctx, query, taskID, domain.StatusFailed, errorMessage, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to fail moderation result: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Fail was a no-op - record already terminal",
			slog.Int64("task_id", taskID),
		)
		return nil
	}

	s.logger.Info("Moderation result failed",
		slog.Int64("task_id", taskID),
		slog.String("error_message", errorMessage),
	)

	return nil
}

// GetAd loads the ad a task references, joined with the seller's
// verification flag
func (s *Storage) GetAd(ctx context.Context, itemID int64) (*domain.Ad, error) {
	query := `
		SELECT a.id AS item_id,
		       a.seller_id,
		       s.is_verified AS seller_is_verified,
		       a.name,
		       a.description,
		       a.category,
		       a.images_qty
		FROM ads a
		JOIN sellers s ON a.seller_id = s.id
		WHERE a.id = $1
	`

	var ad domain.Ad
	if err := s.db.GetContext(ctx, &ad, query, itemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get ad: %w", err)
	}

	return &ad, nil
}
