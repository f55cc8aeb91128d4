package domain

import (
	"database/sql"
	"time"
)

// Moderation result status constants
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ModerationResult is one row of the result store, keyed by task id.
// Once status reaches completed or failed the row is immutable.
type ModerationResult struct {
	ID           int64           `db:"id"`
	ItemID       int64           `db:"item_id"`
	Status       string          `db:"status"`
	IsViolation  sql.NullBool    `db:"is_violation"`
	Probability  sql.NullFloat64 `db:"probability"`
	ErrorMessage sql.NullString  `db:"error_message"`
	CreatedAt    time.Time       `db:"created_at"`
	ProcessedAt  sql.NullTime    `db:"processed_at"`
}

// IsTerminal reports whether the record has reached a final state.
func (r *ModerationResult) IsTerminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Prediction is the model output stored on completion and cached by
// fingerprint.
type Prediction struct {
	IsViolation bool    `json:"is_violation"`
	Probability float64 `json:"probability"`
}
