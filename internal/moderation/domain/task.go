package domain

import "time"

// TaskMessage is the unit of moderation work published to the task queue.
// Immutable once published except RetryCount, which grows by exactly one
// per requeue. TaskID is the idempotency key for all downstream processing.
type TaskMessage struct {
	TaskID     int64     `json:"task_id"`
	ItemID     int64     `json:"item_id"`
	EnqueuedAt time.Time `json:"timestamp"`
	RetryCount int       `json:"retry_count"`
}

// DeadLetterEnvelope wraps a task that could not be completed, for the
// dead-letter queue and the DLQ monitor.
type DeadLetterEnvelope struct {
	OriginalMessage     TaskMessage `json:"original_message"`
	FailureReason       string      `json:"failure_reason"`
	RetryCountAtFailure int         `json:"retry_count_at_failure"`
	DeadLetteredAt      time.Time   `json:"dead_lettered_at"`
}
