package worker

import (
	"errors"
	"fmt"
	"time"

	"github.com/vagrigoreva/moderation-be/internal/moderation/domain"
)

// MaxRetries is the number of delayed redeliveries a transiently failing
// task gets before it is dead-lettered.
const MaxRetries = 3

// retryBaseDelay is the unit of the exponential backoff: a task on its
// n-th retry waits 2^n times this long (10s, 20s, 40s).
const retryBaseDelay = 5 * time.Second

// RetryDelays returns the full backoff schedule, one delay per retry
// level. The bus declares one delay queue per entry so a long delay at
// a queue head cannot hold back a shorter one behind it.
func RetryDelays() []time.Duration {
	delays := make([]time.Duration, 0, MaxRetries)
	for next := 1; next <= MaxRetries; next++ {
		delays = append(delays, retryBaseDelay*time.Duration(1<<next))
	}
	return delays
}

// FailureKind classifies a processing failure for the retry policy
type FailureKind int

const (
	// FailureTransient may succeed on a later attempt (model or
	// infrastructure temporarily unavailable)
	FailureTransient FailureKind = iota
	// FailurePermanent cannot succeed no matter how often it is retried
	// (missing item, malformed message)
	FailurePermanent
)

// Action is the routing decision for a failed task
type Action int

const (
	// ActionRetry republishes the task to the delayed-retry channel
	ActionRetry Action = iota
	// ActionDeadLetter routes the task to the dead-letter channel
	ActionDeadLetter
)

// Decision is the retry policy's verdict for one failure
type Decision struct {
	Action Action

	// Retry fields
	NextRetryCount int
	Delay          time.Duration

	// Dead-letter fields
	Reason string
}

// Classify maps a processing error onto a failure kind. Unknown errors
// default to transient so a task is never dead-lettered before it has
// used its retry budget.
func Classify(err error) FailureKind {
	if errors.Is(err, domain.ErrItemNotFound) || errors.Is(err, domain.ErrMalformedMessage) {
		return FailurePermanent
	}
	return FailureTransient
}

// Decide is a pure function of (failure kind, current retry count). It
// never touches the bus or the store; the caller executes the routing.
func Decide(kind FailureKind, retryCount int, cause error) Decision {
	if kind == FailurePermanent {
		return Decision{
			Action: ActionDeadLetter,
			Reason: cause.Error(),
		}
	}

	if retryCount >= MaxRetries {
		return Decision{
			Action: ActionDeadLetter,
			Reason: fmt.Sprintf("exhausted retries after %d attempts: %s", retryCount, cause.Error()),
		}
	}

	next := retryCount + 1
	return Decision{
		Action:         ActionRetry,
		NextRetryCount: next,
		Delay:          retryBaseDelay * time.Duration(1<<next),
	}
}
