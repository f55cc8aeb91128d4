package domain

import "errors"

var (
	// ErrItemNotFound is returned when the referenced ad does not exist.
	// Retrying cannot make it appear, so it is a permanent failure.
	ErrItemNotFound = errors.New("item not found")

	// ErrTaskNotFound is returned when no result record exists for a task id
	ErrTaskNotFound = errors.New("moderation task not found")

	// ErrModelUnavailable is returned when the model cannot serve a
	// prediction right now. Transient.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrMalformedMessage is returned when a consumed message does not
	// decode into a task. Permanent.
	ErrMalformedMessage = errors.New("malformed task message")
)

// TransientError wraps infrastructure failures (store or bus unreachable,
// model temporarily down) that should trigger a delayed retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as retryable.
func NewTransientError(err error) error {
	return &TransientError{Err: err}
}

// IsTransient reports whether err should be retried rather than
// dead-lettered outright.
func IsTransient(err error) bool {
	if errors.Is(err, ErrModelUnavailable) {
		return true
	}
	var te *TransientError
	return errors.As(err, &te)
}
