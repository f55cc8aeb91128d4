package worker

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vagrigoreva/moderation-be/internal/moderation/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected FailureKind
	}{
		{
			name:     "item not found is permanent",
			err:      domain.ErrItemNotFound,
			expected: FailurePermanent,
		},
		{
			name:     "wrapped item not found is permanent",
			err:      fmt.Errorf("loading ad: %w", domain.ErrItemNotFound),
			expected: FailurePermanent,
		},
		{
			name:     "malformed message is permanent",
			err:      domain.ErrMalformedMessage,
			expected: FailurePermanent,
		},
		{
			name:     "model unavailable is transient",
			err:      domain.ErrModelUnavailable,
			expected: FailureTransient,
		},
		{
			name:     "infrastructure error is transient",
			err:      domain.NewTransientError(errors.New("connection refused")),
			expected: FailureTransient,
		},
		{
			name:     "unknown error defaults to transient",
			err:      errors.New("something odd"),
			expected: FailureTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestDecide_TransientBackoff(t *testing.T) {
	cause := errors.New("store unreachable")

	tests := []struct {
		retryCount    int
		wantNextCount int
		wantDelay     time.Duration
	}{
		{retryCount: 0, wantNextCount: 1, wantDelay: 10 * time.Second},
		{retryCount: 1, wantNextCount: 2, wantDelay: 20 * time.Second},
		{retryCount: 2, wantNextCount: 3, wantDelay: 40 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("retry_count=%d", tt.retryCount), func(t *testing.T) {
			d := Decide(FailureTransient, tt.retryCount, cause)

			assert.Equal(t, ActionRetry, d.Action)
			assert.Equal(t, tt.wantNextCount, d.NextRetryCount)
			assert.Equal(t, tt.wantDelay, d.Delay)
		})
	}
}

func TestRetryDelays_MatchesDecideSchedule(t *testing.T) {
	delays := RetryDelays()
	require.Len(t, delays, MaxRetries)

	// The bus topology is built from this schedule; every delay Decide
	// can hand out must have a dedicated delay queue.
	for retryCount, want := range delays {
		d := Decide(FailureTransient, retryCount, errors.New("down"))
		assert.Equal(t, want, d.Delay)
	}

	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second}, delays)
}

func TestDecide_TransientExhausted(t *testing.T) {
	d := Decide(FailureTransient, MaxRetries, errors.New("still down"))

	assert.Equal(t, ActionDeadLetter, d.Action)
	assert.Contains(t, d.Reason, "exhausted retries")
	assert.Contains(t, d.Reason, "still down")
}

func TestDecide_PermanentSkipsRetries(t *testing.T) {
	// Permanent failures never retry regardless of remaining budget
	for _, retryCount := range []int{0, 1, MaxRetries} {
		d := Decide(FailurePermanent, retryCount, domain.ErrItemNotFound)

		assert.Equal(t, ActionDeadLetter, d.Action)
		assert.Equal(t, domain.ErrItemNotFound.Error(), d.Reason)
	}
}
