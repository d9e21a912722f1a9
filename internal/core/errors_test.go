package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyDelayNonDecreasingUpToCap(t *testing.T) {
	p := RetryPolicy{Initial: 10 * time.Millisecond, Multiplier: 2, Max: 100 * time.Millisecond, Attempts: 10}
	var prev time.Duration
	for attempt := 0; attempt < 8; attempt++ {
		d := p.DelayFor(attempt)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, p.Max)
		prev = d
	}
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	p := DefaultRetryPolicy()
	calls := 0
	err := Retry(p, func(error) bool { return false }, func(time.Duration) {}, func() error {
		calls++
		return errors.New("fatal")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	p := RetryPolicy{Initial: time.Millisecond, Multiplier: 1, Max: time.Millisecond, Attempts: 3}
	calls := 0
	err := Retry(p, func(error) bool { return true }, func(time.Duration) {}, func() error {
		calls++
		return errors.New("transient")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrySucceedsEventually(t *testing.T) {
	p := DefaultRetryPolicy()
	calls := 0
	err := Retry(p, func(error) bool { return true }, func(time.Duration) {}, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestEngineErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	ee := NewEngineError(CategoryIntegrity, "blob.get", cause, "check disk")
	assert.Equal(t, cause, ee.Unwrap())
	assert.Contains(t, ee.Error(), "integrity")
	assert.Contains(t, ee.Error(), "blob.get")
}
