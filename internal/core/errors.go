package core

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Category classifies an EngineError for retry/propagation policy, per spec §7.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryTransient
	CategoryFilesystem
	CategoryConfiguration
	CategoryDependency
	CategoryTimeout
	CategoryIntegrity
	CategoryWorkerPanic
	CategorySecurity
)

func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryFilesystem:
		return "filesystem"
	case CategoryConfiguration:
		return "configuration"
	case CategoryDependency:
		return "dependency"
	case CategoryTimeout:
		return "timeout"
	case CategoryIntegrity:
		return "integrity"
	case CategoryWorkerPanic:
		return "worker_panic"
	case CategorySecurity:
		return "security"
	}
	return "unknown"
}

// EngineError is the taxonomy every error surfaced above the package boundary is wrapped into:
// a category driving retry/propagation policy, the operation attempted, when, an optional
// cause chain (via github.com/pkg/errors), and zero or more human-readable suggestions.
type EngineError struct {
	Category    Category
	Op          string
	Timestamp   time.Time
	Suggestions []string
	cause       error
}

func (e *EngineError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Category, e.Op)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Cause exposes the wrapped error for github.com/pkg/errors.Cause/Unwrap chains.
func (e *EngineError) Cause() error { return e.cause }

// Unwrap supports errors.Is/As from the standard library as well.
func (e *EngineError) Unwrap() error { return e.cause }

// NewEngineError builds a categorized error, wrapping cause if non-nil.
func NewEngineError(category Category, op string, cause error, suggestions ...string) *EngineError {
	return &EngineError{
		Category:    category,
		Op:          op,
		Timestamp:   time.Now(),
		Suggestions: suggestions,
		cause:       cause,
	}
}

// Retryable reports whether this category is ever eligible for automatic retry. Filesystem
// Interrupted and Timeout (tool opt-in) retries are handled by their callers, not here, since
// those callers know the finer-grained reason.
func (e *EngineError) Retryable() bool {
	switch e.Category {
	case CategoryTransient:
		return true
	default:
		return false
	}
}

// WorkerPanic wraps a recovered panic from inside a Tool's Execute, isolating it to that tool
// (spec §9: "Exceptions/panics for control flow inside tools" is sandboxed by the scheduler).
func WorkerPanic(toolName string, recovered interface{}) *EngineError {
	return NewEngineError(CategoryWorkerPanic, "execute:"+toolName,
		errors.Errorf("panic: %v", recovered))
}

// TimeoutError reports a tool or pipeline exceeding its deadline.
func TimeoutError(op string, d time.Duration) *EngineError {
	return NewEngineError(CategoryTimeout, op, errors.Errorf("exceeded timeout of %s", d))
}

// RetryPolicy configures exponential backoff: delay between attempt i and i+1 is
// min(Initial*Multiplier^i, Max), and is never less than the previous delay (P9).
type RetryPolicy struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
	Attempts   int
}

// DefaultRetryPolicy matches SPEC_FULL.md's Design Notes Resolution: 50ms initial, 2x
// multiplier, 5s cap, 5 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Initial: 50 * time.Millisecond, Multiplier: 2.0, Max: 5 * time.Second, Attempts: 5}
}

// DelayFor returns the backoff delay before the given attempt (0-indexed: the delay to wait
// after attempt 0 fails, before attempt 1).
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	d := float64(p.Initial)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
		if time.Duration(d) >= p.Max {
			return p.Max
		}
	}
	result := time.Duration(d)
	if result > p.Max {
		return p.Max
	}
	return result
}

// Retry runs fn up to p.Attempts times, sleeping DelayFor(attempt) between failures, and
// returns the last error if all attempts are exhausted. fn's error is only retried when
// isRetryable returns true for it; a non-retryable error returns immediately.
func Retry(p RetryPolicy, isRetryable func(error) bool, sleep func(time.Duration), fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if isRetryable != nil && !isRetryable(lastErr) {
			return lastErr
		}
		if attempt < p.Attempts-1 {
			sleep(p.DelayFor(attempt))
		}
	}
	return lastErr
}
