package core

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ExternalCollaborator is optionally implemented by a Tool that calls out to a flaky external
// provider (a network service, a subprocess, a cloud API). Tools marked this way run through a
// per-tool circuit breaker so repeated failures trip the breaker instead of retrying against a
// provider that is clearly down.
type ExternalCollaborator interface {
	Tool
	UsesExternalProvider() bool
}

// BreakerBank holds one gobreaker.CircuitBreaker per tool name, created lazily on first use.
// It is the mechanism behind spec §5's "the circuit-breaker guarding external providers"
// poisoning clause: a breaker that trips open rejects calls fast rather than letting a
// misbehaving provider wedge the scheduler, and resets to half-open on its own timeout without
// any caller needing to "unpoison" shared state by hand.
type BreakerBank struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerBank constructs an empty bank.
func NewBreakerBank() *BreakerBank {
	return &BreakerBank{breakers: map[string]*gobreaker.CircuitBreaker{}}
}

func (b *BreakerBank) forTool(name string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[name]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	b.breakers[name] = cb
	return cb
}

// Execute runs fn through the named tool's breaker, returning gobreaker.ErrOpenState or
// gobreaker.ErrTooManyRequests without calling fn when the breaker is open/half-open and
// saturated.
func (b *BreakerBank) Execute(toolName string, fn func() (*ToolOutput, error)) (*ToolOutput, error) {
	cb := b.forTool(toolName)
	out, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if out == nil {
		return nil, err
	}
	return out.(*ToolOutput), err
}
