// Package governor bounds concurrent file handles with a counting semaphore whose tickets
// release deterministically on scoped destruction, and supports a timed drain for shutdown.
// Grounded on the teacher's general use of golang.org/x/sync across the examples pack
// (joeycumines/go-utilpkg, jordigilh/kubernaut both depend on it for bounded fan-out); the
// scoped-release Ticket shape mirrors a context/defer idiom rather than a manual
// release()-call-every-path idiom, so a panicking caller cannot leak a handle.
package governor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// ErrShutdownTimeout is returned by Shutdown when active tickets have not drained to zero
// before the supplied deadline.
type ErrShutdownTimeout struct {
	Active int64
}

func (e *ErrShutdownTimeout) Error() string {
	return errors.Errorf("governor: shutdown timed out with %d ticket(s) still active", e.Active).Error()
}

// Ticket represents one acquired file-handle slot. Release must be called at least once (later
// calls are no-ops); it is safe to call from a defer immediately after Acquire succeeds.
type Ticket struct {
	g        *Governor
	released bool
	mu       sync.Mutex
}

// Release returns the ticket's slot to the Governor. Idempotent: a second call is a no-op,
// so callers may both defer Release() and call it explicitly on an early-success path without
// double-counting.
func (t *Ticket) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return
	}
	t.released = true
	t.g.sem.Release(1)
	atomic.AddInt64(&t.g.active, -1)
}

// Governor bounds the number of outstanding file handles via a counting semaphore. The
// invariant "total tickets + available == configured max at all times" holds by construction:
// semaphore.Weighted already maintains exactly that count internally.
type Governor struct {
	max      int64
	sem      *semaphore.Weighted
	active   int64 // atomic
	mu       sync.Mutex
	shutdown bool
}

// NewGovernor constructs a Governor allowing up to max concurrent tickets.
func NewGovernor(max int) *Governor {
	if max <= 0 {
		max = 1
	}
	return &Governor{max: int64(max), sem: semaphore.NewWeighted(int64(max))}
}

// Acquire blocks until a slot is available or ctx is cancelled, whichever comes first.
func (g *Governor) Acquire(ctx context.Context) (*Ticket, error) {
	g.mu.Lock()
	if g.shutdown {
		g.mu.Unlock()
		return nil, errors.New("governor: shutting down, no new acquisitions accepted")
	}
	g.mu.Unlock()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	atomic.AddInt64(&g.active, 1)
	return &Ticket{g: g}, nil
}

// TryAcquire attempts a non-blocking acquisition, returning (nil, false) if no slot is
// immediately available.
func (g *Governor) TryAcquire() (*Ticket, bool) {
	g.mu.Lock()
	if g.shutdown {
		g.mu.Unlock()
		return nil, false
	}
	g.mu.Unlock()
	if !g.sem.TryAcquire(1) {
		return nil, false
	}
	atomic.AddInt64(&g.active, 1)
	return &Ticket{g: g}, true
}

// Max returns the configured ticket limit.
func (g *Governor) Max() int { return int(g.max) }

// Active returns the number of tickets currently outstanding.
func (g *Governor) Active() int64 {
	return atomic.LoadInt64(&g.active)
}

// Available returns the number of tickets that could be acquired right now without blocking.
func (g *Governor) Available() int64 {
	return g.max - g.Active()
}

// Shutdown stops accepting new acquisitions and polls every 10ms until active tickets reach
// zero or the timeout elapses. It never forces a release; it only waits.
func (g *Governor) Shutdown(timeout time.Duration) error {
	g.mu.Lock()
	g.shutdown = true
	g.mu.Unlock()

	const pollInterval = 10 * time.Millisecond
	deadline := time.Now().Add(timeout)
	for {
		active := g.Active()
		if active == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return &ErrShutdownTimeout{Active: active}
		}
		time.Sleep(pollInterval)
	}
}
