package governor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGovernorBoundsConcurrentTickets(t *testing.T) {
	g := NewGovernor(2)
	t1, err := g.Acquire(context.Background())
	require.NoError(t, err)
	t2, err := g.Acquire(context.Background())
	require.NoError(t, err)

	_, ok := g.TryAcquire()
	assert.False(t, ok, "third ticket must not be acquirable with max=2")
	assert.Equal(t, int64(2), g.Active())
	assert.Equal(t, int64(0), g.Available())

	t1.Release()
	assert.Equal(t, int64(1), g.Active())
	t3, ok := g.TryAcquire()
	assert.True(t, ok)

	t2.Release()
	t3.Release()
	assert.Equal(t, int64(0), g.Active())
}

func TestGovernorReleaseIdempotent(t *testing.T) {
	g := NewGovernor(1)
	ticket, err := g.Acquire(context.Background())
	require.NoError(t, err)
	ticket.Release()
	ticket.Release()
	assert.Equal(t, int64(0), g.Active())
}

func TestGovernorManyInterleavedAcquireRelease(t *testing.T) {
	const max = 4
	g := NewGovernor(max)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, err := g.Acquire(context.Background())
			if err != nil {
				return
			}
			assert.LessOrEqual(t, g.Active(), int64(max))
			time.Sleep(time.Millisecond)
			ticket.Release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(0), g.Active())
}

func TestGovernorShutdownDrainsBeforeDeadline(t *testing.T) {
	g := NewGovernor(1)
	ticket, err := g.Acquire(context.Background())
	require.NoError(t, err)
	go func() {
		time.Sleep(20 * time.Millisecond)
		ticket.Release()
	}()
	err = g.Shutdown(200 * time.Millisecond)
	assert.NoError(t, err)
}

func TestGovernorShutdownTimesOut(t *testing.T) {
	g := NewGovernor(1)
	_, err := g.Acquire(context.Background())
	require.NoError(t, err)
	err = g.Shutdown(20 * time.Millisecond)
	require.Error(t, err)
	var timeoutErr *ErrShutdownTimeout
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, int64(1), timeoutErr.Active)
}

func TestGovernorRejectsAcquireAfterShutdown(t *testing.T) {
	g := NewGovernor(1)
	require.NoError(t, g.Shutdown(time.Second))
	_, err := g.Acquire(context.Background())
	assert.Error(t, err)
}
