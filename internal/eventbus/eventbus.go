// Package eventbus implements the single in-process typed Event Bus of spec §4.9: subscribers
// receive events in publish order; a slow subscriber gets a lag-warning event instead of
// blocking the publisher; subscriptions are cancellable. It satisfies core.EventPublisher
// structurally, so internal/core never imports this package (avoiding the cycle core would
// otherwise have with eventbus).
package eventbus

import (
	"sync"

	"github.com/cyraxred/reactor/internal/core"
)

// SubscriberLagged is published to a subscriber (not broadcast) in place of an event it missed
// because its delivery channel was saturated, per spec §4.9's "slow subscribers get
// lag-warning events rather than blocking publishers".
type SubscriberLagged struct {
	Dropped int
}

// Subscription is a cancellable handle returned by Subscribe.
type Subscription struct {
	bus *Bus
	id  uint64
	ch  chan interface{}
}

// Events is the channel this subscription receives events (and SubscriberLagged) on.
func (s *Subscription) Events() <-chan interface{} { return s.ch }

// Cancel unsubscribes. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if sub, ok := s.bus.subs[s.id]; ok {
		close(sub.ch)
		delete(s.bus.subs, s.id)
	}
}

// Bus is the process-wide typed pub/sub hub. The zero value is not usable; construct with New.
type Bus struct {
	mu       sync.Mutex
	nextID   uint64
	subs     map[uint64]*Subscription
	logger   core.Logger
	bufferSz int
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithBufferSize overrides the per-subscriber channel buffer (default 64). A larger buffer makes
// a subscriber less likely to lag under bursty publish load, at the cost of memory.
func WithBufferSize(n int) Option {
	return func(b *Bus) { b.bufferSz = n }
}

// WithLogger attaches a logger used to report dropped events at Warn level.
func WithLogger(l core.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// New constructs an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{subs: map[uint64]*Subscription{}, bufferSz: 64}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new subscriber and returns its handle. Delivery order across all
// subscribers matches publish order; delivery to one subscriber never blocks delivery to
// another.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{bus: b, id: b.nextID, ch: make(chan interface{}, b.bufferSz)}
	b.subs[sub.id] = sub
	return sub
}

// Publish broadcasts event to every current subscriber. It implements core.EventPublisher.
// Publish itself never blocks: a subscriber whose channel is full receives a SubscriberLagged
// event (best-effort; if even that can't be queued, the drop is only logged).
func (b *Bus) Publish(event interface{}) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- event:
		default:
			b.reportLag(s)
		}
	}
}

func (b *Bus) reportLag(s *Subscription) {
	select {
	case s.ch <- SubscriberLagged{Dropped: 1}:
	default:
		if b.logger != nil {
			b.logger.Warnf("eventbus: subscriber %d channel saturated, dropping event", s.id)
		}
	}
}

// Close cancels every active subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.subs {
		close(s.ch)
		delete(b.subs, id)
	}
}
