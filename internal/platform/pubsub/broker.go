// Package pubsub is a small in-process publish/subscribe broker.
package pubsub

import (
	"context"
	"sync"
)

// DefaultBuffer is the per-subscriber channel capacity used when none is given.
const DefaultBuffer = 16

// Broker fans out published values to every live subscription.
// Publishing never blocks: a subscriber whose buffer is full misses the value
// and its Dropped counter increases. It is safe for concurrent use.
type Broker[T any] struct {
	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	closed bool
	buffer int
}

func NewBroker[T any](buffer int) *Broker[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker[T]{
		subs:   make(map[*Subscription[T]]struct{}),
		buffer: buffer,
	}
}

// Subscription receives values on C until it is cancelled or the broker closes.
type Subscription[T any] struct {
	C <-chan T

	ch      chan T
	quit    chan struct{}
	broker  *Broker[T]
	filter  func(T) bool
	dropped int
	once    sync.Once
}

// Subscribe registers a subscription. A nil filter accepts every value.
// The subscription is cancelled when ctx is done.
func (b *Broker[T]) Subscribe(ctx context.Context, filter func(T) bool) *Subscription[T] {
	ch := make(chan T, b.buffer)
	s := &Subscription[T]{C: ch, ch: ch, quit: make(chan struct{}), broker: b, filter: filter}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.shut()
		return s
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				s.Cancel()
			case <-s.quit:
			}
		}()
	}
	return s
}

func (s *Subscription[T]) shut() {
	s.once.Do(func() {
		close(s.ch)
		close(s.quit)
	})
}

// Cancel unregisters the subscription and closes C. It is idempotent.
func (s *Subscription[T]) Cancel() {
	b := s.broker
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
	s.shut()
}

// Dropped reports how many values were skipped because C was full.
func (s *Subscription[T]) Dropped() int {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	return s.dropped
}

// Publish delivers v to every matching subscription and returns how many received it.
func (b *Broker[T]) Publish(v T) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}
	n := 0
	for s := range b.subs {
		if s.filter != nil && !s.filter(v) {
			continue
		}
		select {
		case s.ch <- v:
			n++
		default:
			s.dropped++
		}
	}
	return n
}

// Len returns the number of live subscriptions.
func (b *Broker[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close cancels every subscription. Later Subscribe calls return closed subscriptions.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*Subscription[T]]struct{})
	b.mu.Unlock()

	for s := range subs {
		s.shut()
	}
}
