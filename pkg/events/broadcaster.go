package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/wifiprov/wifiprov-go/pkg/supplicant"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Broadcaster fans events out to subscribers.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
	buffer int
}

// NewBroadcaster creates a broadcaster. buffer <= 0 selects DefaultBuffer.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber. Only events published after
// Subscribe returns are delivered. On a closed broadcaster the returned
// subscription is already closed.
func (b *Broadcaster) Subscribe() *Subscription {
	s := &Subscription{
		ch:     make(chan supplicant.Event, b.buffer),
		parent: b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		s.closed = true
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish delivers ev to every subscriber without blocking.
func (b *Broadcaster) Publish(ev supplicant.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.closed = true
		close(s.ch)
	}
	clear(b.subs)
}

func (b *Broadcaster) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	s.closed = true
	close(s.ch)
}

// Subscription is one subscriber's queue.
type Subscription struct {
	ch      chan supplicant.Event
	parent  *Broadcaster
	dropped atomic.Uint64

	// closed is guarded by parent.mu.
	closed bool
}

// C returns the event channel. It is closed when the subscription or the
// broadcaster is closed.
func (s *Subscription) C() <-chan supplicant.Event {
	return s.ch
}

// Dropped returns how many events were discarded because the queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.parent.remove(s)
}

// WaitFor returns the first event for which match returns true. It returns
// ctx.Err() when ctx ends first and ErrClosed if the subscription closes.
func (s *Subscription) WaitFor(ctx context.Context, match func(supplicant.Event) bool) (supplicant.Event, error) {
	for {
		select {
		case ev, ok := <-s.ch:
			if !ok {
				return supplicant.Event{}, ErrClosed
			}
			if match(ev) {
				return ev, nil
			}
		case <-ctx.Done():
			return supplicant.Event{}, ctx.Err()
		}
	}
}

// Kind matches events of any of the given kinds.
func Kind(kinds ...supplicant.EventKind) func(supplicant.Event) bool {
	return func(ev supplicant.Event) bool {
		for _, k := range kinds {
			if ev.Kind == k {
				return true
			}
		}
		return false
	}
}
