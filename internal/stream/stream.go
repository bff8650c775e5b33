// Package stream fans order lifecycle events out to live subscribers.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Kind names an order lifecycle transition.
type Kind string

const (
	OrderPlaced  Kind = "order.placed"
	OrderShipped Kind = "order.shipped"
	OrderPaid    Kind = "order.paid"
	OrderDeleted Kind = "order.deleted"
)

// OrderEvent is what the admin feed receives.
type OrderEvent struct {
	Kind      Kind      `json:"kind"`
	OrderID   string    `json:"orderId"`
	UserEmail string    `json:"userEmail,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs order events to all active subscribers (SSE clients).
type Stream struct {
	mu      sync.RWMutex
	subs    map[int]chan OrderEvent
	next    int
	dropped atomic.Int64
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan OrderEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan OrderEvent {
	ch := make(chan OrderEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers. Slow subscribers miss events
// rather than block the publisher.
func (s *Stream) Publish(evt OrderEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			s.dropped.Add(1)
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Dropped reports how many deliveries were skipped for slow subscribers.
func (s *Stream) Dropped() int64 { return s.dropped.Load() }
