// Package activity implements the fan-out observable of scheduling and
// delivery notifications described in §6 "Activity stream" and expanded in
// SPEC_FULL §4.9.
package activity

import (
	"context"
	"sync"
	"time"
)

// Kind tags the notification type.
type Kind string

const (
	KindScheduled      Kind = "scheduled"
	KindSucceeded      Kind = "succeeded"
	KindRetryScheduled Kind = "retry_scheduled"
	KindAbandoned      Kind = "abandoned"
)

// Notification is emitted once per scheduling or delivery event.
type Notification struct {
	AggregateID    string    `json:"aggregateId"`
	SequenceNumber int64     `json:"sequenceNumber"`
	ClockName      string    `json:"clockName"`
	Kind           Kind      `json:"kind"`
	Error          string    `json:"error,omitempty"`
	At             time.Time `json:"at"`
}

// Stream is an append-only, fan-out pub/sub of Notifications. Each
// subscriber receives notifications in publication order (§5). Delivery is
// not guaranteed: both implementations drop a notification for a subscriber
// whose channel buffer is full instead of blocking the publisher.
type Stream interface {
	Publish(ctx context.Context, n Notification) error
	Subscribe(ctx context.Context) (ch <-chan Notification, unsubscribe func())
}

// InProcess is a mutex-protected channel fan-out, the default for the
// in-memory scheduler and for tests.
type InProcess struct {
	mu          sync.Mutex
	subscribers map[chan Notification]struct{}
	buffer      int
}

// NewInProcess constructs an InProcess stream. buffer sizes each
// subscriber's channel; a slow subscriber that fills its buffer stops
// receiving further notifications rather than blocking publishers.
func NewInProcess(buffer int) *InProcess {
	if buffer <= 0 {
		buffer = 32
	}
	return &InProcess{subscribers: make(map[chan Notification]struct{}), buffer: buffer}
}

func (s *InProcess) Publish(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- n:
		default:
		}
	}
	return nil
}

func (s *InProcess) Subscribe(_ context.Context) (<-chan Notification, func()) {
	ch := make(chan Notification, s.buffer)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}
