package bus

import (
	"context"
	"sync"

	"durable-command-scheduler/internal/model"
)

// InProcess is a mutex-protected fan-out over registered handlers, used by
// unit tests and the in-memory/virtual-clock scheduler.
type InProcess struct {
	mu       sync.Mutex
	handlers map[string]map[int]Handler
	nextID   int
}

// NewInProcess constructs an empty in-process bus.
func NewInProcess() *InProcess {
	return &InProcess{handlers: make(map[string]map[int]Handler)}
}

func (b *InProcess) Subscribe(_ context.Context, aggregateType string, handler Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[aggregateType] == nil {
		b.handlers[aggregateType] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.handlers[aggregateType][id] = handler

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[aggregateType], id)
	}
	return unsubscribe, nil
}

func (b *InProcess) Publish(ctx context.Context, aggregateType string, event model.CommandScheduledEvent) error {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.handlers[aggregateType]))
	for _, h := range b.handlers[aggregateType] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
