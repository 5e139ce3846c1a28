package clockregistry

import (
	"context"
	"sync"
	"time"

	"durable-command-scheduler/internal/model"
)

// Memory is an in-process Registry backed by a mutex-protected map. It is
// the registry paired with the virtual clock in the in-memory scheduler
// variant (§4.7) and with tests generally.
type Memory struct {
	mu       sync.Mutex
	clocks   map[string]model.Clock
	mappings map[string]string
	nowFunc  func() time.Time
}

// NewMemory constructs an empty registry. nowFunc supplies "current domain
// time" when a clock is created for the first time; pass time.Now for wall
// clock semantics or a virtual clock's Now for deterministic tests.
func NewMemory(nowFunc func() time.Time) *Memory {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &Memory{
		clocks:   make(map[string]model.Clock),
		mappings: make(map[string]string),
		nowFunc:  nowFunc,
	}
}

func (m *Memory) GetOrCreate(_ context.Context, name string) (model.Clock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clocks[name]; ok {
		return c, nil
	}
	now := m.nowFunc()
	c := model.Clock{Name: name, Now: now, StartTime: now}
	m.clocks[name] = c
	return c, nil
}

func (m *Memory) Advance(_ context.Context, name string, target time.Time) (model.Clock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clocks[name]
	if !ok {
		now := m.nowFunc()
		c = model.Clock{Name: name, Now: now, StartTime: now}
	}
	if target.Before(c.Now) {
		return c, ErrClockMovedBackward
	}
	c.Now = target
	m.clocks[name] = c
	return c, nil
}

func (m *Memory) Lookup(_ context.Context, value string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.mappings[value]
	return name, ok, nil
}

func (m *Memory) MapValue(_ context.Context, value, clockName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings[value] = clockName
	return nil
}
