package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"durable-command-scheduler/internal/model"
)

type memKey struct {
	aggregateID string
	sequence    int64
}

// Memory is an in-process Store backed by a mutex-protected map. It is the
// store paired with the virtual clock in the in-memory scheduler variant
// (§4.7) and with tests generally; it honors the same collision-retry and
// atomicity contract as Postgres.
type Memory struct {
	mu       sync.Mutex
	commands map[memKey]model.ScheduledCommand
	errors   map[memKey][]model.CommandExecutionError
	nextErr  int64
	minSeq   map[string]int64 // per-aggregate lowest scheduler-assigned sequence handed out
}

// NewMemory constructs an empty command store.
func NewMemory() *Memory {
	return &Memory{
		commands: make(map[memKey]model.ScheduledCommand),
		errors:   make(map[memKey][]model.CommandExecutionError),
		minSeq:   make(map[string]int64),
	}
}

func (m *Memory) Put(_ context.Context, cmd model.ScheduledCommand) (model.ScheduledCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !model.IsSchedulerAssigned(cmd.SequenceNumber) {
		key := memKey{cmd.AggregateID, cmd.SequenceNumber}
		if _, exists := m.commands[key]; exists {
			return model.ScheduledCommand{}, ErrDuplicateSchedule
		}
		m.commands[key] = cmd
		return cmd, nil
	}

	seq, ok := m.minSeq[cmd.AggregateID]
	if !ok {
		seq = -1
	}
	for {
		key := memKey{cmd.AggregateID, seq}
		if _, exists := m.commands[key]; !exists {
			cmd.SequenceNumber = seq
			m.commands[key] = cmd
			m.minSeq[cmd.AggregateID] = seq - 1
			return cmd, nil
		}
		seq--
	}
}

func (m *Memory) Load(_ context.Context, aggregateID string, sequenceNumber int64) (model.ScheduledCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd, ok := m.commands[memKey{aggregateID, sequenceNumber}]
	if !ok {
		return model.ScheduledCommand{}, ErrNotFound
	}
	return cmd, nil
}

func (m *Memory) MarkApplied(_ context.Context, aggregateID string, sequenceNumber int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey{aggregateID, sequenceNumber}
	cmd, ok := m.commands[key]
	if !ok {
		return ErrNotFound
	}
	t := at
	cmd.AppliedTime = &t
	m.commands[key] = cmd
	return nil
}

func (m *Memory) MarkAbandoned(_ context.Context, aggregateID string, sequenceNumber int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey{aggregateID, sequenceNumber}
	cmd, ok := m.commands[key]
	if !ok {
		return ErrNotFound
	}
	t := at
	cmd.FinalAttemptTime = &t
	m.commands[key] = cmd
	return nil
}

func (m *Memory) Reschedule(_ context.Context, aggregateID string, sequenceNumber int64, newDueTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey{aggregateID, sequenceNumber}
	cmd, ok := m.commands[key]
	if !ok {
		return ErrNotFound
	}
	t := newDueTime
	cmd.DueTime = &t
	m.commands[key] = cmd
	return nil
}

func (m *Memory) IncrementAttempts(_ context.Context, aggregateID string, sequenceNumber int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey{aggregateID, sequenceNumber}
	cmd, ok := m.commands[key]
	if !ok {
		return 0, ErrNotFound
	}
	cmd.Attempts++
	m.commands[key] = cmd
	return cmd.Attempts, nil
}

func (m *Memory) RecordError(_ context.Context, aggregateID string, sequenceNumber int64, serializedError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey{aggregateID, sequenceNumber}
	if _, ok := m.commands[key]; !ok {
		return ErrNotFound
	}
	m.nextErr++
	m.errors[key] = append(m.errors[key], model.CommandExecutionError{
		ID:             m.nextErr,
		AggregateID:    aggregateID,
		SequenceNumber: sequenceNumber,
		Error:          serializedError,
		RecordedAt:     time.Now().UTC(),
	})
	return nil
}

func (m *Memory) RecordDeliveryOutcome(_ context.Context, aggregateID string, sequenceNumber int64, outcome DeliveryOutcome) (model.ScheduledCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey{aggregateID, sequenceNumber}
	cmd, ok := m.commands[key]
	if !ok {
		return model.ScheduledCommand{}, ErrNotFound
	}

	cmd.Attempts++
	switch {
	case outcome.Succeeded:
		t := outcome.At
		cmd.AppliedTime = &t
	case outcome.Abandon:
		t := outcome.At
		cmd.FinalAttemptTime = &t
	default:
		t := outcome.NewDueTime
		cmd.DueTime = &t
	}
	m.commands[key] = cmd

	if !outcome.Succeeded {
		m.nextErr++
		m.errors[key] = append(m.errors[key], model.CommandExecutionError{
			ID:             m.nextErr,
			AggregateID:    aggregateID,
			SequenceNumber: sequenceNumber,
			Error:          outcome.SerializedError,
			RecordedAt:     outcome.At,
		})
	}
	return cmd, nil
}

func (m *Memory) DueOn(_ context.Context, clockName string, asOf time.Time, limit int) ([]model.ScheduledCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []model.ScheduledCommand
	for _, cmd := range m.commands {
		if cmd.ClockName != clockName || cmd.Status() != model.StatusPending {
			continue
		}
		if cmd.IsDue(asOf) {
			due = append(due, cmd)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		di, dj := due[i].DueTime, due[j].DueTime
		switch {
		case di == nil && dj == nil:
		case di == nil:
			return true
		case dj == nil:
			return false
		case !di.Equal(*dj):
			return di.Before(*dj)
		}
		return due[i].SequenceNumber < due[j].SequenceNumber
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *Memory) Abandoned(_ context.Context, clockName string, limit int) ([]model.ScheduledCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ScheduledCommand
	for _, cmd := range m.commands {
		if cmd.ClockName == clockName && cmd.Status() == model.StatusAbandoned {
			out = append(out, cmd)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FinalAttemptTime.After(*out[j].FinalAttemptTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Errors(_ context.Context, aggregateID string, sequenceNumber int64) ([]model.CommandExecutionError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey{aggregateID, sequenceNumber}
	out := make([]model.CommandExecutionError, len(m.errors[key]))
	copy(out, m.errors[key])
	return out, nil
}
