package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"durable-command-scheduler/internal/activity"
	"durable-command-scheduler/internal/clockdriver"
	"durable-command-scheduler/internal/clockregistry"
	"durable-command-scheduler/internal/delivery"
	"durable-command-scheduler/internal/model"
	"durable-command-scheduler/internal/precondition"
	"durable-command-scheduler/internal/repository"
	"durable-command-scheduler/internal/store"
)

func TestHealthz(t *testing.T) {
	st := store.NewMemory()
	clocks := clockregistry.NewMemory(nil)
	s := New(st, clocks, clockdriver.New(clocks, st, nil, 10))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGetCommandNotFound(t *testing.T) {
	st := store.NewMemory()
	clocks := clockregistry.NewMemory(nil)
	s := New(st, clocks, clockdriver.New(clocks, st, nil, 10))

	req := httptest.NewRequest(http.MethodGet, "/commands/agg-1/1", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetCommandFound(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	clocks := clockregistry.NewMemory(nil)
	if _, err := st.Put(ctx, model.ScheduledCommand{AggregateID: "agg-1", SequenceNumber: 1, ClockName: "default"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	s := New(st, clocks, clockdriver.New(clocks, st, nil, 10))

	req := httptest.NewRequest(http.MethodGet, "/commands/agg-1/1", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAdvanceClockEndpoint(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	target := t0.Add(time.Hour)

	st := store.NewMemory()
	clocks := clockregistry.NewMemory(func() time.Time { return t0 })
	if _, err := clocks.GetOrCreate(ctx, "default"); err != nil {
		t.Fatalf("getOrCreate: %v", err)
	}
	repo := repository.NewFake()
	stream := activity.NewInProcess(4)
	gate := precondition.New(nil, time.Second)
	engine := delivery.New(repo, st, stream, gate, func() time.Time { return target })
	driver := clockdriver.New(clocks, st, engine, 10)
	s := New(st, clocks, driver)

	body := `{"target":"` + target.Format(time.RFC3339) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/clocks/default/advance", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
