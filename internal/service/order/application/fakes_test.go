package application

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"stocksaga/internal/service/order/domain"
)

var testTracer trace.Tracer = noop.NewTracerProvider().Tracer("test")

type emitted struct {
	orderID int64
	reason  string
}

type fakeEmitter struct {
	mu         sync.Mutex
	requests   []emitted
	releases   []emitted
	requestErr error
	releaseErr error
}

func (e *fakeEmitter) RequestReservation(_ context.Context, o *domain.Order) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.requestErr != nil {
		return e.requestErr
	}
	e.requests = append(e.requests, emitted{orderID: o.ID})
	return nil
}

func (e *fakeEmitter) RequestRelease(_ context.Context, o *domain.Order, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.releaseErr != nil {
		return e.releaseErr
	}
	e.releases = append(e.releases, emitted{orderID: o.ID, reason: reason})
	return nil
}

func (e *fakeEmitter) counts() (requests, releases int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests), len(e.releases)
}

type scheduled struct {
	orderID int64
	attempt int
}

type fakeScheduler struct {
	mu    sync.Mutex
	tasks []scheduled
	err   error
}

func (s *fakeScheduler) ScheduleReservationTimeout(_ context.Context, orderID int64, attempt int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.tasks = append(s.tasks, scheduled{orderID: orderID, attempt: attempt})
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	statuses []domain.State
}

func (n *fakeNotifier) Notify(_ context.Context, o *domain.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, o.State)
	return nil
}
