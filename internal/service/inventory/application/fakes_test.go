package application

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"stocksaga/internal/pkg/event"
	"stocksaga/internal/service/inventory/domain"
	"stocksaga/internal/service/inventory/domain/port"
)

var testTracer trace.Tracer = noop.NewTracerProvider().Tracer("test")

type recordingOutcomes struct {
	mu       sync.Mutex
	outcomes []*event.ReservationResponded
	err      error
}

func (r *recordingOutcomes) PublishOutcome(_ context.Context, o *event.ReservationResponded) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.outcomes = append(r.outcomes, o)
	return nil
}

func (r *recordingOutcomes) all() []*event.ReservationResponded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*event.ReservationResponded(nil), r.outcomes...)
}

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []*domain.StockAlert
}

func (r *recordingAlerts) PublishAlert(_ context.Context, a *domain.StockAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recordingAlerts) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

// fakeCatalog 记录每个商品被查询的次数
type fakeCatalog struct {
	mu       sync.Mutex
	products map[int64]port.ProductSeed
	calls    map[int64]int
	err      error
}

func newFakeCatalog(seeds ...port.ProductSeed) *fakeCatalog {
	c := &fakeCatalog{products: map[int64]port.ProductSeed{}, calls: map[int64]int{}}
	for _, s := range seeds {
		c.products[s.ProductID] = s
	}
	return c
}

func (c *fakeCatalog) Seed(_ context.Context, productID int64) (*port.ProductSeed, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[productID]++
	if c.err != nil {
		return nil, c.err
	}
	s, ok := c.products[productID]
	if !ok {
		return nil, port.ErrUnknownProduct
	}
	return &s, nil
}

// conflictingRepo 让前 n 次提交返回版本冲突
type conflictingRepo struct {
	domain.LedgerRepository
	mu        sync.Mutex
	conflicts int
}

func (r *conflictingRepo) Commit(ctx context.Context, c *domain.Commit) error {
	r.mu.Lock()
	if r.conflicts != 0 {
		if r.conflicts > 0 {
			r.conflicts--
		}
		r.mu.Unlock()
		return domain.ErrVersionConflict
	}
	r.mu.Unlock()
	return r.LedgerRepository.Commit(ctx, c)
}

// flakyRepo 让前 n 次提交返回普通的数据库错误
type flakyRepo struct {
	domain.LedgerRepository
	mu       sync.Mutex
	failures int
	commits  int
}

var errDatabaseDown = errors.New("connection reset by peer")

func (r *flakyRepo) Commit(ctx context.Context, c *domain.Commit) error {
	r.mu.Lock()
	r.commits++
	if r.failures != 0 {
		if r.failures > 0 {
			r.failures--
		}
		r.mu.Unlock()
		return errDatabaseDown
	}
	r.mu.Unlock()
	return r.LedgerRepository.Commit(ctx, c)
}

type recordingObserver struct {
	mu      sync.Mutex
	changed []int64
}

func (o *recordingObserver) OnLedgerChanged(_ context.Context, e *domain.StockLedgerEntry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changed = append(o.changed, e.ProductID)
}
