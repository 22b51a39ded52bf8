package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stocksaga/internal/pkg/event"
	"stocksaga/internal/service/inventory/domain"
)

func release(orderID int64, items ...event.Item) *event.ReleaseRequested {
	return event.NewReleaseRequested("order-service", orderID, 7, items, "Order cancelled")
}

func TestCompensator_DuplicateReleaseIsNoop(t *testing.T) {
	f := newProcessorFixture(t, nil, nil, 0)
	f.stock(t, 101, 10)
	ctx := context.Background()

	_, err := f.processor.Process(ctx, request(1, event.Item{ProductID: 101, Quantity: 4}))
	require.NoError(t, err)
	_, err = f.processor.Process(ctx, request(2, event.Item{ProductID: 101, Quantity: 3}))
	require.NoError(t, err)

	released, err := f.releaser.Release(ctx, release(1, event.Item{ProductID: 101, Quantity: 4}))
	require.NoError(t, err)
	assert.Equal(t, 4, released)

	released, err = f.releaser.Release(ctx, release(1, event.Item{ProductID: 101, Quantity: 4}))
	require.NoError(t, err)
	assert.Equal(t, 0, released)
	assert.Equal(t, 3, f.snapshot(t, 101).Reserved, "order 2 keeps its reservation")
}

func TestCompensator_ClampsOverRelease(t *testing.T) {
	f := newProcessorFixture(t, nil, nil, 0)
	f.stock(t, 101, 10)
	ctx := context.Background()

	_, err := f.ledger.Reserve(ctx, 101, 2)
	require.NoError(t, err)

	released, err := f.releaser.Release(ctx, release(5, event.Item{ProductID: 101, Quantity: 2}))
	require.NoError(t, err)
	assert.Equal(t, 2, released)
	released, err = f.releaser.Release(ctx, release(6, event.Item{ProductID: 101, Quantity: 2}))
	require.NoError(t, err)
	assert.Equal(t, 0, released)

	e := f.snapshot(t, 101)
	assert.Equal(t, 0, e.Reserved)
	assert.Equal(t, 10, e.Available)
}

func TestCompensator_SkipsUnknownProducts(t *testing.T) {
	f := newProcessorFixture(t, nil, nil, 0)
	f.stock(t, 101, 10)
	ctx := context.Background()

	_, err := f.processor.Process(ctx, request(1, event.Item{ProductID: 101, Quantity: 2}))
	require.NoError(t, err)

	released, err := f.releaser.Release(ctx, release(1,
		event.Item{ProductID: 999, Quantity: 1},
		event.Item{ProductID: 101, Quantity: 2},
	))
	require.NoError(t, err)
	assert.Equal(t, 2, released)
	_, err = f.ledger.Snapshot(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrEntryNotFound)

	movements, err := f.ledger.Movements(ctx, 101, 1)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, domain.MovementRelease, movements[0].Kind)
	assert.Equal(t, int64(1), movements[0].OrderID)
}

func TestCompensator_RetriesConflicts(t *testing.T) {
	f := newProcessorFixture(t, nil, nil, 0)
	f.stock(t, 101, 10)
	ctx := context.Background()
	_, err := f.ledger.Reserve(ctx, 101, 5)
	require.NoError(t, err)

	repo := &conflictingRepo{LedgerRepository: f.repo, conflicts: 2}
	c := NewCompensator(f.ledger, repo, nil, testTracer)
	released, err := c.Release(ctx, release(8, event.Item{ProductID: 101, Quantity: 5}))
	require.NoError(t, err)
	assert.Equal(t, 5, released)
	assert.Equal(t, 0, f.snapshot(t, 101).Reserved)
}

func TestCompensator_RetriesTransientFailures(t *testing.T) {
	f := newProcessorFixture(t, nil, nil, 0)
	f.stock(t, 101, 10)
	ctx := context.Background()
	_, err := f.ledger.Reserve(ctx, 101, 5)
	require.NoError(t, err)

	repo := &flakyRepo{LedgerRepository: f.repo, failures: 2}
	c := NewCompensator(f.ledger, repo, nil, testTracer)
	c.backoff = time.Millisecond
	released, err := c.Release(ctx, release(8, event.Item{ProductID: 101, Quantity: 5}))
	require.NoError(t, err)
	assert.Equal(t, 5, released)
	assert.Equal(t, 3, repo.commits)
	assert.Equal(t, 0, f.snapshot(t, 101).Reserved)
}

func TestCompensator_PersistentFailureIsReturned(t *testing.T) {
	f := newProcessorFixture(t, nil, nil, 3)
	f.stock(t, 101, 10)
	ctx := context.Background()
	_, err := f.ledger.Reserve(ctx, 101, 5)
	require.NoError(t, err)

	repo := &flakyRepo{LedgerRepository: f.repo, failures: -1}
	c := NewCompensator(f.ledger, repo, nil, testTracer)
	c.backoff = 0
	_, err = c.Release(ctx, release(8, event.Item{ProductID: 101, Quantity: 5}))
	require.ErrorIs(t, err, errDatabaseDown)
	assert.Equal(t, 3, repo.commits, "bounded by max attempts")
	assert.Equal(t, 5, f.snapshot(t, 101).Reserved)

	receipt, err := f.repo.FindReceipt(ctx, 8, domain.ReceiptRelease)
	require.NoError(t, err)
	assert.Nil(t, receipt)
}
