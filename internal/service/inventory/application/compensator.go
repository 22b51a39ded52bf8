package application

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"stocksaga/internal/pkg/event"
	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/pkg/metrics"
	"stocksaga/internal/service/inventory/domain"
	"stocksaga/internal/service/inventory/domain/port"
)

// Compensator 处理订单取消后的库存归还。归还数量截断到 0，重复投递通过回执识别
type Compensator struct {
	ledger   *LedgerService
	repo     domain.LedgerRepository
	receipts port.ReceiptCache
	tracer   trace.Tracer
	backoff  time.Duration // 瞬时故障重试的退避步长
}

const defaultReleaseBackoff = 100 * time.Millisecond

func NewCompensator(ledger *LedgerService, repo domain.LedgerRepository, receipts port.ReceiptCache, tracer trace.Tracer) *Compensator {
	return &Compensator{ledger: ledger, repo: repo, receipts: receipts, tracer: tracer, backoff: defaultReleaseBackoff}
}

// Release 归还订单的全部预占。返回实际归还的总件数
func (c *Compensator) Release(ctx context.Context, req *event.ReleaseRequested) (int, error) {
	ctx, span := c.tracer.Start(ctx, "inventory.ReleaseReservation", trace.WithAttributes(
		attribute.Int64("order.id", req.OrderID),
		attribute.String("reason", req.Reason),
	))
	defer span.End()

	log := logger.Ctx(ctx).With().Int64("order_id", req.OrderID).Logger()
	log.Info().Str("reason", req.Reason).Msg("Releasing inventory reservation")

	if done, err := c.alreadyReleased(ctx, req.OrderID); err != nil {
		span.RecordError(err)
		return 0, err
	} else if done {
		metrics.Releases.WithLabelValues("duplicate").Inc()
		log.Info().Msg("release already processed, skipping")
		return 0, nil
	}

	lines := aggregate(req.Items)
	var lastErr error
retry:
	for attempt := 1; attempt <= c.ledger.maxAttempts; attempt++ {
		if lastErr != nil {
			if err := c.wait(ctx, attempt); err != nil {
				lastErr = err
				break retry
			}
		}

		commit, total, err := c.plan(ctx, req.OrderID, lines)
		if err == nil {
			err = c.repo.Commit(ctx, commit)
		}
		switch {
		case err == nil:
			if c.receipts != nil {
				if err := c.receipts.Put(ctx, commit.Receipt); err != nil {
					log.Warn().Err(err).Msg("failed to cache release receipt")
				}
			}
			metrics.Releases.WithLabelValues("released").Inc()
			log.Info().Int("released", total).Int("attempt", attempt).Msg("Inventory reservation released")
			c.ledger.notify(ctx, commit.Entries...)
			return total, nil
		case errors.Is(err, domain.ErrVersionConflict):
			metrics.LedgerConflicts.Inc()
			lastErr = nil
		case errors.Is(err, domain.ErrDuplicateReceipt):
			metrics.Releases.WithLabelValues("duplicate").Inc()
			return 0, nil
		case ctx.Err() != nil:
			lastErr = err
			break retry
		default:
			// 数据库抖动等瞬时故障，退避后重试，仍失败才进死信
			metrics.Releases.WithLabelValues("retried").Inc()
			log.Warn().Err(err).Int("attempt", attempt).Msg("release failed, retrying")
			lastErr = err
		}
	}

	metrics.Releases.WithLabelValues("failed").Inc()
	err := lastErr
	if err == nil {
		err = domain.ErrConcurrentModification
	}
	err = errors.Wrapf(err, "release for order %d after %d attempts", req.OrderID, c.ledger.maxAttempts)
	span.RecordError(err)
	span.SetStatus(codes.Error, "release failed")
	return 0, err
}

// plan 基于最新快照计算归还，返回待提交的变更和归还总件数
func (c *Compensator) plan(ctx context.Context, orderID int64, lines []line) (*domain.Commit, int, error) {
	now := time.Now().UTC()
	commit := &domain.Commit{}
	total := 0
	for _, l := range lines {
		if l.quantity <= 0 {
			continue
		}
		current, err := c.repo.Get(ctx, l.productID)
		if errors.Is(err, domain.ErrEntryNotFound) {
			logger.Ctx(ctx).Warn().Int64("order_id", orderID).Int64("product_id", l.productID).Msg("release for unknown product skipped")
			continue
		}
		if err != nil {
			return nil, 0, errors.Wrapf(err, "load ledger entry %d", l.productID)
		}
		entry := current.Clone()
		released := entry.Release(l.quantity)
		if released == 0 {
			continue
		}
		total += released
		commit.Entries = append(commit.Entries, entry)
		commit.Movements = append(commit.Movements, domain.StockMovement{
			ProductID: l.productID,
			Kind:      domain.MovementRelease,
			Delta:     released,
			OrderID:   orderID,
			CreatedAt: now,
		})
	}
	commit.Receipt = &domain.Receipt{
		OrderID:   orderID,
		Kind:      domain.ReceiptRelease,
		Success:   true,
		Message:   fmt.Sprintf("Released %d units", total),
		CreatedAt: now,
	}
	return commit, total, nil
}

// wait 线性退避，ctx 结束时提前返回
func (c *Compensator) wait(ctx context.Context, attempt int) error {
	if c.backoff <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(time.Duration(attempt-1) * c.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Compensator) alreadyReleased(ctx context.Context, orderID int64) (bool, error) {
	if c.receipts != nil {
		if r, err := c.receipts.Get(ctx, orderID, domain.ReceiptRelease); err == nil && r != nil {
			return true, nil
		}
	}
	r, err := c.repo.FindReceipt(ctx, orderID, domain.ReceiptRelease)
	if err != nil {
		return false, err
	}
	return r != nil, nil
}
