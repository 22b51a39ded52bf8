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

const (
	EventSource = "inventory-service"

	MsgReserved      = "Inventory reserved successfully"
	MsgReserveFailed = "Failed to reserve inventory"
	MsgSystemError   = "System error during inventory reservation"
	MsgNoItems       = "Order has no items"
)

// line 是按商品聚合后的一行
type line struct {
	productID int64
	quantity  int
}

// aggregate 合并同一商品的多行，保持首次出现的顺序
func aggregate(items []event.Item) []line {
	idx := make(map[int64]int, len(items))
	out := make([]line, 0, len(items))
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			out[i].quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, line{productID: it.ProductID, quantity: it.Quantity})
	}
	return out
}

// ReservationProcessor 对一次预占请求做全有或全无的校验与提交，并发布唯一的结果
type ReservationProcessor struct {
	ledger    *LedgerService
	repo      domain.LedgerRepository
	publisher port.OutcomePublisher
	receipts  port.ReceiptCache // 可以为空
	tracer    trace.Tracer
}

func NewReservationProcessor(ledger *LedgerService, repo domain.LedgerRepository, publisher port.OutcomePublisher, receipts port.ReceiptCache, tracer trace.Tracer) *ReservationProcessor {
	return &ReservationProcessor{ledger: ledger, repo: repo, publisher: publisher, receipts: receipts, tracer: tracer}
}

// Process 处理一条预占请求。返回的 outcome 已经发布；
// 返回 error 表示基础设施故障，调用方应把原消息转入死信
func (p *ReservationProcessor) Process(ctx context.Context, req *event.ReservationRequested) (*event.ReservationResponded, error) {
	ctx, span := p.tracer.Start(ctx, "inventory.ProcessReservation", trace.WithAttributes(
		attribute.Int64("order.id", req.OrderID),
		attribute.Int("items.count", len(req.Items)),
	))
	defer span.End()

	log := logger.Ctx(ctx).With().Int64("order_id", req.OrderID).Logger()
	log.Info().Int("items", len(req.Items)).Msg("Processing inventory reservation")

	// 1. 重复投递：直接重发首次的结果
	if receipt, err := p.findReceipt(ctx, req.OrderID); err != nil {
		return p.fail(ctx, span, req.OrderID, err)
	} else if receipt != nil {
		log.Info().Bool("success", receipt.Success).Msg("duplicate reservation request, republishing stored outcome")
		metrics.ReservationOutcomes.WithLabelValues("duplicate").Inc()
		span.AddEvent("duplicate request")
		return p.publish(ctx, outcomeFromReceipt(receipt))
	}

	lines := aggregate(req.Items)
	for attempt := 1; attempt <= p.ledger.maxAttempts; attempt++ {
		// 2. 基于最新快照校验全部商品
		entries, failedItems, err := p.evaluate(ctx, lines)
		if err != nil {
			return p.fail(ctx, span, req.OrderID, err)
		}

		receipt := &domain.Receipt{
			OrderID:   req.OrderID,
			Kind:      domain.ReceiptReserve,
			CreatedAt: time.Now().UTC(),
		}
		commit := &domain.Commit{Receipt: receipt}
		if len(failedItems) > 0 {
			// 3. 有任何一项失败则什么都不改，只记录回执
			receipt.Message = MsgReserveFailed
			receipt.FailedItems = failedItems
		} else {
			// 4. 一个事务提交全部预占
			receipt.Success = true
			receipt.Message = MsgReserved
			commit.Entries = entries
			for _, l := range lines {
				commit.Movements = append(commit.Movements, domain.StockMovement{
					ProductID: l.productID,
					Kind:      domain.MovementReserve,
					Delta:     l.quantity,
					OrderID:   req.OrderID,
					CreatedAt: receipt.CreatedAt,
				})
			}
		}

		err = p.repo.Commit(ctx, commit)
		switch {
		case err == nil:
			p.cacheReceipt(ctx, receipt)
			if receipt.Success {
				metrics.ReservationOutcomes.WithLabelValues("success").Inc()
				log.Info().Int("attempt", attempt).Msg("Inventory reserved")
			} else {
				metrics.ReservationOutcomes.WithLabelValues("rejected").Inc()
				log.Warn().Strs("failed_items", failedItems).Msg("Inventory reservation rejected")
			}
			// 5. 提交之后才发布结果，发布之后再通知观察者
			outcome, pubErr := p.publish(ctx, outcomeFromReceipt(receipt))
			if receipt.Success {
				p.ledger.notify(ctx, entries...)
			}
			return outcome, pubErr
		case errors.Is(err, domain.ErrVersionConflict):
			metrics.LedgerConflicts.Inc()
			log.Debug().Int("attempt", attempt).Err(err).Msg("reservation commit conflicted, re-evaluating")
			continue
		case errors.Is(err, domain.ErrDuplicateReceipt):
			// 同一订单的另一条投递刚刚处理完
			stored, findErr := p.repo.FindReceipt(ctx, req.OrderID, domain.ReceiptReserve)
			if findErr != nil || stored == nil {
				return p.fail(ctx, span, req.OrderID, errors.Wrap(err, "load concurrent receipt"))
			}
			metrics.ReservationOutcomes.WithLabelValues("duplicate").Inc()
			return p.publish(ctx, outcomeFromReceipt(stored))
		default:
			return p.fail(ctx, span, req.OrderID, err)
		}
	}

	// 冲突重试耗尽：系统错误结果，但原消息本身没有问题，不进死信
	exhausted := errors.Wrapf(domain.ErrConcurrentModification, "order %d after %d attempts", req.OrderID, p.ledger.maxAttempts)
	return p.systemError(ctx, span, req.OrderID, exhausted)
}

// evaluate 读取每个商品的最新快照并在副本上尝试预占，返回修改后的副本或失败项
func (p *ReservationProcessor) evaluate(ctx context.Context, lines []line) ([]*domain.StockLedgerEntry, []string, error) {
	var (
		entries     []*domain.StockLedgerEntry
		failedItems []string
	)
	if len(lines) == 0 {
		// 空订单按失败处理，只记录回执
		return nil, []string{MsgNoItems}, nil
	}
	for _, l := range lines {
		if l.quantity <= 0 {
			failedItems = append(failedItems, fmt.Sprintf("Invalid quantity for product: %d (Requested: %d)", l.productID, l.quantity))
			continue
		}
		current, err := p.ledger.loadOrSeed(ctx, l.productID, false)
		if err != nil {
			if errors.Is(err, domain.ErrProductNotFound) {
				failedItems = append(failedItems, fmt.Sprintf("Product not found: %d", l.productID))
				continue
			}
			return nil, nil, err
		}
		entry := current.Clone()
		if err := entry.Reserve(l.quantity); err != nil {
			var insufficient *domain.InsufficientStockError
			if errors.As(err, &insufficient) {
				failedItems = append(failedItems, insufficient.Error())
				continue
			}
			return nil, nil, err
		}
		entries = append(entries, entry)
	}
	return entries, failedItems, nil
}

// fail 发布系统错误结果后返回原始错误，让消息进入死信
func (p *ReservationProcessor) fail(ctx context.Context, span trace.Span, orderID int64, cause error) (*event.ReservationResponded, error) {
	outcome, err := p.systemError(ctx, span, orderID, cause)
	if err != nil {
		return outcome, err
	}
	return outcome, cause
}

// systemError 发布系统错误结果，只在发布本身失败时返回错误
func (p *ReservationProcessor) systemError(ctx context.Context, span trace.Span, orderID int64, cause error) (*event.ReservationResponded, error) {
	span.RecordError(cause)
	span.SetStatus(codes.Error, "reservation failed with system error")
	metrics.ReservationOutcomes.WithLabelValues("system_error").Inc()
	logger.Ctx(ctx).Error().Err(cause).Int64("order_id", orderID).Msg("Error processing inventory reservation")

	outcome := event.NewReservationResponded(EventSource, orderID, false, MsgSystemError,
		[]string{"System error: " + cause.Error()})
	if _, err := p.publish(ctx, outcome); err != nil {
		return outcome, errors.Wrapf(cause, "publish system error outcome also failed: %v", err)
	}
	return outcome, nil
}

func (p *ReservationProcessor) publish(ctx context.Context, outcome *event.ReservationResponded) (*event.ReservationResponded, error) {
	if err := p.publisher.PublishOutcome(ctx, outcome); err != nil {
		return outcome, errors.Wrapf(err, "publish reservation outcome for order %d", outcome.OrderID)
	}
	logger.Ctx(ctx).Info().
		Int64("order_id", outcome.OrderID).
		Bool("success", outcome.Success).
		Msg("Sent inventory reservation response")
	return outcome, nil
}

func (p *ReservationProcessor) findReceipt(ctx context.Context, orderID int64) (*domain.Receipt, error) {
	if p.receipts != nil {
		if r, err := p.receipts.Get(ctx, orderID, domain.ReceiptReserve); err == nil && r != nil {
			return r, nil
		} else if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Int64("order_id", orderID).Msg("receipt cache lookup failed, falling back to database")
		}
	}
	return p.repo.FindReceipt(ctx, orderID, domain.ReceiptReserve)
}

func (p *ReservationProcessor) cacheReceipt(ctx context.Context, receipt *domain.Receipt) {
	if p.receipts == nil {
		return
	}
	if err := p.receipts.Put(ctx, receipt); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Int64("order_id", receipt.OrderID).Msg("failed to cache receipt")
	}
}

func outcomeFromReceipt(r *domain.Receipt) *event.ReservationResponded {
	return event.NewReservationResponded(EventSource, r.OrderID, r.Success, r.Message, r.FailedItems)
}
