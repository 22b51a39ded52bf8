package application

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/pkg/metrics"
	"stocksaga/internal/service/order/application/saga"
	"stocksaga/internal/service/order/domain"
	"stocksaga/internal/service/order/domain/port"
)

const (
	DefaultMaxReservationAttempts = 3
	// 状态冲突时重新读取订单再判断的次数
	maxStateRetries = 3
)

// OrderApplicationService 编排下单、取消与超时处理
type OrderApplicationService struct {
	orderRepo   domain.OrderRepository
	emitter     port.ReservationEmitter
	scheduler   port.DelayScheduler      // 可以为空，此时不做超时兜底
	notifier    port.NotificationProducer // 可以为空
	maxAttempts int
	tracer      trace.Tracer
}

func NewOrderApplicationService(orderRepo domain.OrderRepository, emitter port.ReservationEmitter, scheduler port.DelayScheduler,
	notifier port.NotificationProducer, maxAttempts int, tracer trace.Tracer) *OrderApplicationService {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxReservationAttempts
	}
	return &OrderApplicationService{
		orderRepo:   orderRepo,
		emitter:     emitter,
		scheduler:   scheduler,
		notifier:    notifier,
		maxAttempts: maxAttempts,
		tracer:      tracer,
	}
}

// PlaceOrder 创建订单并发出预占请求，不等待库存结果。
// 请求发不出去时订单被置为 RESERVATION_FAILED 并返回错误
func (s *OrderApplicationService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*OrderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.PlaceOrder", trace.WithAttributes(
		attribute.Int64("customer.id", req.CustomerID),
	))
	defer span.End()

	order, err := domain.NewOrder(req.CustomerID, req.Items)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	orderCtx := &saga.OrderContext{
		Ctx:       ctx,
		Order:     order,
		Tracer:    s.tracer,
		Emitter:   s.emitter,
		Scheduler: s.scheduler,
	}
	if err := s.buildChain().Handle(orderCtx); err != nil {
		logger.Ctx(ctx).Error().Err(err).Int64("order_id", order.ID).Msg("Order placement failed. SAGA compensation triggered.")
		span.RecordError(err)
		span.SetStatus(codes.Error, "Order placement failed in chain")
		orderCtx.TriggerCompensation(ctx)
		if order.State == domain.StateReservationFailed {
			s.notify(ctx, order)
		}
		return nil, err
	}

	span.SetAttributes(attribute.Int64("order.id", order.ID))
	return ToOrderResponse(order), nil
}

func (s *OrderApplicationService) buildChain() saga.Handler {
	chain := saga.NewCreateOrderHandler(s.orderRepo)
	chain.
		SetNext(saga.NewReservationRequestHandler(s.orderRepo)).
		SetNext(new(saga.TimeoutScheduleHandler))
	return chain
}

func (s *OrderApplicationService) GetOrder(ctx context.Context, id int64) (*OrderResponse, error) {
	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return ToOrderResponse(order), nil
}

// CancelOrder 取消订单。已预占的订单会发出释放请求；
// 释放请求发送失败时订单保持 CANCELLED + ReleasePending，再次取消会重发
func (s *OrderApplicationService) CancelOrder(ctx context.Context, id int64, reason string) (*OrderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.CancelOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()
	if reason == "" {
		reason = "Order cancelled"
	}

	for i := 0; i < maxStateRetries; i++ {
		order, err := s.orderRepo.FindByID(ctx, id)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}

		if order.State == domain.StateCancelled {
			if order.ReleasePending {
				if err := s.sendRelease(ctx, order, order.StatusMessage); err != nil {
					span.RecordError(err)
					return nil, err
				}
			}
			return ToOrderResponse(order), nil
		}

		expected := order.State
		needsRelease, err := order.Cancel(reason)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if err := s.orderRepo.Update(ctx, order, expected); err != nil {
			if errors.Is(err, domain.ErrStateConflict) {
				continue
			}
			span.RecordError(err)
			return nil, err
		}
		metrics.OrderTransitions.WithLabelValues(string(domain.StateCancelled)).Inc()
		logger.Ctx(ctx).Info().Int64("order_id", id).Str("from", string(expected)).Str("reason", reason).Msg("Order cancelled")
		s.notify(ctx, order)

		if needsRelease {
			if err := s.sendRelease(ctx, order, reason); err != nil {
				span.RecordError(err)
				return nil, err
			}
		}
		return ToOrderResponse(order), nil
	}
	return nil, errors.Wrapf(domain.ErrStateConflict, "cancel order %d", id)
}

// sendRelease 发出释放请求并清除 ReleasePending
func (s *OrderApplicationService) sendRelease(ctx context.Context, order *domain.Order, reason string) error {
	if err := s.emitter.RequestRelease(ctx, order, reason); err != nil {
		logger.Ctx(ctx).Error().Err(err).Int64("order_id", order.ID).Msg("failed to publish release request, order keeps release pending")
		return errors.Wrap(err, "publish release request")
	}
	order.ReleaseSent()
	if err := s.orderRepo.Update(ctx, order, domain.StateCancelled); err != nil {
		// 释放消息已发出，库存侧按回执去重，重发无害
		logger.Ctx(ctx).Warn().Err(err).Int64("order_id", order.ID).Msg("failed to clear release pending flag")
	}
	return nil
}

// ProcessReservationTimeout 处理到期的超时检查：订单仍在等待时重发请求，次数用尽则判定失败
func (s *OrderApplicationService) ProcessReservationTimeout(ctx context.Context, check *domain.ReservationTimeoutCheck) error {
	ctx, span := s.tracer.Start(ctx, "app.ProcessReservationTimeout", trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.Int64("order.id", check.OrderID),
			attribute.Int("attempt", check.Attempt),
		))
	defer span.End()
	log := logger.Ctx(ctx).With().Int64("order_id", check.OrderID).Int("attempt", check.Attempt).Logger()

	for i := 0; i < maxStateRetries; i++ {
		order, err := s.orderRepo.FindByID(ctx, check.OrderID)
		if err != nil {
			if errors.Is(err, domain.ErrOrderNotFound) {
				log.Warn().Msg("timeout check for unknown order skipped")
				return nil
			}
			span.RecordError(err)
			return err
		}
		if order.State != domain.StateAwaitingReservation {
			log.Info().Str("state", string(order.State)).Msg("Order no longer awaiting reservation, timeout check ignored")
			return nil
		}
		if check.Attempt < order.ReservationAttempts {
			// 之后又重发过，由更新的检查负责
			return nil
		}

		if order.ReservationAttempts >= s.maxAttempts {
			if err := order.MarkReservationFailed(domain.MsgReservationTimedOut, nil); err != nil {
				return err
			}
			if err := s.orderRepo.Update(ctx, order, domain.StateAwaitingReservation); err != nil {
				if errors.Is(err, domain.ErrStateConflict) {
					continue
				}
				span.RecordError(err)
				return err
			}
			metrics.OrderTransitions.WithLabelValues(string(domain.StateReservationFailed)).Inc()
			log.Warn().Msg("Reservation timed out, order failed")
			s.notify(ctx, order)
			return nil
		}

		if err := order.RetryReservation(); err != nil {
			return err
		}
		if err := s.orderRepo.Update(ctx, order, domain.StateAwaitingReservation); err != nil {
			if errors.Is(err, domain.ErrStateConflict) {
				continue
			}
			span.RecordError(err)
			return err
		}
		// 库存侧按 orderId 幂等，重发不会重复预占
		if err := s.emitter.RequestReservation(ctx, order); err != nil {
			span.RecordError(err)
			return errors.Wrap(err, "re-publish reservation request")
		}
		log.Warn().Int("reservation_attempts", order.ReservationAttempts).Msg("No reservation outcome in time, request re-published")
		if s.scheduler != nil {
			if err := s.scheduler.ScheduleReservationTimeout(ctx, order.ID, order.ReservationAttempts); err != nil {
				log.Error().Err(err).Msg("failed to reschedule reservation timeout check")
			}
		}
		return nil
	}
	return errors.Wrapf(domain.ErrStateConflict, "timeout check for order %d", check.OrderID)
}

func (s *OrderApplicationService) notify(ctx context.Context, order *domain.Order) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, order); err != nil {
		logger.Ctx(ctx).Error().Err(err).Int64("order_id", order.ID).Msg("WARN: failed to publish order notification")
	}
}
