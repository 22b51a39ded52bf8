package application

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"stocksaga/internal/pkg/event"
	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/pkg/metrics"
	"stocksaga/internal/service/order/domain"
	"stocksaga/internal/service/order/domain/port"
)

const MsgLateReservation = "Late reservation for order no longer awaiting inventory"

// OutcomeHandler 根据库存服务的预占结果推进订单状态
type OutcomeHandler struct {
	orderRepo domain.OrderRepository
	emitter   port.ReservationEmitter
	notifier  port.NotificationProducer // 可以为空
	tracer    trace.Tracer
}

func NewOutcomeHandler(orderRepo domain.OrderRepository, emitter port.ReservationEmitter, notifier port.NotificationProducer, tracer trace.Tracer) *OutcomeHandler {
	return &OutcomeHandler{orderRepo: orderRepo, emitter: emitter, notifier: notifier, tracer: tracer}
}

// Handle 以订单当前状态为前提条件迁移，重复的结果消息不会重复生效。
// 订单已不再等待时收到成功结果，发出释放请求避免库存泄漏
func (h *OutcomeHandler) Handle(ctx context.Context, outcome *event.ReservationResponded) error {
	ctx, span := h.tracer.Start(ctx, "app.HandleReservationOutcome", trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.Int64("order.id", outcome.OrderID),
			attribute.Bool("reservation.success", outcome.Success),
		))
	defer span.End()
	log := logger.Ctx(ctx).With().Int64("order_id", outcome.OrderID).Bool("success", outcome.Success).Logger()

	for i := 0; i < maxStateRetries; i++ {
		order, err := h.orderRepo.FindByID(ctx, outcome.OrderID)
		if err != nil {
			span.RecordError(err)
			return err
		}

		switch order.State {
		case domain.StateAwaitingReservation:
		case domain.StateCancelled, domain.StateReservationFailed:
			if !outcome.Success {
				log.Info().Str("state", string(order.State)).Msg("failure outcome for settled order ignored")
				return nil
			}
			log.Warn().Str("state", string(order.State)).Msg("Late reservation success, releasing stock")
			if err := h.emitter.RequestRelease(ctx, order, MsgLateReservation); err != nil {
				span.RecordError(err)
				return errors.Wrap(err, "release late reservation")
			}
			return nil
		default:
			// RESERVED 或 CREATED：重复消息
			log.Info().Str("state", string(order.State)).Msg("duplicate reservation outcome ignored")
			return nil
		}

		if outcome.Success {
			err = order.MarkReserved(outcome.Message)
		} else {
			err = order.MarkReservationFailed(outcome.Message, outcome.FailedItems)
		}
		if err != nil {
			return err
		}
		if err := h.orderRepo.Update(ctx, order, domain.StateAwaitingReservation); err != nil {
			if errors.Is(err, domain.ErrStateConflict) {
				// 取消或超时抢先了，重新判断
				continue
			}
			span.RecordError(err)
			return err
		}

		metrics.OrderTransitions.WithLabelValues(string(order.State)).Inc()
		log.Info().Str("state", string(order.State)).Strs("failed_items", order.FailedItems).Msg("Order reservation settled")
		if h.notifier != nil {
			if err := h.notifier.Notify(ctx, order); err != nil {
				log.Error().Err(err).Msg("WARN: failed to publish order notification")
			}
		}
		return nil
	}
	return errors.Wrapf(domain.ErrStateConflict, "apply outcome to order %d", outcome.OrderID)
}
