package saga

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/pkg/metrics"
	"stocksaga/internal/service/order/domain"
)

const MsgRequestFailed = "Failed to request inventory reservation"

// ReservationRequestHandler 把订单置为 AWAITING_RESERVATION 并发出预占请求。
// 先落库再发消息，保证结果消息到达时订单已处于等待状态
type ReservationRequestHandler struct {
	NextHandler
	repo domain.OrderRepository
}

func NewReservationRequestHandler(repo domain.OrderRepository) *ReservationRequestHandler {
	return &ReservationRequestHandler{repo: repo}
}

func (h *ReservationRequestHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.RequestReservation")
	defer span.End()

	order := orderCtx.Order
	if err := order.MarkAwaitingReservation(); err != nil {
		span.RecordError(err)
		return err
	}
	if err := h.repo.Update(ctx, order, domain.StateCreated); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to mark order as awaiting reservation")
		return errors.Wrap(err, "mark order awaiting reservation")
	}
	metrics.OrderTransitions.WithLabelValues(string(domain.StateAwaitingReservation)).Inc()

	// 请求没发出去，订单不能一直等下去
	orderCtx.AddCompensation(func(compCtx context.Context) {
		compCtx, compSpan := orderCtx.Tracer.Start(compCtx, "saga.compensation.FailReservation")
		defer compSpan.End()

		failed := order.Clone()
		if err := failed.MarkReservationFailed(MsgRequestFailed, nil); err != nil {
			compSpan.RecordError(err)
			return
		}
		if err := h.repo.Update(compCtx, failed, domain.StateAwaitingReservation); err != nil {
			// 结果消息可能已经先一步改变了状态
			compSpan.RecordError(err)
			logger.Ctx(compCtx).Error().Err(err).Int64("order_id", order.ID).Msg("CRITICAL: failed to mark order as RESERVATION_FAILED")
			return
		}
		*order = *failed
		metrics.OrderTransitions.WithLabelValues(string(domain.StateReservationFailed)).Inc()
	})

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.Int("items", len(order.Items)),
	)
	if err := orderCtx.Emitter.RequestReservation(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to publish reservation request")
		return errors.Wrap(err, "publish reservation request")
	}
	span.AddEvent("Reservation request published")
	logger.Ctx(ctx).Info().Int64("order_id", order.ID).Msg("Reservation request published, awaiting outcome")

	return h.executeNext(orderCtx)
}
