package saga

import (
	"go.opentelemetry.io/otel/codes"
	"stocksaga/internal/pkg/logger"
)

// TimeoutScheduleHandler 安排预占超时检查。
// 调度失败不影响下单，订单只是失去了超时兜底
type TimeoutScheduleHandler struct {
	NextHandler
}

func (h *TimeoutScheduleHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.ScheduleReservationTimeout")
	defer span.End()

	if orderCtx.Scheduler != nil {
		err := orderCtx.Scheduler.ScheduleReservationTimeout(ctx, orderCtx.Order.ID, orderCtx.Order.ReservationAttempts)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to schedule reservation timeout")
			logger.Ctx(ctx).Error().Err(err).Int64("order_id", orderCtx.Order.ID).Msg("WARN: failed to schedule reservation timeout check")
		}
	}
	return h.executeNext(orderCtx)
}
