package interfaces

import (
	"context"

	"stocksaga/internal/pkg/event"
	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/service/inventory/application"
)

// ReservationHandler 消费 reservation-request
type ReservationHandler struct {
	event.Unhandled
	processor *application.ReservationProcessor
}

func NewReservationHandler(processor *application.ReservationProcessor) *ReservationHandler {
	return &ReservationHandler{processor: processor}
}

// OnReservationRequested 业务拒绝不是错误；只有基础设施故障才返回错误，消息随后进入死信主题
func (h *ReservationHandler) OnReservationRequested(ctx context.Context, m *event.ReservationRequested) error {
	outcome, err := h.processor.Process(ctx, m)
	if err != nil {
		return err
	}
	logger.Ctx(ctx).Info().
		Int64("order_id", m.OrderID).
		Bool("success", outcome.Success).
		Strs("failed_items", outcome.FailedItems).
		Msg("reservation request handled")
	return nil
}

// ReleaseHandler 消费 reservation-release
type ReleaseHandler struct {
	event.Unhandled
	compensator *application.Compensator
}

func NewReleaseHandler(compensator *application.Compensator) *ReleaseHandler {
	return &ReleaseHandler{compensator: compensator}
}

func (h *ReleaseHandler) OnReleaseRequested(ctx context.Context, m *event.ReleaseRequested) error {
	_, err := h.compensator.Release(ctx, m)
	return err
}
