package saga

import (
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/pkg/metrics"
	"stocksaga/internal/service/order/domain"
)

// CreateOrderHandler 持久化 CREATED 状态的订单并回填 ID
type CreateOrderHandler struct {
	NextHandler
	repo domain.OrderRepository
}

func NewCreateOrderHandler(repo domain.OrderRepository) *CreateOrderHandler {
	return &CreateOrderHandler{repo: repo}
}

func (h *CreateOrderHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.CreateOrder")
	defer span.End()

	if err := h.repo.Create(ctx, orderCtx.Order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to save initial order")
		return errors.Wrap(err, "save new order")
	}
	metrics.OrderTransitions.WithLabelValues(string(domain.StateCreated)).Inc()
	span.SetAttributes(attribute.Int64("order.id", orderCtx.Order.ID))
	logger.Ctx(ctx).Info().
		Int64("order_id", orderCtx.Order.ID).
		Int64("customer_id", orderCtx.Order.CustomerID).
		Int("items", len(orderCtx.Order.Items)).
		Msg("Order saved with CREATED state")

	return h.executeNext(orderCtx)
}
