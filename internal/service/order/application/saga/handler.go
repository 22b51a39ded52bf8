package saga

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/service/order/domain"
	"stocksaga/internal/service/order/domain/port"
)

// OrderContext 在下单流程的各步骤之间传递上下文数据
type OrderContext struct {
	Ctx    context.Context
	Order  *domain.Order
	Tracer trace.Tracer

	// 出站端口
	Emitter   port.ReservationEmitter
	Scheduler port.DelayScheduler

	// 补偿按注册的逆序执行
	compensations []func(ctx context.Context)
	compLock      sync.Mutex
}

func (c *OrderContext) AddCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

func (c *OrderContext) TriggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	logger.Ctx(ctx).Info().Int64("order_id", c.Order.ID).Int("count", len(c.compensations)).Msg("Executing compensation functions")
	for _, comp := range c.compensations {
		comp(ctx)
	}
}

// Handler 下单流程中的一个步骤
type Handler interface {
	SetNext(handler Handler) Handler
	Handle(orderCtx *OrderContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(orderCtx *OrderContext) error {
	if h.next != nil {
		return h.next.Handle(orderCtx)
	}
	return nil
}
