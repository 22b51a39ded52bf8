package port

import (
	"context"

	"stocksaga/internal/service/order/domain"
)

// ReservationEmitter 向库存服务发出预占与释放请求的出站端口
type ReservationEmitter interface {
	// RequestReservation 发出预占请求，不等待结果
	RequestReservation(ctx context.Context, order *domain.Order) error

	// RequestRelease 请求归还订单的全部预占
	RequestRelease(ctx context.Context, order *domain.Order, reason string) error
}
