package port

import (
	"context"

	"stocksaga/internal/service/order/domain"
)

// NotificationProducer 订单状态变化通知的出站端口
type NotificationProducer interface {
	Notify(ctx context.Context, order *domain.Order) error
}
