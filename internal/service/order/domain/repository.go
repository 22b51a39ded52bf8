package domain

import "context"

// OrderRepository 订单聚合的持久化接口，由基础设施层实现
type OrderRepository interface {
	// Create 保存新订单并回填 ID
	Create(ctx context.Context, order *Order) error

	// FindByID 找不到时返回 ErrOrderNotFound
	FindByID(ctx context.Context, id int64) (*Order, error)

	// Update 仅当库中状态仍为 expected 时写入，否则返回 ErrStateConflict。
	// 并发的结果消息、超时检查与取消请求通过它互斥
	Update(ctx context.Context, order *Order, expected State) error
}
