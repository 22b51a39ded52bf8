package port

import (
	"context"

	"stocksaga/internal/service/inventory/domain"
)

// ReceiptCache 是处理回执的快速查询缓存，数据库中的回执才是最终依据。
type ReceiptCache interface {
	// Get 未命中时返回 (nil, nil)
	Get(ctx context.Context, orderID int64, kind domain.ReceiptKind) (*domain.Receipt, error)
	Put(ctx context.Context, receipt *domain.Receipt) error
}
