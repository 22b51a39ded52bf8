package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"stocksaga/internal/pkg/redis"
	"stocksaga/internal/service/inventory/domain"
)

const receiptKeyPrefix = "stocksaga:receipt"

// ReceiptRedisAdapter 实现了 port.ReceiptCache 接口
type ReceiptRedisAdapter struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewReceiptRedisAdapter(rdb *redis.Client, ttl time.Duration) *ReceiptRedisAdapter {
	return &ReceiptRedisAdapter{rdb: rdb, ttl: ttl}
}

func receiptKey(orderID int64, kind domain.ReceiptKind) string {
	return fmt.Sprintf("%s:%d:%s", receiptKeyPrefix, orderID, kind)
}

func (a *ReceiptRedisAdapter) Get(ctx context.Context, orderID int64, kind domain.ReceiptKind) (*domain.Receipt, error) {
	raw, err := a.rdb.Get(ctx, receiptKey(orderID, kind)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "redis get receipt")
	}
	var r domain.Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, errors.Wrap(err, "decode cached receipt")
	}
	return &r, nil
}

func (a *ReceiptRedisAdapter) Put(ctx context.Context, receipt *domain.Receipt) error {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return errors.Wrap(err, "encode receipt")
	}
	// 只有首次写入生效，与数据库的唯一约束保持一致
	if err := a.rdb.SetNX(ctx, receiptKey(receipt.OrderID, receipt.Kind), raw, a.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set receipt")
	}
	return nil
}
