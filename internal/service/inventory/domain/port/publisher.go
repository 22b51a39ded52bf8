package port

import (
	"context"

	"stocksaga/internal/pkg/event"
	"stocksaga/internal/service/inventory/domain"
)

// OutcomePublisher 发布预占结果
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, outcome *event.ReservationResponded) error
}

// AlertPublisher 发布新产生的库存告警
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert *domain.StockAlert) error
}
