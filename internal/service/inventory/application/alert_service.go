package application

import (
	"context"
	"time"

	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/service/inventory/domain"
)

// AlertService 告警的查询与人工处理
type AlertService struct {
	repo domain.AlertRepository
	now  func() time.Time
}

func NewAlertService(repo domain.AlertRepository) *AlertService {
	return &AlertService{repo: repo, now: time.Now}
}

func (s *AlertService) ListOpen(ctx context.Context) ([]*domain.StockAlert, error) {
	return s.repo.ListOpen(ctx)
}

func (s *AlertService) ListHistory(ctx context.Context) ([]*domain.StockAlert, error) {
	return s.repo.ListHistory(ctx)
}

func (s *AlertService) ListByProduct(ctx context.Context, productID int64) ([]*domain.StockAlert, error) {
	return s.repo.ListByProduct(ctx, productID)
}

// Resolve 标记告警已处理，已解决的告警原样返回
func (s *AlertService) Resolve(ctx context.Context, id int64) (*domain.StockAlert, error) {
	alert, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.IsResolved {
		return alert, nil
	}
	alert.Resolve(s.now())
	if err := s.repo.Save(ctx, alert); err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().Int64("alert_id", id).Int64("product_id", alert.ProductID).Msg("stock alert resolved")
	return alert, nil
}
