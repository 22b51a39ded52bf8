package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"stocksaga/internal/service/order/domain"
)

// GormOrderRepository 是 OrderRepository 的 GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	model, err := fromDomainOrder(order)
	if err != nil {
		return errors.Wrap(err, "encode order")
	}
	model.ID = 0
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return errors.Wrap(err, "create order")
	}
	order.ID = model.ID
	return nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	var model OrderModel
	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(domain.ErrOrderNotFound, "order %d", id)
		}
		return nil, errors.Wrapf(err, "load order %d", id)
	}
	return toDomainOrder(&model)
}

// Update 用 WHERE state = expected 实现条件更新
func (r *GormOrderRepository) Update(ctx context.Context, order *domain.Order, expected domain.State) error {
	failed, err := encodeFailedItems(order.FailedItems)
	if err != nil {
		return errors.Wrap(err, "encode failed items")
	}
	res := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ? AND state = ?", order.ID, string(expected)).
		Updates(map[string]interface{}{
			"state":                string(order.State),
			"status_message":       order.StatusMessage,
			"failed_items":         failed,
			"reservation_attempts": order.ReservationAttempts,
			"release_pending":      order.ReleasePending,
			"updated_at":           order.UpdatedAt,
		})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update order %d", order.ID)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&OrderModel{}).Where("id = ?", order.ID).Count(&count).Error; err != nil {
		return errors.Wrapf(err, "check order %d", order.ID)
	}
	if count == 0 {
		return errors.Wrapf(domain.ErrOrderNotFound, "order %d", order.ID)
	}
	return errors.Wrapf(domain.ErrStateConflict, "order %d is no longer %s", order.ID, expected)
}
