package infrastructure

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"stocksaga/internal/service/order/domain"
)

// MemoryOrderRepository 进程内实现，database.driver=memory 时使用
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[int64]*domain.Order
	nextID int64
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[int64]*domain.Order)}
}

func (r *MemoryOrderRepository) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	order.ID = r.nextID
	r.orders[order.ID] = order.Clone()
	return nil
}

func (r *MemoryOrderRepository) FindByID(_ context.Context, id int64) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrOrderNotFound, "order %d", id)
	}
	return o.Clone(), nil
}

func (r *MemoryOrderRepository) Update(_ context.Context, order *domain.Order, expected domain.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.orders[order.ID]
	if !ok {
		return errors.Wrapf(domain.ErrOrderNotFound, "order %d", order.ID)
	}
	if current.State != expected {
		return errors.Wrapf(domain.ErrStateConflict, "order %d is %s, expected %s", order.ID, current.State, expected)
	}
	r.orders[order.ID] = order.Clone()
	return nil
}
