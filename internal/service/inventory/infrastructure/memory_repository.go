package infrastructure

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"stocksaga/internal/service/inventory/domain"
)

type receiptKey struct {
	orderID int64
	kind    domain.ReceiptKind
}

// MemoryLedgerRepository 是进程内实现，database.driver=memory 时使用，语义与 GORM 实现一致
type MemoryLedgerRepository struct {
	mu        sync.RWMutex
	entries   map[int64]*domain.StockLedgerEntry
	movements []domain.StockMovement
	receipts  map[receiptKey]*domain.Receipt
	nextID    int64
}

func NewMemoryLedgerRepository() *MemoryLedgerRepository {
	return &MemoryLedgerRepository{
		entries:  make(map[int64]*domain.StockLedgerEntry),
		receipts: make(map[receiptKey]*domain.Receipt),
	}
}

func (r *MemoryLedgerRepository) Get(_ context.Context, productID int64) (*domain.StockLedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[productID]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	return e.Clone(), nil
}

func (r *MemoryLedgerRepository) List(_ context.Context) ([]*domain.StockLedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.StockLedgerEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (r *MemoryLedgerRepository) Create(_ context.Context, entry *domain.StockLedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entry.ProductID]; ok {
		return domain.ErrEntryExists
	}
	r.entries[entry.ProductID] = entry.Clone()
	return nil
}

// Commit 先检查全部版本和回执，全部通过后再写入，保证要么全部生效要么全部不生效
func (r *MemoryLedgerRepository) Commit(_ context.Context, c *domain.Commit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.Receipt != nil {
		if _, ok := r.receipts[receiptKey{c.Receipt.OrderID, c.Receipt.Kind}]; ok {
			return domain.ErrDuplicateReceipt
		}
	}
	for _, e := range c.Entries {
		cur, ok := r.entries[e.ProductID]
		if !ok || cur.Version != e.Version {
			return errors.Wrapf(domain.ErrVersionConflict, "product %d at version %d", e.ProductID, e.Version)
		}
	}

	for _, e := range c.Entries {
		e.Version++
		r.entries[e.ProductID] = e.Clone()
	}
	for _, m := range c.Movements {
		r.nextID++
		m.ID = r.nextID
		r.movements = append(r.movements, m)
	}
	if c.Receipt != nil {
		receipt := *c.Receipt
		receipt.FailedItems = append([]string{}, c.Receipt.FailedItems...)
		r.receipts[receiptKey{receipt.OrderID, receipt.Kind}] = &receipt
	}
	return nil
}

func (r *MemoryLedgerRepository) FindReceipt(_ context.Context, orderID int64, kind domain.ReceiptKind) (*domain.Receipt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	receipt, ok := r.receipts[receiptKey{orderID, kind}]
	if !ok {
		return nil, nil
	}
	cp := *receipt
	return &cp, nil
}

func (r *MemoryLedgerRepository) ListMovements(_ context.Context, productID int64, limit int) ([]domain.StockMovement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.StockMovement
	for i := len(r.movements) - 1; i >= 0; i-- {
		if r.movements[i].ProductID != productID {
			continue
		}
		out = append(out, r.movements[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MemoryAlertRepository 告警的进程内实现
type MemoryAlertRepository struct {
	mu     sync.RWMutex
	alerts []*domain.StockAlert // 按创建顺序
	nextID int64
}

func NewMemoryAlertRepository() *MemoryAlertRepository {
	return &MemoryAlertRepository{}
}

func (r *MemoryAlertRepository) Latest(_ context.Context, productID int64, alertType domain.AlertType) (*domain.StockAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *domain.StockAlert
	for _, a := range r.alerts {
		if a.ProductID != productID || a.AlertType != alertType {
			continue
		}
		if latest == nil || !a.CreatedAt.Before(latest.CreatedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, nil
	}
	return copyAlert(latest), nil
}

func (r *MemoryAlertRepository) Create(_ context.Context, alert *domain.StockAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	alert.ID = r.nextID
	r.alerts = append(r.alerts, copyAlert(alert))
	return nil
}

func (r *MemoryAlertRepository) Get(_ context.Context, id int64) (*domain.StockAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.alerts {
		if a.ID == id {
			return copyAlert(a), nil
		}
	}
	return nil, domain.ErrAlertNotFound
}

func (r *MemoryAlertRepository) Save(_ context.Context, alert *domain.StockAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, a := range r.alerts {
		if a.ID == alert.ID {
			r.alerts[i] = copyAlert(alert)
			return nil
		}
	}
	return domain.ErrAlertNotFound
}

func (r *MemoryAlertRepository) ListOpen(_ context.Context) ([]*domain.StockAlert, error) {
	return r.filter(func(a *domain.StockAlert) bool { return !a.IsResolved }), nil
}

func (r *MemoryAlertRepository) ListHistory(_ context.Context) ([]*domain.StockAlert, error) {
	return r.filter(func(*domain.StockAlert) bool { return true }), nil
}

func (r *MemoryAlertRepository) ListByProduct(_ context.Context, productID int64) ([]*domain.StockAlert, error) {
	return r.filter(func(a *domain.StockAlert) bool { return a.ProductID == productID }), nil
}

// filter 按创建时间倒序返回
func (r *MemoryAlertRepository) filter(keep func(*domain.StockAlert) bool) []*domain.StockAlert {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.StockAlert, 0)
	for i := len(r.alerts) - 1; i >= 0; i-- {
		if keep(r.alerts[i]) {
			out = append(out, copyAlert(r.alerts[i]))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func copyAlert(a *domain.StockAlert) *domain.StockAlert {
	cp := *a
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}
