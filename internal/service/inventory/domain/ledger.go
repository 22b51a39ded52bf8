// internal/service/inventory/domain/ledger.go
package domain

import (
	"fmt"
	"time"
)

// StockLedgerEntry 每个商品一条：实际库存、已预占数量、可用数量
type StockLedgerEntry struct {
	ProductID     int64
	PhysicalStock int
	Reserved      int
	Available     int // 派生字段，每次写入时重新计算
	MinThreshold  int
	Version       int64 // 乐观锁版本号
	UpdatedAt     time.Time
}

// NewStockLedgerEntry 创建一条新的库存记录 (首次引用商品时惰性创建)
func NewStockLedgerEntry(productID int64, physicalStock, minThreshold int) *StockLedgerEntry {
	if physicalStock < 0 {
		physicalStock = 0
	}
	e := &StockLedgerEntry{
		ProductID:     productID,
		PhysicalStock: physicalStock,
		MinThreshold:  minThreshold,
		UpdatedAt:     time.Now().UTC(),
	}
	e.recompute()
	return e
}

// CurrentAvailable 是未截断的 physical - reserved，外部直接削减实际库存时可能为负
func (e *StockLedgerEntry) CurrentAvailable() int {
	return e.PhysicalStock - e.Reserved
}

func (e *StockLedgerEntry) recompute() {
	a := e.PhysicalStock - e.Reserved
	if a < 0 {
		a = 0
	}
	e.Available = a
	e.UpdatedAt = time.Now().UTC()
}

// AdjustPhysical 调整实际库存 (入库为正，出库/盘亏为负)
func (e *StockLedgerEntry) AdjustPhysical(delta int) error {
	next := e.PhysicalStock + delta
	if next < 0 {
		return fmt.Errorf("%w: product %d has %d, delta %d", ErrNegativePhysicalStock, e.ProductID, e.PhysicalStock, delta)
	}
	e.PhysicalStock = next
	e.recompute()
	return nil
}

// Reserve 预占 qty 件，不允许超过当前可用数量。负数等价于 Release(-qty)
func (e *StockLedgerEntry) Reserve(qty int) error {
	if qty < 0 {
		e.Release(-qty)
		return nil
	}
	if qty == 0 {
		return nil
	}
	if available := e.CurrentAvailable(); available < qty {
		return &InsufficientStockError{ProductID: e.ProductID, Available: available, Requested: qty}
	}
	e.Reserved += qty
	e.recompute()
	return nil
}

// Release 归还 qty 件预占，reserved 最低截断为 0。返回实际归还的数量。
// 负数等价于 Reserve(-qty)，此时若库存不足则不做任何修改并返回 0
func (e *StockLedgerEntry) Release(qty int) int {
	if qty < 0 {
		if err := e.Reserve(-qty); err != nil {
			return 0
		}
		return qty
	}
	released := min(qty, e.Reserved)
	e.Reserved -= released
	e.recompute()
	return released
}

// SetMinThreshold 设置告警阈值
func (e *StockLedgerEntry) SetMinThreshold(threshold int) error {
	if threshold < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidThreshold, threshold)
	}
	e.MinThreshold = threshold
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// Clone 返回一份快照副本
func (e *StockLedgerEntry) Clone() *StockLedgerEntry {
	c := *e
	return &c
}

// MovementKind 库存变动类型
type MovementKind string

const (
	MovementAdjust  MovementKind = "ADJUST"
	MovementReserve MovementKind = "RESERVE"
	MovementRelease MovementKind = "RELEASE"
)

// StockMovement 每次提交的库存变动流水
type StockMovement struct {
	ID        int64
	ProductID int64
	Kind      MovementKind
	Delta     int
	OrderID   int64 // 调整库存时为 0
	CreatedAt time.Time
}
