package domain

import (
	"fmt"
	"time"
)

// AlertType 库存告警类型
type AlertType string

const (
	AlertLowStock   AlertType = "LOW_STOCK"
	AlertOutOfStock AlertType = "OUT_OF_STOCK"
)

func (t AlertType) Valid() bool {
	return t == AlertLowStock || t == AlertOutOfStock
}

// StockAlert 由扫描器创建，只能由运营人员显式解决
type StockAlert struct {
	ID         int64      `json:"id"`
	ProductID  int64      `json:"productId"`
	AlertType  AlertType  `json:"alertType"`
	Message    string     `json:"message"`
	IsResolved bool       `json:"isResolved"`
	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// NewStockAlert 根据当前库存快照生成告警
func NewStockAlert(entry *StockLedgerEntry, alertType AlertType, now time.Time) *StockAlert {
	var msg string
	switch alertType {
	case AlertOutOfStock:
		msg = fmt.Sprintf("Product %d is out of stock (available: %d)", entry.ProductID, entry.Available)
	default:
		msg = fmt.Sprintf("Product %d is low on stock (available: %d, threshold: %d)", entry.ProductID, entry.Available, entry.MinThreshold)
	}
	return &StockAlert{
		ProductID: entry.ProductID,
		AlertType: alertType,
		Message:   msg,
		CreatedAt: now.UTC(),
	}
}

// Resolve 标记为已解决，重复调用不改变首次解决时间
func (a *StockAlert) Resolve(now time.Time) {
	if a.IsResolved {
		return
	}
	t := now.UTC()
	a.IsResolved = true
	a.ResolvedAt = &t
}

// SuppressesNew 判断同一 (商品, 类型) 的最近一条告警是否应抑制新告警：
// 未解决，或虽已解决但创建时间仍在冷却窗口内
func (a *StockAlert) SuppressesNew(now time.Time, cooldown time.Duration) bool {
	if a == nil {
		return false
	}
	if !a.IsResolved {
		return true
	}
	return now.Sub(a.CreatedAt) < cooldown
}
