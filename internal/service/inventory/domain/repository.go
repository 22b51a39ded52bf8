package domain

import "context"

// Commit 是一次原子提交：所有库存行的版本检查都通过才生效，否则整体回滚
type Commit struct {
	// Entries 中每条记录的 Version 是读取时的版本，提交成功后递增
	Entries   []*StockLedgerEntry
	Movements []StockMovement
	Receipt   *Receipt // 可选
}

// LedgerRepository 库存台账的持久化接口，由基础设施层实现
type LedgerRepository interface {
	// Get 返回 ErrEntryNotFound 表示商品尚未建账
	Get(ctx context.Context, productID int64) (*StockLedgerEntry, error)
	List(ctx context.Context) ([]*StockLedgerEntry, error)
	// Create 商品已存在时返回 ErrEntryExists
	Create(ctx context.Context, entry *StockLedgerEntry) error
	// Commit 任一行版本不匹配返回 ErrVersionConflict；回执重复返回 ErrDuplicateReceipt
	Commit(ctx context.Context, c *Commit) error

	// FindReceipt 未处理过时返回 (nil, nil)
	FindReceipt(ctx context.Context, orderID int64, kind ReceiptKind) (*Receipt, error)
	ListMovements(ctx context.Context, productID int64, limit int) ([]StockMovement, error)
}

// AlertRepository 告警的持久化接口
type AlertRepository interface {
	// Latest 返回 (商品, 类型) 最近创建的一条告警，不存在时返回 (nil, nil)
	Latest(ctx context.Context, productID int64, alertType AlertType) (*StockAlert, error)
	Create(ctx context.Context, alert *StockAlert) error
	Get(ctx context.Context, id int64) (*StockAlert, error)
	Save(ctx context.Context, alert *StockAlert) error
	ListOpen(ctx context.Context) ([]*StockAlert, error)
	ListHistory(ctx context.Context) ([]*StockAlert, error)
	ListByProduct(ctx context.Context, productID int64) ([]*StockAlert, error)
}

// AlertClassifier 根据库存快照判断应触发的告警类型，ok=false 表示无需告警
type AlertClassifier interface {
	Classify(entry *StockLedgerEntry) (alertType AlertType, ok bool, err error)
}
