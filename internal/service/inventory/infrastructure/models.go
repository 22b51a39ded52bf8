package infrastructure

import "time"

// StockLedgerModel 对应 stock_ledger 表，每个商品一行
type StockLedgerModel struct {
	ProductID     int64 `gorm:"primaryKey;autoIncrement:false"`
	PhysicalStock int   `gorm:"not null"`
	Reserved      int   `gorm:"not null"`
	Available     int   `gorm:"not null"`
	MinThreshold  int   `gorm:"not null"`
	Version       int64 `gorm:"not null"`
	UpdatedAt     time.Time
}

func (StockLedgerModel) TableName() string {
	return "stock_ledger"
}

// StockMovementModel 库存变动流水
type StockMovementModel struct {
	ID        int64  `gorm:"primaryKey"`
	ProductID int64  `gorm:"index:idx_movement_product"`
	Kind      string `gorm:"size:16"`
	Delta     int
	OrderID   int64
	CreatedAt time.Time
}

func (StockMovementModel) TableName() string {
	return "stock_movements"
}

// ProcessingReceiptModel 每个 (订单, 类型) 只能有一条
type ProcessingReceiptModel struct {
	ID          int64  `gorm:"primaryKey"`
	OrderID     int64  `gorm:"uniqueIndex:uk_receipt_order_kind"`
	Kind        string `gorm:"size:16;uniqueIndex:uk_receipt_order_kind"`
	Success     bool
	Message     string `gorm:"size:255"`
	FailedItems string `gorm:"type:text"` // JSON 数组
	CreatedAt   time.Time
}

func (ProcessingReceiptModel) TableName() string {
	return "processing_receipts"
}

// StockAlertModel 对应 stock_alerts 表
type StockAlertModel struct {
	ID         int64  `gorm:"primaryKey"`
	ProductID  int64  `gorm:"index:idx_alert_product_type"`
	AlertType  string `gorm:"size:16;index:idx_alert_product_type"`
	Message    string `gorm:"size:255"`
	IsResolved bool   `gorm:"index"`
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

func (StockAlertModel) TableName() string {
	return "stock_alerts"
}

// AllModels 用于 AutoMigrate
func AllModels() []interface{} {
	return []interface{}{
		&StockLedgerModel{},
		&StockMovementModel{},
		&ProcessingReceiptModel{},
		&StockAlertModel{},
	}
}
