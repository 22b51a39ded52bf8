package infrastructure

import "time"

// OrderModel 对应 orders 表。Items / FailedItems 以 JSON 文本保存
type OrderModel struct {
	ID                  int64  `gorm:"primaryKey"`
	CustomerID          int64  `gorm:"index"`
	Items               string `gorm:"type:text"`
	State               string `gorm:"size:32;index"`
	StatusMessage       string `gorm:"size:255"`
	FailedItems         string `gorm:"type:text"`
	ReservationAttempts int
	ReleasePending      bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (OrderModel) TableName() string {
	return "orders"
}

// AllModels 用于 AutoMigrate
func AllModels() []interface{} {
	return []interface{}{&OrderModel{}}
}
