package domain

import "time"

// ReservationTimeoutCheck 通过延迟主题投递，到期后检查订单是否仍在等待预占结果
type ReservationTimeoutCheck struct {
	OrderID     int64     `json:"orderId"`
	Attempt     int       `json:"attempt"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// OrderNotification 发往 order-notifications，由通知服务消费
type OrderNotification struct {
	OrderID     int64    `json:"orderId"`
	CustomerID  int64    `json:"customerId"`
	Status      State    `json:"status"`
	Message     string   `json:"message"`
	FailedItems []string `json:"failedItems,omitempty"`
}

func NewOrderNotification(o *Order) *OrderNotification {
	return &OrderNotification{
		OrderID:     o.ID,
		CustomerID:  o.CustomerID,
		Status:      o.State,
		Message:     o.StatusMessage,
		FailedItems: o.FailedItems,
	}
}
