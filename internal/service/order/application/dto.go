package application

import (
	"time"

	"stocksaga/internal/pkg/event"
	"stocksaga/internal/service/order/domain"
)

// PlaceOrderRequest 是下单用例的输入数据
type PlaceOrderRequest struct {
	CustomerID int64        `json:"customerId"`
	Items      []event.Item `json:"items"`
}

// OrderResponse 对外展示的订单视图，失败时带上不可用的行，不包含任何传输层错误
type OrderResponse struct {
	OrderID     int64        `json:"orderId"`
	CustomerID  int64        `json:"customerId"`
	Status      domain.State `json:"status"`
	Message     string       `json:"message,omitempty"`
	FailedItems []string     `json:"failedItems,omitempty"`
	Items       []event.Item `json:"items"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

func ToOrderResponse(o *domain.Order) *OrderResponse {
	return &OrderResponse{
		OrderID:     o.ID,
		CustomerID:  o.CustomerID,
		Status:      o.State,
		Message:     o.StatusMessage,
		FailedItems: o.FailedItems,
		Items:       o.Items,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}
