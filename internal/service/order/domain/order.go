package domain

import (
	"fmt"
	"time"

	"stocksaga/internal/pkg/event"
)

const MsgReservationTimedOut = "Reservation timed out"

// Order 是订单聚合的根实体。只包含与库存预占 saga 相关的字段
type Order struct {
	ID         int64
	CustomerID int64
	Items      []event.Item
	State      State
	// StatusMessage 最近一次状态变化的原因，失败时是库存服务的说明
	StatusMessage string
	FailedItems   []string
	// ReservationAttempts 已发出的预占请求次数 (含超时重发)
	ReservationAttempts int
	// ReleasePending 已取消但释放消息尚未成功发出
	ReleasePending bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewOrder 创建处于 CREATED 状态的订单
func NewOrder(customerID int64, items []event.Item) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, it := range items {
		if it.ProductID == 0 || it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %d quantity %d", ErrInvalidItem, it.ProductID, it.Quantity)
		}
	}
	now := time.Now().UTC()
	return &Order{
		CustomerID: customerID,
		Items:      append([]event.Item(nil), items...),
		State:      StateCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (o *Order) transition(to State) error {
	if !CanTransition(o.State, to) {
		return fmt.Errorf("%w: %s -> %s (order %d)", ErrInvalidTransition, o.State, to, o.ID)
	}
	o.State = to
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkAwaitingReservation 发出第一次预占请求前调用
func (o *Order) MarkAwaitingReservation() error {
	if err := o.transition(StateAwaitingReservation); err != nil {
		return err
	}
	o.ReservationAttempts = 1
	return nil
}

// RetryReservation 超时后重发请求，只在等待中有效
func (o *Order) RetryReservation() error {
	if o.State != StateAwaitingReservation {
		return fmt.Errorf("%w: retry in %s (order %d)", ErrInvalidTransition, o.State, o.ID)
	}
	o.ReservationAttempts++
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (o *Order) MarkReserved(message string) error {
	if err := o.transition(StateReserved); err != nil {
		return err
	}
	o.StatusMessage = message
	o.FailedItems = nil
	return nil
}

// MarkReservationFailed 记录失败原因和失败的行，供客户和运营查看
func (o *Order) MarkReservationFailed(message string, failedItems []string) error {
	if err := o.transition(StateReservationFailed); err != nil {
		return err
	}
	o.StatusMessage = message
	o.FailedItems = append([]string(nil), failedItems...)
	return nil
}

// Cancel 取消订单。已预占的订单需要归还库存，此时返回 true 并置 ReleasePending
func (o *Order) Cancel(reason string) (needsRelease bool, err error) {
	wasReserved := o.State == StateReserved
	if err := o.transition(StateCancelled); err != nil {
		return false, err
	}
	o.StatusMessage = reason
	o.ReleasePending = wasReserved
	return wasReserved, nil
}

// ReleaseSent 释放消息已成功发出
func (o *Order) ReleaseSent() {
	o.ReleasePending = false
	o.UpdatedAt = time.Now().UTC()
}

// Clone 返回深拷贝
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]event.Item(nil), o.Items...)
	c.FailedItems = append([]string(nil), o.FailedItems...)
	return &c
}
