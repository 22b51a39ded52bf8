package domain

import "errors"

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrEmptyOrder        = errors.New("order must contain at least one item")
	ErrInvalidItem       = errors.New("order item must have a product and a positive quantity")
	ErrInvalidTransition = errors.New("invalid order state transition")
	// ErrStateConflict 条件更新时订单状态已被其他处理者改变
	ErrStateConflict = errors.New("order state changed concurrently")
)
