package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEntryNotFound          = errors.New("stock ledger entry not found")
	ErrEntryExists            = errors.New("stock ledger entry already exists")
	ErrProductNotFound        = errors.New("product not found")
	ErrVersionConflict        = errors.New("stock ledger version conflict")
	ErrConcurrentModification = errors.New("stock ledger still conflicting after retries")
	ErrNegativePhysicalStock  = errors.New("physical stock cannot go below zero")
	ErrInvalidQuantity        = errors.New("quantity must be positive")
	ErrInvalidThreshold       = errors.New("min threshold cannot be negative")
	ErrDuplicateReceipt       = errors.New("order already processed")
	ErrAlertNotFound          = errors.New("stock alert not found")
)

// InsufficientStockError 可用库存不足
type InsufficientStockError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for product: %d (Available: %d, Requested: %d)", e.ProductID, e.Available, e.Requested)
}
