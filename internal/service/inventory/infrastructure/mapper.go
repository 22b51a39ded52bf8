package infrastructure

import (
	"encoding/json"

	"stocksaga/internal/service/inventory/domain"
)

func toDomainEntry(m *StockLedgerModel) *domain.StockLedgerEntry {
	return &domain.StockLedgerEntry{
		ProductID:     m.ProductID,
		PhysicalStock: m.PhysicalStock,
		Reserved:      m.Reserved,
		Available:     m.Available,
		MinThreshold:  m.MinThreshold,
		Version:       m.Version,
		UpdatedAt:     m.UpdatedAt,
	}
}

func fromDomainEntry(e *domain.StockLedgerEntry) *StockLedgerModel {
	return &StockLedgerModel{
		ProductID:     e.ProductID,
		PhysicalStock: e.PhysicalStock,
		Reserved:      e.Reserved,
		Available:     e.Available,
		MinThreshold:  e.MinThreshold,
		Version:       e.Version,
		UpdatedAt:     e.UpdatedAt,
	}
}

func toDomainMovement(m *StockMovementModel) domain.StockMovement {
	return domain.StockMovement{
		ID:        m.ID,
		ProductID: m.ProductID,
		Kind:      domain.MovementKind(m.Kind),
		Delta:     m.Delta,
		OrderID:   m.OrderID,
		CreatedAt: m.CreatedAt,
	}
}

func fromDomainMovement(m domain.StockMovement) *StockMovementModel {
	return &StockMovementModel{
		ProductID: m.ProductID,
		Kind:      string(m.Kind),
		Delta:     m.Delta,
		OrderID:   m.OrderID,
		CreatedAt: m.CreatedAt,
	}
}

func toDomainReceipt(m *ProcessingReceiptModel) (*domain.Receipt, error) {
	items := []string{}
	if m.FailedItems != "" {
		if err := json.Unmarshal([]byte(m.FailedItems), &items); err != nil {
			return nil, err
		}
	}
	return &domain.Receipt{
		OrderID:     m.OrderID,
		Kind:        domain.ReceiptKind(m.Kind),
		Success:     m.Success,
		Message:     m.Message,
		FailedItems: items,
		CreatedAt:   m.CreatedAt,
	}, nil
}

func fromDomainReceipt(r *domain.Receipt) (*ProcessingReceiptModel, error) {
	items := r.FailedItems
	if items == nil {
		items = []string{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return &ProcessingReceiptModel{
		OrderID:     r.OrderID,
		Kind:        string(r.Kind),
		Success:     r.Success,
		Message:     r.Message,
		FailedItems: string(raw),
		CreatedAt:   r.CreatedAt,
	}, nil
}

func toDomainAlert(m *StockAlertModel) *domain.StockAlert {
	return &domain.StockAlert{
		ID:         m.ID,
		ProductID:  m.ProductID,
		AlertType:  domain.AlertType(m.AlertType),
		Message:    m.Message,
		IsResolved: m.IsResolved,
		CreatedAt:  m.CreatedAt,
		ResolvedAt: m.ResolvedAt,
	}
}

func fromDomainAlert(a *domain.StockAlert) *StockAlertModel {
	return &StockAlertModel{
		ID:         a.ID,
		ProductID:  a.ProductID,
		AlertType:  string(a.AlertType),
		Message:    a.Message,
		IsResolved: a.IsResolved,
		CreatedAt:  a.CreatedAt,
		ResolvedAt: a.ResolvedAt,
	}
}
