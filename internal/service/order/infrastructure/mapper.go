package infrastructure

import (
	"encoding/json"

	"github.com/pkg/errors"
	"stocksaga/internal/pkg/event"
	"stocksaga/internal/service/order/domain"
)

func toDomainOrder(m *OrderModel) (*domain.Order, error) {
	o := &domain.Order{
		ID:                  m.ID,
		CustomerID:          m.CustomerID,
		State:               domain.State(m.State),
		StatusMessage:       m.StatusMessage,
		ReservationAttempts: m.ReservationAttempts,
		ReleasePending:      m.ReleasePending,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(m.Items), &o.Items); err != nil {
		return nil, errors.Wrapf(err, "decode items of order %d", m.ID)
	}
	if m.FailedItems != "" {
		if err := json.Unmarshal([]byte(m.FailedItems), &o.FailedItems); err != nil {
			return nil, errors.Wrapf(err, "decode failed items of order %d", m.ID)
		}
	}
	return o, nil
}

func fromDomainOrder(o *domain.Order) (*OrderModel, error) {
	items, err := json.Marshal(nonNilItems(o.Items))
	if err != nil {
		return nil, err
	}
	failed, err := encodeFailedItems(o.FailedItems)
	if err != nil {
		return nil, err
	}
	return &OrderModel{
		ID:                  o.ID,
		CustomerID:          o.CustomerID,
		Items:               string(items),
		State:               string(o.State),
		StatusMessage:       o.StatusMessage,
		FailedItems:         failed,
		ReservationAttempts: o.ReservationAttempts,
		ReleasePending:      o.ReleasePending,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}, nil
}

func encodeFailedItems(items []string) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	b, err := json.Marshal(items)
	return string(b), err
}

func nonNilItems(items []event.Item) []event.Item {
	if items == nil {
		return []event.Item{}
	}
	return items
}
