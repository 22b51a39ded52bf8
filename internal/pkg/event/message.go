// Package event 定义库存预占 saga 在服务间传递的消息。
// 三种消息 (请求 / 结果 / 释放) 组成一个封闭的联合类型，消费方通过 Dispatch 穷举处理。
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// 主题名
const (
	TopicReservationRequest  = "reservation-request"
	TopicReservationResponse = "reservation-response"
	TopicReservationRelease  = "reservation-release"
)

type Type string

const (
	TypeReservationRequest  Type = "INVENTORY_RESERVATION_REQUEST"
	TypeReservationResponse Type = "INVENTORY_RESERVATION_RESPONSE"
	TypeReservationRelease  Type = "INVENTORY_RESERVATION_RELEASE"
)

var (
	ErrUnknownType    = errors.New("unknown event type")
	ErrUnexpectedKind = errors.New("unexpected message kind for this consumer")
)

// Header 是所有消息共有的信封字段
type Header struct {
	EventID   string    `json:"eventId"`
	EventType Type      `json:"eventType"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

func newHeader(t Type, source string) Header {
	return Header{
		EventID:   uuid.NewString(),
		EventType: t,
		Timestamp: time.Now().UTC(),
		Source:    source,
	}
}

// Item 是订单中的一行
type Item struct {
	ProductID int64  `json:"productId"`
	Quantity  int    `json:"quantity"`
	Barcode   string `json:"barcode,omitempty"`
}

// Message 是封闭接口，只有本包内的三种消息实现它
type Message interface {
	Meta() Header
	Key() string
	sealed()
}

// ReservationRequested 订单侧请求为订单预占库存
type ReservationRequested struct {
	Header
	OrderID    int64  `json:"orderId"`
	CustomerID int64  `json:"customerId"`
	Items      []Item `json:"items"`
}

// ReservationResponded 库存侧对一次请求的唯一终态结果
type ReservationResponded struct {
	Header
	OrderID     int64    `json:"orderId"`
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	FailedItems []string `json:"failedItems"`
}

// ReleaseRequested 订单取消后归还此前预占的数量
type ReleaseRequested struct {
	Header
	OrderID    int64  `json:"orderId"`
	CustomerID int64  `json:"customerId"`
	Items      []Item `json:"items"`
	Reason     string `json:"reason,omitempty"`
}

func (m *ReservationRequested) Meta() Header { return m.Header }
func (m *ReservationResponded) Meta() Header { return m.Header }
func (m *ReleaseRequested) Meta() Header     { return m.Header }

func (m *ReservationRequested) Key() string { return orderKey(m.OrderID) }
func (m *ReservationResponded) Key() string { return orderKey(m.OrderID) }
func (m *ReleaseRequested) Key() string     { return orderKey(m.OrderID) }

func (*ReservationRequested) sealed() {}
func (*ReservationResponded) sealed() {}
func (*ReleaseRequested) sealed()     {}

func orderKey(orderID int64) string {
	return fmt.Sprintf("%d", orderID)
}

func NewReservationRequested(source string, orderID, customerID int64, items []Item) *ReservationRequested {
	return &ReservationRequested{
		Header:     newHeader(TypeReservationRequest, source),
		OrderID:    orderID,
		CustomerID: customerID,
		Items:      items,
	}
}

func NewReservationResponded(source string, orderID int64, success bool, message string, failedItems []string) *ReservationResponded {
	if failedItems == nil {
		failedItems = []string{}
	}
	return &ReservationResponded{
		Header:      newHeader(TypeReservationResponse, source),
		OrderID:     orderID,
		Success:     success,
		Message:     message,
		FailedItems: failedItems,
	}
}

func NewReleaseRequested(source string, orderID, customerID int64, items []Item, reason string) *ReleaseRequested {
	return &ReleaseRequested{
		Header:     newHeader(TypeReservationRelease, source),
		OrderID:    orderID,
		CustomerID: customerID,
		Items:      items,
		Reason:     reason,
	}
}

// Encode 序列化消息
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode 先读取 eventType，再反序列化为对应的具体类型
func Decode(data []byte) (Message, error) {
	var probe struct {
		EventType Type `json:"eventType"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errors.Wrap(err, "decode event envelope")
	}

	var m Message
	switch probe.EventType {
	case TypeReservationRequest:
		m = &ReservationRequested{}
	case TypeReservationResponse:
		m = &ReservationResponded{}
	case TypeReservationRelease:
		m = &ReleaseRequested{}
	default:
		return nil, errors.Wrapf(ErrUnknownType, "eventType %q", probe.EventType)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, errors.Wrapf(err, "decode %s", probe.EventType)
	}
	return m, nil
}
