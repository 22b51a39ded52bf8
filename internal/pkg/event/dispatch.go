package event

import (
	"context"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// Handler 必须为每一种消息提供处理方法，新增消息类型时编译器会指出所有未处理的消费者
type Handler interface {
	OnReservationRequested(ctx context.Context, m *ReservationRequested) error
	OnReservationResponded(ctx context.Context, m *ReservationResponded) error
	OnReleaseRequested(ctx context.Context, m *ReleaseRequested) error
}

// Dispatch 按消息的具体类型调用 Handler
func Dispatch(ctx context.Context, m Message, h Handler) error {
	switch v := m.(type) {
	case *ReservationRequested:
		return h.OnReservationRequested(ctx, v)
	case *ReservationResponded:
		return h.OnReservationResponded(ctx, v)
	case *ReleaseRequested:
		return h.OnReleaseRequested(ctx, v)
	default:
		return errors.Wrapf(ErrUnknownType, "%T", m)
	}
}

// Unhandled 可以嵌入到只消费部分消息的 Handler 中，其余类型返回 ErrUnexpectedKind
type Unhandled struct{}

func (Unhandled) OnReservationRequested(_ context.Context, m *ReservationRequested) error {
	return errors.Wrapf(ErrUnexpectedKind, "%s for order %d", m.EventType, m.OrderID)
}

func (Unhandled) OnReservationResponded(_ context.Context, m *ReservationResponded) error {
	return errors.Wrapf(ErrUnexpectedKind, "%s for order %d", m.EventType, m.OrderID)
}

func (Unhandled) OnReleaseRequested(_ context.Context, m *ReleaseRequested) error {
	return errors.Wrapf(ErrUnexpectedKind, "%s for order %d", m.EventType, m.OrderID)
}

// KafkaHandler 解码 Kafka 消息体后分发给 h，签名与 mq.HandlerFunc 一致。
// 无法解码的消息返回错误，由消费者转入死信主题
func KafkaHandler(h Handler) func(ctx context.Context, msg kafka.Message) error {
	return func(ctx context.Context, msg kafka.Message) error {
		m, err := Decode(msg.Value)
		if err != nil {
			return err
		}
		return Dispatch(ctx, m, h)
	}
}
