package adapter

import (
	"context"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"stocksaga/internal/pkg/event"
	"stocksaga/internal/pkg/mq"
	"stocksaga/internal/service/order/domain"
)

const (
	EventSource     = "order-service"
	headerEventType = "eventType"
)

// ReservationKafkaAdapter 实现了 port.ReservationEmitter 接口。
type ReservationKafkaAdapter struct {
	requestWriter mq.Writer // reservation-request
	releaseWriter mq.Writer // reservation-release
}

func NewReservationKafkaAdapter(requestWriter, releaseWriter mq.Writer) *ReservationKafkaAdapter {
	return &ReservationKafkaAdapter{requestWriter: requestWriter, releaseWriter: releaseWriter}
}

func (a *ReservationKafkaAdapter) RequestReservation(ctx context.Context, order *domain.Order) error {
	return a.publish(ctx, a.requestWriter, event.NewReservationRequested(EventSource, order.ID, order.CustomerID, order.Items))
}

// RequestRelease 释放消息携带与预占时相同的行，库存服务不保存订单明细
func (a *ReservationKafkaAdapter) RequestRelease(ctx context.Context, order *domain.Order, reason string) error {
	return a.publish(ctx, a.releaseWriter, event.NewReleaseRequested(EventSource, order.ID, order.CustomerID, order.Items, reason))
}

func (a *ReservationKafkaAdapter) publish(ctx context.Context, w mq.Writer, m event.Message) error {
	value, err := event.Encode(m)
	if err != nil {
		return errors.Wrapf(err, "encode %s", m.Meta().EventType)
	}
	return mq.ProduceMessage(ctx, w, []byte(m.Key()), value,
		kafka.Header{Key: headerEventType, Value: []byte(m.Meta().EventType)})
}

func (a *ReservationKafkaAdapter) Close() error {
	err := a.requestWriter.Close()
	if cerr := a.releaseWriter.Close(); cerr != nil {
		return cerr
	}
	return err
}
