package adapter

import (
	"context"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"stocksaga/internal/pkg/event"
	"stocksaga/internal/pkg/mq"
)

// HeaderEventType 便于下游在不解码消息体的情况下路由
const HeaderEventType = "eventType"

// OutcomeKafkaAdapter 实现了 port.OutcomePublisher 接口。
type OutcomeKafkaAdapter struct {
	writer mq.Writer // 绑定 reservation-response 主题
}

func NewOutcomeKafkaAdapter(writer mq.Writer) *OutcomeKafkaAdapter {
	return &OutcomeKafkaAdapter{writer: writer}
}

func (a *OutcomeKafkaAdapter) PublishOutcome(ctx context.Context, outcome *event.ReservationResponded) error {
	value, err := event.Encode(outcome)
	if err != nil {
		return errors.Wrap(err, "encode reservation outcome")
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(outcome.Key()), value,
		kafka.Header{Key: HeaderEventType, Value: []byte(outcome.EventType)})
}

func (a *OutcomeKafkaAdapter) Close() error {
	return a.writer.Close()
}
