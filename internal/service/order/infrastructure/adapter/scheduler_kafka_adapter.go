package adapter

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"stocksaga/internal/pkg/delay"
	"stocksaga/internal/pkg/mq"
	"stocksaga/internal/service/order/domain"
)

// TopicReservationTimeout 延迟消息到期后被转发到的真实主题
const TopicReservationTimeout = "order-reservation-timeout"

// SchedulerKafkaAdapter 实现了 port.DelayScheduler 接口。
type SchedulerKafkaAdapter struct {
	delayWriter mq.Writer // 绑定延迟主题，例如 delay_topic_1m
	delay       time.Duration
	now         func() time.Time
}

// NewSchedulerKafkaAdapter delay 必须与延迟主题的级别一致
func NewSchedulerKafkaAdapter(delayWriter mq.Writer, delay time.Duration) *SchedulerKafkaAdapter {
	return &SchedulerKafkaAdapter{delayWriter: delayWriter, delay: delay, now: time.Now}
}

func (a *SchedulerKafkaAdapter) ScheduleReservationTimeout(ctx context.Context, orderID int64, attempt int) error {
	now := a.now().UTC()
	taskBytes, err := json.Marshal(domain.ReservationTimeoutCheck{
		OrderID:     orderID,
		Attempt:     attempt,
		ScheduledAt: now,
	})
	if err != nil {
		return errors.Wrap(err, "marshal reservation timeout check")
	}
	return delay.Enqueue(ctx, a.delayWriter, TopicReservationTimeout,
		[]byte(strconv.FormatInt(orderID, 10)), taskBytes, now.Add(a.delay))
}

// Close 关闭底层的Kafka writer。
func (a *SchedulerKafkaAdapter) Close() error {
	return a.delayWriter.Close()
}
