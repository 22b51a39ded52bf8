package adapter

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"stocksaga/internal/pkg/mq"
	"stocksaga/internal/service/order/domain"
)

const TopicOrderNotifications = "order-notifications"

// NotificationKafkaAdapter 实现了 port.NotificationProducer 接口。
type NotificationKafkaAdapter struct {
	writer mq.Writer
}

// NewNotificationKafkaAdapter writer 绑定 order-notifications 主题
func NewNotificationKafkaAdapter(writer mq.Writer) *NotificationKafkaAdapter {
	return &NotificationKafkaAdapter{writer: writer}
}

// Notify 以 orderId 为 key，保证同一订单的通知有序
func (a *NotificationKafkaAdapter) Notify(ctx context.Context, order *domain.Order) error {
	eventBytes, err := json.Marshal(domain.NewOrderNotification(order))
	if err != nil {
		return errors.Wrap(err, "marshal order notification")
	}
	// 调用通用的 mq.ProduceMessage，它会自动处理追踪上下文注入
	return mq.ProduceMessage(ctx, a.writer, []byte(strconv.FormatInt(order.ID, 10)), eventBytes)
}

// Close 关闭底层的Kafka writer。
func (a *NotificationKafkaAdapter) Close() error {
	return a.writer.Close()
}
