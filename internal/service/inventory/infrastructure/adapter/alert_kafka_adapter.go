package adapter

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"stocksaga/internal/pkg/mq"
	"stocksaga/internal/service/inventory/domain"
)

// TopicStockAlerts 新告警发布的主题
const TopicStockAlerts = "stock-alerts"

// AlertKafkaAdapter 实现了 port.AlertPublisher 接口，消息体为 StockAlert 的 JSON
type AlertKafkaAdapter struct {
	writer mq.Writer
}

func NewAlertKafkaAdapter(writer mq.Writer) *AlertKafkaAdapter {
	return &AlertKafkaAdapter{writer: writer}
}

func (a *AlertKafkaAdapter) PublishAlert(ctx context.Context, alert *domain.StockAlert) error {
	value, err := json.Marshal(alert)
	if err != nil {
		return errors.Wrap(err, "encode stock alert")
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(strconv.FormatInt(alert.ProductID, 10)), value)
}

func (a *AlertKafkaAdapter) Close() error {
	return a.writer.Close()
}
