package mq

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"stocksaga/internal/pkg/logger"
)

// 死信消息携带的原始信息
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderExceptionFqcn     = "x-exception-fqcn"
	HeaderExceptionMessage  = "x-exception-message"

	dltSuffix = ".dlt"
)

// DLTTopic 返回某个业务主题对应的死信主题
func DLTTopic(topic string) string {
	return topic + dltSuffix
}

// FailureHandler 把处理失败的消息转发到死信主题，之后原消息照常提交
type FailureHandler struct {
	writer Writer // 不绑定 topic 的 writer
}

func NewFailureHandler(writer Writer) *FailureHandler {
	return &FailureHandler{writer: writer}
}

// Handle 不返回错误：死信投递失败只能记日志，不能阻塞消费
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error) {
	headers := make([]kafka.Header, 0, len(msg.Headers)+5)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
		kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: HeaderExceptionFqcn, Value: []byte(fmt.Sprintf("%T", errors.Cause(cause)))},
		kafka.Header{Key: HeaderExceptionMessage, Value: []byte(cause.Error())},
	)

	dlt := kafka.Message{
		Topic:   DLTTopic(msg.Topic),
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}
	if err := h.writer.WriteMessages(ctx, dlt); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("topic", msg.Topic).
			Int64("offset", msg.Offset).
			Str("cause", cause.Error()).
			Msg("CRITICAL: failed to forward message to dead letter topic")
		return
	}
	logger.Ctx(ctx).Warn().
		Str("topic", msg.Topic).
		Str("dlt", dlt.Topic).
		Int64("offset", msg.Offset).
		Err(cause).
		Msg("message forwarded to dead letter topic")
}
