package mq

import (
	"context"

	"github.com/segmentio/kafka-go"
	"stocksaga/internal/pkg/logger"
)

// LogDeadLetter 是死信主题消费者的 HandlerFunc，只记录日志，总是返回 nil
func LogDeadLetter(ctx context.Context, msg kafka.Message) error {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	// 结构化记录，便于后续检索和人工重放
	logger.Ctx(ctx).Error().
		Str("reason", "dead_letter_message_received").
		Str("dlt", msg.Topic).
		Str("original_topic", headers[HeaderOriginalTopic]).
		Str("original_partition", headers[HeaderOriginalPartition]).
		Str("original_offset", headers[HeaderOriginalOffset]).
		Str("exception_fqcn", headers[HeaderExceptionFqcn]).
		Str("exception_message", headers[HeaderExceptionMessage]).
		Str("key", string(msg.Key)).
		Str("value", string(msg.Value)).
		Msg("🚨 CRITICAL: Dead letter message received")
	return nil
}
