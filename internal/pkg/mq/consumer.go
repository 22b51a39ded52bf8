package mq

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/pkg/metrics"
)

// HandlerFunc 处理一条消息。返回错误时消息会被转入死信主题
type HandlerFunc func(ctx context.Context, msg kafka.Message) error

// Consumer 是一个驱动适配器：拉取消息 -> 恢复追踪上下文 -> 调用 handler -> 提交 offset
type Consumer struct {
	reader         Reader
	handle         HandlerFunc
	failureHandler *FailureHandler
	tracer         trace.Tracer
	retryBackoff   time.Duration

	wg      sync.WaitGroup
	stopped atomic.Bool
}

// NewConsumer 创建消费者。failureHandler 可以为空，此时失败只记录日志
func NewConsumer(reader Reader, handle HandlerFunc, failureHandler *FailureHandler) *Consumer {
	return &Consumer{
		reader:         reader,
		handle:         handle,
		failureHandler: failureHandler,
		tracer:         otel.Tracer("stocksaga/mq"),
		retryBackoff:   time.Second,
	}
}

func (c *Consumer) Topic() string {
	return c.reader.Config().Topic
}

// Start 启动后台消费循环，立即返回
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", c.Topic()).Msg("✅ Kafka consumer started")
		for {
			if c.stopped.Load() {
				return
			}
			// FetchMessage 不会自动提交，提交时机由我们控制
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || c.stopped.Load() {
					logger.Ctx(ctx).Info().Str("topic", c.Topic()).Msg("🛑 Kafka consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Str("topic", c.Topic()).Msg("could not fetch message, retrying")
				time.Sleep(c.retryBackoff)
				continue
			}

			c.process(ctx, msg)

			// 无论成功或失败（已移交死信），都提交 offset
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Str("topic", msg.Topic).Int64("offset", msg.Offset).Msg("failed to commit message")
			}
		}
	}()
	return nil
}

func (c *Consumer) process(parent context.Context, msg kafka.Message) {
	ctx := ExtractTraceContext(parent, msg.Headers)
	ctx, span := c.tracer.Start(ctx, "kafka.consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("messaging.kafka.message.key", string(msg.Key)),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		))
	defer span.End()

	if err := c.handle(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "message handling failed")
		metrics.ConsumedMessages.WithLabelValues(msg.Topic, "failed").Inc()
		if c.failureHandler != nil {
			c.failureHandler.Handle(ctx, msg, err)
			return
		}
		logger.Ctx(ctx).Error().Err(err).Str("topic", msg.Topic).Int64("offset", msg.Offset).Msg("message handling failed")
		return
	}
	metrics.ConsumedMessages.WithLabelValues(msg.Topic, "ok").Inc()
}

// Stop 优雅地停止消费者
func (c *Consumer) Stop(ctx context.Context) {
	c.stopped.Store(true)
	if err := c.reader.Close(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("topic", c.Topic()).Msg("error closing kafka reader")
	}
	c.wg.Wait()
	logger.Ctx(ctx).Info().Str("topic", c.Topic()).Msg("✅ Kafka consumer stopped")
}
