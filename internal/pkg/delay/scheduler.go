// Package delay 实现基于延迟主题的定时投递：
// 生产者把消息写入 delay_topic_<级别>，并在 header 中声明 real-topic；
// 调度器在消息到期后把它转发到真实主题。
package delay

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/pkg/metrics"
	"stocksaga/internal/pkg/mq"
)

const (
	HeaderRealTopic      = "real-topic"
	HeaderDelayTimestamp = "delay-timestamp" // RFC3339，可选；缺省时按消息时间 + 级别延迟计算
)

// WriterFactory 为真实主题创建 writer
type WriterFactory func(topic string) mq.Writer

// Scheduler 负责一个延迟级别
type Scheduler struct {
	level     string
	delay     time.Duration
	reader    mq.Reader
	newWriter WriterFactory
	backoff   time.Duration
	tracer    trace.Tracer

	writers    map[string]mq.Writer // key: realTopic
	writerLock sync.Mutex
}

func NewScheduler(level string, delay time.Duration, reader mq.Reader, newWriter WriterFactory) *Scheduler {
	return &Scheduler{
		level:     level,
		delay:     delay,
		reader:    reader,
		newWriter: newWriter,
		backoff:   time.Second,
		tracer:    otel.Tracer("stocksaga/delay-scheduler"),
		writers:   make(map[string]mq.Writer),
	}
}

// Run 阻塞运行直到 ctx 结束。
// 同一延迟主题内消息的到期时间单调递增，所以只需等待队头消息到期。
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.closeWriters()
	logger.Ctx(ctx).Info().Str("level", s.level).Dur("delay", s.delay).Msg("✅ Delay scheduler started")

	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Str("level", s.level).Msg("🛑 Delay scheduler shutting down")
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Str("level", s.level).Msg("could not fetch delayed message")
			if !s.sleep(ctx, s.backoff) {
				return nil
			}
			continue
		}

		if !s.handle(ctx, msg) {
			return nil
		}
	}
}

// handle 返回 false 表示 ctx 已结束
func (s *Scheduler) handle(parent context.Context, msg kafka.Message) bool {
	due := s.deliveryTime(msg)
	if !s.sleep(parent, time.Until(due)) {
		return false
	}

	ctx := mq.ExtractTraceContext(parent, msg.Headers)
	ctx, span := s.tracer.Start(ctx, "scheduler.Forward", trace.WithAttributes(
		attribute.String("delay.level", s.level),
		attribute.String("delivery_time", due.Format(time.RFC3339)),
	))
	defer span.End()

	realTopic := mq.GetHeader(msg.Headers, HeaderRealTopic)
	if realTopic == "" {
		// 无法投递的消息也要提交，否则会一直卡住队头
		logger.Ctx(ctx).Error().Str("level", s.level).Int64("offset", msg.Offset).Msg("'real-topic' header missing, skipping")
		s.commit(ctx, msg)
		return true
	}
	span.SetAttributes(attribute.String("real.topic", realTopic))

	// 投递失败不能提交 offset，退避后重试同一条消息
	for {
		err := s.publish(ctx, realTopic, msg)
		if err == nil {
			break
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish to real topic")
		logger.Ctx(ctx).Error().Err(err).Str("real_topic", realTopic).Msg("failed to forward delayed message, retrying")
		if !s.sleep(parent, s.backoff) {
			return false
		}
	}

	s.commit(ctx, msg)
	metrics.DelayedMessages.WithLabelValues(s.level).Inc()
	span.AddEvent("MessagePublishedAndCommitted")
	return true
}

func (s *Scheduler) deliveryTime(msg kafka.Message) time.Time {
	if raw := mq.GetHeader(msg.Headers, HeaderDelayTimestamp); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts
		}
	}
	return msg.Time.Add(s.delay)
}

// publish 将消息投递到真实业务主题，去掉调度专用的 header
func (s *Scheduler) publish(ctx context.Context, realTopic string, msg kafka.Message) error {
	s.writerLock.Lock()
	writer, exists := s.writers[realTopic]
	if !exists {
		writer = s.newWriter(realTopic)
		s.writers[realTopic] = writer
	}
	s.writerLock.Unlock()

	out := kafka.Message{Key: msg.Key, Value: msg.Value}
	for _, h := range msg.Headers {
		if h.Key == HeaderRealTopic || h.Key == HeaderDelayTimestamp {
			continue
		}
		out.Headers = append(out.Headers, h)
	}
	mq.InjectTraceContext(ctx, &out.Headers)
	return writer.WriteMessages(ctx, out)
}

func (s *Scheduler) commit(ctx context.Context, msg kafka.Message) {
	if err := s.reader.CommitMessages(ctx, msg); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("level", s.level).Int64("offset", msg.Offset).Msg("failed to commit delayed message")
	}
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Scheduler) closeWriters() {
	s.writerLock.Lock()
	defer s.writerLock.Unlock()
	for topic, writer := range s.writers {
		if err := writer.Close(); err != nil {
			logger.Ctx(context.Background()).Error().Err(err).Str("topic", topic).Msg("failed to close writer")
		}
	}
}

// Enqueue 把消息写入延迟主题 (writer 绑定延迟主题)，到期后由调度器转发到 realTopic
func Enqueue(ctx context.Context, delayWriter mq.Writer, realTopic string, key, value []byte, deliverAt time.Time) error {
	return mq.ProduceMessage(ctx, delayWriter, key, value,
		kafka.Header{Key: HeaderRealTopic, Value: []byte(realTopic)},
		kafka.Header{Key: HeaderDelayTimestamp, Value: []byte(deliverAt.UTC().Format(time.RFC3339))},
	)
}
