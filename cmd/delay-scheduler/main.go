// cmd/delay-scheduler/main.go
package main

import (
	"context"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
	"stocksaga/internal/pkg/bootstrap"
	"stocksaga/internal/pkg/delay"
	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/pkg/mq"
)

const (
	serviceName = "delay-scheduler"
)

var (
	readers []*kafka.Reader
	workers *errgroup.Group
)

// 每个延迟级别一个调度器，各自消费 delay_topic_<级别> 并把到期消息转发到 real-topic
func main() {
	cfg := bootstrap.Init()
	logger.Init(serviceName, cfg.App.LogLevel)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.Scheduler.Port,
		OnStart:     start,
		OnShutdown:  shutdown,
	})
}

func start(ctx context.Context, _ bootstrap.AppCtx) error {
	cfg := bootstrap.GetCurrentConfig()
	brokers := cfg.Infra.Kafka.Brokers
	newWriter := func(topic string) mq.Writer { return mq.NewKafkaWriter(brokers, topic) }

	workers, ctx = errgroup.WithContext(ctx)
	for level, d := range cfg.Scheduler.Levels {
		reader := mq.NewKafkaReader(brokers, level, serviceName+"-group-"+level)
		readers = append(readers, reader)
		scheduler := delay.NewScheduler(level, d, reader, newWriter)
		workers.Go(func() error { return scheduler.Run(ctx) })
	}
	logger.Ctx(ctx).Info().Int("levels", len(cfg.Scheduler.Levels)).Msg("✅ Delay schedulers started")
	return nil
}

func shutdown(ctx context.Context) {
	if workers != nil {
		if err := workers.Wait(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("delay scheduler exited with error")
		}
	}
	for _, r := range readers {
		if err := r.Close(); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("topic", r.Config().Topic).Msg("error closing kafka reader")
		}
	}
}
