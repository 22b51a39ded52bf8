// cmd/order-service/main.go
package main

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"stocksaga/internal/pkg/bootstrap"
	"stocksaga/internal/pkg/database"
	"stocksaga/internal/pkg/event"
	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/pkg/mq"
	"stocksaga/internal/service/order/application"
	"stocksaga/internal/service/order/domain"
	"stocksaga/internal/service/order/infrastructure"
	"stocksaga/internal/service/order/infrastructure/adapter"
	"stocksaga/internal/service/order/interfaces"
)

const (
	serviceName     = "order-service"
	consumerGroupID = "order-service-group"
	defaultDelay    = time.Minute
)

var (
	httpHandler *interfaces.OrderHandler
	consumers   []*mq.Consumer
	closers     []func() error
)

// main 函数是应用的"组装根" (Composition Root)
func main() {
	cfg := bootstrap.Init()
	logger.Init(serviceName, cfg.App.LogLevel)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.Order.Port,
		OnStart:     start,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			httpHandler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: shutdown,
	})
}

func start(ctx context.Context, _ bootstrap.AppCtx) error {
	cfg := bootstrap.GetCurrentConfig()
	tracer := otel.Tracer(serviceName)
	brokers := cfg.Infra.Kafka.Brokers

	// 1. 仓储
	var orderRepo domain.OrderRepository
	if cfg.Infra.Database.Driver == database.DriverMemory {
		orderRepo = infrastructure.NewMemoryOrderRepository()
	} else {
		db, err := database.Open(database.Options{
			Driver:          cfg.Infra.Database.Driver,
			DSN:             cfg.Infra.Database.DSN,
			MaxOpenConns:    cfg.Infra.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Infra.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Infra.Database.ConnMaxLifetime,
		})
		if err != nil {
			return err
		}
		if cfg.Infra.Database.AutoMigrate {
			if err := db.AutoMigrate(infrastructure.AllModels()...); err != nil {
				return err
			}
		}
		orderRepo = infrastructure.NewGormOrderRepository(db)
	}

	// 2. 出站 Kafka 适配器
	delayTopic := cfg.Order.TimeoutDelayTopic
	delay, ok := cfg.Scheduler.Levels[delayTopic]
	if !ok {
		logger.Ctx(ctx).Warn().Str("topic", delayTopic).Dur("delay", defaultDelay).Msg("unknown delay level, using default delay")
		delay = defaultDelay
	}
	emitter := adapter.NewReservationKafkaAdapter(
		mq.NewKafkaWriter(brokers, event.TopicReservationRequest),
		mq.NewKafkaWriter(brokers, event.TopicReservationRelease),
	)
	notifier := adapter.NewNotificationKafkaAdapter(mq.NewKafkaWriter(brokers, adapter.TopicOrderNotifications))
	scheduler := adapter.NewSchedulerKafkaAdapter(mq.NewKafkaWriter(brokers, delayTopic), delay)
	dltWriter := mq.NewKafkaWriter(brokers, "")
	closers = append(closers, emitter.Close, notifier.Close, scheduler.Close, dltWriter.Close)

	// 3. 应用服务
	svc := application.NewOrderApplicationService(orderRepo, emitter, scheduler, notifier, cfg.Order.MaxReservationAttempts, tracer)
	outcomes := application.NewOutcomeHandler(orderRepo, emitter, notifier, tracer)
	httpHandler = interfaces.NewOrderHandler(svc)

	// 4. 消费者
	failureHandler := mq.NewFailureHandler(dltWriter)
	consumers = []*mq.Consumer{
		mq.NewConsumer(
			mq.NewKafkaReader(brokers, event.TopicReservationResponse, consumerGroupID),
			event.KafkaHandler(interfaces.NewOutcomeConsumer(outcomes)),
			failureHandler,
		),
		mq.NewConsumer(
			mq.NewKafkaReader(brokers, adapter.TopicReservationTimeout, consumerGroupID),
			interfaces.TimeoutHandler(svc),
			failureHandler,
		),
		mq.NewConsumer(mq.NewKafkaReader(brokers, mq.DLTTopic(event.TopicReservationResponse), consumerGroupID), mq.LogDeadLetter, nil),
		mq.NewConsumer(mq.NewKafkaReader(brokers, mq.DLTTopic(adapter.TopicReservationTimeout), consumerGroupID), mq.LogDeadLetter, nil),
	}
	for _, c := range consumers {
		if err := c.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func shutdown(ctx context.Context) {
	for _, c := range consumers {
		c.Stop(ctx)
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("error closing resource")
		}
	}
}
