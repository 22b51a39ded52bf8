// cmd/inventory-service/main.go
package main

import (
	"context"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"stocksaga/internal/pkg/bootstrap"
	"stocksaga/internal/pkg/database"
	"stocksaga/internal/pkg/event"
	"stocksaga/internal/pkg/httpclient"
	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/pkg/mq"
	"stocksaga/internal/pkg/redis"
	"stocksaga/internal/service/inventory/application"
	"stocksaga/internal/service/inventory/domain"
	"stocksaga/internal/service/inventory/domain/port"
	"stocksaga/internal/service/inventory/infrastructure"
	"stocksaga/internal/service/inventory/infrastructure/adapter"
	"stocksaga/internal/service/inventory/infrastructure/rule"
	"stocksaga/internal/service/inventory/interfaces"
	"stocksaga/internal/zookeeper"
)

const (
	serviceName        = "inventory-service"
	catalogServiceName = "product-service"
	consumerGroupID    = "inventory-service-group"
	sweepLockResource  = "stock-alert-scanner"
)

var (
	httpHandler *interfaces.InventoryHandler
	consumers   []*mq.Consumer
	closers     []func() error
	workers     *errgroup.Group
)

// main 函数是应用的"组装根" (Composition Root)
func main() {
	cfg := bootstrap.Init()
	logger.Init(serviceName, cfg.App.LogLevel)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.Inventory.Port,
		OnStart:     start,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			httpHandler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: shutdown,
	})
}

// start 组装全部依赖并启动后台任务
func start(ctx context.Context, appCtx bootstrap.AppCtx) error {
	cfg := bootstrap.GetCurrentConfig()
	tracer := otel.Tracer(serviceName)
	brokers := cfg.Infra.Kafka.Brokers

	// 1. 仓储
	var ledgerRepo domain.LedgerRepository
	var alertRepo domain.AlertRepository
	if cfg.Infra.Database.Driver == database.DriverMemory {
		ledgerRepo = infrastructure.NewMemoryLedgerRepository()
		alertRepo = infrastructure.NewMemoryAlertRepository()
	} else {
		db, err := openDB(cfg.Infra.Database)
		if err != nil {
			return err
		}
		ledgerRepo = infrastructure.NewGormLedgerRepository(db)
		alertRepo = infrastructure.NewGormAlertRepository(db)
	}

	// 2. 可选组件：回执缓存、商品目录、分布式扫描锁
	var receipts port.ReceiptCache
	if cfg.Infra.Redis.Addrs != "" {
		rdb, err := redis.NewClient(cfg.Infra.Redis.Addrs)
		if err != nil {
			return err
		}
		closers = append(closers, rdb.Close)
		receipts = adapter.NewReceiptRedisAdapter(rdb, cfg.Inventory.ReceiptCacheTTL)
	}

	var catalog port.CatalogSeeder
	client := httpclient.NewClient(tracer)
	switch {
	case appCtx.Nacos != nil:
		catalog = adapter.NewDiscoveredCatalogAdapter(client, appCtx.Nacos, catalogServiceName, cfg.Infra.Catalog.Timeout)
	case cfg.Infra.Catalog.BaseURL != "":
		catalog = adapter.NewCatalogHTTPAdapter(client, cfg.Infra.Catalog.BaseURL, cfg.Infra.Catalog.Timeout)
	default:
		logger.Ctx(ctx).Warn().Msg("no product catalog configured, unknown products will be rejected")
	}

	scannerOpts := []application.AlertScannerOption{
		application.WithScanInterval(cfg.Inventory.ScanInterval),
		application.WithAlertCooldown(cfg.Inventory.AlertCooldown),
	}
	if len(cfg.Infra.Zookeeper.Servers) > 0 {
		conn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout)
		if err != nil {
			return err
		}
		closers = append(closers, func() error { conn.Close(); return nil })
		lock, err := adapter.NewSweepLockZKAdapter(conn, sweepLockResource)
		if err != nil {
			return err
		}
		scannerOpts = append(scannerOpts, application.WithSweepLock(lock))
	}

	classifier, err := rule.NewCELClassifier(alertRules(cfg.Inventory.AlertRules))
	if err != nil {
		return err
	}

	// 3. 出站 Kafka 适配器
	outcomeWriter := mq.NewKafkaWriter(brokers, event.TopicReservationResponse)
	alertWriter := mq.NewKafkaWriter(brokers, adapter.TopicStockAlerts)
	dltWriter := mq.NewKafkaWriter(brokers, "")
	closers = append(closers, outcomeWriter.Close, alertWriter.Close, dltWriter.Close)

	// 4. 应用服务
	ledger := application.NewLedgerService(ledgerRepo, catalog, cfg.Inventory.MaxCommitAttempts, tracer)
	processor := application.NewReservationProcessor(ledger, ledgerRepo, adapter.NewOutcomeKafkaAdapter(outcomeWriter), receipts, tracer)
	compensator := application.NewCompensator(ledger, ledgerRepo, receipts, tracer)
	scanner := application.NewAlertScanner(ledgerRepo, alertRepo, classifier, adapter.NewAlertKafkaAdapter(alertWriter), tracer, scannerOpts...)
	ledger.AddObserver(scanner)
	httpHandler = interfaces.NewInventoryHandler(ledger, application.NewAlertService(alertRepo))

	// 5. 消费者
	failureHandler := mq.NewFailureHandler(dltWriter)
	consumers = []*mq.Consumer{
		mq.NewConsumer(
			mq.NewKafkaReader(brokers, event.TopicReservationRequest, consumerGroupID),
			event.KafkaHandler(interfaces.NewReservationHandler(processor)),
			failureHandler,
		),
		mq.NewConsumer(
			mq.NewKafkaReader(brokers, event.TopicReservationRelease, consumerGroupID),
			event.KafkaHandler(interfaces.NewReleaseHandler(compensator)),
			failureHandler,
		),
		mq.NewConsumer(mq.NewKafkaReader(brokers, mq.DLTTopic(event.TopicReservationRequest), consumerGroupID), mq.LogDeadLetter, nil),
		mq.NewConsumer(mq.NewKafkaReader(brokers, mq.DLTTopic(event.TopicReservationRelease), consumerGroupID), mq.LogDeadLetter, nil),
	}

	var gctx context.Context
	workers, gctx = errgroup.WithContext(ctx)
	for _, c := range consumers {
		if err := c.Start(gctx); err != nil {
			return err
		}
	}
	workers.Go(func() error { return scanner.Run(gctx) })
	return nil
}

func shutdown(ctx context.Context) {
	for _, c := range consumers {
		c.Stop(ctx)
	}
	if workers != nil {
		if err := workers.Wait(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("background worker exited with error")
		}
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("error closing resource")
		}
	}
}

func openDB(cfg bootstrap.DatabaseConfig) (*gorm.DB, error) {
	db, err := database.Open(database.Options{
		Driver:          cfg.Driver,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := db.AutoMigrate(infrastructure.AllModels()...); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// alertRules 配置为空时使用内置规则
func alertRules(cfgs []bootstrap.AlertRuleConfig) []rule.Rule {
	rules := make([]rule.Rule, 0, len(cfgs))
	for _, c := range cfgs {
		rules = append(rules, rule.Rule{Type: domain.AlertType(c.Type), Expr: c.Expr})
	}
	return rules
}
