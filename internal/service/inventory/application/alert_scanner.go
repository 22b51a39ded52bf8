package application

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/pkg/metrics"
	"stocksaga/internal/service/inventory/domain"
	"stocksaga/internal/service/inventory/domain/port"
)

const (
	DefaultScanInterval  = time.Minute
	DefaultAlertCooldown = time.Hour
	DefaultChangeBuffer  = 1024
)

// AlertScanner 周期性扫描全部库存并在每次库存变更后检查单个商品，生成去重后的告警
type AlertScanner struct {
	ledger     domain.LedgerRepository
	alerts     domain.AlertRepository
	classifier domain.AlertClassifier
	publisher  port.AlertPublisher // 可以为空
	lock       port.SweepLock      // 可以为空，单实例部署时不需要
	interval   time.Duration
	cooldown   time.Duration
	tracer     trace.Tracer
	now        func() time.Time

	// 库存变更先入队，由 Run 所在的 goroutine 检查，写路径不等待锁
	changes chan *domain.StockLedgerEntry

	mu sync.Mutex // 进程内串行化
}

type AlertScannerOption func(*AlertScanner)

func WithSweepLock(lock port.SweepLock) AlertScannerOption {
	return func(s *AlertScanner) { s.lock = lock }
}

func WithScanInterval(d time.Duration) AlertScannerOption {
	return func(s *AlertScanner) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithAlertCooldown(d time.Duration) AlertScannerOption {
	return func(s *AlertScanner) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

// WithChangeBuffer 变更队列容量，队列满时丢弃的变更由下一次全量扫描兜底
func WithChangeBuffer(n int) AlertScannerOption {
	return func(s *AlertScanner) {
		if n > 0 {
			s.changes = make(chan *domain.StockLedgerEntry, n)
		}
	}
}

// WithClock 测试用
func WithClock(now func() time.Time) AlertScannerOption {
	return func(s *AlertScanner) { s.now = now }
}

func NewAlertScanner(ledger domain.LedgerRepository, alerts domain.AlertRepository, classifier domain.AlertClassifier,
	publisher port.AlertPublisher, tracer trace.Tracer, opts ...AlertScannerOption) *AlertScanner {
	s := &AlertScanner{
		ledger:     ledger,
		alerts:     alerts,
		classifier: classifier,
		publisher:  publisher,
		interval:   DefaultScanInterval,
		cooldown:   DefaultAlertCooldown,
		tracer:     tracer,
		now:        time.Now,
		changes:    make(chan *domain.StockLedgerEntry, DefaultChangeBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run 按固定间隔扫描并处理变更队列，直到 ctx 结束
func (s *AlertScanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	logger.Ctx(ctx).Info().Dur("interval", s.interval).Msg("✅ Stock alert scanner started")

	for {
		select {
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("🛑 Stock alert scanner stopped")
			return nil
		case <-ticker.C:
			if _, err := s.Scan(ctx); err != nil && ctx.Err() == nil {
				logger.Ctx(ctx).Error().Err(err).Msg("stock alert scan failed")
			}
		case entry := <-s.changes:
			s.checkChanged(ctx, entry)
		}
	}
}

// Scan 对全部库存执行一次检查，返回新建的告警数
func (s *AlertScanner) Scan(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "alerts.Scan")
	defer span.End()

	release, err := s.acquire(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	defer release()

	entries, err := s.ledger.List(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	raised := 0
	for _, e := range entries {
		ok, err := s.check(ctx, e)
		if err != nil {
			// 单个商品失败不影响其他商品
			logger.Ctx(ctx).Error().Err(err).Int64("product_id", e.ProductID).Msg("stock alert check failed")
			continue
		}
		if ok {
			raised++
		}
	}
	span.SetAttributes(attribute.Int("entries", len(entries)), attribute.Int("alerts.raised", raised))
	return raised, nil
}

// OnLedgerChanged 实现 AdjustmentObserver。只入队不阻塞，库存写操作和结果发布不等待告警检查
func (s *AlertScanner) OnLedgerChanged(ctx context.Context, entry *domain.StockLedgerEntry) {
	select {
	case s.changes <- entry:
	default:
		metrics.AlertChecksDropped.Inc()
		logger.Ctx(ctx).Warn().Int64("product_id", entry.ProductID).Msg("stock alert change queue full, deferring to next sweep")
	}
}

// drainChanges 同步处理当前队列中的全部变更，返回处理条数
func (s *AlertScanner) drainChanges(ctx context.Context) int {
	n := 0
	for {
		select {
		case entry := <-s.changes:
			s.checkChanged(ctx, entry)
			n++
		default:
			return n
		}
	}
}

func (s *AlertScanner) checkChanged(ctx context.Context, entry *domain.StockLedgerEntry) {
	release, err := s.acquire(ctx)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Int64("product_id", entry.ProductID).Msg("could not acquire sweep lock for stock alert check")
		return
	}
	defer release()

	if _, err := s.check(ctx, entry); err != nil {
		logger.Ctx(ctx).Error().Err(err).Int64("product_id", entry.ProductID).Msg("stock alert check failed")
	}
}

func (s *AlertScanner) acquire(ctx context.Context) (func(), error) {
	s.mu.Lock()
	if s.lock == nil {
		return s.mu.Unlock, nil
	}
	unlock, err := s.lock.Acquire(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, errors.Wrap(err, "acquire sweep lock")
	}
	return func() {
		unlock()
		s.mu.Unlock()
	}, nil
}

// check 调用方必须持有锁。返回是否新建了告警
func (s *AlertScanner) check(ctx context.Context, entry *domain.StockLedgerEntry) (bool, error) {
	alertType, ok, err := s.classifier.Classify(entry)
	if err != nil {
		return false, errors.Wrapf(err, "classify product %d", entry.ProductID)
	}
	if !ok {
		return false, nil
	}

	now := s.now()
	latest, err := s.alerts.Latest(ctx, entry.ProductID, alertType)
	if err != nil {
		return false, err
	}
	if latest.SuppressesNew(now, s.cooldown) {
		metrics.AlertsSuppressed.WithLabelValues(string(alertType)).Inc()
		return false, nil
	}

	alert := domain.NewStockAlert(entry, alertType, now)
	if err := s.alerts.Create(ctx, alert); err != nil {
		return false, err
	}
	metrics.AlertsRaised.WithLabelValues(string(alertType)).Inc()
	logger.Ctx(ctx).Warn().
		Int64("alert_id", alert.ID).
		Int64("product_id", alert.ProductID).
		Str("alert_type", string(alert.AlertType)).
		Msg(alert.Message)

	if s.publisher != nil {
		if err := s.publisher.PublishAlert(ctx, alert); err != nil {
			// 告警已落库，发布失败不回滚
			logger.Ctx(ctx).Error().Err(err).Int64("alert_id", alert.ID).Msg("failed to publish stock alert")
		}
	}
	return true, nil
}
