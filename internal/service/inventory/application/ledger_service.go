// internal/service/inventory/application/ledger_service.go
package application

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"stocksaga/internal/pkg/logger"
	"stocksaga/internal/pkg/metrics"
	"stocksaga/internal/service/inventory/domain"
	"stocksaga/internal/service/inventory/domain/port"
)

const DefaultMaxCommitAttempts = 5

// AdjustmentObserver 在每次库存提交成功后被通知 (告警扫描器)
type AdjustmentObserver interface {
	OnLedgerChanged(ctx context.Context, entry *domain.StockLedgerEntry)
}

// LedgerService 库存台账的应用服务。所有写操作都是 读取快照 -> 修改 -> 带版本号提交，
// 冲突时重新读取并重试，最多 maxAttempts 次
type LedgerService struct {
	repo        domain.LedgerRepository
	catalog     port.CatalogSeeder // 可以为空，此时未建账的商品一律视为不存在
	maxAttempts int
	tracer      trace.Tracer

	mu        sync.RWMutex
	observers []AdjustmentObserver
}

func NewLedgerService(repo domain.LedgerRepository, catalog port.CatalogSeeder, maxAttempts int, tracer trace.Tracer) *LedgerService {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxCommitAttempts
	}
	return &LedgerService{repo: repo, catalog: catalog, maxAttempts: maxAttempts, tracer: tracer}
}

// AddObserver 注册提交后的回调
func (s *LedgerService) AddObserver(o AdjustmentObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *LedgerService) notify(ctx context.Context, entries ...*domain.StockLedgerEntry) {
	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()
	for _, e := range entries {
		for _, o := range observers {
			o.OnLedgerChanged(ctx, e.Clone())
		}
	}
}

// Snapshot 返回商品当前库存的快照
func (s *LedgerService) Snapshot(ctx context.Context, productID int64) (*domain.StockLedgerEntry, error) {
	return s.repo.Get(ctx, productID)
}

func (s *LedgerService) List(ctx context.Context) ([]*domain.StockLedgerEntry, error) {
	return s.repo.List(ctx)
}

func (s *LedgerService) Movements(ctx context.Context, productID int64, limit int) ([]domain.StockMovement, error) {
	return s.repo.ListMovements(ctx, productID, limit)
}

// AdjustPhysicalStock 入库/出库。商品未建账时先从目录初始化，目录中也没有则从 0 开始
func (s *LedgerService) AdjustPhysicalStock(ctx context.Context, productID int64, delta int) (*domain.StockLedgerEntry, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.AdjustPhysicalStock", trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.Int("delta", delta),
	))
	defer span.End()

	entry, err := s.mutate(ctx, productID, true, func(e *domain.StockLedgerEntry) (*domain.StockMovement, error) {
		if err := e.AdjustPhysical(delta); err != nil {
			return nil, err
		}
		return &domain.StockMovement{ProductID: productID, Kind: domain.MovementAdjust, Delta: delta}, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "adjust physical stock failed")
		return nil, err
	}
	logger.Ctx(ctx).Info().
		Int64("product_id", productID).
		Int("delta", delta).
		Int("physical", entry.PhysicalStock).
		Int("available", entry.Available).
		Msg("physical stock adjusted")
	return entry, nil
}

// Reserve 为单个商品预占，负数表示归还
func (s *LedgerService) Reserve(ctx context.Context, productID int64, qty int) (*domain.StockLedgerEntry, error) {
	if qty == 0 {
		return nil, domain.ErrInvalidQuantity
	}
	ctx, span := s.tracer.Start(ctx, "ledger.Reserve", trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.Int("quantity", qty),
	))
	defer span.End()

	entry, err := s.mutate(ctx, productID, false, func(e *domain.StockLedgerEntry) (*domain.StockMovement, error) {
		if err := e.Reserve(qty); err != nil {
			return nil, err
		}
		return &domain.StockMovement{ProductID: productID, Kind: domain.MovementReserve, Delta: qty}, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return entry, nil
}

// Release 归还预占，截断到 0，返回实际归还的数量。负数表示预占
func (s *LedgerService) Release(ctx context.Context, productID int64, qty int) (int, *domain.StockLedgerEntry, error) {
	if qty == 0 {
		return 0, nil, domain.ErrInvalidQuantity
	}
	ctx, span := s.tracer.Start(ctx, "ledger.Release", trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.Int("quantity", qty),
	))
	defer span.End()

	var released int
	entry, err := s.mutate(ctx, productID, false, func(e *domain.StockLedgerEntry) (*domain.StockMovement, error) {
		if qty < 0 {
			// 反向操作需要与 Reserve 相同的库存检查
			if err := e.Reserve(-qty); err != nil {
				return nil, err
			}
			released = qty
		} else {
			released = e.Release(qty)
		}
		if released == 0 {
			return nil, nil
		}
		return &domain.StockMovement{ProductID: productID, Kind: domain.MovementRelease, Delta: released}, nil
	})
	if err != nil {
		span.RecordError(err)
		return 0, nil, err
	}
	return released, entry, nil
}

// SetMinThreshold 修改告警阈值
func (s *LedgerService) SetMinThreshold(ctx context.Context, productID int64, threshold int) (*domain.StockLedgerEntry, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.SetMinThreshold", trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.Int("threshold", threshold),
	))
	defer span.End()

	entry, err := s.mutate(ctx, productID, true, func(e *domain.StockLedgerEntry) (*domain.StockMovement, error) {
		return nil, e.SetMinThreshold(threshold)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return entry, nil
}

// mutate 是单商品写操作的重试循环。fn 返回的业务错误直接返回，不重试
func (s *LedgerService) mutate(ctx context.Context, productID int64, createIfUnknown bool,
	fn func(e *domain.StockLedgerEntry) (*domain.StockMovement, error)) (*domain.StockLedgerEntry, error) {

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		current, err := s.loadOrSeed(ctx, productID, createIfUnknown)
		if err != nil {
			return nil, err
		}
		entry := current.Clone()
		movement, err := fn(entry)
		if err != nil {
			return nil, err
		}

		commit := &domain.Commit{Entries: []*domain.StockLedgerEntry{entry}}
		if movement != nil {
			movement.CreatedAt = time.Now().UTC()
			commit.Movements = []domain.StockMovement{*movement}
		}
		err = s.repo.Commit(ctx, commit)
		if err == nil {
			s.notify(ctx, entry)
			return entry, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}
		metrics.LedgerConflicts.Inc()
		logger.Ctx(ctx).Debug().Int64("product_id", productID).Int("attempt", attempt).Msg("ledger version conflict, retrying")
	}
	return nil, errors.Wrapf(domain.ErrConcurrentModification, "product %d after %d attempts", productID, s.maxAttempts)
}

// loadOrSeed 读取台账；未建账时用商品目录的数据初始化一次。
// createIfUnknown=false 时目录里也不存在的商品返回 ErrProductNotFound
func (s *LedgerService) loadOrSeed(ctx context.Context, productID int64, createIfUnknown bool) (*domain.StockLedgerEntry, error) {
	entry, err := s.repo.Get(ctx, productID)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, domain.ErrEntryNotFound) {
		return nil, err
	}

	var seeded *domain.StockLedgerEntry
	if s.catalog != nil {
		seed, err := s.catalog.Seed(ctx, productID)
		switch {
		case err == nil:
			seeded = domain.NewStockLedgerEntry(productID, seed.StockQuantity, seed.MinThreshold)
		case errors.Is(err, port.ErrUnknownProduct):
		default:
			return nil, errors.Wrapf(err, "seed product %d from catalog", productID)
		}
	}
	if seeded == nil {
		if !createIfUnknown {
			return nil, errors.Wrapf(domain.ErrProductNotFound, "product %d", productID)
		}
		seeded = domain.NewStockLedgerEntry(productID, 0, 0)
	}

	if err := s.repo.Create(ctx, seeded); err != nil {
		// 其他实例抢先建账，以已存在的为准
		if errors.Is(err, domain.ErrEntryExists) {
			return s.repo.Get(ctx, productID)
		}
		return nil, err
	}
	logger.Ctx(ctx).Info().
		Int64("product_id", productID).
		Int("physical", seeded.PhysicalStock).
		Int("min_threshold", seeded.MinThreshold).
		Msg("ledger entry created")
	return seeded, nil
}
