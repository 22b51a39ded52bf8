package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"stocksaga/internal/service/inventory/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库每个连接都是独立的数据库
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(AllModels()...))
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

var ledgerRepositories = map[string]func(t *testing.T) domain.LedgerRepository{
	"memory": func(*testing.T) domain.LedgerRepository { return NewMemoryLedgerRepository() },
	"gorm":   func(t *testing.T) domain.LedgerRepository { return NewGormLedgerRepository(newTestDB(t)) },
}

var alertRepositories = map[string]func(t *testing.T) domain.AlertRepository{
	"memory": func(*testing.T) domain.AlertRepository { return NewMemoryAlertRepository() },
	"gorm":   func(t *testing.T) domain.AlertRepository { return NewGormAlertRepository(newTestDB(t)) },
}

func TestLedgerRepository_CreateAndGet(t *testing.T) {
	for name, newRepo := range ledgerRepositories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)

			_, err := repo.Get(ctx, 101)
			assert.ErrorIs(t, err, domain.ErrEntryNotFound)

			require.NoError(t, repo.Create(ctx, domain.NewStockLedgerEntry(101, 10, 2)))
			assert.ErrorIs(t, repo.Create(ctx, domain.NewStockLedgerEntry(101, 99, 0)), domain.ErrEntryExists)

			got, err := repo.Get(ctx, 101)
			require.NoError(t, err)
			assert.Equal(t, 10, got.PhysicalStock)
			assert.Equal(t, 10, got.Available)
			assert.Equal(t, 2, got.MinThreshold)
			assert.Equal(t, int64(0), got.Version)

			require.NoError(t, repo.Create(ctx, domain.NewStockLedgerEntry(7, 1, 0)))
			all, err := repo.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, int64(7), all[0].ProductID)
		})
	}
}

func TestLedgerRepository_CommitChecksVersion(t *testing.T) {
	for name, newRepo := range ledgerRepositories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			require.NoError(t, repo.Create(ctx, domain.NewStockLedgerEntry(1, 10, 0)))

			first, _ := repo.Get(ctx, 1)
			stale, _ := repo.Get(ctx, 1)

			require.NoError(t, first.Reserve(3))
			require.NoError(t, repo.Commit(ctx, &domain.Commit{Entries: []*domain.StockLedgerEntry{first}}))
			assert.Equal(t, int64(1), first.Version)

			require.NoError(t, stale.Reserve(1))
			err := repo.Commit(ctx, &domain.Commit{Entries: []*domain.StockLedgerEntry{stale}})
			assert.ErrorIs(t, err, domain.ErrVersionConflict)

			got, _ := repo.Get(ctx, 1)
			assert.Equal(t, 3, got.Reserved)
			assert.Equal(t, 7, got.Available)
			assert.Equal(t, int64(1), got.Version)
		})
	}
}

func TestLedgerRepository_CommitIsAtomic(t *testing.T) {
	for name, newRepo := range ledgerRepositories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			require.NoError(t, repo.Create(ctx, domain.NewStockLedgerEntry(1, 5, 0)))
			require.NoError(t, repo.Create(ctx, domain.NewStockLedgerEntry(2, 5, 0)))

			a, _ := repo.Get(ctx, 1)
			b, _ := repo.Get(ctx, 2)

			// 另一个写者先改了 b
			other, _ := repo.Get(ctx, 2)
			require.NoError(t, other.Reserve(1))
			require.NoError(t, repo.Commit(ctx, &domain.Commit{Entries: []*domain.StockLedgerEntry{other}}))

			require.NoError(t, a.Reserve(3))
			require.NoError(t, b.Reserve(1))
			err := repo.Commit(ctx, &domain.Commit{
				Entries: []*domain.StockLedgerEntry{a, b},
				Movements: []domain.StockMovement{
					{ProductID: 1, Kind: domain.MovementReserve, Delta: 3, OrderID: 9, CreatedAt: time.Now()},
					{ProductID: 2, Kind: domain.MovementReserve, Delta: 1, OrderID: 9, CreatedAt: time.Now()},
				},
				Receipt: &domain.Receipt{OrderID: 9, Kind: domain.ReceiptReserve, Success: true, CreatedAt: time.Now()},
			})
			require.ErrorIs(t, err, domain.ErrVersionConflict)

			gotA, _ := repo.Get(ctx, 1)
			assert.Equal(t, 0, gotA.Reserved, "first row must be rolled back")
			assert.Equal(t, int64(0), gotA.Version)

			movements, err := repo.ListMovements(ctx, 1, 0)
			require.NoError(t, err)
			assert.Empty(t, movements)

			receipt, err := repo.FindReceipt(ctx, 9, domain.ReceiptReserve)
			require.NoError(t, err)
			assert.Nil(t, receipt)
		})
	}
}

func TestGormLedgerRepository_LockConflictIsRetryable(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewGormLedgerRepository(db)
	require.NoError(t, repo.Create(ctx, domain.NewStockLedgerEntry(1, 5, 0)))

	// 第一次 UPDATE 返回 mysql 死锁
	deadlocked := false
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:deadlock", func(tx *gorm.DB) {
		if !deadlocked {
			deadlocked = true
			tx.AddError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"})
		}
	}))

	e, _ := repo.Get(ctx, 1)
	require.NoError(t, e.Reserve(2))
	err := repo.Commit(ctx, &domain.Commit{Entries: []*domain.StockLedgerEntry{e}})
	require.ErrorIs(t, err, domain.ErrVersionConflict)
	assert.Equal(t, int64(0), e.Version)

	// 重新读取后重试成功
	e, _ = repo.Get(ctx, 1)
	require.NoError(t, e.Reserve(2))
	require.NoError(t, repo.Commit(ctx, &domain.Commit{Entries: []*domain.StockLedgerEntry{e}}))
	got, _ := repo.Get(ctx, 1)
	assert.Equal(t, 2, got.Reserved)
}

func TestSortedByProduct(t *testing.T) {
	entries := []*domain.StockLedgerEntry{
		domain.NewStockLedgerEntry(30, 1, 0),
		domain.NewStockLedgerEntry(10, 1, 0),
		domain.NewStockLedgerEntry(20, 1, 0),
	}
	sorted := sortedByProduct(entries)

	ids := make([]int64, len(sorted))
	for i, e := range sorted {
		ids[i] = e.ProductID
	}
	assert.Equal(t, []int64{10, 20, 30}, ids)
	assert.Equal(t, int64(30), entries[0].ProductID, "input order is kept")
	assert.Same(t, entries[1], sorted[0])
}

func TestLedgerRepository_Receipts(t *testing.T) {
	for name, newRepo := range ledgerRepositories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)

			rejected := &domain.Receipt{
				OrderID:     42,
				Kind:        domain.ReceiptReserve,
				Message:     "Failed to reserve inventory",
				FailedItems: []string{"Product not found: 999"},
				CreatedAt:   time.Now(),
			}
			require.NoError(t, repo.Commit(ctx, &domain.Commit{Receipt: rejected}))

			got, err := repo.FindReceipt(ctx, 42, domain.ReceiptReserve)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.False(t, got.Success)
			assert.Equal(t, []string{"Product not found: 999"}, got.FailedItems)

			err = repo.Commit(ctx, &domain.Commit{Receipt: &domain.Receipt{OrderID: 42, Kind: domain.ReceiptReserve, Success: true}})
			assert.ErrorIs(t, err, domain.ErrDuplicateReceipt)

			// 同一订单的释放回执是独立的
			require.NoError(t, repo.Commit(ctx, &domain.Commit{Receipt: &domain.Receipt{OrderID: 42, Kind: domain.ReceiptRelease, Success: true}}))
		})
	}
}

func TestLedgerRepository_ListMovements(t *testing.T) {
	for name, newRepo := range ledgerRepositories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			require.NoError(t, repo.Create(ctx, domain.NewStockLedgerEntry(1, 10, 0)))

			for i := 1; i <= 3; i++ {
				e, _ := repo.Get(ctx, 1)
				require.NoError(t, e.Reserve(1))
				require.NoError(t, repo.Commit(ctx, &domain.Commit{
					Entries:   []*domain.StockLedgerEntry{e},
					Movements: []domain.StockMovement{{ProductID: 1, Kind: domain.MovementReserve, Delta: 1, OrderID: int64(i), CreatedAt: time.Now()}},
				}))
			}

			all, err := repo.ListMovements(ctx, 1, 0)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, int64(3), all[0].OrderID, "newest first")

			limited, err := repo.ListMovements(ctx, 1, 2)
			require.NoError(t, err)
			assert.Len(t, limited, 2)

			none, err := repo.ListMovements(ctx, 2, 0)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestAlertRepository(t *testing.T) {
	for name, newRepo := range alertRepositories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

			latest, err := repo.Latest(ctx, 101, domain.AlertOutOfStock)
			require.NoError(t, err)
			assert.Nil(t, latest)

			first := domain.NewStockAlert(domain.NewStockLedgerEntry(101, 0, 5), domain.AlertOutOfStock, base)
			require.NoError(t, repo.Create(ctx, first))
			assert.NotZero(t, first.ID)

			second := domain.NewStockAlert(domain.NewStockLedgerEntry(101, 0, 5), domain.AlertOutOfStock, base.Add(2*time.Hour))
			require.NoError(t, repo.Create(ctx, second))
			low := domain.NewStockAlert(domain.NewStockLedgerEntry(202, 3, 5), domain.AlertLowStock, base.Add(time.Hour))
			require.NoError(t, repo.Create(ctx, low))

			latest, err = repo.Latest(ctx, 101, domain.AlertOutOfStock)
			require.NoError(t, err)
			require.NotNil(t, latest)
			assert.Equal(t, second.ID, latest.ID)

			first.Resolve(base.Add(time.Minute))
			require.NoError(t, repo.Save(ctx, first))

			open, err := repo.ListOpen(ctx)
			require.NoError(t, err)
			require.Len(t, open, 2)
			assert.Equal(t, second.ID, open[0].ID)
			assert.Equal(t, low.ID, open[1].ID)

			history, err := repo.ListHistory(ctx)
			require.NoError(t, err)
			assert.Len(t, history, 3)

			byProduct, err := repo.ListByProduct(ctx, 101)
			require.NoError(t, err)
			require.Len(t, byProduct, 2)
			assert.Equal(t, second.ID, byProduct[0].ID)

			got, err := repo.Get(ctx, first.ID)
			require.NoError(t, err)
			assert.True(t, got.IsResolved)
			require.NotNil(t, got.ResolvedAt)

			_, err = repo.Get(ctx, 9999)
			assert.ErrorIs(t, err, domain.ErrAlertNotFound)
		})
	}
}
