package infrastructure

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"stocksaga/internal/pkg/database"
	"stocksaga/internal/service/inventory/domain"
)

// GormLedgerRepository 是 LedgerRepository 的 GORM 实现
type GormLedgerRepository struct {
	db *gorm.DB
}

func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

func (r *GormLedgerRepository) Get(ctx context.Context, productID int64) (*domain.StockLedgerEntry, error) {
	var model StockLedgerModel
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, errors.Wrapf(err, "load ledger entry %d", productID)
	}
	return toDomainEntry(&model), nil
}

func (r *GormLedgerRepository) List(ctx context.Context) ([]*domain.StockLedgerEntry, error) {
	var models []*StockLedgerModel
	if err := r.db.WithContext(ctx).Order("product_id").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list ledger entries")
	}
	entries := make([]*domain.StockLedgerEntry, len(models))
	for i, m := range models {
		entries[i] = toDomainEntry(m)
	}
	return entries, nil
}

func (r *GormLedgerRepository) Create(ctx context.Context, entry *domain.StockLedgerEntry) error {
	model := fromDomainEntry(entry)
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(model)
	if res.Error != nil {
		if database.IsDuplicateKey(res.Error) {
			return domain.ErrEntryExists
		}
		return errors.Wrapf(res.Error, "create ledger entry %d", entry.ProductID)
	}
	if res.RowsAffected == 0 {
		return domain.ErrEntryExists
	}
	return nil
}

// Commit 在一个事务中完成：带版本检查的库存行更新、流水写入、回执写入
func (r *GormLedgerRepository) Commit(ctx context.Context, c *domain.Commit) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if c.Receipt != nil {
			// 唯一索引兜底并发重复，这里先挡住顺序重复
			var count int64
			if err := tx.Model(&ProcessingReceiptModel{}).
				Where("order_id = ? AND kind = ?", c.Receipt.OrderID, string(c.Receipt.Kind)).
				Count(&count).Error; err != nil {
				return errors.Wrap(err, "check receipt")
			}
			if count > 0 {
				return domain.ErrDuplicateReceipt
			}
		}

		// 按商品 ID 升序加行锁，并发事务之间不会互相等待成环
		for _, e := range sortedByProduct(c.Entries) {
			res := tx.Model(&StockLedgerModel{}).
				Where("product_id = ? AND version = ?", e.ProductID, e.Version).
				Updates(map[string]interface{}{
					"physical_stock": e.PhysicalStock,
					"reserved":       e.Reserved,
					"available":      e.Available,
					"min_threshold":  e.MinThreshold,
					"version":        gorm.Expr("version + 1"),
					"updated_at":     e.UpdatedAt,
				})
			if res.Error != nil {
				if database.IsRetryableConflict(res.Error) {
					return errors.Wrapf(domain.ErrVersionConflict, "product %d: %v", e.ProductID, res.Error)
				}
				return errors.Wrapf(res.Error, "update ledger entry %d", e.ProductID)
			}
			if res.RowsAffected == 0 {
				return errors.Wrapf(domain.ErrVersionConflict, "product %d at version %d", e.ProductID, e.Version)
			}
		}

		if len(c.Movements) > 0 {
			models := make([]*StockMovementModel, len(c.Movements))
			for i, m := range c.Movements {
				models[i] = fromDomainMovement(m)
			}
			if err := tx.Create(&models).Error; err != nil {
				return errors.Wrap(err, "insert stock movements")
			}
		}

		if c.Receipt != nil {
			model, err := fromDomainReceipt(c.Receipt)
			if err != nil {
				return errors.Wrap(err, "encode receipt")
			}
			if err := tx.Create(model).Error; err != nil {
				if database.IsDuplicateKey(err) {
					return domain.ErrDuplicateReceipt
				}
				return errors.Wrap(err, "insert receipt")
			}
		}
		return nil
	})
	if err != nil {
		// 死锁或忙等可能在提交时才报出，事务已回滚，交给上层重新读取
		if !errors.Is(err, domain.ErrVersionConflict) && database.IsRetryableConflict(err) {
			return errors.Wrapf(domain.ErrVersionConflict, "commit: %v", err)
		}
		return err
	}
	for _, e := range c.Entries {
		e.Version++
	}
	return nil
}

func sortedByProduct(entries []*domain.StockLedgerEntry) []*domain.StockLedgerEntry {
	sorted := make([]*domain.StockLedgerEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })
	return sorted
}

func (r *GormLedgerRepository) FindReceipt(ctx context.Context, orderID int64, kind domain.ReceiptKind) (*domain.Receipt, error) {
	var model ProcessingReceiptModel
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND kind = ?", orderID, string(kind)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "load receipt for order %d", orderID)
	}
	return toDomainReceipt(&model)
}

// ListMovements 按时间倒序返回，limit <= 0 表示不限制
func (r *GormLedgerRepository) ListMovements(ctx context.Context, productID int64, limit int) ([]domain.StockMovement, error) {
	var models []*StockMovementModel
	q := r.db.WithContext(ctx).Where("product_id = ?", productID).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, errors.Wrapf(err, "list movements for product %d", productID)
	}
	out := make([]domain.StockMovement, len(models))
	for i, m := range models {
		out[i] = toDomainMovement(m)
	}
	return out, nil
}

// GormAlertRepository 是 AlertRepository 的 GORM 实现
type GormAlertRepository struct {
	db *gorm.DB
}

func NewGormAlertRepository(db *gorm.DB) *GormAlertRepository {
	return &GormAlertRepository{db: db}
}

func (r *GormAlertRepository) Latest(ctx context.Context, productID int64, alertType domain.AlertType) (*domain.StockAlert, error) {
	var model StockAlertModel
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND alert_type = ?", productID, string(alertType)).
		Order("created_at DESC, id DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "load latest %s alert for product %d", alertType, productID)
	}
	return toDomainAlert(&model), nil
}

func (r *GormAlertRepository) Create(ctx context.Context, alert *domain.StockAlert) error {
	model := fromDomainAlert(alert)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return errors.Wrap(err, "create stock alert")
	}
	alert.ID = model.ID
	return nil
}

func (r *GormAlertRepository) Get(ctx context.Context, id int64) (*domain.StockAlert, error) {
	var model StockAlertModel
	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAlertNotFound
		}
		return nil, errors.Wrapf(err, "load stock alert %d", id)
	}
	return toDomainAlert(&model), nil
}

// Save 只更新解决状态，其余字段创建后不可变
func (r *GormAlertRepository) Save(ctx context.Context, alert *domain.StockAlert) error {
	res := r.db.WithContext(ctx).Model(&StockAlertModel{}).
		Where("id = ?", alert.ID).
		Updates(map[string]interface{}{
			"is_resolved": alert.IsResolved,
			"resolved_at": alert.ResolvedAt,
		})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update stock alert %d", alert.ID)
	}
	if res.RowsAffected == 0 {
		return domain.ErrAlertNotFound
	}
	return nil
}

func (r *GormAlertRepository) ListOpen(ctx context.Context) ([]*domain.StockAlert, error) {
	return r.find(ctx, r.db.Where("is_resolved = ?", false))
}

func (r *GormAlertRepository) ListHistory(ctx context.Context) ([]*domain.StockAlert, error) {
	return r.find(ctx, r.db)
}

func (r *GormAlertRepository) ListByProduct(ctx context.Context, productID int64) ([]*domain.StockAlert, error) {
	return r.find(ctx, r.db.Where("product_id = ?", productID))
}

// find 统一按创建时间倒序
func (r *GormAlertRepository) find(ctx context.Context, q *gorm.DB) ([]*domain.StockAlert, error) {
	var models []*StockAlertModel
	if err := q.WithContext(ctx).Order("created_at DESC, id DESC").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list stock alerts")
	}
	alerts := make([]*domain.StockAlert, len(models))
	for i, m := range models {
		alerts[i] = toDomainAlert(m)
	}
	return alerts, nil
}
