package sales

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStorage persists sales in a relational database through GORM.
// The *gorm.DB must be opened with TranslateError enabled so unique
// violations surface as gorm.ErrDuplicatedKey.
type GormStorage struct {
	db *gorm.DB
}

// NewGormStorage creates a storage backed by db.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

func (g *GormStorage) withItems(ctx context.Context) *gorm.DB {
	return g.db.WithContext(ctx).Preload("Items", orderItems)
}

func orderItems(db *gorm.DB) *gorm.DB {
	return db.Order("sale_items.created_at ASC, sale_items.id ASC")
}

// Create inserts the sale and its items in one transaction.
func (g *GormStorage) Create(ctx context.Context, sale *Sale) error {
	if sale.ID == "" {
		return ErrEmptyID
	}
	err := g.db.WithContext(ctx).Create(sale).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateSaleNumber
	}
	if err != nil {
		return fmt.Errorf("failed to insert sale: %w", err)
	}
	return nil
}

// Read loads a sale with its items by ID.
func (g *GormStorage) Read(ctx context.Context, id string) (*Sale, error) {
	var sale Sale
	err := g.withItems(ctx).Where("id = ?", id).First(&sale).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSaleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sale %s: %w", id, err)
	}
	return &sale, nil
}

// ReadByNumber loads a sale with its items by sale number.
func (g *GormStorage) ReadByNumber(ctx context.Context, saleNumber string) (*Sale, error) {
	var sale Sale
	err := g.withItems(ctx).Where("sale_number = ?", saleNumber).First(&sale).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSaleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sale number %s: %w", saleNumber, err)
	}
	return &sale, nil
}

// Update writes the header guarded by the version column, deletes items
// that are no longer on the sale and upserts the remaining ones.
func (g *GormStorage) Update(ctx context.Context, sale *Sale) error {
	if sale.ID == "" {
		return ErrEmptyID
	}
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Sale{}).
			Where("id = ? AND version = ?", sale.ID, sale.Version).
			Updates(map[string]any{
				"sale_number":  sale.SaleNumber,
				"sale_date":    sale.SaleDate,
				"customer":     sale.Customer,
				"branch":       sale.Branch,
				"total_amount": sale.TotalAmount,
				"is_cancelled": sale.IsCancelled,
				"updated_at":   sale.UpdatedAt,
				"version":      sale.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&Sale{}).Where("id = ?", sale.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrSaleNotFound
			}
			return ErrVersionConflict
		}

		keep := make([]string, 0, len(sale.Items))
		for i := range sale.Items {
			sale.Items[i].SaleID = sale.ID
			keep = append(keep, sale.Items[i].ID)
		}
		stale := tx.Where("sale_id = ?", sale.ID)
		if len(keep) > 0 {
			stale = stale.Where("id NOT IN ?", keep)
		}
		if err := stale.Delete(&SaleItem{}).Error; err != nil {
			return err
		}
		if len(sale.Items) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&sale.Items).Error
	})
	switch {
	case err == nil:
		sale.Version++
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateSaleNumber
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		return err
	default:
		return fmt.Errorf("failed to update sale %s: %w", sale.ID, err)
	}
}

// List returns one page of sales matching the filter.
func (g *GormStorage) List(ctx context.Context, filter SaleFilter) ([]*Sale, int, error) {
	filter = filter.normalized()

	q := g.db.WithContext(ctx).Model(&Sale{})
	if filter.Customer != "" {
		q = q.Where("customer = ?", filter.Customer)
	}
	if filter.Branch != "" {
		q = q.Where("branch = ?", filter.Branch)
	}
	if filter.CreatedBy != "" {
		q = q.Where("created_by = ?", filter.CreatedBy)
	}
	if !filter.From.IsZero() {
		q = q.Where("sale_date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("sale_date <= ?", filter.To)
	}
	if filter.Cancelled != nil {
		q = q.Where("is_cancelled = ?", *filter.Cancelled)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count sales: %w", err)
	}

	var sales []*Sale
	err := q.Preload("Items", orderItems).
		Order("sale_date DESC, sale_number ASC").
		Limit(filter.PageSize).
		Offset(filter.offset()).
		Find(&sales).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sales: %w", err)
	}
	return sales, int(total), nil
}
