package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/kontago/internal/product/domain"
	"github.com/smallbiznis/kontago/pkg/db/option"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const productColumns = `id, name, slug, category, description, price, quantity, min_stock, supplier, expiration_date, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, product *domain.Product) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).
		Create(product)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+` FROM products WHERE id = ?`,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindIDByName(ctx context.Context, db *gorm.DB, name string) (int64, error) {
	var row struct {
		ID int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM products WHERE name = ?`,
		name,
	).Scan(&row).Error
	if err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListRequest) ([]domain.Product, error) {
	var items []domain.Product
	stmt := db.WithContext(ctx).Model(&domain.Product{})

	if filter.Category != "" {
		stmt = stmt.Where("category = ?", filter.Category)
	}
	if filter.InStock != nil {
		if *filter.InStock {
			stmt = stmt.Where("quantity > 0")
		} else {
			stmt = stmt.Where("quantity = 0")
		}
	}

	stmt = option.WithSortBy(option.QuerySortBy{
		SortBy: filter.SortBy,
		Desc:   strings.EqualFold(filter.OrderBy, "desc"),
		Allow: map[string]bool{
			"name":       true,
			"price":      true,
			"quantity":   true,
			"created_at": true,
		},
	}).Apply(stmt)

	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountInvoiceLines(ctx context.Context, db *gorm.DB, productID int64) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM invoice_items WHERE product_id = ?`,
		productID,
	).Scan(&count).Error
	return count, err
}

// Delete removes the product and its takeout sales.
func (r *repo) Delete(ctx context.Context, db *gorm.DB, id int64) (bool, error) {
	if err := db.WithContext(ctx).Exec(`DELETE FROM sales WHERE product_id = ?`, id).Error; err != nil {
		return false, err
	}
	if err := db.WithContext(ctx).Exec(`DELETE FROM supplier_products WHERE product_id = ?`, id).Error; err != nil {
		return false, err
	}
	res := db.WithContext(ctx).Exec(`DELETE FROM products WHERE id = ?`, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertSale(ctx context.Context, db *gorm.DB, sale *domain.Sale) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO sales (id, product_id, quantity, total, created_at) VALUES (?, ?, ?, ?, ?)`,
		sale.ID,
		sale.ProductID,
		sale.Quantity,
		sale.Total,
		sale.CreatedAt,
	).Error
}
