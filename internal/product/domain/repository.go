package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// Insert returns false when a product with the same name already exists.
	Insert(ctx context.Context, db *gorm.DB, product *Product) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Product, error)
	FindIDByName(ctx context.Context, db *gorm.DB, name string) (int64, error)
	List(ctx context.Context, db *gorm.DB, filter ListRequest) ([]Product, error)
	Delete(ctx context.Context, db *gorm.DB, id int64) (bool, error)
	CountInvoiceLines(ctx context.Context, db *gorm.DB, productID int64) (int64, error)
	InsertSale(ctx context.Context, db *gorm.DB, sale *Sale) error
}
