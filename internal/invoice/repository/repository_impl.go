package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/kontago/internal/invoice/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// NextSequence reads the highest allocated sequence. Two concurrent callers may
// see the same value; the unique index on sequence rejects the loser.
func (r *repo) NextSequence(ctx context.Context, db *gorm.DB) (int64, error) {
	var row struct {
		Next int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(sequence), 0) + 1 AS next FROM invoices`,
	).Scan(&row).Error
	if err != nil {
		return 0, err
	}
	return row.Next, nil
}

func (r *repo) InsertHeader(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoices (id, sequence, code, customer, total, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.Sequence,
		invoice.Code,
		invoice.Customer,
		invoice.Total,
		invoice.CreatedAt,
	).Error
}

func (r *repo) InsertItem(ctx context.Context, db *gorm.DB, item *domain.InvoiceItem) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoice_items (id, invoice_id, product_id, position, quantity, unit_price, subtotal)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.InvoiceID,
		item.ProductID,
		item.Position,
		item.Quantity,
		item.UnitPrice,
		item.Subtotal,
	).Error
}

func (r *repo) UpdateTotal(ctx context.Context, db *gorm.DB, id snowflake.ID, total decimal.Decimal) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices SET total = ? WHERE id = ?`,
		total,
		id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, invoiceIDs []snowflake.ID) ([]domain.InvoiceItem, error) {
	if len(invoiceIDs) == 0 {
		return nil, nil
	}

	var items []domain.InvoiceItem
	err := db.WithContext(ctx).Raw(
		`SELECT ii.id, ii.invoice_id, ii.product_id, COALESCE(p.name, '') AS product_name,
		        ii.position, ii.quantity, ii.unit_price, ii.subtotal
		 FROM invoice_items ii
		 LEFT JOIN products p ON p.id = ii.product_id
		 WHERE ii.invoice_id IN ?
		 ORDER BY ii.invoice_id, ii.position`,
		invoiceIDs,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
