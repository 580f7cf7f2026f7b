package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// ProductHandle is a product row read under lock inside a unit of work.
// Quantity tracks the in-transaction value after each mutation.
type ProductHandle struct {
	ID       snowflake.ID    `gorm:"column:id"`
	Name     string          `gorm:"column:name"`
	Price    decimal.Decimal `gorm:"column:price"`
	Quantity int64           `gorm:"column:quantity"`
	MinStock int64           `gorm:"column:min_stock"`
}

// LowStock reports whether quantity is at or below the minimum stock level.
func (h *ProductHandle) LowStock() bool {
	return h != nil && h.Quantity <= h.MinStock
}
