// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Invoice is a committed sale of one or more products.
// Total always equals the sum of its item subtotals.
type Invoice struct {
	ID        snowflake.ID    `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Sequence  int64           `json:"sequence" gorm:"not null;uniqueIndex:ux_invoices_sequence"`
	Code      string          `json:"code" gorm:"type:varchar(20);not null;uniqueIndex:ux_invoices_code"`
	Customer  *string         `json:"customer,omitempty" gorm:"type:varchar(100)"`
	Total     decimal.Decimal `json:"total" gorm:"type:numeric(12,2);not null;default:0"`
	CreatedAt time.Time       `json:"created_at" gorm:"not null;index:ix_invoices_created_at"`
	Items     []InvoiceItem   `json:"items" gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceItem is one cart line with the unit price captured at registration.
type InvoiceItem struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey;autoIncrement:false"`
	InvoiceID   snowflake.ID    `json:"invoice_id" gorm:"not null;index:ix_invoice_items_invoice"`
	ProductID   snowflake.ID    `json:"product_id" gorm:"not null;index:ix_invoice_items_product"`
	ProductName string          `json:"product_name,omitempty" gorm:"->;-:migration"`
	Position    int             `json:"position" gorm:"not null"`
	Quantity    int64           `json:"quantity" gorm:"not null"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:numeric(12,2);not null"`
	Subtotal    decimal.Decimal `json:"subtotal" gorm:"type:numeric(12,2);not null"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }
