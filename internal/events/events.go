package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeInvoiceRegistered = "invoice.registered"
	TypeStockLow          = "stock.low"
)

// Event is published after the unit of work that produced it committed.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

type InvoiceRegistered struct {
	InvoiceID string          `json:"invoice_id"`
	Code      string          `json:"code"`
	Customer  *string         `json:"customer,omitempty"`
	Total     decimal.Decimal `json:"total"`
	Lines     int             `json:"lines"`
}

type StockLow struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	MinStock  int64  `json:"min_stock"`
}

// NewStockLow builds the event fired when a sale leaves a product at or below its minimum.
func NewStockLow(productID, name string, quantity, minStock int64) Event {
	return Event{
		Type: TypeStockLow,
		Key:  productID,
		Data: StockLow{
			ProductID: productID,
			Name:      name,
			Quantity:  quantity,
			MinStock:  minStock,
		},
	}
}
