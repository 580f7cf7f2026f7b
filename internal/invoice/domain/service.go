package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/kontago/pkg/db/pagination"
)

type Service interface {
	// Register records the cart as one invoice or changes nothing at all.
	Register(ctx context.Context, req RegisterRequest) (*Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	GetByID(ctx context.Context, id string) (*Invoice, error)
}

type RegisterRequest struct {
	Customer string      `json:"customer" validate:"max=100"`
	Cart     []CartEntry `json:"-"`
}

type ListInvoiceRequest struct {
	pagination.Pagination
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

// Summary is the payload returned to the cart form after a successful registration.
type Summary struct {
	ID        string          `json:"id"`
	Code      string          `json:"code"`
	Total     decimal.Decimal `json:"total"`
	LineCount int             `json:"line_count"`
}

func (i *Invoice) Summary() Summary {
	return Summary{
		ID:        i.ID.String(),
		Code:      i.Code,
		Total:     i.Total,
		LineCount: len(i.Items),
	}
}
