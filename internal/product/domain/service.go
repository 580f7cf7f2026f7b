package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	Delete(ctx context.Context, id string) error
	AddUnit(ctx context.Context, id string) (*Response, error)
	Takeout(ctx context.Context, req TakeoutRequest) (*SaleResponse, error)
}

type ListRequest struct {
	Category string `form:"category"`
	InStock  *bool  `form:"in_stock"`
	SortBy   string `form:"sort_by"`
	OrderBy  string `form:"order_by"`
}

type CreateRequest struct {
	Name           string          `json:"name" validate:"required,max=200"`
	Category       string          `json:"category" validate:"omitempty,oneof=food school_supplies hair_care cosmetics cleaning"`
	Description    *string         `json:"description" validate:"omitempty,max=2000"`
	Price          decimal.Decimal `json:"price"`
	Quantity       int64           `json:"quantity" validate:"gte=0"`
	MinStock       *int64          `json:"min_stock" validate:"omitempty,gte=0"`
	Supplier       *string         `json:"supplier" validate:"omitempty,max=200"`
	ExpirationDate *string         `json:"expiration_date" validate:"omitempty,datetime=2006-01-02"`
}

type TakeoutRequest struct {
	Name     string `json:"name" form:"name" validate:"required"`
	Quantity int64  `json:"quantity" form:"quantity" validate:"gt=0"`
}

type Response struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Slug           string          `json:"slug"`
	Category       Category        `json:"category,omitempty"`
	Description    *string         `json:"description,omitempty"`
	Price          decimal.Decimal `json:"price"`
	Quantity       int64           `json:"quantity"`
	MinStock       int64           `json:"min_stock"`
	LowStock       bool            `json:"low_stock"`
	Supplier       *string         `json:"supplier,omitempty"`
	ExpirationDate *string         `json:"expiration_date,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type SaleResponse struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	Total       decimal.Decimal `json:"total"`
	Remaining   int64           `json:"remaining"`
	CreatedAt   time.Time       `json:"created_at"`
}

var (
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidPrice    = errors.New("invalid_price")
	ErrInvalidCategory = errors.New("invalid_category")
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrDuplicateName   = errors.New("duplicate_name")
	ErrNotFound        = errors.New("not_found")
	ErrInvalidID       = errors.New("invalid_id")
	ErrInUse           = errors.New("product_in_use")
)
