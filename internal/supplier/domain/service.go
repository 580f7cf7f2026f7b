package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context) ([]Response, error)
	Delete(ctx context.Context, id string) error
}

type CreateRequest struct {
	Name        string   `json:"name" validate:"required,max=200"`
	ContactName *string  `json:"contact_name" validate:"omitempty,max=200"`
	Phone       *string  `json:"phone" validate:"omitempty,max=50"`
	Email       *string  `json:"email" validate:"omitempty,email,max=200"`
	Address     *string  `json:"address"`
	Notes       *string  `json:"notes"`
	ProductIDs  []string `json:"product_ids"`
}

type Response struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContactName *string   `json:"contact_name,omitempty"`
	Phone       *string   `json:"phone,omitempty"`
	Email       *string   `json:"email,omitempty"`
	Address     *string   `json:"address,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
	ProductIDs  []string  `json:"product_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

var (
	ErrDuplicateName  = errors.New("duplicate_supplier_name")
	ErrNotFound       = errors.New("supplier_not_found")
	ErrInvalidID      = errors.New("invalid_supplier_id")
	ErrUnknownProduct = errors.New("unknown_product")
)
