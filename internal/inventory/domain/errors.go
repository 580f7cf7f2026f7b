package domain

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrProductNotFound   = errors.New("product_not_found")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
	ErrInsufficientStock = errors.New("insufficient_stock")
	ErrLockTimeout       = errors.New("lock_timeout")
)

type ProductNotFoundError struct {
	ProductID snowflake.ID
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}

type InvalidQuantityError struct {
	ProductID snowflake.ID
	Quantity  int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity %d for product %d must be greater than zero", e.Quantity, e.ProductID)
}

func (e *InvalidQuantityError) Is(target error) bool {
	return target == ErrInvalidQuantity
}

type InsufficientStockError struct {
	ProductID snowflake.ID
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type LockTimeoutError struct {
	ProductID snowflake.ID
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for lock on product %d", e.ProductID)
}

func (e *LockTimeoutError) Is(target error) bool {
	return target == ErrLockTimeout
}
