package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kontago/pkg/db/uow"
)

// Ledger is the only component allowed to change product stock.
// Every call must run inside the caller's unit of work.
type Ledger interface {
	// LockForUpdate blocks until the product row is exclusively held by unit.
	LockForUpdate(ctx context.Context, unit *uow.Unit, productID snowflake.ID) (*ProductHandle, error)
	Decrement(ctx context.Context, unit *uow.Unit, handle *ProductHandle, qty int64) error
	Increment(ctx context.Context, unit *uow.Unit, handle *ProductHandle, qty int64) error
}
