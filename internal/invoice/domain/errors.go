package domain

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/kontago/pkg/validate"
)

var (
	ErrEmptyCart         = errors.New("empty_cart")
	ErrMalformedCart     = errors.New("malformed_cart")
	ErrMalformedCartItem = errors.New("malformed_cart_item")
	ErrInvalidHeader     = errors.New("invalid_header")
	ErrCodeCollision     = errors.New("code_collision")
	ErrPersistence       = errors.New("internal_persistence_failure")
	ErrNotFound          = errors.New("not_found")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
)

type InvalidHeaderError struct {
	Fields []validate.FieldError
}

func (e *InvalidHeaderError) Error() string {
	return fmt.Sprintf("invalid invoice header: %d field(s)", len(e.Fields))
}

func (e *InvalidHeaderError) Is(target error) bool {
	return target == ErrInvalidHeader
}

type MalformedCartItemError struct {
	Index int
}

func (e *MalformedCartItemError) Error() string {
	return fmt.Sprintf("cart item %d is malformed", e.Index)
}

func (e *MalformedCartItemError) Is(target error) bool {
	return target == ErrMalformedCartItem
}

type CodeCollisionError struct {
	Code string
	Err  error
}

func (e *CodeCollisionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invoice code %s already taken: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("invoice code %s already taken", e.Code)
}

func (e *CodeCollisionError) Unwrap() error {
	return e.Err
}

func (e *CodeCollisionError) Is(target error) bool {
	return target == ErrCodeCollision
}

// PersistenceError wraps storage faults. Callers show a generic message.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
