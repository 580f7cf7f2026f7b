package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		duplicate bool
		lock      bool
		retryable bool
	}{
		{name: "nil", err: nil},
		{name: "gorm duplicate", err: gorm.ErrDuplicatedKey, duplicate: true},
		{name: "pg unique", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), duplicate: true},
		{name: "sqlite unique", err: errors.New("UNIQUE constraint failed: invoices.code"), duplicate: true},
		{name: "pg lock timeout", err: &pgconn.PgError{Code: "55P03"}, lock: true},
		{name: "pg deadlock", err: &pgconn.PgError{Code: "40P01"}, retryable: true},
		{name: "pg serialization", err: &pgconn.PgError{Code: "40001"}, retryable: true},
		{name: "sqlite busy", err: errors.New("database is locked (5) (SQLITE_BUSY)"), retryable: true},
		{name: "other", err: errors.New("boom")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.duplicate, IsDuplicateKeyErr(tc.err))
			assert.Equal(t, tc.lock, IsLockTimeout(tc.err))
			assert.Equal(t, tc.retryable, IsRetryable(tc.err))
		})
	}
}

func TestIsCheckViolation(t *testing.T) {
	assert.True(t, IsCheckViolation(&pgconn.PgError{Code: "23514"}))
	assert.True(t, IsCheckViolation(errors.New("CHECK constraint failed: chk_products_quantity")))
	assert.False(t, IsCheckViolation(errors.New("boom")))
}
