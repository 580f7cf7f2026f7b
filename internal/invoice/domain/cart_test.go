package domain

import (
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kontago/pkg/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCart(t *testing.T) {
	entries, err := DecodeCart(`[{"product_id": 7, "quantity": 2}, {"product_id": "8", "quantity": " 3 "}]`)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	id, qty, ok := entries[0].Parse()
	require.True(t, ok)
	assert.Equal(t, snowflake.ID(7), id)
	assert.Equal(t, int64(2), qty)

	id, qty, ok = entries[1].Parse()
	require.True(t, ok)
	assert.Equal(t, snowflake.ID(8), id)
	assert.Equal(t, int64(3), qty)
}

func TestDecodeCartEmpty(t *testing.T) {
	for _, text := range []string{"", "   ", "null", "[]"} {
		entries, err := DecodeCart(text)
		require.NoError(t, err, text)
		assert.Empty(t, entries, text)
	}
}

func TestDecodeCartRejectsNonArray(t *testing.T) {
	for _, text := range []string{"{", `{"product_id": 1}`, "42", `"[]"`} {
		_, err := DecodeCart(text)
		assert.ErrorIs(t, err, ErrMalformedCart, text)
	}
}

func TestCartEntryParseRejects(t *testing.T) {
	entries, err := DecodeCart(`[
		"not an object",
		{"quantity": 1},
		{"product_id": 1},
		{"product_id": "abc", "quantity": 1},
		{"product_id": 1, "quantity": 2.5},
		{"product_id": true, "quantity": 1},
		{"product_id": null, "quantity": 1},
		{"product_id": 1, "quantity": "1.0"},
		{"product_id": 1, "quantity": 9.223372036854775808e18},
		{"product_id": 9223372036854775808, "quantity": 1},
		{"product_id": 1, "quantity": -1e19}
	]`)
	require.NoError(t, err)
	require.Len(t, entries, 11)

	for i, entry := range entries {
		_, _, ok := entry.Parse()
		assert.False(t, ok, "entry %d", i)
	}
}

func TestCartEntryParseAcceptsIntegralFloat(t *testing.T) {
	entries, err := DecodeCart(`[{"product_id": 3, "quantity": 2.0}]`)
	require.NoError(t, err)

	_, qty, ok := entries[0].Parse()
	require.True(t, ok)
	assert.Equal(t, int64(2), qty)
}

func TestItemRoundTripsThroughParse(t *testing.T) {
	id, qty, ok := Item(snowflake.ID(1893456789012345678), -4).Parse()
	require.True(t, ok)
	assert.Equal(t, snowflake.ID(1893456789012345678), id)
	assert.Equal(t, int64(-4), qty)
}

func TestErrorsMatchSentinels(t *testing.T) {
	assert.ErrorIs(t, &MalformedCartItemError{Index: 2}, ErrMalformedCartItem)
	assert.ErrorIs(t, &InvalidHeaderError{Fields: []validate.FieldError{{Field: "customer", Rule: "max"}}}, ErrInvalidHeader)

	cause := errors.New("UNIQUE constraint failed: invoices.code")
	collision := &CodeCollisionError{Code: "F0004", Err: cause}
	assert.ErrorIs(t, collision, ErrCodeCollision)
	assert.ErrorIs(t, collision, cause)

	persistence := &PersistenceError{Op: "register invoice", Err: cause}
	assert.ErrorIs(t, persistence, ErrPersistence)
	assert.Contains(t, persistence.Error(), "register invoice")
}
