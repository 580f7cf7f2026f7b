package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Customer string `json:"customer" validate:"max=5"`
	Quantity int64  `json:"quantity" validate:"gt=0"`
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	err := Struct(sample{Customer: "too long name", Quantity: 0})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Fields, 2)
	assert.Equal(t, "customer", verr.Fields[0].Field)
	assert.Equal(t, "max", verr.Fields[0].Rule)
	assert.Equal(t, "quantity", verr.Fields[1].Field)

	assert.NoError(t, Struct(sample{Customer: "Ana", Quantity: 1}))
}

func TestFields(t *testing.T) {
	assert.NoError(t, Fields())
	assert.ErrorIs(t, Fields(FieldError{Field: "price", Rule: "gte"}), ErrInvalid)
}
