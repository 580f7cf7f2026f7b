package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatInvoiceNumber(t *testing.T) {
	issued := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		template string
		seq      int64
		want     string
	}{
		{name: "first code", template: CodeTemplate("F"), seq: 1, want: "F0001"},
		{name: "padded", template: CodeTemplate("F"), seq: 42, want: "F0042"},
		{name: "wider than padding", template: CodeTemplate("F"), seq: 12345, want: "F12345"},
		{name: "date tokens", template: "INV-{YYYY}{MM}{DD}-{SEQ}", seq: 9, want: "INV-20260307-9"},
		{name: "short year", template: "{YY}/{SEQ3}", seq: 7, want: "26/007"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FormatInvoiceNumber(tc.template, issued, tc.seq)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatInvoiceNumberRejects(t *testing.T) {
	issued := time.Now()

	_, err := FormatInvoiceNumber("", issued, 1)
	assert.Error(t, err)

	_, err = FormatInvoiceNumber("F{SEQ4}", issued, 0)
	assert.Error(t, err)

	_, err = FormatInvoiceNumber("F{UNKNOWN}", issued, 1)
	assert.Error(t, err)
}
