package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// CartEntry is one submitted cart record. Fields stay raw until registration
// parses them so a malformed entry is reported at its own position.
type CartEntry struct {
	ProductID json.RawMessage `json:"product_id"`
	Quantity  json.RawMessage `json:"quantity"`
}

// Item builds a well-formed entry.
func Item(productID snowflake.ID, quantity int64) CartEntry {
	return CartEntry{
		ProductID: json.RawMessage(strconv.Quote(productID.String())),
		Quantity:  json.RawMessage(strconv.FormatInt(quantity, 10)),
	}
}

// Parse returns the integer product id and quantity, or ok=false when either is not an integer.
func (e CartEntry) Parse() (snowflake.ID, int64, bool) {
	productID, ok := parseInteger(e.ProductID)
	if !ok {
		return 0, 0, false
	}
	quantity, ok := parseInteger(e.Quantity)
	if !ok {
		return 0, 0, false
	}
	return snowflake.ID(productID), quantity, true
}

// DecodeCart decodes the cart_data form field. Blank text and null decode to an
// empty cart; anything that is not a JSON array fails with ErrMalformedCart.
// Elements that are not objects become entries that fail to Parse.
func DecodeCart(text string) ([]CartEntry, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, ErrMalformedCart
	}

	entries := make([]CartEntry, len(raw))
	for i, elem := range raw {
		elem = bytes.TrimSpace(elem)
		if len(elem) == 0 || elem[0] != '{' {
			continue
		}
		if err := json.Unmarshal(elem, &entries[i]); err != nil {
			entries[i] = CartEntry{}
		}
	}
	return entries, nil
}

func parseInteger(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return 0, false
	}
	if v, err := n.Int64(); err == nil {
		return v, true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}
