package models

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Price is a money amount decoded leniently from persisted or wire data.
// Anything that is not a number or numeric string decodes as an invalid price.
type Price struct {
	Amount decimal.Decimal
	Valid  bool
}

// NewPrice builds a valid price from a decimal string, panicking on bad input.
// Meant for literals.
func NewPrice(value string) Price {
	return Price{Amount: decimal.RequireFromString(value), Valid: true}
}

// MarshalJSON writes the price as a bare JSON number, or null when invalid
func (p Price) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return []byte(p.Amount.String()), nil
}

// UnmarshalJSON never fails; malformed values leave the price invalid
func (p *Price) UnmarshalJSON(data []byte) error {
	*p = Price{}
	raw := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if raw == "" || raw == "null" {
		return nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return nil
	}
	*p = Price{Amount: amount, Valid: true}
	return nil
}

// Quantity is a line quantity decoded leniently: non-numeric input becomes 0
type Quantity int

// UnmarshalJSON never fails; malformed values decode as 0
func (q *Quantity) UnmarshalJSON(data []byte) error {
	*q = 0
	raw := strings.TrimSpace(strings.Trim(string(bytes.TrimSpace(data)), `"`))
	if n, err := strconv.Atoi(raw); err == nil {
		*q = Quantity(n)
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return nil
	}
	*q = Quantity(int(f))
	return nil
}
