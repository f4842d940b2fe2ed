// Package core provides money parsing and handling utilities.
//
// Amounts are shopspring decimals. They are persisted as TEXT and rendered
// as JSON numbers.
package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// ParseAmount converts a decimal string to an amount with two decimal places.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. Zero is allowed, negative values
// are not.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,34")  -> 12.34
//	ParseAmount("12.345") -> 12.35
//	ParseAmount("0")      -> 0
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(2), nil
}

// FormatAmount renders an optional amount, using "0" when absent.
func FormatAmount(d *decimal.Decimal) string {
	if d == nil {
		return "0"
	}
	return d.String()
}

// parseAmountJSON decodes an amount sent as a JSON number or as a quoted
// form value such as "12,34". Quoted values go through ParseAmount.
// null and blank strings decode to nil.
func parseAmountJSON(data []byte) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil, nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, raw)
		}
		if strings.TrimSpace(s) == "" {
			return nil, nil
		}
		d, err := ParseAmount(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
		return &d, nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, raw)
	}
	return &d, nil
}

// jsonAmount decodes one optional amount field with parseAmountJSON.
type jsonAmount struct {
	v *decimal.Decimal
}

func (a *jsonAmount) UnmarshalJSON(data []byte) error {
	v, err := parseAmountJSON(data)
	if err != nil {
		return err
	}
	a.v = v
	return nil
}
