// Package money holds amounts as integer euro cents. Conversion to a display
// format happens only at the HTTP boundary.
package money

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Cents is an amount in minor currency units.
type Cents int64

var (
	hundred = decimal.NewFromInt(100)

	ErrInvalidAmount = errors.New("invalid amount")
)

// FromDecimal converts a major-unit decimal (12.345) into cents, rounding half
// away from zero.
func FromDecimal(d decimal.Decimal) Cents {
	return Cents(d.Mul(hundred).Round(0).IntPart())
}

// FromMajor builds an amount from whole currency units.
func FromMajor(units int64) Cents {
	return Cents(units * 100)
}

// Decimal returns the amount in major units.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// String renders the amount with two fraction digits, e.g. "1234.50".
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

func (c Cents) Abs() Cents {
	if c < 0 {
		return -c
	}
	return c
}

func (c Cents) IsZero() bool {
	return c == 0
}

// Percent returns pct percent of c, rounded to whole cents.
func Percent(c Cents, pct decimal.Decimal) Cents {
	return Cents(decimal.NewFromInt(int64(c)).Mul(pct).Div(hundred).Round(0).IntPart())
}

// ParsePrice parses a price label formatted for es-ES ("1.234,50 €", "97€").
// Dots are thousands separators and the comma is the decimal mark.
func ParsePrice(raw string) (Cents, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ".", "")
	s = strings.Replace(s, ",", ".", 1)
	s = strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, s)
	if s == "" || s == "." {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return FromDecimal(d), nil
}

// ParseAmount parses a typed amount where either "," or "." may be the
// decimal mark ("1234,5", "1234.50", "90 €").
func ParseAmount(raw string) (Cents, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "€"), "€")
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	s = strings.Replace(s, ",", ".", 1)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if d.IsNegative() {
		return 0, ErrInvalidAmount
	}
	return FromDecimal(d), nil
}

// ParseInput accepts typed amounts ("1234,5", "90.99") as well as es-ES
// labels with thousands separators ("1.234,50 €"). Anything besides digits,
// separators, spaces and the euro sign is rejected, including a minus sign.
func ParseInput(raw string) (Cents, error) {
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '€', unicode.IsSpace(r):
		default:
			return 0, ErrInvalidAmount
		}
	}
	if c, err := ParseAmount(raw); err == nil {
		return c, nil
	}
	return ParsePrice(raw)
}
