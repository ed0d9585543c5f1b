package chit

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - decimal currency amount with lossless arithmetic
// =============================================================================

// Money is a currency amount. Coercion never fails; bad input becomes zero.
type Money struct {
	Value decimal.Decimal
}

func NewMoney(v float64) Money {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Money{}
	}
	return Money{Value: decimal.NewFromFloat(v)}
}

func MoneyFromInt(v int64) Money { return Money{Value: decimal.NewFromInt(v)} }

// MustParseMoney parses a decimal string, returning zero on failure.
func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}
	}
	return Money{Value: d}
}

// ParseMoney coerces an arbitrary value (JSON number, string, nil, ...) into
// a finite Money. Unknown or non-numeric input yields zero.
func ParseMoney(v any) Money {
	switch x := v.(type) {
	case nil:
		return Money{}
	case Money:
		return x
	case *Money:
		if x == nil {
			return Money{}
		}
		return *x
	case decimal.Decimal:
		return Money{Value: x}
	case float64:
		return NewMoney(x)
	case float32:
		return NewMoney(float64(x))
	case int:
		return MoneyFromInt(int64(x))
	case int32:
		return MoneyFromInt(int64(x))
	case int64:
		return MoneyFromInt(x)
	case json.Number:
		return MustParseMoney(x.String())
	case string:
		return MustParseMoney(x)
	default:
		return Money{}
	}
}

// ParseMoneyStrict is ParseMoney for request input: ok is false when v is
// present but not a finite number. Blank strings and nil are zero.
func ParseMoneyStrict(v any) (Money, bool) {
	switch x := v.(type) {
	case nil:
		return Money{}, true
	case string:
		if strings.TrimSpace(x) == "" {
			return Money{}, true
		}
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		if err != nil {
			return Money{}, false
		}
		return Money{Value: d}, true
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return Money{}, false
		}
		return Money{Value: d}, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Money{}, false
		}
		return NewMoney(x), true
	case Money, *Money, decimal.Decimal, float32, int, int32, int64:
		return ParseMoney(x), true
	default:
		return Money{}, false
	}
}

// Ptr returns a pointer to a copy of m.
func (m Money) Ptr() *Money { return &m }

func (m Money) Add(o Money) Money { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Mul(r decimal.Decimal) Money { return Money{Value: m.Value.Mul(r)} }
func (m Money) Round2() Money { return Money{Value: m.Value.Round(2)} }
func (m Money) IsZero() bool { return m.Value.IsZero() }
func (m Money) IsNegative() bool { return m.Value.IsNegative() }
func (m Money) IsPositive() bool { return m.Value.IsPositive() }
func (m Money) Equal(o Money) bool { return m.Value.Equal(o.Value) }
func (m Money) Cmp(o Money) int { return m.Value.Cmp(o.Value) }
func (m Money) GreaterThan(o Money) bool { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool { return m.Value.LessThan(o.Value) }
func (m Money) String() string { return m.Value.StringFixed(2) }

// ClampZero returns max(0, m).
func (m Money) ClampZero() Money {
	if m.Value.IsNegative() {
		return Money{}
	}
	return m
}

func (m Money) Max(o Money) Money {
	if m.GreaterThan(o) {
		return m
	}
	return o
}

// Float64 is for wire formats only. Arithmetic stays in decimal.
func (m Money) Float64() float64 {
	f, _ := m.Value.Float64()
	return f
}

// SumMoney adds all amounts.
func SumMoney(ms ...Money) Money {
	total := Money{}
	for _, m := range ms {
		total = total.Add(m)
	}
	return total
}
