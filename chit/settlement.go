/*
settlement.go - Settlement calculator

PURPOSE:
  Splits a chit's pool into the winning bid, the distributable wallet, and
  the operator commission. Used synchronously when a chit is released and,
  read-only, as the reporting fallback when no snapshot was persisted.

DERIVATION ORDER:
  Each step consumes the resolved value of the previous one:

    RCA        = max(0, bid)
    GWB        = max(0, principal - RCA)
    commission = round(rate * GWB, 2)
    FWA        = round(max(0, GWB - commission), 2)

  distributedAmount always equals the resolved GWB.

OVERRIDES:
  Any subset of {RCA, GWB, commission, FWA} may be supplied. A present
  override replaces its step; unset steps still derive from the resolved
  values before them. An operator can fix the commission at 3000 and the
  FWA follows from that, not from the default rate.

  principal=100000 bid=20000                -> 20000 / 80000 / 4000 / 76000
  principal=100000 bid=20000 commission=3000 -> 20000 / 80000 / 3000 / 77000

ERRORS:
  None. Inputs are coerced to finite non-negative values.

SEE ALSO:
  - release.go: Persists a computed snapshot
  - report.go: Uses Compute with RCA defaulted to 0
*/
package chit

import "github.com/shopspring/decimal"

// DefaultCommissionRate is 5%.
var DefaultCommissionRate = decimal.NewFromFloat(0.05)

// Field names reported in Settlement.Derived.
const (
	FieldRCA        = "rca"
	FieldGWB        = "gwb"
	FieldCommission = "commission"
	FieldFWA        = "fwa"
)

// Overrides are stored figures that take precedence over derivation.
type Overrides struct {
	RCA        *Money
	GWB        *Money
	Commission *Money
	FWA        *Money
}

// Settlement is the result of one computation.
type Settlement struct {
	RCA               Money
	GWB               Money
	Commission        Money
	FWA               Money
	DistributedAmount Money

	// Derived lists the fields computed rather than read from an override.
	Derived []string
}

// FullyStored reports whether every figure came from an override.
func (s Settlement) FullyStored() bool { return len(s.Derived) == 0 }

// Calculator computes settlements at a commission rate.
type Calculator struct {
	CommissionRate decimal.Decimal
}

// NewCalculator returns a calculator. A negative rate falls back to the default.
func NewCalculator(rate decimal.Decimal) *Calculator {
	if rate.IsNegative() {
		rate = DefaultCommissionRate
	}
	return &Calculator{CommissionRate: rate}
}

// ForChit returns a calculator using the chit's own rate when it has one.
func (c *Calculator) ForChit(ch *Chit) *Calculator {
	if ch != nil && ch.CommissionRate != nil && !ch.CommissionRate.IsNegative() {
		return &Calculator{CommissionRate: *ch.CommissionRate}
	}
	return c
}

// Compute resolves all settlement figures. It never fails.
func (c *Calculator) Compute(principal, bid Money, o Overrides) Settlement {
	principal = principal.ClampZero()
	var s Settlement

	steps := []resolveStep{
		{
			name:   FieldRCA,
			stored: o.RCA,
			derive: func() Money { return bid.ClampZero() },
			set:    func(m Money) { s.RCA = m },
		},
		{
			name:   FieldGWB,
			stored: o.GWB,
			derive: func() Money { return principal.Sub(s.RCA).ClampZero() },
			set:    func(m Money) { s.GWB = m },
		},
		{
			name:   FieldCommission,
			stored: o.Commission,
			derive: func() Money { return s.GWB.Mul(c.CommissionRate).Round2() },
			set:    func(m Money) { s.Commission = m },
		},
		{
			name:   FieldFWA,
			stored: o.FWA,
			derive: func() Money { return s.GWB.Sub(s.Commission).ClampZero().Round2() },
			set:    func(m Money) { s.FWA = m },
		},
	}
	s.Derived = resolve(steps)
	s.DistributedAmount = s.GWB
	return s
}

// =============================================================================
// ORDERED OVERRIDE RESOLVER
// =============================================================================

type resolveStep struct {
	name   string
	stored *Money
	derive func() Money
	set    func(Money)
}

// resolve runs steps in order and returns the names of the derived ones.
// Stored values are clamped at zero.
func resolve(steps []resolveStep) []string {
	var derived []string
	for _, st := range steps {
		if st.stored != nil {
			st.set(st.stored.ClampZero())
			continue
		}
		st.set(st.derive())
		derived = append(derived, st.name)
	}
	return derived
}
