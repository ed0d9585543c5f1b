package chit_test

import (
	"context"
	"testing"

	"github.com/manish-vm/EGS-chitfund-management-backend/chit"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultCalc() *chit.Calculator {
	return chit.NewCalculator(chit.DefaultCommissionRate)
}

func TestCompute_DerivesAllFigures(t *testing.T) {
	// GIVEN: principal 100000 and a winning bid of 20000
	// WHEN: nothing is stored
	s := defaultCalc().Compute(money("100000"), money("20000"), chit.Overrides{})

	// THEN: every figure is derived in order
	assert.Equal(t, "20000.00", s.RCA.String())
	assert.Equal(t, "80000.00", s.GWB.String())
	assert.Equal(t, "4000.00", s.Commission.String())
	assert.Equal(t, "76000.00", s.FWA.String())
	assert.Equal(t, "80000.00", s.DistributedAmount.String())
	assert.Equal(t, []string{chit.FieldRCA, chit.FieldGWB, chit.FieldCommission, chit.FieldFWA}, s.Derived)
}

func TestCompute_CommissionOverrideFeedsFWA(t *testing.T) {
	// GIVEN: a negotiated commission of 3000
	commission := money("3000")
	s := defaultCalc().Compute(money("100000"), money("20000"), chit.Overrides{Commission: &commission})

	// THEN: GWB still derives, FWA follows the override
	assert.Equal(t, "80000.00", s.GWB.String())
	assert.Equal(t, "3000.00", s.Commission.String())
	assert.Equal(t, "77000.00", s.FWA.String())
	assert.NotContains(t, s.Derived, chit.FieldCommission)
}

func TestCompute_GWBOverrideFeedsCommission(t *testing.T) {
	gwb := money("50000")
	s := defaultCalc().Compute(money("100000"), money("20000"), chit.Overrides{GWB: &gwb})

	assert.Equal(t, "20000.00", s.RCA.String())
	assert.Equal(t, "50000.00", s.GWB.String())
	assert.Equal(t, "2500.00", s.Commission.String())
	assert.Equal(t, "47500.00", s.FWA.String())
	assert.Equal(t, "50000.00", s.DistributedAmount.String())
}

func TestCompute_ClampsNegativeInputs(t *testing.T) {
	tests := []struct {
		name      string
		principal string
		bid       string
		gwb       string
		fwa       string
	}{
		{"negative bid", "1000", "-50", "1000.00", "950.00"},
		{"negative principal", "-1000", "0", "0.00", "0.00"},
		{"bid above principal", "1000", "5000", "0.00", "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := defaultCalc().Compute(money(tt.principal), money(tt.bid), chit.Overrides{})
			assert.Equal(t, tt.gwb, s.GWB.String())
			assert.Equal(t, tt.fwa, s.FWA.String())
			assert.False(t, s.FWA.IsNegative())
			assert.False(t, s.RCA.IsNegative())
		})
	}
}

func TestCompute_OversizedCommissionOverrideNeverMakesFWANegative(t *testing.T) {
	commission := money("999999")
	s := defaultCalc().Compute(money("1000"), money("0"), chit.Overrides{Commission: &commission})
	assert.True(t, s.FWA.IsZero())
}

func TestCompute_FormulaHoldsAcrossInputs(t *testing.T) {
	calc := defaultCalc()
	rate := decimal.NewFromFloat(0.05)
	for principal := int64(0); principal <= 200000; principal += 12345 {
		for bid := int64(0); bid <= 250000; bid += 23456 {
			s := calc.Compute(chit.MoneyFromInt(principal), chit.MoneyFromInt(bid), chit.Overrides{})

			wantGWB := chit.MoneyFromInt(principal - bid).ClampZero()
			wantCommission := wantGWB.Mul(rate).Round2()
			assert.True(t, s.GWB.Equal(wantGWB), "gwb p=%d b=%d", principal, bid)
			assert.True(t, s.Commission.Equal(wantCommission), "commission p=%d b=%d", principal, bid)
			assert.True(t, s.FWA.Equal(wantGWB.Sub(wantCommission)), "fwa p=%d b=%d", principal, bid)
			assert.False(t, s.FWA.IsNegative())
		}
	}
}

func TestCalculator_PerChitRate(t *testing.T) {
	rate := decimal.NewFromFloat(0.10)
	c := &chit.Chit{CommissionRate: &rate}

	s := defaultCalc().ForChit(c).Compute(money("1000"), money("0"), chit.Overrides{})
	assert.Equal(t, "100.00", s.Commission.String())

	s = defaultCalc().ForChit(&chit.Chit{}).Compute(money("1000"), money("0"), chit.Overrides{})
	assert.Equal(t, "50.00", s.Commission.String())
}

func TestNewCalculator_NegativeRateFallsBack(t *testing.T) {
	c := chit.NewCalculator(decimal.NewFromInt(-1))
	assert.True(t, c.CommissionRate.Equal(chit.DefaultCommissionRate))
}

// =============================================================================
// RELEASE
// =============================================================================

func TestRelease_PersistsSnapshot(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore()
	c := seedChit(t, st, "Gold 1L", 10, "m1", "m2")
	svc := &chit.ReleaseService{Chits: st, Calculator: defaultCalc(), Now: clock}

	// WHEN: the operator releases with a bid of 20000
	got, err := svc.Release(ctx, c.ID, chit.ReleaseInput{Bid: money("20000"), OperatorID: "admin-1"})
	require.NoError(t, err)

	// THEN: the snapshot is persisted and the wallet defaults to RCA
	stored, err := st.GetChit(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Released)
	assert.Equal(t, "20000.00", stored.Released.RCA.String())
	assert.Equal(t, "76000.00", stored.Released.FWA.String())
	assert.Equal(t, "20000.00", stored.WalletAmount.String())
	assert.Equal(t, "80000.00", stored.DistributedAmount.String())
	assert.Equal(t, "admin-1", stored.Released.ReleasedBy)
	assert.Equal(t, testNow, stored.Released.ReleasedAt)
	assert.Equal(t, got.Released.FWA.String(), stored.Released.FWA.String())

	// AND: the roster is untouched
	assert.Len(t, stored.Roster, 2)
}

func TestRelease_CommissionOverrideAndWallet(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore()
	c := seedChit(t, st, "Silver", 5)
	svc := &chit.ReleaseService{Chits: st, Calculator: defaultCalc(), Now: clock}

	commission := money("3000")
	wallet := money("15000")
	got, err := svc.Release(ctx, c.ID, chit.ReleaseInput{
		Bid:                money("20000"),
		CommissionOverride: &commission,
		WalletAmount:       &wallet,
	})
	require.NoError(t, err)
	assert.Equal(t, "77000.00", got.Released.FWA.String())
	assert.Equal(t, "15000.00", got.WalletAmount.String())
}

func TestRelease_UsesStoredTotalAmount(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore()
	c := chit.Chit{
		ID:           chit.NewID(),
		Name:         "Pooled",
		Amount:       money("10000"),
		TotalAmount:  money("50000").Ptr(),
		TotalMembers: 5,
		StartDate:    testNow,
	}
	require.NoError(t, st.CreateChit(ctx, c))
	svc := &chit.ReleaseService{Chits: st, Calculator: defaultCalc(), Now: clock}

	got, err := svc.Release(ctx, c.ID, chit.ReleaseInput{Bid: money("10000")})
	require.NoError(t, err)
	assert.Equal(t, "40000.00", got.Released.GWB.String())
}

func TestRelease_Errors(t *testing.T) {
	ctx := context.Background()
	svc := &chit.ReleaseService{Chits: newMemoryStore(), Calculator: defaultCalc()}

	_, err := svc.Release(ctx, "not-a-uuid", chit.ReleaseInput{})
	assert.ErrorIs(t, err, chit.ErrInvalidReference)
	assert.True(t, chit.IsClientError(err))

	_, err = svc.Release(ctx, "", chit.ReleaseInput{})
	assert.ErrorIs(t, err, chit.ErrValidation)

	_, err = svc.Release(ctx, chit.NewID(), chit.ReleaseInput{})
	assert.True(t, chit.IsNotFound(err))
}
