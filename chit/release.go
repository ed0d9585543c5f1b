package chit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ReleaseInput is an operator's release instruction.
type ReleaseInput struct {
	Bid                Money
	WalletAmount       *Money // defaults to the resolved RCA
	CommissionOverride *Money
	OperatorID         string
	Note               string
}

// ReleaseService finalizes a cycle's payout computation for a chit.
type ReleaseService struct {
	Chits      ChitStore
	Calculator *Calculator
	Now        func() time.Time
}

// Release computes and persists the settlement snapshot of a chit.
// Only release fields are written; the roster is untouched.
func (rs *ReleaseService) Release(ctx context.Context, rawChitID string, in ReleaseInput) (*Chit, error) {
	chitID, err := ParseID("chit_id", rawChitID)
	if err != nil {
		return nil, err
	}

	c, err := rs.Chits.GetChit(ctx, chitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chit: %w", err)
	}
	if c == nil {
		return nil, &NotFoundError{Kind: "chit", ID: chitID}
	}

	settlement := rs.Calculator.ForChit(c).Compute(c.Principal(), in.Bid, Overrides{
		Commission: in.CommissionOverride,
	})

	wallet := settlement.RCA
	if in.WalletAmount != nil {
		wallet = in.WalletAmount.ClampZero()
	}

	snap := SettlementSnapshot{
		RCA:          settlement.RCA,
		GWB:          settlement.GWB,
		Commission:   settlement.Commission,
		FWA:          settlement.FWA,
		WalletAmount: wallet,
		ReleasedAt:   nowFunc(rs.Now),
		ReleasedBy:   in.OperatorID,
		Note:         in.Note,
	}

	if err := rs.Chits.SaveRelease(ctx, chitID, snap, settlement.DistributedAmount); err != nil {
		return nil, fmt.Errorf("failed to save release: %w", err)
	}

	slog.Info("chit released",
		"chit_id", chitID,
		"rca", snap.RCA.String(),
		"gwb", snap.GWB.String(),
		"commission", snap.Commission.String(),
		"fwa", snap.FWA.String(),
		"released_by", in.OperatorID,
	)

	c.Released = &snap
	c.WalletAmount = wallet.Ptr()
	c.DistributedAmount = settlement.DistributedAmount.Ptr()
	c.UpdatedAt = snap.ReleasedAt
	return c, nil
}
