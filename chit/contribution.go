package chit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// ContributionInput records an installment directly (operator entry).
type ContributionInput struct {
	ChitID   string
	MemberID string
	Amount   Money
	Month    string
	Year     int
	PaidDate *time.Time
}

// PaymentInput is a member-reported payment awaiting verification.
type PaymentInput struct {
	ChitID   string
	MemberID string
	Amount   Money
	Month    string
	Year     int
	Note     string
}

// ContributionService manages installments and the payment verification flow.
//
//	pending -> verification_requested -> paid | rejected
//	pending -> rejected
//
// Approving a payment records the matching contribution in the same transaction.
type ContributionService struct {
	Store    TxStore
	Notifier Notifier
	Now      func() time.Time
}

// RecordContribution stores a paid installment for a joined member.
func (s *ContributionService) RecordContribution(ctx context.Context, in ContributionInput) (*Contribution, error) {
	var out *Contribution
	err := s.Store.WithTx(ctx, func(tx Store) error {
		var err error
		out, err = s.recordContribution(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Info("contribution recorded",
		"chit_id", out.ChitID, "member_id", out.MemberID,
		"period", fmt.Sprintf("%s %d", out.Month, out.Year), "amount", out.Amount.String())
	return out, nil
}

func (s *ContributionService) recordContribution(ctx context.Context, st Store, in ContributionInput) (*Contribution, error) {
	chitID, err := ParseID("chitId", in.ChitID)
	if err != nil {
		return nil, err
	}
	memberID, err := ParseID("memberId", in.MemberID)
	if err != nil {
		return nil, err
	}
	month, err := normalizeMonth(in.Month)
	if err != nil {
		return nil, err
	}
	if in.Year < 1 {
		return nil, &ValidationError{Field: "year", Message: "is required"}
	}
	if !in.Amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}

	m, err := st.GetMembership(ctx, memberID, chitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	if m == nil {
		return nil, ErrNotMember
	}

	now := nowFunc(s.Now)
	paid := now
	if in.PaidDate != nil && !in.PaidDate.IsZero() {
		paid = in.PaidDate.UTC()
	}
	c := Contribution{
		ID:        NewID(),
		ChitID:    chitID,
		MemberID:  memberID,
		Amount:    in.Amount.Round2(),
		Month:     month,
		Year:      in.Year,
		Status:    ContributionPaid,
		PaidDate:  paid,
		CreatedAt: now,
	}
	if err := st.InsertContribution(ctx, c); err != nil {
		return nil, err
	}
	if err := st.MarkContributionPaid(ctx, memberID, chitID); err != nil {
		return nil, fmt.Errorf("failed to update membership: %w", err)
	}
	return &c, nil
}

// ListContributions returns contributions for a chit, optionally for one member.
func (s *ContributionService) ListContributions(ctx context.Context, rawChitID, rawMemberID string) ([]Contribution, error) {
	chitID, err := ParseID("chitId", rawChitID)
	if err != nil {
		return nil, err
	}
	memberID := ""
	if strings.TrimSpace(rawMemberID) != "" {
		if memberID, err = ParseID("memberId", rawMemberID); err != nil {
			return nil, err
		}
	}
	return s.Store.ListContributions(ctx, chitID, memberID)
}

// MemberContributions returns a member's contributions across every chit,
// most recently paid first.
func (s *ContributionService) MemberContributions(ctx context.Context, rawMemberID string) ([]Contribution, error) {
	memberID, err := ParseID("memberId", rawMemberID)
	if err != nil {
		return nil, err
	}
	list, err := s.Store.ListContributions(ctx, "", memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].PaidDate.After(list[j].PaidDate)
	})
	return list, nil
}

// UnpaidPeriods lists the months of a chit's duration without a contribution
// from the member.
func (s *ContributionService) UnpaidPeriods(ctx context.Context, rawChitID, rawMemberID string) ([]Period, error) {
	chitID, err := ParseID("chitId", rawChitID)
	if err != nil {
		return nil, err
	}
	memberID, err := ParseID("memberId", rawMemberID)
	if err != nil {
		return nil, err
	}
	c, err := s.Store.GetChit(ctx, chitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chit: %w", err)
	}
	if c == nil {
		return nil, &NotFoundError{Kind: "chit", ID: chitID}
	}
	paid, err := s.Store.ListContributions(ctx, chitID, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}

	done := make(map[Period]bool, len(paid))
	for _, p := range paid {
		if p.Status == ContributionPaid {
			done[Period{Month: p.Month, Year: p.Year}] = true
		}
	}
	unpaid := []Period{}
	for _, p := range PeriodsFrom(c.StartDate, c.DurationInMonths) {
		if !done[p] {
			unpaid = append(unpaid, p)
		}
	}
	return unpaid, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

// CreatePayment files a pending payment for a joined member.
func (s *ContributionService) CreatePayment(ctx context.Context, in PaymentInput) (*Payment, error) {
	chitID, err := ParseID("chitId", in.ChitID)
	if err != nil {
		return nil, err
	}
	memberID, err := ParseID("memberId", in.MemberID)
	if err != nil {
		return nil, err
	}
	month, err := normalizeMonth(in.Month)
	if err != nil {
		return nil, err
	}
	if in.Year < 1 {
		return nil, &ValidationError{Field: "year", Message: "is required"}
	}
	if !in.Amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}

	m, err := s.Store.GetMembership(ctx, memberID, chitID)
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	if m == nil {
		return nil, ErrNotMember
	}

	now := nowFunc(s.Now)
	p := Payment{
		ID:        NewID(),
		MemberID:  memberID,
		ChitID:    chitID,
		Amount:    in.Amount.Round2(),
		Month:     month,
		Year:      in.Year,
		Note:      in.Note,
		Status:    PaymentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	return &p, nil
}

// RequestVerification asks an operator to verify a pending payment.
// Only the paying member or an admin may do this.
func (s *ContributionService) RequestVerification(ctx context.Context, rawPaymentID, actorID string, actorRole Role) (*Payment, error) {
	paymentID, err := ParseID("payment_id", rawPaymentID)
	if err != nil {
		return nil, err
	}
	p, err := s.loadPayment(ctx, s.Store, paymentID)
	if err != nil {
		return nil, err
	}
	if actorRole != RoleAdmin && p.MemberID != actorID {
		return nil, ErrForbidden
	}
	if err := s.transitionPayment(ctx, s.Store, p, PaymentPending, PaymentVerificationRequested, ""); err != nil {
		return nil, err
	}
	return p, nil
}

// ApprovePayment marks a payment paid and records its contribution.
func (s *ContributionService) ApprovePayment(ctx context.Context, rawPaymentID, operatorID string) (*Payment, *Contribution, error) {
	paymentID, err := ParseID("payment_id", rawPaymentID)
	if err != nil {
		return nil, nil, err
	}

	var (
		p       *Payment
		contrib *Contribution
	)
	err = s.Store.WithTx(ctx, func(tx Store) error {
		var err error
		if p, err = s.loadPayment(ctx, tx, paymentID); err != nil {
			return err
		}
		if err := s.transitionPayment(ctx, tx, p, PaymentVerificationRequested, PaymentPaid, ""); err != nil {
			return err
		}
		contrib, err = s.recordContribution(ctx, tx, ContributionInput{
			ChitID:   p.ChitID,
			MemberID: p.MemberID,
			Amount:   p.Amount,
			Month:    p.Month,
			Year:     p.Year,
			PaidDate: p.PaidAt,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	slog.Info("payment approved", "payment_id", p.ID, "member_id", p.MemberID, "operator_id", operatorID)
	s.notify(ctx, Notification{
		RecipientID: p.MemberID,
		Title:       "Payment verified",
		Message:     fmt.Sprintf("Your payment of %s for %s %d has been verified.", p.Amount, p.Month, p.Year),
		Link:        "/joined-schemes/",
	})
	return p, contrib, nil
}

// RejectPayment declines a payment that has not been approved.
func (s *ContributionService) RejectPayment(ctx context.Context, rawPaymentID, operatorID, reason string) (*Payment, error) {
	paymentID, err := ParseID("payment_id", rawPaymentID)
	if err != nil {
		return nil, err
	}
	p, err := s.loadPayment(ctx, s.Store, paymentID)
	if err != nil {
		return nil, err
	}
	from := p.Status
	if from != PaymentPending && from != PaymentVerificationRequested {
		return nil, &TransitionError{Kind: "payment", ID: p.ID, From: string(from), To: string(PaymentRejected)}
	}
	if err := s.transitionPayment(ctx, s.Store, p, from, PaymentRejected, reason); err != nil {
		return nil, err
	}

	slog.Info("payment rejected", "payment_id", p.ID, "operator_id", operatorID, "reason", reason)
	msg := fmt.Sprintf("Your payment for %s %d was rejected.", p.Month, p.Year)
	if reason != "" {
		msg += " Reason: " + reason
	}
	s.notify(ctx, Notification{
		RecipientID: p.MemberID,
		Title:       "Payment rejected",
		Message:     msg,
		Link:        "/joined-schemes/",
	})
	return p, nil
}

// ListPayments returns payments in a status, oldest first.
func (s *ContributionService) ListPayments(ctx context.Context, status PaymentStatus) ([]Payment, error) {
	return s.Store.ListPayments(ctx, PaymentFilter{Status: status})
}

// MemberPayments returns a member's payment history, newest first.
func (s *ContributionService) MemberPayments(ctx context.Context, rawMemberID string) ([]Payment, error) {
	memberID, err := ParseID("memberId", rawMemberID)
	if err != nil {
		return nil, err
	}
	list, err := s.Store.ListPayments(ctx, PaymentFilter{MemberID: memberID})
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

// GetPayment returns one payment. Members may only read their own.
func (s *ContributionService) GetPayment(ctx context.Context, rawPaymentID, actorID string, actorRole Role) (*Payment, error) {
	paymentID, err := ParseID("payment_id", rawPaymentID)
	if err != nil {
		return nil, err
	}
	p, err := s.loadPayment(ctx, s.Store, paymentID)
	if err != nil {
		return nil, err
	}
	if actorRole != RoleAdmin && p.MemberID != actorID {
		return nil, ErrForbidden
	}
	return p, nil
}

func (s *ContributionService) loadPayment(ctx context.Context, st Store, id string) (*Payment, error) {
	p, err := st.GetPayment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	if p == nil {
		return nil, &NotFoundError{Kind: "payment", ID: id}
	}
	return p, nil
}

func (s *ContributionService) transitionPayment(ctx context.Context, st Store, p *Payment, from, to PaymentStatus, reason string) error {
	if p.Status != from {
		return &TransitionError{Kind: "payment", ID: p.ID, From: string(p.Status), To: string(to)}
	}
	now := nowFunc(s.Now)
	ok, err := st.TransitionPayment(ctx, p.ID, from, to, reason, now)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if !ok {
		return &TransitionError{Kind: "payment", ID: p.ID, From: "changed", To: string(to)}
	}
	p.Status = to
	p.UpdatedAt = now
	if to == PaymentPaid {
		p.PaidAt = &now
	}
	if to == PaymentRejected {
		p.RejectionReason = reason
	}
	return nil
}

func (s *ContributionService) notify(ctx context.Context, notes ...Notification) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.Notify(ctx, stampNotifications(notes, nowFunc(s.Now))...)
}

// normalizeMonth accepts "June", "june", "Jun" or "6" and returns "June".
func normalizeMonth(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &ValidationError{Field: "month", Message: "is required"}
	}
	for m := time.January; m <= time.December; m++ {
		name := m.String()
		if strings.EqualFold(raw, name) || strings.EqualFold(raw, name[:3]) || raw == fmt.Sprint(int(m)) {
			return name, nil
		}
	}
	return "", &ValidationError{Field: "month", Message: "is not a month name"}
}
