/*
Package chit provides the settlement and reporting engine for rotating
savings groups ("chits").

PURPOSE:
  Members contribute installments into a pool; each cycle the pool is
  released to one member at a discount (the winning bid) and the operator
  keeps a commission. This package holds the arithmetic, the numbering of
  settlement records, the membership workflow, and the cross-chit report.

KEY CONCEPTS IN THIS FILE (types.go):
  - Chit: a fund group with a principal, a target size, and a roster
  - RosterEntry: one member's place in a chit (single normalized shape)
  - SettlementSnapshot: the figures persisted when a chit is released
  - GeneratedRecord: one numbered settlement ledger row per chit+month
  - JoinRequest / Membership: application and confirmed join record
  - Contribution / Payment: installments and their verification lifecycle

DESIGN PRINCIPLES:
  1. Precision: money is decimal, never float
  2. Non-negative: every monetary output is clamped at zero
  3. Stored wins: a persisted figure always beats a derived one
  4. Guarded transitions: status changes only ever leave "pending" once

SEE ALSO:
  - money.go: Money type and coercion
  - settlement.go: Settlement calculator
  - sequence.go: Sequence allocator
  - membership.go: Join request state machine
  - report.go: Reporting aggregator
*/
package chit

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// NewID returns a fresh identifier for any stored entity.
func NewID() string {
	return uuid.NewString()
}

// ParseID validates a caller-supplied identifier.
// Empty input is a ValidationError, malformed input is an InvalidReferenceError.
func ParseID(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &ValidationError{Field: field, Message: "is required"}
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", &InvalidReferenceError{Field: field, Value: raw}
	}
	return id.String(), nil
}

// =============================================================================
// MEMBERS
// =============================================================================

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Member is a registered participant or operator.
type Member struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Role      Role
	CreatedAt time.Time
}

// =============================================================================
// CHIT
// =============================================================================

type ChitStatus string

const (
	ChitDraft     ChitStatus = "draft"
	ChitOpen      ChitStatus = "open"
	ChitRunning   ChitStatus = "running"
	ChitReleased  ChitStatus = "released"
	ChitCompleted ChitStatus = "completed"
	ChitCancelled ChitStatus = "cancelled"
)

// Valid reports whether s is a known lifecycle status.
func (s ChitStatus) Valid() bool {
	switch s {
	case ChitDraft, ChitOpen, ChitRunning, ChitReleased, ChitCompleted, ChitCancelled:
		return true
	}
	return false
}

// RosterEntry is a member's place in a chit. Entries are unique by MemberID.
type RosterEntry struct {
	MemberID string
	Approved bool
	JoinedAt time.Time
}

// Chit is a fund cycle group.
type Chit struct {
	ID               string
	Name             string
	Description      string
	Amount           Money  // principal
	TotalAmount      *Money // stored pool total; falls back to Amount when nil
	DurationInMonths int
	TotalMembers     int // target member count
	StartDate        time.Time
	Status           ChitStatus

	// CommissionRate overrides the engine-wide rate for this chit.
	CommissionRate *decimal.Decimal

	Roster []RosterEntry

	// Release state. Once Released is set it is authoritative for every
	// downstream financial figure of this chit.
	Released          *SettlementSnapshot
	WalletAmount      *Money
	DistributedAmount *Money

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Principal returns the pool total used by settlement and reporting.
func (c *Chit) Principal() Money {
	if c.TotalAmount != nil {
		return c.TotalAmount.ClampZero()
	}
	return c.Amount.ClampZero()
}

// ApprovedCount returns the number of approved roster entries.
func (c *Chit) ApprovedCount() int {
	n := 0
	for _, e := range c.Roster {
		if e.Approved {
			n++
		}
	}
	return n
}

// IsApprovedMember reports whether memberID holds an approved roster entry.
func (c *Chit) IsApprovedMember(memberID string) bool {
	for _, e := range c.Roster {
		if e.MemberID == memberID && e.Approved {
			return true
		}
	}
	return false
}

// ApproveMember marks memberID approved, updating an existing entry in place
// or appending a new one. Returns the resulting entry.
func (c *Chit) ApproveMember(memberID string, at time.Time) RosterEntry {
	for i := range c.Roster {
		if c.Roster[i].MemberID == memberID {
			c.Roster[i].Approved = true
			if c.Roster[i].JoinedAt.IsZero() {
				c.Roster[i].JoinedAt = at
			}
			return c.Roster[i]
		}
	}
	entry := RosterEntry{MemberID: memberID, Approved: true, JoinedAt: at}
	c.Roster = append(c.Roster, entry)
	return entry
}

// =============================================================================
// SETTLEMENT SNAPSHOT - persisted result of a release
// =============================================================================

type SettlementSnapshot struct {
	RCA          Money
	GWB          Money
	Commission   Money
	FWA          Money
	WalletAmount Money
	ReleasedAt   time.Time
	ReleasedBy   string
	Note         string
}

// Overrides returns the snapshot as a full set of stored overrides.
func (s *SettlementSnapshot) Overrides() Overrides {
	if s == nil {
		return Overrides{}
	}
	rca, gwb, commission, fwa := s.RCA, s.GWB, s.Commission, s.FWA
	return Overrides{RCA: &rca, GWB: &gwb, Commission: &commission, FWA: &fwa}
}

// =============================================================================
// GENERATED SETTLEMENT RECORD
// =============================================================================

// GeneratedRecord is one numbered entry in a chit's settlement ledger.
// (ChitID, MonthKey, Sequence) is globally unique.
type GeneratedRecord struct {
	ID             string
	ChitID         string
	ChitName       string
	MonthKey       string // YYYY-MM
	Sequence       int    // 1-based within ChitID+MonthKey
	Date           time.Time
	WalletAmount   Money
	BidAmount      Money
	Distributed    Money
	IsRelease      bool
	ReleasedAmount Money
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// =============================================================================
// JOIN REQUEST / MEMBERSHIP
// =============================================================================

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// JoinRequest is a pending membership application. At most one pending
// request exists per (MemberID, ChitID).
type JoinRequest struct {
	ID        string
	MemberID  string
	ChitID    string
	Status    RequestStatus
	DecidedBy string
	Reason    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Membership mirrors an approved roster entry. Unique per (MemberID, ChitID).
type Membership struct {
	MemberID         string
	ChitID           string
	JoinedAt         time.Time
	ContributionPaid bool
}

// =============================================================================
// CONTRIBUTIONS / PAYMENTS
// =============================================================================

type ContributionStatus string

const (
	ContributionPaid    ContributionStatus = "paid"
	ContributionPending ContributionStatus = "pending"
)

// Contribution is a recorded installment. Unique per (ChitID, MemberID, Month, Year).
type Contribution struct {
	ID        string
	ChitID    string
	MemberID  string
	Amount    Money
	Month     string // "June"
	Year      int
	Status    ContributionStatus
	PaidDate  time.Time
	CreatedAt time.Time
}

type PaymentStatus string

const (
	PaymentPending               PaymentStatus = "pending"
	PaymentVerificationRequested PaymentStatus = "verification_requested"
	PaymentPaid                  PaymentStatus = "paid"
	PaymentRejected              PaymentStatus = "rejected"
)

// InFlightPaymentStatuses are the states counted as pending payments in reports.
var InFlightPaymentStatuses = []PaymentStatus{PaymentPending, PaymentVerificationRequested}

// Payment is a member-reported installment awaiting operator verification.
type Payment struct {
	ID              string
	MemberID        string
	ChitID          string
	Amount          Money
	Month           string
	Year            int
	Note            string
	Status          PaymentStatus
	PaidAt          *time.Time
	RejectionReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// Notification is a member-facing message.
type Notification struct {
	ID          string
	RecipientID string
	Title       string
	Message     string
	Link        string
	Read        bool
	CreatedAt   time.Time
}
