/*
store.go - Persistence interfaces for the chit engine

PURPOSE:
  Defines the boundary between the engine and the database. Services take
  the narrowest interface they need; implementations provide all of them.

KEY INTERFACES:
  MemberStore:       Member directory (notification recipients)
  ChitStore:         Chits, roster entries, release snapshots
  JoinRequestStore:  Join request lifecycle with guarded transitions
  MembershipStore:   Membership mirror table (idempotent insert)
  RecordStore:       Generated settlement records (unique sequence key)
  ContributionStore: Installments and per-chit collected sums
  PaymentStore:      Payment verification lifecycle
  NotificationStore: Member inbox
  Store:             All of the above
  TxStore:           Store plus atomic multi-write transactions

MISSING ENTITIES:
  GetX methods return (nil, nil) when the entity does not exist. Services
  turn that into a NotFoundError with the entity kind and id.

UNIQUENESS:
  Implementations MUST enforce at the storage layer:
  - (chit_id, month_key, sequence_number) on generated records
  - one pending join request per (member_id, chit_id)
  - one membership per (member_id, chit_id)
  - one contribution per (chit_id, member_id, month, year)

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - chit/store/memory.go: In-memory for tests and dev

SEE ALSO:
  - sequence.go: Relies on the record uniqueness key
  - membership.go: Relies on TxStore and guarded transitions
*/
package chit

import (
	"context"
	"time"
)

// =============================================================================
// ENTITY STORES
// =============================================================================

type MemberStore interface {
	SaveMember(ctx context.Context, m Member) error
	GetMember(ctx context.Context, id string) (*Member, error)
	ListMembers(ctx context.Context) ([]Member, error)
}

type ChitStore interface {
	CreateChit(ctx context.Context, c Chit) error
	GetChit(ctx context.Context, id string) (*Chit, error)
	ListChits(ctx context.Context) ([]Chit, error)

	// SaveRelease writes only the release fields of a chit.
	SaveRelease(ctx context.Context, chitID string, snap SettlementSnapshot, distributed Money) error

	// UpdateChit rewrites the definition fields. Roster and release
	// snapshot are left alone.
	UpdateChit(ctx context.Context, c Chit) error

	// DeleteChit removes a chit and its roster. Returns false when absent.
	DeleteChit(ctx context.Context, id string) (bool, error)

	// UpsertRosterEntry updates the member's entry in place or appends it.
	UpsertRosterEntry(ctx context.Context, chitID string, entry RosterEntry) error
}

type JoinRequestStore interface {
	// CreateJoinRequest returns ErrConflict if a pending request for the
	// same (member, chit) already exists.
	CreateJoinRequest(ctx context.Context, jr JoinRequest) error
	GetJoinRequest(ctx context.Context, id string) (*JoinRequest, error)
	FindPendingJoinRequest(ctx context.Context, memberID, chitID string) (*JoinRequest, error)
	ListJoinRequestsByMember(ctx context.Context, memberID string) ([]JoinRequest, error)
	ListPendingJoinRequests(ctx context.Context) ([]JoinRequest, error)

	// TransitionJoinRequest moves a request from `from` to `to` only if its
	// current status is `from`. Returns false when the guard did not match.
	TransitionJoinRequest(ctx context.Context, id string, from, to RequestStatus, decidedBy, reason string, at time.Time) (bool, error)
}

type MembershipStore interface {
	// EnsureMembership inserts m unless (member, chit) exists. Returns true if inserted.
	EnsureMembership(ctx context.Context, m Membership) (bool, error)
	GetMembership(ctx context.Context, memberID, chitID string) (*Membership, error)
	ListMemberships(ctx context.Context, chitID string) ([]Membership, error)
	MarkContributionPaid(ctx context.Context, memberID, chitID string) error
}

type RecordStore interface {
	// MaxSequence returns the highest sequence number used for (chit, month),
	// or 0 when the month has no records.
	MaxSequence(ctx context.Context, chitID, monthKey string) (int, error)

	// InsertRecord returns a *SequenceConflictError when the
	// (chit, month, sequence) key is taken.
	InsertRecord(ctx context.Context, r GeneratedRecord) error
	GetRecord(ctx context.Context, chitID, id string) (*GeneratedRecord, error)
	UpdateRecord(ctx context.Context, r GeneratedRecord) error
	DeleteRecord(ctx context.Context, chitID, id string) (bool, error)

	// ListRecords returns records newest date first, then highest sequence.
	// An empty monthKey means all months.
	ListRecords(ctx context.Context, chitID, monthKey string) ([]GeneratedRecord, error)
}

type ContributionStore interface {
	// InsertContribution returns ErrDuplicateContribution for a repeated period.
	InsertContribution(ctx context.Context, c Contribution) error
	// ListContributions filters by chit and member; an empty id matches all.
	ListContributions(ctx context.Context, chitID, memberID string) ([]Contribution, error)

	// CollectedByChit sums paid contributions per chit id.
	CollectedByChit(ctx context.Context) (map[string]Money, error)
}

type PaymentStore interface {
	CreatePayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id string) (*Payment, error)
	ListPayments(ctx context.Context, f PaymentFilter) ([]Payment, error)
	TransitionPayment(ctx context.Context, id string, from, to PaymentStatus, reason string, at time.Time) (bool, error)

	// CountPaymentsByChit counts payments in any of the given statuses per chit id.
	CountPaymentsByChit(ctx context.Context, statuses []PaymentStatus) (map[string]int, error)
}

type NotificationStore interface {
	SaveNotifications(ctx context.Context, notes []Notification) error
	ListNotifications(ctx context.Context, recipientID string) ([]Notification, error)

	// MarkNotificationRead, MarkAllNotificationsRead and DeleteNotification
	// only touch notes owned by recipientID. The bool is false when no such
	// note exists.
	MarkNotificationRead(ctx context.Context, recipientID, id string) (bool, error)
	MarkAllNotificationsRead(ctx context.Context, recipientID string) (int, error)
	DeleteNotification(ctx context.Context, recipientID, id string) (bool, error)
}

// PaymentFilter narrows ListPayments. Zero fields match everything.
type PaymentFilter struct {
	Status   PaymentStatus
	MemberID string
}

// =============================================================================
// AGGREGATE STORES
// =============================================================================

// Store is the full persistence surface.
type Store interface {
	MemberStore
	ChitStore
	JoinRequestStore
	MembershipStore
	RecordStore
	ContributionStore
	PaymentStore
	NotificationStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// ReportSource is what the reporting aggregator reads.
type ReportSource interface {
	ListChits(ctx context.Context) ([]Chit, error)
	CollectedByChit(ctx context.Context) (map[string]Money, error)
	CountPaymentsByChit(ctx context.Context, statuses []PaymentStatus) (map[string]int, error)
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Notifier delivers member-facing notifications without blocking the caller.
type Notifier interface {
	Notify(ctx context.Context, notes ...Notification)
}

// TaskQueue runs work detached from the triggering request.
type TaskQueue interface {
	Submit(name string, fn func(ctx context.Context) error) error
}
