/*
Package sqlite provides a SQLite-backed implementation of chit.TxStore.

PURPOSE:
  Persists members, chits, join requests, memberships, generated settlement
  records, contributions, payments and notifications. The same schema maps
  to PostgreSQL with minor dialect changes.

KEY TABLES:
  members:           Member directory (notification recipients)
  chits:             Chit definition plus release snapshot columns
  chit_roster:       One row per (chit, member); insertion order preserved
  join_requests:     Join request lifecycle
  memberships:       Membership mirror, unique per (member, chit)
  generated_records: Numbered settlement ledger rows
  contributions:     Paid installments, unique per (chit, member, month, year)
  payments:          Payment verification lifecycle
  notifications:     Member inbox

UNIQUENESS:
  - idx_generated_sequence: (chit_id, month_key, sequence_number). This key
    is shared with historical ledgers and must not change.
  - idx_join_requests_pending: one pending request per (member_id, chit_id)
  - memberships primary key: (member_id, chit_id)
  - idx_contributions_period: (chit_id, member_id, month, year)

CONCURRENCY:
  The pool is limited to one connection, so every statement and every
  transaction is serialized. Inside WithTx all access goes through the
  transaction; calling the parent Store from fn would deadlock.

MONEY:
  Amounts are stored as decimal TEXT and summed in Go, never by SQL SUM.

USAGE:
  store, err := sqlite.New("./data/chitfund.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - chit/store.go: Interface definitions
  - chit/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/manish-vm/EGS-chitfund-management-backend/chit"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements chit.TxStore using SQLite.
type Store struct {
	*repo
	db *sql.DB
}

var _ chit.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and SQLite
	// has a single writer anyway.
	db.SetMaxOpenConns(1)

	store := &Store{repo: &repo{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Members
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		role TEXT NOT NULL DEFAULT 'member',
		created_at TEXT NOT NULL
	);

	-- Chits (release snapshot columns are NULL until released)
	CREATE TABLE IF NOT EXISTS chits (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		amount TEXT NOT NULL,
		total_amount TEXT,
		duration_in_months INTEGER NOT NULL,
		total_members INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		status TEXT NOT NULL,
		commission_rate TEXT,
		wallet_amount TEXT,
		distributed_amount TEXT,
		released_rca TEXT,
		released_gwb TEXT,
		released_commission TEXT,
		released_fwa TEXT,
		released_wallet TEXT,
		released_at TEXT,
		released_by TEXT,
		release_note TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chits_start_date ON chits(start_date);

	-- Roster (normalized {member, approved} entries)
	CREATE TABLE IF NOT EXISTS chit_roster (
		chit_id TEXT NOT NULL REFERENCES chits(id) ON DELETE CASCADE,
		member_id TEXT NOT NULL,
		approved INTEGER NOT NULL DEFAULT 0,
		joined_at TEXT NOT NULL,
		PRIMARY KEY (chit_id, member_id)
	);

	-- Join requests
	CREATE TABLE IF NOT EXISTS join_requests (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		chit_id TEXT NOT NULL,
		status TEXT NOT NULL,
		decided_by TEXT,
		reason TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: at most one pending request per member and chit
	CREATE UNIQUE INDEX IF NOT EXISTS idx_join_requests_pending
		ON join_requests(member_id, chit_id) WHERE status = 'pending';
	CREATE INDEX IF NOT EXISTS idx_join_requests_member
		ON join_requests(member_id);
	CREATE INDEX IF NOT EXISTS idx_join_requests_status
		ON join_requests(status);

	-- Membership mirror
	CREATE TABLE IF NOT EXISTS memberships (
		member_id TEXT NOT NULL,
		chit_id TEXT NOT NULL,
		joined_at TEXT NOT NULL,
		contribution_paid INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (member_id, chit_id)
	);

	-- Generated settlement records
	CREATE TABLE IF NOT EXISTS generated_records (
		id TEXT PRIMARY KEY,
		chit_id TEXT NOT NULL,
		chit_name TEXT,
		month_key TEXT NOT NULL,
		sequence_number INTEGER NOT NULL,
		date TEXT NOT NULL,
		wallet_amount TEXT NOT NULL,
		bid_amount TEXT NOT NULL,
		distributed TEXT NOT NULL,
		is_release INTEGER NOT NULL DEFAULT 0,
		released_amount TEXT NOT NULL DEFAULT '0',
		created_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: ledger compatibility key
	CREATE UNIQUE INDEX IF NOT EXISTS idx_generated_sequence
		ON generated_records(chit_id, month_key, sequence_number);

	-- Contributions
	CREATE TABLE IF NOT EXISTS contributions (
		id TEXT PRIMARY KEY,
		chit_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		month TEXT NOT NULL,
		year INTEGER NOT NULL,
		status TEXT NOT NULL,
		paid_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_contributions_period
		ON contributions(chit_id, member_id, month, year);
	CREATE INDEX IF NOT EXISTS idx_contributions_member
		ON contributions(member_id);

	-- Payments
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		chit_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		month TEXT NOT NULL,
		year INTEGER NOT NULL,
		note TEXT,
		status TEXT NOT NULL,
		paid_at TEXT,
		rejection_reason TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status);
	CREATE INDEX IF NOT EXISTS idx_payments_member ON payments(member_id);

	-- Notifications
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		recipient_id TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT,
		link TEXT,
		read INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_recipient
		ON notifications(recipient_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (chit.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store chit.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&repo{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// Reset deletes all data. Used by demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{
		"notifications", "payments", "contributions", "generated_records",
		"memberships", "join_requests", "chit_roster", "chits", "members",
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, t := range tables {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

// =============================================================================
// REPO - statements over a querier (database or transaction)
// =============================================================================

type repo struct {
	q querier
}

// -----------------------------------------------------------------------------
// Members
// -----------------------------------------------------------------------------

// SaveMember saves a member.
func (r *repo) SaveMember(ctx context.Context, m chit.Member) error {
	query := `
		INSERT INTO members (id, name, email, phone, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			role = excluded.role
	`
	_, err := r.q.ExecContext(ctx, query,
		m.ID, m.Name, m.Email, m.Phone, string(m.Role), formatTime(m.CreatedAt),
	)
	return err
}

// GetMember retrieves a member by ID.
func (r *repo) GetMember(ctx context.Context, id string) (*chit.Member, error) {
	m, err := scanMember(r.q.QueryRowContext(ctx,
		"SELECT id, name, email, phone, role, created_at FROM members WHERE id = ?", id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMembers returns all members.
func (r *repo) ListMembers(ctx context.Context) ([]chit.Member, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT id, name, email, phone, role, created_at FROM members ORDER BY created_at, id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []chit.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func scanMember(row scanner) (chit.Member, error) {
	var m chit.Member
	var email, phone sql.NullString
	var role, createdAt string
	if err := row.Scan(&m.ID, &m.Name, &email, &phone, &role, &createdAt); err != nil {
		return m, err
	}
	m.Email = email.String
	m.Phone = phone.String
	m.Role = chit.Role(role)
	m.CreatedAt = parseTime(createdAt)
	return m, nil
}

// -----------------------------------------------------------------------------
// Chits
// -----------------------------------------------------------------------------

const chitColumns = `id, name, description, amount, total_amount, duration_in_months,
	total_members, start_date, status, commission_rate, wallet_amount, distributed_amount,
	released_rca, released_gwb, released_commission, released_fwa, released_wallet,
	released_at, released_by, release_note, created_by, created_at, updated_at`

// CreateChit inserts a chit and its roster.
func (r *repo) CreateChit(ctx context.Context, c chit.Chit) error {
	var rate sql.NullString
	if c.CommissionRate != nil {
		rate = sql.NullString{String: c.CommissionRate.String(), Valid: true}
	}
	query := `
		INSERT INTO chits (id, name, description, amount, total_amount, duration_in_months,
			total_members, start_date, status, commission_rate, wallet_amount, distributed_amount,
			created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.q.ExecContext(ctx, query,
		c.ID, c.Name, c.Description, c.Amount.Value.String(), nullMoney(c.TotalAmount),
		c.DurationInMonths, c.TotalMembers, formatTime(c.StartDate), string(c.Status),
		rate, nullMoney(c.WalletAmount), nullMoney(c.DistributedAmount),
		c.CreatedBy, formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return chit.ErrConflict
		}
		return fmt.Errorf("failed to insert chit: %w", err)
	}
	for _, e := range c.Roster {
		if err := r.UpsertRosterEntry(ctx, c.ID, e); err != nil {
			return err
		}
	}
	return nil
}

// GetChit retrieves a chit with its roster.
func (r *repo) GetChit(ctx context.Context, id string) (*chit.Chit, error) {
	c, err := scanChit(r.q.QueryRowContext(ctx, "SELECT "+chitColumns+" FROM chits WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rosters, err := r.loadRosters(ctx, "WHERE chit_id = ?", id)
	if err != nil {
		return nil, err
	}
	c.Roster = rosters[id]
	return &c, nil
}

// ListChits returns all chits with rosters.
func (r *repo) ListChits(ctx context.Context) ([]chit.Chit, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT "+chitColumns+" FROM chits ORDER BY created_at, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chits []chit.Chit
	for rows.Next() {
		c, err := scanChit(rows)
		if err != nil {
			return nil, err
		}
		chits = append(chits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	rosters, err := r.loadRosters(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range chits {
		chits[i].Roster = rosters[chits[i].ID]
	}
	return chits, nil
}

// SaveRelease writes the release columns only.
func (r *repo) SaveRelease(ctx context.Context, chitID string, snap chit.SettlementSnapshot, distributed chit.Money) error {
	query := `
		UPDATE chits SET
			released_rca = ?, released_gwb = ?, released_commission = ?, released_fwa = ?,
			released_wallet = ?, released_at = ?, released_by = ?, release_note = ?,
			wallet_amount = ?, distributed_amount = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := r.q.ExecContext(ctx, query,
		snap.RCA.Value.String(), snap.GWB.Value.String(), snap.Commission.Value.String(),
		snap.FWA.Value.String(), snap.WalletAmount.Value.String(),
		formatTime(snap.ReleasedAt), snap.ReleasedBy, snap.Note,
		snap.WalletAmount.Value.String(), distributed.Value.String(),
		formatTime(snap.ReleasedAt), chitID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &chit.NotFoundError{Kind: "chit", ID: chitID}
	}
	return nil
}

// UpdateChit rewrites the definition columns only.
func (r *repo) UpdateChit(ctx context.Context, c chit.Chit) error {
	var rate sql.NullString
	if c.CommissionRate != nil {
		rate = sql.NullString{String: c.CommissionRate.String(), Valid: true}
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE chits SET
			name = ?, description = ?, amount = ?, total_amount = ?, duration_in_months = ?,
			total_members = ?, start_date = ?, status = ?, commission_rate = ?, updated_at = ?
		WHERE id = ?
	`, c.Name, c.Description, c.Amount.Value.String(), nullMoney(c.TotalAmount), c.DurationInMonths,
		c.TotalMembers, formatTime(c.StartDate), string(c.Status), rate, formatTime(c.UpdatedAt),
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update chit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &chit.NotFoundError{Kind: "chit", ID: c.ID}
	}
	return nil
}

// DeleteChit removes a chit; chit_roster rows cascade.
func (r *repo) DeleteChit(ctx context.Context, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx, "DELETE FROM chits WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// UpsertRosterEntry updates an entry in place or appends it.
func (r *repo) UpsertRosterEntry(ctx context.Context, chitID string, e chit.RosterEntry) error {
	query := `
		INSERT INTO chit_roster (chit_id, member_id, approved, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chit_id, member_id) DO UPDATE SET
			approved = excluded.approved,
			joined_at = excluded.joined_at
	`
	_, err := r.q.ExecContext(ctx, query, chitID, e.MemberID, boolInt(e.Approved), formatTime(e.JoinedAt))
	return err
}

func (r *repo) loadRosters(ctx context.Context, where string, args ...any) (map[string][]chit.RosterEntry, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT chit_id, member_id, approved, joined_at FROM chit_roster "+where+" ORDER BY rowid", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]chit.RosterEntry)
	for rows.Next() {
		var chitID, joinedAt string
		var e chit.RosterEntry
		var approved int
		if err := rows.Scan(&chitID, &e.MemberID, &approved, &joinedAt); err != nil {
			return nil, err
		}
		e.Approved = approved != 0
		e.JoinedAt = parseTime(joinedAt)
		out[chitID] = append(out[chitID], e)
	}
	return out, rows.Err()
}

func scanChit(row scanner) (chit.Chit, error) {
	var c chit.Chit
	var description, totalAmount, rate, wallet, distributed sql.NullString
	var relRCA, relGWB, relCommission, relFWA, relWallet, relAt sql.NullString
	var relBy, relNote, createdBy sql.NullString
	var amount, startDate, status, createdAt, updatedAt string
	err := row.Scan(
		&c.ID, &c.Name, &description, &amount, &totalAmount, &c.DurationInMonths,
		&c.TotalMembers, &startDate, &status, &rate, &wallet, &distributed,
		&relRCA, &relGWB, &relCommission, &relFWA, &relWallet,
		&relAt, &relBy, &relNote, &createdBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return c, err
	}

	c.Description = description.String
	c.Amount = chit.MustParseMoney(amount)
	c.TotalAmount = parseNullMoney(totalAmount)
	c.StartDate = parseTime(startDate)
	c.Status = chit.ChitStatus(status)
	if rate.Valid {
		if d, err := decimal.NewFromString(rate.String); err == nil {
			c.CommissionRate = &d
		}
	}
	c.WalletAmount = parseNullMoney(wallet)
	c.DistributedAmount = parseNullMoney(distributed)
	if relAt.Valid {
		c.Released = &chit.SettlementSnapshot{
			RCA:          chit.MustParseMoney(relRCA.String),
			GWB:          chit.MustParseMoney(relGWB.String),
			Commission:   chit.MustParseMoney(relCommission.String),
			FWA:          chit.MustParseMoney(relFWA.String),
			WalletAmount: chit.MustParseMoney(relWallet.String),
			ReleasedAt:   parseTime(relAt.String),
			ReleasedBy:   relBy.String,
			Note:         relNote.String,
		}
	}
	c.CreatedBy = createdBy.String
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}

// -----------------------------------------------------------------------------
// Join requests
// -----------------------------------------------------------------------------

const joinRequestColumns = "id, member_id, chit_id, status, decided_by, reason, created_at, updated_at"

// CreateJoinRequest inserts a request. A second pending request for the same
// member and chit violates idx_join_requests_pending.
func (r *repo) CreateJoinRequest(ctx context.Context, jr chit.JoinRequest) error {
	query := `INSERT INTO join_requests (` + joinRequestColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, query,
		jr.ID, jr.MemberID, jr.ChitID, string(jr.Status),
		nullString(jr.DecidedBy), nullString(jr.Reason),
		formatTime(jr.CreatedAt), formatTime(jr.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return chit.ErrConflict
		}
		return fmt.Errorf("failed to insert join request: %w", err)
	}
	return nil
}

func (r *repo) GetJoinRequest(ctx context.Context, id string) (*chit.JoinRequest, error) {
	return r.queryOneJoinRequest(ctx, "SELECT "+joinRequestColumns+" FROM join_requests WHERE id = ?", id)
}

func (r *repo) FindPendingJoinRequest(ctx context.Context, memberID, chitID string) (*chit.JoinRequest, error) {
	return r.queryOneJoinRequest(ctx,
		"SELECT "+joinRequestColumns+" FROM join_requests WHERE member_id = ? AND chit_id = ? AND status = 'pending'",
		memberID, chitID)
}

func (r *repo) ListJoinRequestsByMember(ctx context.Context, memberID string) ([]chit.JoinRequest, error) {
	return r.queryJoinRequests(ctx,
		"SELECT "+joinRequestColumns+" FROM join_requests WHERE member_id = ? ORDER BY created_at DESC, id",
		memberID)
}

func (r *repo) ListPendingJoinRequests(ctx context.Context) ([]chit.JoinRequest, error) {
	return r.queryJoinRequests(ctx,
		"SELECT "+joinRequestColumns+" FROM join_requests WHERE status = 'pending' ORDER BY created_at, id")
}

// TransitionJoinRequest is a guarded update: it matches only while the
// request is still in status from.
func (r *repo) TransitionJoinRequest(ctx context.Context, id string, from, to chit.RequestStatus, decidedBy, reason string, at time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE join_requests SET status = ?, decided_by = ?, reason = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(to), nullString(decidedBy), nullString(reason), formatTime(at), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *repo) queryOneJoinRequest(ctx context.Context, query string, args ...any) (*chit.JoinRequest, error) {
	jr, err := scanJoinRequest(r.q.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &jr, nil
}

func (r *repo) queryJoinRequests(ctx context.Context, query string, args ...any) ([]chit.JoinRequest, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chit.JoinRequest
	for rows.Next() {
		jr, err := scanJoinRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, jr)
	}
	return out, rows.Err()
}

func scanJoinRequest(row scanner) (chit.JoinRequest, error) {
	var jr chit.JoinRequest
	var status, createdAt, updatedAt string
	var decidedBy, reason sql.NullString
	if err := row.Scan(&jr.ID, &jr.MemberID, &jr.ChitID, &status, &decidedBy, &reason, &createdAt, &updatedAt); err != nil {
		return jr, err
	}
	jr.Status = chit.RequestStatus(status)
	jr.DecidedBy = decidedBy.String
	jr.Reason = reason.String
	jr.CreatedAt = parseTime(createdAt)
	jr.UpdatedAt = parseTime(updatedAt)
	return jr, nil
}

// -----------------------------------------------------------------------------
// Memberships
// -----------------------------------------------------------------------------

// EnsureMembership inserts the membership unless it exists.
func (r *repo) EnsureMembership(ctx context.Context, m chit.Membership) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO memberships (member_id, chit_id, joined_at, contribution_paid)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(member_id, chit_id) DO NOTHING
	`, m.MemberID, m.ChitID, formatTime(m.JoinedAt), boolInt(m.ContributionPaid))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *repo) GetMembership(ctx context.Context, memberID, chitID string) (*chit.Membership, error) {
	m, err := scanMembership(r.q.QueryRowContext(ctx,
		"SELECT member_id, chit_id, joined_at, contribution_paid FROM memberships WHERE member_id = ? AND chit_id = ?",
		memberID, chitID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repo) ListMemberships(ctx context.Context, chitID string) ([]chit.Membership, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT member_id, chit_id, joined_at, contribution_paid FROM memberships WHERE chit_id = ? ORDER BY joined_at, member_id",
		chitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chit.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repo) MarkContributionPaid(ctx context.Context, memberID, chitID string) error {
	_, err := r.q.ExecContext(ctx,
		"UPDATE memberships SET contribution_paid = 1 WHERE member_id = ? AND chit_id = ?",
		memberID, chitID)
	return err
}

func scanMembership(row scanner) (chit.Membership, error) {
	var m chit.Membership
	var joinedAt string
	var paid int
	if err := row.Scan(&m.MemberID, &m.ChitID, &joinedAt, &paid); err != nil {
		return m, err
	}
	m.JoinedAt = parseTime(joinedAt)
	m.ContributionPaid = paid != 0
	return m, nil
}

// -----------------------------------------------------------------------------
// Generated records
// -----------------------------------------------------------------------------

const recordColumns = `id, chit_id, chit_name, month_key, sequence_number, date, wallet_amount,
	bid_amount, distributed, is_release, released_amount, created_by, created_at, updated_at`

func (r *repo) MaxSequence(ctx context.Context, chitID, monthKey string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(sequence_number), 0) FROM generated_records WHERE chit_id = ? AND month_key = ?",
		chitID, monthKey,
	).Scan(&n)
	return n, err
}

// InsertRecord inserts a record. A taken (chit, month, sequence) key returns
// *chit.SequenceConflictError.
func (r *repo) InsertRecord(ctx context.Context, rec chit.GeneratedRecord) error {
	query := `INSERT INTO generated_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, query,
		rec.ID, rec.ChitID, rec.ChitName, rec.MonthKey, rec.Sequence, formatTime(rec.Date),
		rec.WalletAmount.Value.String(), rec.BidAmount.Value.String(), rec.Distributed.Value.String(),
		boolInt(rec.IsRelease), rec.ReleasedAmount.Value.String(), rec.CreatedBy,
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		if isSequenceConflict(err) {
			return &chit.SequenceConflictError{ChitID: rec.ChitID, MonthKey: rec.MonthKey, Sequence: rec.Sequence}
		}
		if isUniqueConstraintError(err) {
			return chit.ErrConflict
		}
		return fmt.Errorf("failed to insert generated record: %w", err)
	}
	return nil
}

func (r *repo) GetRecord(ctx context.Context, chitID, id string) (*chit.GeneratedRecord, error) {
	rec, err := scanRecord(r.q.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM generated_records WHERE chit_id = ? AND id = ?", chitID, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateRecord rewrites the mutable fields. sequence_number is never updated.
func (r *repo) UpdateRecord(ctx context.Context, rec chit.GeneratedRecord) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE generated_records SET
			chit_name = ?, month_key = ?, date = ?, wallet_amount = ?, bid_amount = ?,
			distributed = ?, is_release = ?, released_amount = ?, updated_at = ?
		WHERE chit_id = ? AND id = ?
	`, rec.ChitName, rec.MonthKey, formatTime(rec.Date),
		rec.WalletAmount.Value.String(), rec.BidAmount.Value.String(), rec.Distributed.Value.String(),
		boolInt(rec.IsRelease), rec.ReleasedAmount.Value.String(), formatTime(rec.UpdatedAt),
		rec.ChitID, rec.ID,
	)
	if err != nil {
		if isSequenceConflict(err) {
			return &chit.SequenceConflictError{ChitID: rec.ChitID, MonthKey: rec.MonthKey, Sequence: rec.Sequence}
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &chit.NotFoundError{Kind: "generated record", ID: rec.ID}
	}
	return nil
}

func (r *repo) DeleteRecord(ctx context.Context, chitID, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx, "DELETE FROM generated_records WHERE chit_id = ? AND id = ?", chitID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *repo) ListRecords(ctx context.Context, chitID, monthKey string) ([]chit.GeneratedRecord, error) {
	query := "SELECT " + recordColumns + " FROM generated_records WHERE chit_id = ?"
	args := []any{chitID}
	if monthKey != "" {
		query += " AND month_key = ?"
		args = append(args, monthKey)
	}
	query += " ORDER BY date DESC, sequence_number DESC"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chit.GeneratedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(row scanner) (chit.GeneratedRecord, error) {
	var rec chit.GeneratedRecord
	var chitName, createdBy sql.NullString
	var date, wallet, bid, distributed, released, createdAt, updatedAt string
	var isRelease int
	err := row.Scan(&rec.ID, &rec.ChitID, &chitName, &rec.MonthKey, &rec.Sequence, &date,
		&wallet, &bid, &distributed, &isRelease, &released, &createdBy, &createdAt, &updatedAt)
	if err != nil {
		return rec, err
	}
	rec.ChitName = chitName.String
	rec.Date = parseTime(date)
	rec.WalletAmount = chit.MustParseMoney(wallet)
	rec.BidAmount = chit.MustParseMoney(bid)
	rec.Distributed = chit.MustParseMoney(distributed)
	rec.IsRelease = isRelease != 0
	rec.ReleasedAmount = chit.MustParseMoney(released)
	rec.CreatedBy = createdBy.String
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return rec, nil
}

// -----------------------------------------------------------------------------
// Contributions
// -----------------------------------------------------------------------------

func (r *repo) InsertContribution(ctx context.Context, c chit.Contribution) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO contributions (id, chit_id, member_id, amount, month, year, status, paid_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.ChitID, c.MemberID, c.Amount.Value.String(), c.Month, c.Year,
		string(c.Status), formatTime(c.PaidDate), formatTime(c.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return chit.ErrDuplicateContribution
		}
		return fmt.Errorf("failed to insert contribution: %w", err)
	}
	return nil
}

func (r *repo) ListContributions(ctx context.Context, chitID, memberID string) ([]chit.Contribution, error) {
	query := `SELECT id, chit_id, member_id, amount, month, year, status, paid_date, created_at
		FROM contributions WHERE 1 = 1`
	var args []any
	if chitID != "" {
		query += " AND chit_id = ?"
		args = append(args, chitID)
	}
	if memberID != "" {
		query += " AND member_id = ?"
		args = append(args, memberID)
	}
	query += " ORDER BY paid_date, id"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chit.Contribution
	for rows.Next() {
		var c chit.Contribution
		var amount, status, paidDate, createdAt string
		if err := rows.Scan(&c.ID, &c.ChitID, &c.MemberID, &amount, &c.Month, &c.Year, &status, &paidDate, &createdAt); err != nil {
			return nil, err
		}
		c.Amount = chit.MustParseMoney(amount)
		c.Status = chit.ContributionStatus(status)
		c.PaidDate = parseTime(paidDate)
		c.CreatedAt = parseTime(createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CollectedByChit sums paid contributions per chit.
func (r *repo) CollectedByChit(ctx context.Context) (map[string]chit.Money, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT chit_id, amount FROM contributions WHERE status = 'paid'")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]chit.Money)
	for rows.Next() {
		var chitID, amount string
		if err := rows.Scan(&chitID, &amount); err != nil {
			return nil, err
		}
		out[chitID] = out[chitID].Add(chit.MustParseMoney(amount))
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// Payments
// -----------------------------------------------------------------------------

const paymentColumns = `id, member_id, chit_id, amount, month, year, note, status, paid_at,
	rejection_reason, created_at, updated_at`

func (r *repo) CreatePayment(ctx context.Context, p chit.Payment) error {
	var paidAt sql.NullString
	if p.PaidAt != nil {
		paidAt = nullString(formatTime(*p.PaidAt))
	}
	_, err := r.q.ExecContext(ctx, `INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MemberID, p.ChitID, p.Amount.Value.String(), p.Month, p.Year, nullString(p.Note),
		string(p.Status), paidAt, nullString(p.RejectionReason),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return chit.ErrConflict
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (r *repo) GetPayment(ctx context.Context, id string) (*chit.Payment, error) {
	p, err := scanPayment(r.q.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPayments lists payments matching f, oldest first.
func (r *repo) ListPayments(ctx context.Context, f chit.PaymentFilter) ([]chit.Payment, error) {
	query := "SELECT " + paymentColumns + " FROM payments WHERE 1 = 1"
	var args []any
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.MemberID != "" {
		query += " AND member_id = ?"
		args = append(args, f.MemberID)
	}
	query += " ORDER BY created_at, id"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chit.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repo) TransitionPayment(ctx context.Context, id string, from, to chit.PaymentStatus, reason string, at time.Time) (bool, error) {
	var paidAt, rejection sql.NullString
	if to == chit.PaymentPaid {
		paidAt = nullString(formatTime(at))
	}
	if to == chit.PaymentRejected {
		rejection = nullString(reason)
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE payments SET
			status = ?,
			paid_at = COALESCE(?, paid_at),
			rejection_reason = COALESCE(?, rejection_reason),
			updated_at = ?
		WHERE id = ? AND status = ?
	`, string(to), paidAt, rejection, formatTime(at), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *repo) CountPaymentsByChit(ctx context.Context, statuses []chit.PaymentStatus) (map[string]int, error) {
	out := make(map[string]int)
	if len(statuses) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}

	rows, err := r.q.QueryContext(ctx,
		"SELECT chit_id, COUNT(*) FROM payments WHERE status IN ("+placeholders+") GROUP BY chit_id",
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var chitID string
		var n int
		if err := rows.Scan(&chitID, &n); err != nil {
			return nil, err
		}
		out[chitID] = n
	}
	return out, rows.Err()
}

func scanPayment(row scanner) (chit.Payment, error) {
	var p chit.Payment
	var amount, status, createdAt, updatedAt string
	var note, paidAt, rejection sql.NullString
	err := row.Scan(&p.ID, &p.MemberID, &p.ChitID, &amount, &p.Month, &p.Year, &note, &status,
		&paidAt, &rejection, &createdAt, &updatedAt)
	if err != nil {
		return p, err
	}
	p.Amount = chit.MustParseMoney(amount)
	p.Note = note.String
	p.Status = chit.PaymentStatus(status)
	if paidAt.Valid {
		t := parseTime(paidAt.String)
		p.PaidAt = &t
	}
	p.RejectionReason = rejection.String
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

// -----------------------------------------------------------------------------
// Notifications
// -----------------------------------------------------------------------------

func (r *repo) SaveNotifications(ctx context.Context, notes []chit.Notification) error {
	for _, n := range notes {
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO notifications (id, recipient_id, title, message, link, read, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, n.ID, n.RecipientID, n.Title, n.Message, n.Link, boolInt(n.Read), formatTime(n.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}
	}
	return nil
}

func (r *repo) ListNotifications(ctx context.Context, recipientID string) ([]chit.Notification, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, recipient_id, title, message, link, read, created_at
		FROM notifications WHERE recipient_id = ? ORDER BY created_at DESC, id
	`, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chit.Notification
	for rows.Next() {
		var n chit.Notification
		var message, link sql.NullString
		var read int
		var createdAt string
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Title, &message, &link, &read, &createdAt); err != nil {
			return nil, err
		}
		n.Message = message.String
		n.Link = link.String
		n.Read = read != 0
		n.CreatedAt = parseTime(createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *repo) MarkNotificationRead(ctx context.Context, recipientID, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ? AND recipient_id = ?", id, recipientID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *repo) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int, error) {
	res, err := r.q.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE recipient_id = ? AND read = 0", recipientID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *repo) DeleteNotification(ctx context.Context, recipientID, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		"DELETE FROM notifications WHERE id = ? AND recipient_id = ?", id, recipientID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Helper functions

type scanner interface {
	Scan(dest ...any) error
}

// timeLayout has a fixed-width fraction so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullMoney(m *chit.Money) sql.NullString {
	if m == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: m.Value.String(), Valid: true}
}

func parseNullMoney(s sql.NullString) *chit.Money {
	if !s.Valid {
		return nil
	}
	return chit.MustParseMoney(s.String).Ptr()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

func isSequenceConflict(err error) bool {
	return isUniqueConstraintError(err) && strings.Contains(err.Error(), "sequence_number")
}
