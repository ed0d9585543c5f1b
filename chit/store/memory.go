// Package store provides an in-memory chit.TxStore.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/manish-vm/EGS-chitfund-management-backend/chit"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a chit.TxStore backed by maps. All calls are serialized.
type Memory struct {
	mu sync.Mutex
	st *state
}

var _ chit.TxStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

// WithTx executes fn within a transaction.
// For the memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(chit.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(m.st); err != nil {
		*m.st = *snapshot
		return err
	}
	return nil
}

// Reset drops all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	*m.st = *newState()
	return nil
}

func (m *Memory) SaveMember(ctx context.Context, mem chit.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveMember(ctx, mem)
}

func (m *Memory) GetMember(ctx context.Context, id string) (*chit.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetMember(ctx, id)
}

func (m *Memory) ListMembers(ctx context.Context) ([]chit.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListMembers(ctx)
}

func (m *Memory) CreateChit(ctx context.Context, c chit.Chit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateChit(ctx, c)
}

func (m *Memory) GetChit(ctx context.Context, id string) (*chit.Chit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetChit(ctx, id)
}

func (m *Memory) ListChits(ctx context.Context) ([]chit.Chit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListChits(ctx)
}

func (m *Memory) SaveRelease(ctx context.Context, chitID string, snap chit.SettlementSnapshot, distributed chit.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveRelease(ctx, chitID, snap, distributed)
}

func (m *Memory) UpdateChit(ctx context.Context, c chit.Chit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.UpdateChit(ctx, c)
}

func (m *Memory) DeleteChit(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteChit(ctx, id)
}

func (m *Memory) UpsertRosterEntry(ctx context.Context, chitID string, entry chit.RosterEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.UpsertRosterEntry(ctx, chitID, entry)
}

func (m *Memory) CreateJoinRequest(ctx context.Context, jr chit.JoinRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateJoinRequest(ctx, jr)
}

func (m *Memory) GetJoinRequest(ctx context.Context, id string) (*chit.JoinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetJoinRequest(ctx, id)
}

func (m *Memory) FindPendingJoinRequest(ctx context.Context, memberID, chitID string) (*chit.JoinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.FindPendingJoinRequest(ctx, memberID, chitID)
}

func (m *Memory) ListJoinRequestsByMember(ctx context.Context, memberID string) ([]chit.JoinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListJoinRequestsByMember(ctx, memberID)
}

func (m *Memory) ListPendingJoinRequests(ctx context.Context) ([]chit.JoinRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListPendingJoinRequests(ctx)
}

func (m *Memory) TransitionJoinRequest(ctx context.Context, id string, from, to chit.RequestStatus, decidedBy, reason string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.TransitionJoinRequest(ctx, id, from, to, decidedBy, reason, at)
}

func (m *Memory) EnsureMembership(ctx context.Context, ms chit.Membership) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.EnsureMembership(ctx, ms)
}

func (m *Memory) GetMembership(ctx context.Context, memberID, chitID string) (*chit.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetMembership(ctx, memberID, chitID)
}

func (m *Memory) ListMemberships(ctx context.Context, chitID string) ([]chit.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListMemberships(ctx, chitID)
}

func (m *Memory) MarkContributionPaid(ctx context.Context, memberID, chitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.MarkContributionPaid(ctx, memberID, chitID)
}

func (m *Memory) MaxSequence(ctx context.Context, chitID, monthKey string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.MaxSequence(ctx, chitID, monthKey)
}

func (m *Memory) InsertRecord(ctx context.Context, r chit.GeneratedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.InsertRecord(ctx, r)
}

func (m *Memory) GetRecord(ctx context.Context, chitID, id string) (*chit.GeneratedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetRecord(ctx, chitID, id)
}

func (m *Memory) UpdateRecord(ctx context.Context, r chit.GeneratedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.UpdateRecord(ctx, r)
}

func (m *Memory) DeleteRecord(ctx context.Context, chitID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteRecord(ctx, chitID, id)
}

func (m *Memory) ListRecords(ctx context.Context, chitID, monthKey string) ([]chit.GeneratedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListRecords(ctx, chitID, monthKey)
}

func (m *Memory) InsertContribution(ctx context.Context, c chit.Contribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.InsertContribution(ctx, c)
}

func (m *Memory) ListContributions(ctx context.Context, chitID, memberID string) ([]chit.Contribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListContributions(ctx, chitID, memberID)
}

func (m *Memory) CollectedByChit(ctx context.Context) (map[string]chit.Money, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CollectedByChit(ctx)
}

func (m *Memory) CreatePayment(ctx context.Context, p chit.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreatePayment(ctx, p)
}

func (m *Memory) GetPayment(ctx context.Context, id string) (*chit.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetPayment(ctx, id)
}

func (m *Memory) ListPayments(ctx context.Context, f chit.PaymentFilter) ([]chit.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListPayments(ctx, f)
}

func (m *Memory) TransitionPayment(ctx context.Context, id string, from, to chit.PaymentStatus, reason string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.TransitionPayment(ctx, id, from, to, reason, at)
}

func (m *Memory) CountPaymentsByChit(ctx context.Context, statuses []chit.PaymentStatus) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CountPaymentsByChit(ctx, statuses)
}

func (m *Memory) SaveNotifications(ctx context.Context, notes []chit.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveNotifications(ctx, notes)
}

func (m *Memory) ListNotifications(ctx context.Context, recipientID string) ([]chit.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListNotifications(ctx, recipientID)
}

func (m *Memory) MarkNotificationRead(ctx context.Context, recipientID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.MarkNotificationRead(ctx, recipientID, id)
}

func (m *Memory) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.MarkAllNotificationsRead(ctx, recipientID)
}

func (m *Memory) DeleteNotification(ctx context.Context, recipientID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteNotification(ctx, recipientID, id)
}

// =============================================================================
// STATE - unlocked maps; the transactional view inside WithTx
// =============================================================================

type memberKey struct {
	MemberID string
	ChitID   string
}

type sequenceKey struct {
	ChitID   string
	MonthKey string
	Sequence int
}

type periodKey struct {
	ChitID   string
	MemberID string
	Month    string
	Year     int
}

type state struct {
	members       map[string]chit.Member
	chits         map[string]chit.Chit
	requests      map[string]chit.JoinRequest
	memberships   map[memberKey]chit.Membership
	records       map[string]chit.GeneratedRecord
	sequences     map[sequenceKey]string
	contributions map[string]chit.Contribution
	periods       map[periodKey]string
	payments      map[string]chit.Payment
	notifications []chit.Notification
}

func newState() *state {
	return &state{
		members:       make(map[string]chit.Member),
		chits:         make(map[string]chit.Chit),
		requests:      make(map[string]chit.JoinRequest),
		memberships:   make(map[memberKey]chit.Membership),
		records:       make(map[string]chit.GeneratedRecord),
		sequences:     make(map[sequenceKey]string),
		contributions: make(map[string]chit.Contribution),
		periods:       make(map[periodKey]string),
		payments:      make(map[string]chit.Payment),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.chits {
		c.chits[k] = cloneChit(v)
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.memberships {
		c.memberships[k] = v
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	for k, v := range s.contributions {
		c.contributions[k] = v
	}
	for k, v := range s.periods {
		c.periods[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	c.notifications = append([]chit.Notification(nil), s.notifications...)
	return c
}

func cloneChit(c chit.Chit) chit.Chit {
	c.Roster = append([]chit.RosterEntry(nil), c.Roster...)
	if c.Released != nil {
		snap := *c.Released
		c.Released = &snap
	}
	return c
}

// Members

func (s *state) SaveMember(_ context.Context, m chit.Member) error {
	if existing, ok := s.members[m.ID]; ok {
		m.CreatedAt = existing.CreatedAt
	}
	s.members[m.ID] = m
	return nil
}

func (s *state) GetMember(_ context.Context, id string) (*chit.Member, error) {
	m, ok := s.members[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *state) ListMembers(_ context.Context) ([]chit.Member, error) {
	out := make([]chit.Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Chits

func (s *state) CreateChit(_ context.Context, c chit.Chit) error {
	if _, ok := s.chits[c.ID]; ok {
		return chit.ErrConflict
	}
	s.chits[c.ID] = cloneChit(c)
	return nil
}

func (s *state) GetChit(_ context.Context, id string) (*chit.Chit, error) {
	c, ok := s.chits[id]
	if !ok {
		return nil, nil
	}
	c = cloneChit(c)
	return &c, nil
}

func (s *state) ListChits(_ context.Context) ([]chit.Chit, error) {
	out := make([]chit.Chit, 0, len(s.chits))
	for _, c := range s.chits {
		out = append(out, cloneChit(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *state) SaveRelease(_ context.Context, chitID string, snap chit.SettlementSnapshot, distributed chit.Money) error {
	c, ok := s.chits[chitID]
	if !ok {
		return &chit.NotFoundError{Kind: "chit", ID: chitID}
	}
	c.Released = &snap
	c.WalletAmount = snap.WalletAmount.Ptr()
	c.DistributedAmount = distributed.Ptr()
	c.UpdatedAt = snap.ReleasedAt
	s.chits[chitID] = c
	return nil
}

// UpdateChit keeps the stored roster and release fields.
func (s *state) UpdateChit(_ context.Context, c chit.Chit) error {
	old, ok := s.chits[c.ID]
	if !ok {
		return &chit.NotFoundError{Kind: "chit", ID: c.ID}
	}
	old = cloneChit(old)
	old.Name = c.Name
	old.Description = c.Description
	old.Amount = c.Amount
	old.TotalAmount = c.TotalAmount
	old.DurationInMonths = c.DurationInMonths
	old.TotalMembers = c.TotalMembers
	old.StartDate = c.StartDate
	old.Status = c.Status
	old.CommissionRate = c.CommissionRate
	old.UpdatedAt = c.UpdatedAt
	s.chits[c.ID] = old
	return nil
}

func (s *state) DeleteChit(_ context.Context, id string) (bool, error) {
	if _, ok := s.chits[id]; !ok {
		return false, nil
	}
	delete(s.chits, id)
	return true, nil
}

func (s *state) UpsertRosterEntry(_ context.Context, chitID string, entry chit.RosterEntry) error {
	c, ok := s.chits[chitID]
	if !ok {
		return &chit.NotFoundError{Kind: "chit", ID: chitID}
	}
	c = cloneChit(c)
	replaced := false
	for i := range c.Roster {
		if c.Roster[i].MemberID == entry.MemberID {
			c.Roster[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		c.Roster = append(c.Roster, entry)
	}
	s.chits[chitID] = c
	return nil
}

// Join requests

func (s *state) CreateJoinRequest(_ context.Context, jr chit.JoinRequest) error {
	if jr.Status == chit.RequestPending {
		for _, r := range s.requests {
			if r.MemberID == jr.MemberID && r.ChitID == jr.ChitID && r.Status == chit.RequestPending {
				return chit.ErrConflict
			}
		}
	}
	s.requests[jr.ID] = jr
	return nil
}

func (s *state) GetJoinRequest(_ context.Context, id string) (*chit.JoinRequest, error) {
	r, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *state) FindPendingJoinRequest(_ context.Context, memberID, chitID string) (*chit.JoinRequest, error) {
	for _, r := range s.requests {
		if r.MemberID == memberID && r.ChitID == chitID && r.Status == chit.RequestPending {
			return &r, nil
		}
	}
	return nil, nil
}

func (s *state) ListJoinRequestsByMember(_ context.Context, memberID string) ([]chit.JoinRequest, error) {
	var out []chit.JoinRequest
	for _, r := range s.requests {
		if r.MemberID == memberID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) ListPendingJoinRequests(_ context.Context) ([]chit.JoinRequest, error) {
	var out []chit.JoinRequest
	for _, r := range s.requests {
		if r.Status == chit.RequestPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) TransitionJoinRequest(_ context.Context, id string, from, to chit.RequestStatus, decidedBy, reason string, at time.Time) (bool, error) {
	r, ok := s.requests[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	r.DecidedBy = decidedBy
	r.Reason = reason
	r.UpdatedAt = at
	s.requests[id] = r
	return true, nil
}

// Memberships

func (s *state) EnsureMembership(_ context.Context, m chit.Membership) (bool, error) {
	k := memberKey{MemberID: m.MemberID, ChitID: m.ChitID}
	if _, ok := s.memberships[k]; ok {
		return false, nil
	}
	s.memberships[k] = m
	return true, nil
}

func (s *state) GetMembership(_ context.Context, memberID, chitID string) (*chit.Membership, error) {
	m, ok := s.memberships[memberKey{MemberID: memberID, ChitID: chitID}]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *state) ListMemberships(_ context.Context, chitID string) ([]chit.Membership, error) {
	var out []chit.Membership
	for _, m := range s.memberships {
		if m.ChitID == chitID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].MemberID < out[j].MemberID
	})
	return out, nil
}

func (s *state) MarkContributionPaid(_ context.Context, memberID, chitID string) error {
	k := memberKey{MemberID: memberID, ChitID: chitID}
	m, ok := s.memberships[k]
	if !ok {
		return nil
	}
	m.ContributionPaid = true
	s.memberships[k] = m
	return nil
}

// Generated records

func (s *state) MaxSequence(_ context.Context, chitID, monthKey string) (int, error) {
	top := 0
	for _, r := range s.records {
		if r.ChitID == chitID && r.MonthKey == monthKey && r.Sequence > top {
			top = r.Sequence
		}
	}
	return top, nil
}

func (s *state) InsertRecord(_ context.Context, r chit.GeneratedRecord) error {
	k := sequenceKey{ChitID: r.ChitID, MonthKey: r.MonthKey, Sequence: r.Sequence}
	if _, taken := s.sequences[k]; taken {
		return &chit.SequenceConflictError{ChitID: r.ChitID, MonthKey: r.MonthKey, Sequence: r.Sequence}
	}
	s.records[r.ID] = r
	s.sequences[k] = r.ID
	return nil
}

func (s *state) GetRecord(_ context.Context, chitID, id string) (*chit.GeneratedRecord, error) {
	r, ok := s.records[id]
	if !ok || r.ChitID != chitID {
		return nil, nil
	}
	return &r, nil
}

func (s *state) UpdateRecord(_ context.Context, r chit.GeneratedRecord) error {
	old, ok := s.records[r.ID]
	if !ok {
		return &chit.NotFoundError{Kind: "generated record", ID: r.ID}
	}
	oldKey := sequenceKey{ChitID: old.ChitID, MonthKey: old.MonthKey, Sequence: old.Sequence}
	newKey := sequenceKey{ChitID: r.ChitID, MonthKey: r.MonthKey, Sequence: r.Sequence}
	if newKey != oldKey {
		if _, taken := s.sequences[newKey]; taken {
			return &chit.SequenceConflictError{ChitID: r.ChitID, MonthKey: r.MonthKey, Sequence: r.Sequence}
		}
		delete(s.sequences, oldKey)
		s.sequences[newKey] = r.ID
	}
	s.records[r.ID] = r
	return nil
}

func (s *state) DeleteRecord(_ context.Context, chitID, id string) (bool, error) {
	r, ok := s.records[id]
	if !ok || r.ChitID != chitID {
		return false, nil
	}
	delete(s.records, id)
	delete(s.sequences, sequenceKey{ChitID: r.ChitID, MonthKey: r.MonthKey, Sequence: r.Sequence})
	return true, nil
}

func (s *state) ListRecords(_ context.Context, chitID, monthKey string) ([]chit.GeneratedRecord, error) {
	var out []chit.GeneratedRecord
	for _, r := range s.records {
		if r.ChitID == chitID && (monthKey == "" || r.MonthKey == monthKey) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Sequence > out[j].Sequence
	})
	return out, nil
}

// Contributions

func (s *state) InsertContribution(_ context.Context, c chit.Contribution) error {
	k := periodKey{ChitID: c.ChitID, MemberID: c.MemberID, Month: c.Month, Year: c.Year}
	if _, ok := s.periods[k]; ok {
		return chit.ErrDuplicateContribution
	}
	s.contributions[c.ID] = c
	s.periods[k] = c.ID
	return nil
}

func (s *state) ListContributions(_ context.Context, chitID, memberID string) ([]chit.Contribution, error) {
	var out []chit.Contribution
	for _, c := range s.contributions {
		if (chitID == "" || c.ChitID == chitID) && (memberID == "" || c.MemberID == memberID) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PaidDate.Equal(out[j].PaidDate) {
			return out[i].PaidDate.Before(out[j].PaidDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) CollectedByChit(_ context.Context) (map[string]chit.Money, error) {
	out := make(map[string]chit.Money)
	for _, c := range s.contributions {
		if c.Status == chit.ContributionPaid {
			out[c.ChitID] = out[c.ChitID].Add(c.Amount)
		}
	}
	return out, nil
}

// Payments

func (s *state) CreatePayment(_ context.Context, p chit.Payment) error {
	if _, ok := s.payments[p.ID]; ok {
		return chit.ErrConflict
	}
	s.payments[p.ID] = p
	return nil
}

func (s *state) GetPayment(_ context.Context, id string) (*chit.Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *state) ListPayments(_ context.Context, f chit.PaymentFilter) ([]chit.Payment, error) {
	var out []chit.Payment
	for _, p := range s.payments {
		if (f.Status == "" || p.Status == f.Status) && (f.MemberID == "" || p.MemberID == f.MemberID) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) TransitionPayment(_ context.Context, id string, from, to chit.PaymentStatus, reason string, at time.Time) (bool, error) {
	p, ok := s.payments[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = at
	if to == chit.PaymentPaid {
		paid := at
		p.PaidAt = &paid
	}
	if to == chit.PaymentRejected {
		p.RejectionReason = reason
	}
	s.payments[id] = p
	return true, nil
}

func (s *state) CountPaymentsByChit(_ context.Context, statuses []chit.PaymentStatus) (map[string]int, error) {
	want := make(map[chit.PaymentStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	out := make(map[string]int)
	for _, p := range s.payments {
		if want[p.Status] {
			out[p.ChitID]++
		}
	}
	return out, nil
}

// Notifications

// SaveNotifications skips ids already stored so redelivery is harmless.
func (s *state) SaveNotifications(_ context.Context, notes []chit.Notification) error {
	seen := make(map[string]bool, len(s.notifications))
	for _, n := range s.notifications {
		seen[n.ID] = true
	}
	for _, n := range notes {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		s.notifications = append(s.notifications, n)
	}
	return nil
}

func (s *state) ListNotifications(_ context.Context, recipientID string) ([]chit.Notification, error) {
	var out []chit.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].RecipientID == recipientID {
			out = append(out, s.notifications[i])
		}
	}
	return out, nil
}

func (s *state) MarkNotificationRead(_ context.Context, recipientID, id string) (bool, error) {
	for i := range s.notifications {
		if s.notifications[i].ID == id && s.notifications[i].RecipientID == recipientID {
			s.notifications[i].Read = true
			return true, nil
		}
	}
	return false, nil
}

func (s *state) MarkAllNotificationsRead(_ context.Context, recipientID string) (int, error) {
	n := 0
	for i := range s.notifications {
		if s.notifications[i].RecipientID == recipientID && !s.notifications[i].Read {
			s.notifications[i].Read = true
			n++
		}
	}
	return n, nil
}

func (s *state) DeleteNotification(_ context.Context, recipientID, id string) (bool, error) {
	for i, n := range s.notifications {
		if n.ID == id && n.RecipientID == recipientID {
			s.notifications = append(s.notifications[:i:i], s.notifications[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}
