package chit_test

import (
	"context"
	"testing"
	"time"

	"github.com/manish-vm/EGS-chitfund-management-backend/chit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMembershipService(st chit.TxStore) (*chit.MembershipService, *recordingNotifier) {
	n := &recordingNotifier{}
	return &chit.MembershipService{Store: st, Notifier: n, Now: clock}, n
}

func memberIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = chit.NewID()
	}
	return ids
}

func TestCreateJoinRequest_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore()
	svc, _ := newMembershipService(st)
	c := seedChit(t, st, "Gold", 10)
	member := chit.NewID()

	// WHEN: the member applies twice while the first request is pending
	first, created, err := svc.CreateJoinRequest(ctx, member, c.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, chit.RequestPending, first.Status)

	second, created, err := svc.CreateJoinRequest(ctx, member, c.ID)
	require.NoError(t, err)

	// THEN: the same request comes back and no second one exists
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	pending, err := svc.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestCreateJoinRequest_AlreadyMember(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore()
	svc, _ := newMembershipService(st)
	member := chit.NewID()
	c := seedChit(t, st, "Gold", 10, member)

	_, _, err := svc.CreateJoinRequest(ctx, member, c.ID)
	assert.ErrorIs(t, err, chit.ErrAlreadyMember)
	assert.True(t, chit.IsConflict(err))
}

func TestCreateJoinRequest_Errors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMembershipService(newMemoryStore())

	_, _, err := svc.CreateJoinRequest(ctx, "", chit.NewID())
	assert.ErrorIs(t, err, chit.ErrValidation)

	_, _, err = svc.CreateJoinRequest(ctx, chit.NewID(), "xyz")
	assert.ErrorIs(t, err, chit.ErrInvalidReference)

	_, _, err = svc.CreateJoinRequest(ctx, chit.NewID(), chit.NewID())
	assert.True(t, chit.IsNotFound(err))
}

func TestApprove_AddsMemberOnce(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore()
	svc, notes := newMembershipService(st)
	c := seedChit(t, st, "Gold", 10)
	member := chit.NewID()

	jr, _, err := svc.CreateJoinRequest(ctx, member, c.ID)
	require.NoError(t, err)

	// WHEN: approved
	out, err := svc.Approve(ctx, jr.ID, "admin")
	require.NoError(t, err)

	// THEN: request approved, roster and membership updated, member notified
	assert.False(t, out.CapacityExceeded)
	assert.NoError(t, out.Err())
	assert.Equal(t, chit.RequestApproved, out.Request.Status)
	assert.Equal(t, "admin", out.Request.DecidedBy)
	assert.True(t, out.Chit.IsApprovedMember(member))

	stored, err := st.GetChit(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, stored.Roster, 1)
	assert.True(t, stored.Roster[0].Approved)

	m, err := st.GetMembership(ctx, member, c.ID)
	require.NoError(t, err)
	require.NotNil(t, m)

	all := notes.All()
	require.Len(t, all, 1)
	assert.Equal(t, member, all[0].RecipientID)
	assert.Equal(t, "Join request approved", all[0].Title)
	assert.Equal(t, "/joined-schemes/", all[0].Link)
	assert.NotEmpty(t, all[0].ID)

	// AND: a second approve is an invalid transition with no side effects
	_, err = svc.Approve(ctx, jr.ID, "admin")
	assert.ErrorIs(t, err, chit.ErrInvalidTransition)
	var terr *chit.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "approved", terr.From)

	stored, _ = st.GetChit(ctx, c.ID)
	assert.Len(t, stored.Roster, 1)
	assert.Len(t, notes.All(), 1)
}

func TestApprove_UpdatesExistingRosterEntryInPlace(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore()
	svc, _ := newMembershipService(st)
	member := chit.NewID()

	c := seedChit(t, st, "Gold", 10)
	require.NoError(t, st.UpsertRosterEntry(ctx, c.ID, chit.RosterEntry{MemberID: member, Approved: false, JoinedAt: testNow}))

	jr, _, err := svc.CreateJoinRequest(ctx, member, c.ID)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, jr.ID, "admin")
	require.NoError(t, err)

	stored, err := st.GetChit(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, stored.Roster, 1)
	assert.True(t, stored.Roster[0].Approved)
}

func TestApprove_CapacityExceededAutoRejects(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore()
	svc, notes := newMembershipService(st)

	// GIVEN: a chit with target 10 and 10 approved members
	c := seedChit(t, st, "Full", 10, memberIDs(10)...)
	newcomer := chit.NewID()
	jr, _, err := svc.CreateJoinRequest(ctx, newcomer, c.ID)
	require.NoError(t, err)

	// WHEN: the request is approved
	out, err := svc.Approve(ctx, jr.ID, "admin")

	// THEN: it becomes rejected, not an error, and the roster stays at 10
	require.NoError(t, err)
	assert.True(t, out.CapacityExceeded)
	assert.ErrorIs(t, out.Err(), chit.ErrCapacityExceeded)
	assert.Equal(t, chit.RequestRejected, out.Request.Status)
	assert.Equal(t, chit.ReasonCapacityExceeded, out.Request.Reason)

	stored, err := st.GetJoinRequest(ctx, jr.ID)
	require.NoError(t, err)
	assert.Equal(t, chit.RequestRejected, stored.Status)

	ch, err := st.GetChit(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, ch.Roster, 10)
	assert.False(t, ch.IsApprovedMember(newcomer))

	m, err := st.GetMembership(ctx, newcomer, c.ID)
	require.NoError(t, err)
	assert.Nil(t, m)

	all := notes.All()
	require.Len(t, all, 1)
	assert.Equal(t, "Join request rejected", all[0].Title)
}

func TestReject(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore()
	svc, notes := newMembershipService(st)
	c := seedChit(t, st, "Gold", 10)
	member := chit.NewID()

	jr, _, err := svc.CreateJoinRequest(ctx, member, c.ID)
	require.NoError(t, err)

	got, err := svc.Reject(ctx, jr.ID, "admin", "incomplete KYC")
	require.NoError(t, err)
	assert.Equal(t, chit.RequestRejected, got.Status)
	assert.Equal(t, "incomplete KYC", got.Reason)
	require.Len(t, notes.All(), 1)

	_, err = svc.Reject(ctx, jr.ID, "admin", "")
	assert.ErrorIs(t, err, chit.ErrInvalidTransition)

	_, err = svc.Approve(ctx, jr.ID, "admin")
	assert.ErrorIs(t, err, chit.ErrInvalidTransition)

	_, err = svc.Reject(ctx, chit.NewID(), "admin", "")
	assert.True(t, chit.IsNotFound(err))

	// A rejected member may apply again
	again, created, err := svc.CreateJoinRequest(ctx, member, c.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, jr.ID, again.ID)
}

func TestListByMember_NewestFirst(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore()
	member := chit.NewID()
	a := seedChit(t, st, "A", 10)
	b := seedChit(t, st, "B", 10)

	earlier := &chit.MembershipService{Store: st, Now: func() time.Time { return testNow.Add(-time.Hour) }}
	later := &chit.MembershipService{Store: st, Now: clock}

	first, _, err := earlier.CreateJoinRequest(ctx, member, a.ID)
	require.NoError(t, err)
	second, _, err := later.CreateJoinRequest(ctx, member, b.ID)
	require.NoError(t, err)

	list, err := later.ListByMember(ctx, member)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}
