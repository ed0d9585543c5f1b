package chit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manish-vm/EGS-chitfund-management-backend/chit"
)

func TestReminderService_SendDueSkipsPaidMembers(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore()
	notes := &recordingNotifier{}

	// GIVEN: a running chit (Jan-Oct 2025) with three approved members,
	// one of whom has paid for June
	members := memberIDs(3)
	c := seedChit(t, st, "Monthly 10K", 10, members...)
	for _, id := range members {
		_, err := st.EnsureMembership(ctx, chit.Membership{MemberID: id, ChitID: c.ID, JoinedAt: testNow})
		require.NoError(t, err)
	}
	contrib := &chit.ContributionService{Store: st, Now: clock}
	_, err := contrib.RecordContribution(ctx, chit.ContributionInput{
		ChitID: c.ID, MemberID: members[0], Amount: money("10000"), Month: "June", Year: 2025,
	})
	require.NoError(t, err)

	// WHEN: reminders run in June
	svc := &chit.ReminderService{Store: st, Notifier: notes, Now: clock}
	n, err := svc.SendDue(ctx)
	require.NoError(t, err)

	// THEN: only the two unpaid members hear about it
	assert.Equal(t, 2, n)
	all := notes.All()
	require.Len(t, all, 2)
	recipients := []string{all[0].RecipientID, all[1].RecipientID}
	assert.ElementsMatch(t, members[1:], recipients)
	assert.Equal(t, "Contribution due", all[0].Title)
	assert.Contains(t, all[0].Message, "June 2025")
}

func TestReminderService_SendDueSkipsInactiveChits(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore()
	notes := &recordingNotifier{}

	draft := chit.Chit{
		ID: chit.NewID(), Name: "Draft", Amount: money("1000"), DurationInMonths: 10, TotalMembers: 5,
		StartDate: testNow, Status: chit.ChitDraft,
		Roster: []chit.RosterEntry{{MemberID: chit.NewID(), Approved: true, JoinedAt: testNow}},
	}
	finished := chit.Chit{
		ID: chit.NewID(), Name: "Finished", Amount: money("1000"), DurationInMonths: 2, TotalMembers: 5,
		StartDate: testNow.AddDate(-1, 0, 0), Status: chit.ChitRunning,
		Roster: []chit.RosterEntry{{MemberID: chit.NewID(), Approved: true, JoinedAt: testNow}},
	}
	require.NoError(t, st.CreateChit(ctx, draft))
	require.NoError(t, st.CreateChit(ctx, finished))

	svc := &chit.ReminderService{Store: st, Notifier: notes, Now: clock}
	n, err := svc.SendDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, notes.All())
}
