package chit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/manish-vm/EGS-chitfund-management-backend/chit"
	"github.com/manish-vm/EGS-chitfund-management-backend/chit/store"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

var testNow = time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

func money(s string) chit.Money { return chit.MustParseMoney(s) }

// recordingNotifier captures notifications synchronously.
type recordingNotifier struct {
	mu    sync.Mutex
	notes []chit.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, notes ...chit.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, notes...)
}

func (r *recordingNotifier) All() []chit.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chit.Notification(nil), r.notes...)
}

// inlineTasks runs submitted tasks immediately.
type inlineTasks struct{ errs []error }

func (q *inlineTasks) Submit(_ string, fn func(ctx context.Context) error) error {
	if err := fn(context.Background()); err != nil {
		q.errs = append(q.errs, err)
	}
	return nil
}

// seedChit stores a chit with the given target size and approved members.
func seedChit(t *testing.T, st chit.Store, name string, target int, approved ...string) chit.Chit {
	t.Helper()
	c := chit.Chit{
		ID:               chit.NewID(),
		Name:             name,
		Amount:           money("100000"),
		DurationInMonths: 10,
		TotalMembers:     target,
		StartDate:        time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		Status:           chit.ChitOpen,
		CreatedAt:        testNow,
		UpdatedAt:        testNow,
	}
	for _, id := range approved {
		c.Roster = append(c.Roster, chit.RosterEntry{MemberID: id, Approved: true, JoinedAt: testNow})
	}
	require.NoError(t, st.CreateChit(context.Background(), c))
	return c
}

func newMemoryStore() *store.Memory {
	return store.NewMemory()
}
