package chit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/manish-vm/EGS-chitfund-management-backend/chit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func june(day int) *time.Time {
	t := time.Date(2025, time.June, day, 12, 0, 0, 0, time.UTC)
	return &t
}

func recordInput(chitID string, date *time.Time) chit.RecordInput {
	return chit.RecordInput{
		ChitID:       chitID,
		WalletAmount: money("1000").Ptr(),
		BidAmount:    money("200").Ptr(),
		Distributed:  money("800").Ptr(),
		Date:         date,
	}
}

func TestCreateRecord_DenseSequencePerMonth(t *testing.T) {
	ctx := context.Background()
	alloc := &chit.SequenceAllocator{Records: newMemoryStore(), Now: clock}
	chitID := chit.NewID()

	for i := 1; i <= 3; i++ {
		rec, err := alloc.CreateRecord(ctx, recordInput(chitID, june(i)))
		require.NoError(t, err)
		assert.Equal(t, i, rec.Sequence)
		assert.Equal(t, "2025-06", rec.MonthKey)
	}

	// A new month starts again at 1
	july := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	rec, err := alloc.CreateRecord(ctx, recordInput(chitID, &july))
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Sequence)
	assert.Equal(t, "2025-07", rec.MonthKey)
}

func TestCreateRecord_DefaultsDateToNow(t *testing.T) {
	alloc := &chit.SequenceAllocator{Records: newMemoryStore(), Now: clock}
	rec, err := alloc.CreateRecord(context.Background(), recordInput(chit.NewID(), nil))
	require.NoError(t, err)
	assert.Equal(t, testNow, rec.Date)
	assert.Equal(t, "2025-06", rec.MonthKey)
}

func TestCreateRecord_Validation(t *testing.T) {
	ctx := context.Background()
	alloc := &chit.SequenceAllocator{Records: newMemoryStore(), Now: clock}

	_, err := alloc.CreateRecord(ctx, recordInput("bogus", nil))
	assert.ErrorIs(t, err, chit.ErrInvalidReference)

	in := recordInput(chit.NewID(), nil)
	in.BidAmount = nil
	_, err = alloc.CreateRecord(ctx, in)
	assert.ErrorIs(t, err, chit.ErrValidation)
}

// staleReader makes the first n reads return 0, as if every caller read
// before any insert landed.
type staleReader struct {
	chit.RecordStore
	mu    sync.Mutex
	stale int
}

func (s *staleReader) MaxSequence(ctx context.Context, chitID, monthKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale > 0 {
		s.stale--
		return 0, nil
	}
	return s.RecordStore.MaxSequence(ctx, chitID, monthKey)
}

func TestCreateRecord_ConcurrentConflictThenRetry(t *testing.T) {
	ctx := context.Background()
	records := &staleReader{RecordStore: newMemoryStore(), stale: 2}
	alloc := &chit.SequenceAllocator{Records: records, Now: clock}
	chitID := chit.NewID()

	// GIVEN: two creations that both observed an empty month
	first, err := alloc.CreateRecord(ctx, recordInput(chitID, june(1)))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Sequence)

	// WHEN: the second inserts with the same candidate
	_, err = alloc.CreateRecord(ctx, recordInput(chitID, june(1)))

	// THEN: it gets a retryable conflict
	require.Error(t, err)
	assert.ErrorIs(t, err, chit.ErrSequenceConflict)
	assert.True(t, chit.IsRetryable(err))
	assert.True(t, chit.IsConflict(err))
	var conflict *chit.SequenceConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 1, conflict.Sequence)
	assert.Equal(t, "2025-06", conflict.MonthKey)

	// AND: the retry observes sequence 1 and gets sequence 2
	second, err := alloc.CreateRecord(ctx, recordInput(chitID, june(1)))
	require.NoError(t, err)
	assert.Equal(t, 2, second.Sequence)
}

func TestCreateRecord_ParallelWritersNeverShareKey(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore()
	alloc := &chit.SequenceAllocator{Records: st, Now: clock}
	chitID := chit.NewID()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for attempt := 0; attempt < 50; attempt++ {
				_, err := alloc.CreateRecord(ctx, recordInput(chitID, june(10)))
				if err == nil || !chit.IsRetryable(err) {
					return
				}
			}
		}()
	}
	wg.Wait()

	recs, err := alloc.ListRecords(ctx, chitID, "2025-06")
	require.NoError(t, err)
	seen := map[int]bool{}
	for _, r := range recs {
		assert.False(t, seen[r.Sequence], "duplicate sequence %d", r.Sequence)
		seen[r.Sequence] = true
	}
	for i := 1; i <= len(recs); i++ {
		assert.True(t, seen[i], "missing sequence %d", i)
	}
}

func TestDeleteRecord_DoesNotRenumber(t *testing.T) {
	ctx := context.Background()
	alloc := &chit.SequenceAllocator{Records: newMemoryStore(), Now: clock}
	chitID := chit.NewID()

	var ids []string
	for i := 1; i <= 3; i++ {
		rec, err := alloc.CreateRecord(ctx, recordInput(chitID, june(i)))
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	require.NoError(t, alloc.DeleteRecord(ctx, chitID, ids[1]))

	recs, err := alloc.ListRecords(ctx, chitID, "")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	// newest date first
	assert.Equal(t, 3, recs[0].Sequence)
	assert.Equal(t, 1, recs[1].Sequence)

	err = alloc.DeleteRecord(ctx, chitID, ids[1])
	assert.True(t, chit.IsNotFound(err))
}

func TestCreateRecord_AfterDeletingOlderRecord(t *testing.T) {
	ctx := context.Background()
	alloc := &chit.SequenceAllocator{Records: newMemoryStore(), Now: clock}
	chitID := chit.NewID()

	// GIVEN: records 1 and 2, then record 1 deleted
	first, err := alloc.CreateRecord(ctx, recordInput(chitID, june(1)))
	require.NoError(t, err)
	_, err = alloc.CreateRecord(ctx, recordInput(chitID, june(2)))
	require.NoError(t, err)
	require.NoError(t, alloc.DeleteRecord(ctx, chitID, first.ID))

	// WHEN: another record is created in the same month
	next, err := alloc.CreateRecord(ctx, recordInput(chitID, june(3)))

	// THEN: it takes the number after the highest, not the freed gap
	require.NoError(t, err)
	assert.Equal(t, 3, next.Sequence)

	// AND: the month keeps accepting records
	after, err := alloc.CreateRecord(ctx, recordInput(chitID, june(4)))
	require.NoError(t, err)
	assert.Equal(t, 4, after.Sequence)
}

func TestUpdateRecord_DateChangeRecomputesMonthKey(t *testing.T) {
	ctx := context.Background()
	alloc := &chit.SequenceAllocator{Records: newMemoryStore(), Now: clock}
	chitID := chit.NewID()

	rec, err := alloc.CreateRecord(ctx, recordInput(chitID, june(1)))
	require.NoError(t, err)

	aug := time.Date(2025, time.August, 3, 0, 0, 0, 0, time.UTC)
	bid := money("300")
	updated, err := alloc.UpdateRecord(ctx, chitID, rec.ID, chit.RecordPatch{Date: &aug, BidAmount: &bid})
	require.NoError(t, err)
	assert.Equal(t, "2025-08", updated.MonthKey)
	assert.Equal(t, rec.Sequence, updated.Sequence)
	assert.Equal(t, "300.00", updated.BidAmount.String())

	explicit := "2025-09"
	updated, err = alloc.UpdateRecord(ctx, chitID, rec.ID, chit.RecordPatch{Date: &aug, MonthKey: &explicit})
	require.NoError(t, err)
	assert.Equal(t, "2025-09", updated.MonthKey)

	bad := "Sept"
	_, err = alloc.UpdateRecord(ctx, chitID, rec.ID, chit.RecordPatch{MonthKey: &bad})
	assert.ErrorIs(t, err, chit.ErrValidation)

	_, err = alloc.UpdateRecord(ctx, chitID, chit.NewID(), chit.RecordPatch{})
	assert.True(t, chit.IsNotFound(err))
}
