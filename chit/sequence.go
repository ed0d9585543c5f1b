/*
sequence.go - Sequence allocator for generated settlement records

PURPOSE:
  Numbers the settlement records of a chit within each month: 1, 2, 3, ...
  The key (chit_id, month_key, sequence_number) is the compatibility key of
  historical ledgers and is unique at the storage layer.

ALGORITHM (compare-and-insert):
  1. read the highest sequence used for (chit, month)
  2. candidate = highest + 1
  3. insert; the unique index rejects a candidate someone else took

  Without deletions the highest sequence equals the record count, so the
  numbers are 1, 2, 3, ... Two writers that read the same value race on the
  insert. The loser gets a SequenceConflictError and must retry; the retry
  observes the new highest value. There is no cross-row lock and no
  in-process retry loop.

STABILITY:
  Sequence numbers are identifiers, not positions. Editing or deleting a
  record never renumbers its siblings. Gaps left by deletion are never
  reused, so a month stays writable after any deletion.

SEE ALSO:
  - store.go: RecordStore contract
  - store/sqlite/sqlite.go: idx_generated_sequence
*/
package chit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RecordInput is the payload for a new settlement record.
// WalletAmount, BidAmount and Distributed are required.
type RecordInput struct {
	ChitID         string
	ChitName       string
	WalletAmount   *Money
	BidAmount      *Money
	Distributed    *Money
	Date           *time.Time
	IsRelease      bool
	ReleasedAmount Money
	CreatedBy      string
}

// RecordPatch holds optional field updates.
type RecordPatch struct {
	ChitName     *string
	WalletAmount *Money
	BidAmount    *Money
	Distributed  *Money
	Date         *time.Time
	MonthKey     *string
}

// SequenceAllocator creates numbered settlement records.
type SequenceAllocator struct {
	Records RecordStore
	Now     func() time.Time
}

// NextSequence returns one past the highest sequence of (chitID, monthKey).
func (a *SequenceAllocator) NextSequence(ctx context.Context, chitID, monthKey string) (int, error) {
	n, err := a.Records.MaxSequence(ctx, chitID, monthKey)
	if err != nil {
		return 0, fmt.Errorf("failed to read highest sequence: %w", err)
	}
	return n + 1, nil
}

// CreateRecord allocates the next sequence number and inserts the record.
// A lost race returns *SequenceConflictError.
func (a *SequenceAllocator) CreateRecord(ctx context.Context, in RecordInput) (*GeneratedRecord, error) {
	chitID, err := ParseID("chit_id", in.ChitID)
	if err != nil {
		return nil, err
	}
	if in.WalletAmount == nil || in.BidAmount == nil || in.Distributed == nil {
		return nil, &ValidationError{
			Field:   "walletAmount, bidAmount, distributed",
			Message: "are required",
		}
	}

	now := nowFunc(a.Now)
	date := now
	if in.Date != nil && !in.Date.IsZero() {
		date = in.Date.UTC()
	}
	monthKey := MonthKey(date)

	seq, err := a.NextSequence(ctx, chitID, monthKey)
	if err != nil {
		return nil, err
	}

	rec := GeneratedRecord{
		ID:             NewID(),
		ChitID:         chitID,
		ChitName:       in.ChitName,
		MonthKey:       monthKey,
		Sequence:       seq,
		Date:           date,
		WalletAmount:   in.WalletAmount.ClampZero(),
		BidAmount:      in.BidAmount.ClampZero(),
		Distributed:    in.Distributed.ClampZero(),
		IsRelease:      in.IsRelease,
		ReleasedAmount: in.ReleasedAmount.ClampZero(),
		CreatedBy:      in.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := a.Records.InsertRecord(ctx, rec); err != nil {
		if IsRetryable(err) {
			slog.Warn("settlement sequence conflict",
				"chit_id", chitID, "month_key", monthKey, "sequence", seq)
		}
		return nil, err
	}
	return &rec, nil
}

// UpdateRecord applies a patch. Changing the date recomputes the month key
// unless one is given explicitly. The sequence number is never changed.
func (a *SequenceAllocator) UpdateRecord(ctx context.Context, rawChitID, recordID string, p RecordPatch) (*GeneratedRecord, error) {
	chitID, err := ParseID("chit_id", rawChitID)
	if err != nil {
		return nil, err
	}
	if recordID == "" {
		return nil, &ValidationError{Field: "row_id", Message: "is required"}
	}

	rec, err := a.Records.GetRecord(ctx, chitID, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	if rec == nil {
		return nil, &NotFoundError{Kind: "generated record", ID: recordID}
	}

	if p.ChitName != nil {
		rec.ChitName = *p.ChitName
	}
	if p.WalletAmount != nil {
		rec.WalletAmount = p.WalletAmount.ClampZero()
	}
	if p.BidAmount != nil {
		rec.BidAmount = p.BidAmount.ClampZero()
	}
	if p.Distributed != nil {
		rec.Distributed = p.Distributed.ClampZero()
	}
	if p.Date != nil && !p.Date.IsZero() {
		rec.Date = p.Date.UTC()
		if p.MonthKey == nil {
			rec.MonthKey = MonthKey(rec.Date)
		}
	}
	if p.MonthKey != nil {
		if !ValidMonthKey(*p.MonthKey) {
			return nil, &ValidationError{Field: "monthKey", Message: "must be YYYY-MM"}
		}
		rec.MonthKey = *p.MonthKey
	}
	rec.UpdatedAt = nowFunc(a.Now)

	if err := a.Records.UpdateRecord(ctx, *rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteRecord removes a record. Siblings keep their numbers.
func (a *SequenceAllocator) DeleteRecord(ctx context.Context, rawChitID, recordID string) error {
	chitID, err := ParseID("chit_id", rawChitID)
	if err != nil {
		return err
	}
	ok, err := a.Records.DeleteRecord(ctx, chitID, recordID)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if !ok {
		return &NotFoundError{Kind: "generated record", ID: recordID}
	}
	return nil
}

// ListRecords returns a chit's records, optionally for one month.
func (a *SequenceAllocator) ListRecords(ctx context.Context, rawChitID, monthKey string) ([]GeneratedRecord, error) {
	chitID, err := ParseID("chit_id", rawChitID)
	if err != nil {
		return nil, err
	}
	return a.Records.ListRecords(ctx, chitID, monthKey)
}
