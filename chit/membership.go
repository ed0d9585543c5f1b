/*
membership.go - Join request state machine

PURPOSE:
  Moves a member into a chit through an operator-approved request.

STATES:
    pending --approve--> approved
    pending --reject---> rejected

  approved and rejected are terminal. Every transition is guarded at the
  storage layer ("only if still pending"), so a retried or concurrent
  approve applies its side effects at most once. The loser of a race gets a
  TransitionError.

CAPACITY:
  When the chit already holds its target number of approved members, an
  approve call rejects the request instead, with reason capacity_exceeded.
  The caller receives an ApprovalOutcome with CapacityExceeded set and a nil
  error; outcome.Err() returns ErrCapacityExceeded. The roster is not touched.

SIDE EFFECTS ON APPROVAL (one transaction):
  1. request pending -> approved
  2. roster entry {member, approved} updated in place or appended
  3. membership mirror row inserted unless present
  Notifications go out after commit and never fail the call.

SEE ALSO:
  - store.go: JoinRequestStore, TxStore
  - chits.go: Chit creation and roster reads
*/
package chit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ReasonCapacityExceeded is stored on requests rejected because the chit was full.
const ReasonCapacityExceeded = "capacity_exceeded"

// ApprovalOutcome is the result of Approve.
type ApprovalOutcome struct {
	Request          *JoinRequest
	Chit             *Chit
	CapacityExceeded bool
}

// Err returns ErrCapacityExceeded when the approval became a rejection.
func (o *ApprovalOutcome) Err() error {
	if o.CapacityExceeded {
		return ErrCapacityExceeded
	}
	return nil
}

// MembershipService runs the join request workflow.
type MembershipService struct {
	Store    TxStore
	Notifier Notifier
	Now      func() time.Time
}

// CreateJoinRequest files a pending request. If one is already pending for
// the same member and chit it is returned with created=false.
func (s *MembershipService) CreateJoinRequest(ctx context.Context, rawMemberID, rawChitID string) (req *JoinRequest, created bool, err error) {
	memberID, err := ParseID("member_id", rawMemberID)
	if err != nil {
		return nil, false, err
	}
	chitID, err := ParseID("chit_id", rawChitID)
	if err != nil {
		return nil, false, err
	}

	c, err := s.Store.GetChit(ctx, chitID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load chit: %w", err)
	}
	if c == nil {
		return nil, false, &NotFoundError{Kind: "chit", ID: chitID}
	}
	if c.IsApprovedMember(memberID) {
		return nil, false, ErrAlreadyMember
	}

	existing, err := s.Store.FindPendingJoinRequest(ctx, memberID, chitID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up join request: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	now := nowFunc(s.Now)
	jr := JoinRequest{
		ID:        NewID(),
		MemberID:  memberID,
		ChitID:    chitID,
		Status:    RequestPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.CreateJoinRequest(ctx, jr); err != nil {
		if !errors.Is(err, ErrConflict) {
			return nil, false, fmt.Errorf("failed to create join request: %w", err)
		}
		// Lost the race to a concurrent request for the same pair.
		winner, ferr := s.Store.FindPendingJoinRequest(ctx, memberID, chitID)
		if ferr != nil {
			return nil, false, fmt.Errorf("failed to look up join request: %w", ferr)
		}
		if winner == nil {
			return nil, false, err
		}
		return winner, false, nil
	}

	slog.Info("join request created", "request_id", jr.ID, "member_id", memberID, "chit_id", chitID)
	return &jr, true, nil
}

// Approve admits the requesting member, or rejects the request when the
// chit is full.
func (s *MembershipService) Approve(ctx context.Context, rawRequestID, operatorID string) (*ApprovalOutcome, error) {
	requestID, err := ParseID("request_id", rawRequestID)
	if err != nil {
		return nil, err
	}

	now := nowFunc(s.Now)
	var out ApprovalOutcome

	err = s.Store.WithTx(ctx, func(tx Store) error {
		jr, err := loadPendingRequest(ctx, tx, requestID, RequestApproved)
		if err != nil {
			return err
		}
		c, err := tx.GetChit(ctx, jr.ChitID)
		if err != nil {
			return fmt.Errorf("failed to load chit: %w", err)
		}
		if c == nil {
			return &NotFoundError{Kind: "chit", ID: jr.ChitID}
		}

		if !c.IsApprovedMember(jr.MemberID) && c.TotalMembers > 0 && c.ApprovedCount() >= c.TotalMembers {
			if err := transitionRequest(ctx, tx, jr, RequestRejected, operatorID, ReasonCapacityExceeded, now); err != nil {
				return err
			}
			out = ApprovalOutcome{Request: jr, Chit: c, CapacityExceeded: true}
			return nil
		}

		if err := transitionRequest(ctx, tx, jr, RequestApproved, operatorID, "", now); err != nil {
			return err
		}
		entry := c.ApproveMember(jr.MemberID, now)
		if err := tx.UpsertRosterEntry(ctx, c.ID, entry); err != nil {
			return fmt.Errorf("failed to update roster: %w", err)
		}
		if _, err := tx.EnsureMembership(ctx, Membership{
			MemberID: jr.MemberID,
			ChitID:   c.ID,
			JoinedAt: entry.JoinedAt,
		}); err != nil {
			return fmt.Errorf("failed to record membership: %w", err)
		}
		out = ApprovalOutcome{Request: jr, Chit: c}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.CapacityExceeded {
		slog.Info("join request auto-rejected",
			"request_id", out.Request.ID, "chit_id", out.Chit.ID,
			"approved", out.Chit.ApprovedCount(), "target", out.Chit.TotalMembers)
		s.notify(ctx, Notification{
			RecipientID: out.Request.MemberID,
			Title:       "Join request rejected",
			Message:     fmt.Sprintf("%s has reached its member limit.", out.Chit.Name),
			Link:        "/join-chit/" + out.Chit.ID,
		})
		return &out, nil
	}

	slog.Info("join request approved",
		"request_id", out.Request.ID, "member_id", out.Request.MemberID,
		"chit_id", out.Chit.ID, "operator_id", operatorID)
	s.notify(ctx, Notification{
		RecipientID: out.Request.MemberID,
		Title:       "Join request approved",
		Message:     fmt.Sprintf("Your request to join %s has been approved.", out.Chit.Name),
		Link:        "/joined-schemes/",
	})
	return &out, nil
}

// Reject declines a pending request.
func (s *MembershipService) Reject(ctx context.Context, rawRequestID, operatorID, reason string) (*JoinRequest, error) {
	requestID, err := ParseID("request_id", rawRequestID)
	if err != nil {
		return nil, err
	}

	now := nowFunc(s.Now)
	var jr *JoinRequest
	err = s.Store.WithTx(ctx, func(tx Store) error {
		var err error
		jr, err = loadPendingRequest(ctx, tx, requestID, RequestRejected)
		if err != nil {
			return err
		}
		return transitionRequest(ctx, tx, jr, RequestRejected, operatorID, reason, now)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("join request rejected", "request_id", jr.ID, "operator_id", operatorID)

	name := "the chit"
	if c, err := s.Store.GetChit(ctx, jr.ChitID); err == nil && c != nil {
		name = c.Name
	}
	s.notify(ctx, Notification{
		RecipientID: jr.MemberID,
		Title:       "Join request rejected",
		Message:     fmt.Sprintf("Your request to join %s was not approved.", name),
		Link:        "/join-chit/" + jr.ChitID,
	})
	return jr, nil
}

// ListByMember returns a member's requests, newest first.
func (s *MembershipService) ListByMember(ctx context.Context, rawMemberID string) ([]JoinRequest, error) {
	memberID, err := ParseID("member_id", rawMemberID)
	if err != nil {
		return nil, err
	}
	return s.Store.ListJoinRequestsByMember(ctx, memberID)
}

// ListPending returns every pending request, oldest first.
func (s *MembershipService) ListPending(ctx context.Context) ([]JoinRequest, error) {
	return s.Store.ListPendingJoinRequests(ctx)
}

func (s *MembershipService) notify(ctx context.Context, notes ...Notification) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.Notify(ctx, stampNotifications(notes, nowFunc(s.Now))...)
}

// =============================================================================
// HELPERS
// =============================================================================

func loadPendingRequest(ctx context.Context, st Store, id string, to RequestStatus) (*JoinRequest, error) {
	jr, err := st.GetJoinRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load join request: %w", err)
	}
	if jr == nil {
		return nil, &NotFoundError{Kind: "join request", ID: id}
	}
	if jr.Status != RequestPending {
		return nil, &TransitionError{Kind: "join request", ID: id, From: string(jr.Status), To: string(to)}
	}
	return jr, nil
}

// transitionRequest applies the guarded pending -> to move and updates jr.
func transitionRequest(ctx context.Context, st Store, jr *JoinRequest, to RequestStatus, decidedBy, reason string, at time.Time) error {
	ok, err := st.TransitionJoinRequest(ctx, jr.ID, RequestPending, to, decidedBy, reason, at)
	if err != nil {
		return fmt.Errorf("failed to update join request: %w", err)
	}
	if !ok {
		from := "decided"
		if cur, err := st.GetJoinRequest(ctx, jr.ID); err == nil && cur != nil {
			from = string(cur.Status)
		}
		return &TransitionError{Kind: "join request", ID: jr.ID, From: from, To: string(to)}
	}
	jr.Status = to
	jr.DecidedBy = decidedBy
	jr.Reason = reason
	jr.UpdatedAt = at
	return nil
}

// stampNotifications fills in ids and timestamps.
func stampNotifications(notes []Notification, at time.Time) []Notification {
	for i := range notes {
		if notes[i].ID == "" {
			notes[i].ID = NewID()
		}
		if notes[i].CreatedAt.IsZero() {
			notes[i].CreatedAt = at
		}
	}
	return notes
}
