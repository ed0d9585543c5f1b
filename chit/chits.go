package chit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ChitInput is the payload for a new chit.
type ChitInput struct {
	Name             string
	Description      string
	Amount           Money
	TotalAmount      *Money
	DurationInMonths int
	TotalMembers     int
	StartDate        *time.Time
	Status           ChitStatus
	CommissionRate   *decimal.Decimal
	CreatedBy        string
}

// Validate checks required fields and ranges.
func (in ChitInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if !in.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	if in.TotalMembers < 1 {
		return &ValidationError{Field: "totalMembers", Message: "must be at least 1"}
	}
	if in.DurationInMonths < 1 {
		return &ValidationError{Field: "durationInMonths", Message: "must be at least 1"}
	}
	if in.Status != "" && !in.Status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", in.Status)}
	}
	if in.CommissionRate != nil && (in.CommissionRate.IsNegative() || in.CommissionRate.GreaterThan(decimal.NewFromInt(1))) {
		return &ValidationError{Field: "commissionRate", Message: "must be between 0 and 1"}
	}
	return nil
}

// ChitView is a chit with its collected total.
type ChitView struct {
	Chit
	Collected Money
}

// ChitService creates and reads chits, and keeps the member directory.
type ChitService struct {
	Store    Store
	Tasks    TaskQueue
	Notifier Notifier
	Now      func() time.Time

	// Inbox serves member notifications. Defaults to Store.
	Inbox NotificationStore
}

// Create validates and stores a chit, then announces it to every member in
// the background. Announcement failures never affect the result.
func (s *ChitService) Create(ctx context.Context, in ChitInput) (*Chit, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := nowFunc(s.Now)
	start := now
	if in.StartDate != nil && !in.StartDate.IsZero() {
		start = in.StartDate.UTC()
	}
	status := in.Status
	if status == "" {
		status = ChitDraft
	}
	c := Chit{
		ID:               NewID(),
		Name:             strings.TrimSpace(in.Name),
		Description:      in.Description,
		Amount:           in.Amount.Round2(),
		DurationInMonths: in.DurationInMonths,
		TotalMembers:     in.TotalMembers,
		StartDate:        start,
		Status:           status,
		CommissionRate:   in.CommissionRate,
		CreatedBy:        in.CreatedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if in.TotalAmount != nil {
		c.TotalAmount = in.TotalAmount.ClampZero().Ptr()
	}

	if err := s.Store.CreateChit(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create chit: %w", err)
	}
	slog.Info("chit created", "chit_id", c.ID, "name", c.Name, "created_by", c.CreatedBy)

	s.announce(c)
	return &c, nil
}

// announce submits the new-chit fan-out as a detached task.
func (s *ChitService) announce(c Chit) {
	if s.Tasks == nil || s.Notifier == nil {
		return
	}
	err := s.Tasks.Submit("announce-chit", func(ctx context.Context) error {
		members, err := s.Store.ListMembers(ctx)
		if err != nil {
			return fmt.Errorf("failed to list members: %w", err)
		}
		notes := make([]Notification, 0, len(members))
		for _, m := range members {
			notes = append(notes, Notification{
				RecipientID: m.ID,
				Title:       "New Chit Scheme Added",
				Message:     fmt.Sprintf("%s is now open. Principal %s over %d months.", c.Name, c.Principal(), c.DurationInMonths),
				Link:        "/join-chit/" + c.ID,
			})
		}
		if len(notes) > 0 {
			s.Notifier.Notify(ctx, stampNotifications(notes, nowFunc(s.Now))...)
		}
		return nil
	})
	if err != nil {
		slog.Error("failed to schedule chit announcement", "chit_id", c.ID, "error", err)
	}
}

// Get returns a chit with its collected contributions.
func (s *ChitService) Get(ctx context.Context, rawID string) (*ChitView, error) {
	id, err := ParseID("chit_id", rawID)
	if err != nil {
		return nil, err
	}
	c, err := s.Store.GetChit(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load chit: %w", err)
	}
	if c == nil {
		return nil, &NotFoundError{Kind: "chit", ID: id}
	}
	collected, err := s.Store.CollectedByChit(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sum contributions: %w", err)
	}
	return &ChitView{Chit: *c, Collected: collected[id]}, nil
}

// List returns all chits, newest first.
func (s *ChitService) List(ctx context.Context) ([]Chit, error) {
	chits, err := s.Store.ListChits(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(chits, func(i, j int) bool {
		return chits[i].CreatedAt.After(chits[j].CreatedAt)
	})
	return chits, nil
}

// JoinedChits returns the chits where the member holds an approved roster
// entry, newest first.
func (s *ChitService) JoinedChits(ctx context.Context, rawMemberID string) ([]Chit, error) {
	memberID, err := ParseID("member_id", rawMemberID)
	if err != nil {
		return nil, err
	}
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	joined := []Chit{}
	for _, c := range all {
		if c.IsApprovedMember(memberID) {
			joined = append(joined, c)
		}
	}
	return joined, nil
}

// ChitPatch changes a chit's definition. Nil fields are left alone.
type ChitPatch struct {
	Name             *string
	Description      *string
	Amount           *Money
	TotalAmount      *Money
	DurationInMonths *int
	TotalMembers     *int
	StartDate        *time.Time
	Status           *ChitStatus
	CommissionRate   *decimal.Decimal
}

// Update applies p to a chit's definition. The roster and release state are
// never changed here, and the member target cannot drop below the approved
// count.
func (s *ChitService) Update(ctx context.Context, rawID string, p ChitPatch) (*Chit, error) {
	id, err := ParseID("chit_id", rawID)
	if err != nil {
		return nil, err
	}
	c, err := s.Store.GetChit(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load chit: %w", err)
	}
	if c == nil {
		return nil, &NotFoundError{Kind: "chit", ID: id}
	}

	in := ChitInput{
		Name:             c.Name,
		Description:      c.Description,
		Amount:           c.Amount,
		TotalAmount:      c.TotalAmount,
		DurationInMonths: c.DurationInMonths,
		TotalMembers:     c.TotalMembers,
		StartDate:        &c.StartDate,
		Status:           c.Status,
		CommissionRate:   c.CommissionRate,
	}
	if p.Name != nil {
		in.Name = *p.Name
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.Amount != nil {
		in.Amount = *p.Amount
	}
	if p.TotalAmount != nil {
		in.TotalAmount = p.TotalAmount
	}
	if p.DurationInMonths != nil {
		in.DurationInMonths = *p.DurationInMonths
	}
	if p.TotalMembers != nil {
		in.TotalMembers = *p.TotalMembers
	}
	if p.StartDate != nil && !p.StartDate.IsZero() {
		in.StartDate = p.StartDate
	}
	if p.Status != nil {
		in.Status = *p.Status
	}
	if p.CommissionRate != nil {
		in.CommissionRate = p.CommissionRate
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if approved := c.ApprovedCount(); in.TotalMembers < approved {
		return nil, &ValidationError{
			Field:   "totalMembers",
			Message: fmt.Sprintf("cannot be below the %d approved members", approved),
		}
	}

	c.Name = strings.TrimSpace(in.Name)
	c.Description = in.Description
	c.Amount = in.Amount.Round2()
	if in.TotalAmount != nil {
		c.TotalAmount = in.TotalAmount.ClampZero().Ptr()
	}
	c.DurationInMonths = in.DurationInMonths
	c.TotalMembers = in.TotalMembers
	c.StartDate = in.StartDate.UTC()
	c.Status = in.Status
	c.CommissionRate = in.CommissionRate
	c.UpdatedAt = nowFunc(s.Now)

	if err := s.Store.UpdateChit(ctx, *c); err != nil {
		return nil, fmt.Errorf("failed to update chit: %w", err)
	}
	slog.Info("chit updated", "chit_id", c.ID)
	return c, nil
}

// Delete removes a chit and its roster. Chits with approved members are
// kept; recorded history is never removed.
func (s *ChitService) Delete(ctx context.Context, rawID string) error {
	id, err := ParseID("chit_id", rawID)
	if err != nil {
		return err
	}
	c, err := s.Store.GetChit(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load chit: %w", err)
	}
	if c == nil {
		return &NotFoundError{Kind: "chit", ID: id}
	}
	if c.ApprovedCount() > 0 {
		return ErrChitInUse
	}
	ok, err := s.Store.DeleteChit(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete chit: %w", err)
	}
	if !ok {
		return &NotFoundError{Kind: "chit", ID: id}
	}
	slog.Info("chit deleted", "chit_id", id)
	return nil
}

// =============================================================================
// MEMBER DIRECTORY
// =============================================================================

// MemberInput registers a member.
type MemberInput struct {
	ID    string // optional, generated when empty
	Name  string
	Email string
	Phone string
	Role  Role
}

// SaveMember creates or updates a directory entry.
func (s *ChitService) SaveMember(ctx context.Context, in MemberInput) (*Member, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, &ValidationError{Field: "name", Message: "is required"}
	}
	id := NewID()
	if strings.TrimSpace(in.ID) != "" {
		var err error
		if id, err = ParseID("id", in.ID); err != nil {
			return nil, err
		}
	}
	role := in.Role
	if role == "" {
		role = RoleMember
	}
	if role != RoleMember && role != RoleAdmin {
		return nil, &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", role)}
	}
	m := Member{
		ID:        id,
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.TrimSpace(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
		Role:      role,
		CreatedAt: nowFunc(s.Now),
	}
	if err := s.Store.SaveMember(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to save member: %w", err)
	}
	return &m, nil
}

// ListMembers returns the directory.
func (s *ChitService) ListMembers(ctx context.Context) ([]Member, error) {
	return s.Store.ListMembers(ctx)
}

// Notifications returns a member's inbox.
func (s *ChitService) Notifications(ctx context.Context, rawMemberID string) ([]Notification, error) {
	id, err := ParseID("member_id", rawMemberID)
	if err != nil {
		return nil, err
	}
	return s.inbox().ListNotifications(ctx, id)
}

// MarkNotificationRead marks one of the member's notifications read.
func (s *ChitService) MarkNotificationRead(ctx context.Context, rawMemberID, rawID string) error {
	memberID, id, err := parseNotificationRef(rawMemberID, rawID)
	if err != nil {
		return err
	}
	ok, err := s.inbox().MarkNotificationRead(ctx, memberID, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if !ok {
		return &NotFoundError{Kind: "notification", ID: id}
	}
	return nil
}

// MarkAllNotificationsRead marks the member's whole inbox read and returns
// how many changed.
func (s *ChitService) MarkAllNotificationsRead(ctx context.Context, rawMemberID string) (int, error) {
	memberID, err := ParseID("member_id", rawMemberID)
	if err != nil {
		return 0, err
	}
	n, err := s.inbox().MarkAllNotificationsRead(ctx, memberID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return n, nil
}

// DeleteNotification removes one of the member's notifications.
func (s *ChitService) DeleteNotification(ctx context.Context, rawMemberID, rawID string) error {
	memberID, id, err := parseNotificationRef(rawMemberID, rawID)
	if err != nil {
		return err
	}
	ok, err := s.inbox().DeleteNotification(ctx, memberID, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if !ok {
		return &NotFoundError{Kind: "notification", ID: id}
	}
	return nil
}

func (s *ChitService) inbox() NotificationStore {
	if s.Inbox != nil {
		return s.Inbox
	}
	return s.Store
}

func parseNotificationRef(rawMemberID, rawID string) (string, string, error) {
	memberID, err := ParseID("member_id", rawMemberID)
	if err != nil {
		return "", "", err
	}
	id, err := ParseID("notification_id", rawID)
	if err != nil {
		return "", "", err
	}
	return memberID, id, nil
}
