package chit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ReminderService tells approved members when the current month's
// contribution is still missing.
type ReminderService struct {
	Store    Store
	Notifier Notifier
	Now      func() time.Time
}

// SendDue notifies every approved member of an open or running chit who has
// no contribution for the current month. Chits outside their active months
// are skipped. Returns the number of reminders queued.
func (s *ReminderService) SendDue(ctx context.Context) (int, error) {
	now := nowFunc(s.Now)
	current := PeriodOf(now)

	chits, err := s.Store.ListChits(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list chits: %w", err)
	}

	var notes []Notification
	for i := range chits {
		c := &chits[i]
		if c.Status != ChitOpen && c.Status != ChitRunning {
			continue
		}
		if !activeIn(c, current) {
			continue
		}

		contributions, err := s.Store.ListContributions(ctx, c.ID, "")
		if err != nil {
			return 0, fmt.Errorf("failed to list contributions for chit %s: %w", c.ID, err)
		}
		paid := make(map[string]bool)
		for _, ct := range contributions {
			if ct.Month == current.Month && ct.Year == current.Year {
				paid[ct.MemberID] = true
			}
		}

		for _, e := range c.Roster {
			if !e.Approved || paid[e.MemberID] {
				continue
			}
			notes = append(notes, Notification{
				RecipientID: e.MemberID,
				Title:       "Contribution due",
				Message:     fmt.Sprintf("Your %s %d contribution for %s is due.", current.Month, current.Year, c.Name),
				Link:        "/joined-schemes/",
			})
		}
	}

	if len(notes) > 0 && s.Notifier != nil {
		s.Notifier.Notify(ctx, stampNotifications(notes, now)...)
	}
	slog.Info("contribution reminders sent", "count", len(notes), "month", current.Month, "year", current.Year)
	return len(notes), nil
}

func activeIn(c *Chit, p Period) bool {
	for _, q := range PeriodsFrom(c.StartDate, c.DurationInMonths) {
		if q == p {
			return true
		}
	}
	return false
}
