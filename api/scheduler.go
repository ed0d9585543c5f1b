/*
scheduler.go - Cron-driven contribution reminders

PURPOSE:
  Runs chit.ReminderService on a cron schedule so members hear about a
  missing monthly contribution without an operator stepping in.

DESIGN:
  - robfig/cron with panic recovery; cron's own log lines go through slog
  - One job: SendDue on REMINDER_SCHEDULE (default "0 9 1 * *")
  - Each run gets its own timeout; a failed run is logged and the next
    tick tries again

USAGE:
  s := NewReminderScheduler(reminders, "0 9 1 * *")
  if err := s.Start(); err != nil { ... }
  defer s.Stop()

SEE ALSO:
  - chit/reminder.go: who gets reminded
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/manish-vm/EGS-chitfund-management-backend/chit"
)

const reminderRunTimeout = 2 * time.Minute

// ReminderScheduler runs contribution reminders periodically.
type ReminderScheduler struct {
	Reminders *chit.ReminderService
	Schedule  string

	cron *cron.Cron
}

// NewReminderScheduler creates a scheduler. Call Start to begin.
func NewReminderScheduler(reminders *chit.ReminderService, schedule string) *ReminderScheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelInfo))
	return &ReminderScheduler{
		Reminders: reminders,
		Schedule:  schedule,
		cron:      cron.New(cron.WithChain(cron.Recover(cronLogger))),
	}
}

// Start registers the reminder job. An empty schedule disables it.
func (s *ReminderScheduler) Start() error {
	if s.Schedule == "" {
		slog.Info("contribution reminders disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.Schedule, s.run); err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", s.Schedule, err)
	}
	s.cron.Start()
	slog.Info("scheduled contribution reminders", "schedule", s.Schedule)
	return nil
}

// Stop waits for a running job to finish.
func (s *ReminderScheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("reminder scheduler stopped")
}

// RunNow sends reminders immediately.
func (s *ReminderScheduler) RunNow(ctx context.Context) (int, error) {
	return s.Reminders.SendDue(ctx)
}

// NextRun returns the next scheduled run, or zero if not scheduled.
func (s *ReminderScheduler) NextRun() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *ReminderScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), reminderRunTimeout)
	defer cancel()
	if _, err := s.RunNow(ctx); err != nil {
		slog.Error("contribution reminder run failed", "error", err)
	}
}
