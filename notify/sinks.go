package notify

import (
	"context"
	"fmt"

	"github.com/manish-vm/EGS-chitfund-management-backend/chit"
)

// StoreSink writes notifications into an inbox store.
type StoreSink struct {
	Inbox chit.NotificationStore
}

func (s StoreSink) Deliver(ctx context.Context, notes []chit.Notification) error {
	if err := s.Inbox.SaveNotifications(ctx, notes); err != nil {
		return fmt.Errorf("save notifications: %w", err)
	}
	return nil
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, notes []chit.Notification) error

func (f SinkFunc) Deliver(ctx context.Context, notes []chit.Notification) error {
	return f(ctx, notes)
}
