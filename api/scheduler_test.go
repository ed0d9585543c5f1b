package api_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manish-vm/EGS-chitfund-management-backend/api"
	"github.com/manish-vm/EGS-chitfund-management-backend/chit"
	"github.com/manish-vm/EGS-chitfund-management-backend/chit/store"
)

func TestReminderScheduler_StartRejectsBadSchedule(t *testing.T) {
	s := api.NewReminderScheduler(&chit.ReminderService{Store: store.NewMemory()}, "every tuesday")
	assert.Error(t, s.Start())
}

func TestReminderScheduler_EmptyScheduleDisables(t *testing.T) {
	s := api.NewReminderScheduler(&chit.ReminderService{Store: store.NewMemory()}, "")
	require.NoError(t, s.Start())
	assert.True(t, s.NextRun().IsZero())
	s.Stop()
}

func TestReminderScheduler_SchedulesNextRun(t *testing.T) {
	s := api.NewReminderScheduler(&chit.ReminderService{Store: store.NewMemory()}, "0 9 1 * *")
	require.NoError(t, s.Start())
	defer s.Stop()

	next := s.NextRun()
	require.False(t, next.IsZero())
	assert.Equal(t, 1, next.Day())
	assert.Equal(t, 9, next.Hour())
}
