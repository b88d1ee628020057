package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusDeclined, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusInProgress, false},
		{StatusAccepted, StatusInProgress, true},
		{StatusAccepted, StatusCompleted, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusAccepted, StatusDeclined, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusInProgress, StatusAccepted, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusAccepted, false},
		{StatusDeclined, StatusAccepted, false},
		{StatusRefunded, StatusCancelled, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []Status{StatusDeclined, StatusCancelled, StatusCompleted, StatusRefunded} {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
	}
	for _, s := range []Status{StatusPending, StatusAccepted, StatusInProgress} {
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
	}
}

func TestInvalidTransitionErrorCarriesAlternatives(t *testing.T) {
	err := newInvalidTransition(7, StatusPending, StatusCompleted)

	assert.Equal(t, 7, err.BookingID)
	assert.Equal(t, StatusPending, err.Current)
	assert.Equal(t, StatusCompleted, err.Attempted)
	assert.ElementsMatch(t, []Status{StatusAccepted, StatusDeclined, StatusCancelled}, err.Allowed)
	assert.Contains(t, err.Error(), "cannot move from pending to completed")
}

func TestDeliverablesUnlocked(t *testing.T) {
	now := time.Now()

	b := Booking{DepositPaidAt: &now}
	assert.False(t, b.DeliverablesUnlocked(), "deposit alone must not unlock deliverables")

	b.RemainingPaidAt = &now
	assert.True(t, b.DeliverablesUnlocked())
}

func TestSegmentMinutes(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seg := Segment{StartTime: start, EndTime: start.Add(90 * time.Minute)}
	assert.Equal(t, 90, seg.Minutes())
}
