package ride

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allStatuses = []Status{
	StatusRequested, StatusAccepted, StatusPickedUp,
	StatusInTransit, StatusCompleted, StatusCancelled,
}

// TestStatusFlow_AllowedTransitions walks every status pair against the
// transition table
func TestStatusFlow_AllowedTransitions(t *testing.T) {
	allowed := map[Status][]Status{
		StatusRequested: {StatusAccepted, StatusCancelled},
		StatusAccepted:  {StatusPickedUp, StatusCancelled},
		StatusPickedUp:  {StatusInTransit, StatusCancelled},
		StatusInTransit: {StatusCompleted, StatusCancelled},
		StatusCompleted: {},
		StatusCancelled: {},
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			got := CanTransition(from, to)
			assert.Equal(t, want, got, "transition %s -> %s", from, to)
		}
	}
}

// TestStatusFlow_DriverAdvance verifies a driver progress update cannot
// claim a ride out of REQUESTED; acceptance has its own path
func TestStatusFlow_DriverAdvance(t *testing.T) {
	assert.False(t, CanAdvance(StatusRequested, StatusAccepted))
	assert.False(t, CanAdvance(StatusRequested, StatusCancelled))

	assert.True(t, CanAdvance(StatusAccepted, StatusPickedUp))
	assert.True(t, CanAdvance(StatusPickedUp, StatusInTransit))
	assert.True(t, CanAdvance(StatusInTransit, StatusCompleted))

	// no skipping milestones
	assert.False(t, CanAdvance(StatusAccepted, StatusInTransit))
	assert.False(t, CanAdvance(StatusAccepted, StatusCompleted))
	assert.False(t, CanAdvance(StatusPickedUp, StatusCompleted))

	// no moving backwards
	assert.False(t, CanAdvance(StatusInTransit, StatusPickedUp))
	assert.False(t, CanAdvance(StatusCompleted, StatusInTransit))
}

func TestStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
		active   bool
	}{
		{StatusRequested, false, true},
		{StatusAccepted, false, true},
		{StatusPickedUp, false, true},
		{StatusInTransit, false, true},
		{StatusCompleted, true, false},
		{StatusCancelled, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.active, tt.status.IsActive())
		})
	}
}

func TestStatus_IsValid(t *testing.T) {
	for _, s := range allStatuses {
		assert.True(t, s.IsValid())
	}
	assert.False(t, Status("driving").IsValid())
	assert.False(t, Status("").IsValid())
}

func TestRide_Guards(t *testing.T) {
	r := &Ride{Status: StatusRequested}
	assert.True(t, r.CanAccept())
	assert.True(t, r.CanCancel())
	assert.False(t, r.IsRated())

	r.Status = StatusAccepted
	assert.False(t, r.CanAccept())
	assert.True(t, r.CanCancel())

	r.Status = StatusCompleted
	assert.False(t, r.CanAccept())
	assert.False(t, r.CanCancel())

	rating := 4
	r.Rating = &rating
	assert.True(t, r.IsRated())

	r.Status = StatusCancelled
	assert.False(t, r.CanCancel())
}
