package ride

import (
	"time"

	"github.com/google/uuid"
)

// Status represents ride status
type Status string

const (
	StatusRequested Status = "requested"
	StatusAccepted  Status = "accepted"
	StatusPickedUp  Status = "picked_up"
	StatusInTransit Status = "in_transit"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses are the statuses of a ride that is still underway.
// A rider may hold at most one ride in these statuses; a driver at most
// one in the subset that excludes StatusRequested.
var ActiveStatuses = []Status{StatusRequested, StatusAccepted, StatusPickedUp, StatusInTransit}

// DriverActiveStatuses are the statuses that bind a driver to a ride.
var DriverActiveStatuses = []Status{StatusAccepted, StatusPickedUp, StatusInTransit}

// transitions encodes the ride state flow. Cancellation from REQUESTED is
// handled by the dedicated cancel path, not by a driver advance.
var transitions = map[Status][]Status{
	StatusRequested: {StatusAccepted, StatusCancelled},
	StatusAccepted:  {StatusPickedUp, StatusCancelled},
	StatusPickedUp:  {StatusInTransit, StatusCancelled},
	StatusInTransit: {StatusCompleted, StatusCancelled},
}

// advanceTransitions restricts what a driver may reach via a progress
// update. Cancellation goes through Cancel, never Advance.
var advanceTransitions = map[Status][]Status{
	StatusAccepted:  {StatusPickedUp, StatusCancelled},
	StatusPickedUp:  {StatusInTransit, StatusCancelled},
	StatusInTransit: {StatusCompleted, StatusCancelled},
}

// IsValid validates the status value
func (s Status) IsValid() bool {
	switch s {
	case StatusRequested, StatusAccepted, StatusPickedUp, StatusInTransit, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are permitted
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsActive reports whether the ride is still underway
func (s Status) IsActive() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// CanTransition reports whether from → to appears in the transition table
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanAdvance reports whether a driver progress update may move from → to
func CanAdvance(from, to Status) bool {
	for _, next := range advanceTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Location represents a pickup or destination point
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// StatusChange is one entry of a ride's append-only status history
type StatusChange struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   uuid.UUID `json:"actor_id"`
}

// Ride represents one trip request. The rider reference is immutable and
// the driver reference is set exactly once, on acceptance.
type Ride struct {
	ID                 uuid.UUID      `json:"id"`
	RiderID            uuid.UUID      `json:"rider_id"`
	DriverID           *uuid.UUID     `json:"driver_id,omitempty"`
	Status             Status         `json:"status"`
	Pickup             Location       `json:"pickup_location"`
	Destination        Location       `json:"destination_location"`
	StatusHistory      []StatusChange `json:"status_history,omitempty"`
	RequestedAt        time.Time      `json:"requested_at"`
	AcceptedAt         *time.Time     `json:"accepted_at,omitempty"`
	PickedUpAt         *time.Time     `json:"picked_up_at,omitempty"`
	InTransitAt        *time.Time     `json:"in_transit_at,omitempty"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	CancelledAt        *time.Time     `json:"cancelled_at,omitempty"`
	CancelledBy        *uuid.UUID     `json:"cancelled_by,omitempty"`
	CancellationReason string         `json:"cancellation_reason,omitempty"`
	Fare               *float64       `json:"fare,omitempty"`
	Distance           *float64       `json:"distance,omitempty"`
	Duration           *int           `json:"duration,omitempty"`
	Rating             *int           `json:"rating,omitempty"`
	Feedback           string         `json:"feedback,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// CanAccept checks if the ride is open for a driver to claim
func (r *Ride) CanAccept() bool {
	return r.Status == StatusRequested
}

// CanCancel checks if the ride is still cancellable
func (r *Ride) CanCancel() bool {
	return !r.Status.IsTerminal()
}

// IsRated reports whether the ride already carries a rating
func (r *Ride) IsRated() bool {
	return r.Rating != nil
}
