package ride

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by stores when a ride does not exist
var ErrNotFound = errors.New("ride not found")

// ErrRiderActive is returned by Create when the insert would give the
// rider a second active ride; the store enforces this atomically
var ErrRiderActive = errors.New("rider already has an active ride")

// ErrDriverActive is returned by Accept when the write would give the
// driver a second active ride; the store enforces this atomically
var ErrDriverActive = errors.New("driver already has an active ride")

// TransitionUpdate carries everything a single status transition writes.
// The matching milestone timestamp is stamped from At; cancellation and
// completion fields are only honoured for their respective target status.
type TransitionUpdate struct {
	To       Status
	At       time.Time
	ActorID  uuid.UUID
	Fare     *float64 // completion only
	Distance *float64 // completion only
	Duration *int     // completion only

	CancelledBy *uuid.UUID // cancellation only
	Reason      string     // cancellation only
}

// Repository is the store contract for the ride ledger. Every mutating
// operation that checks current state must do so as a single atomic
// conditional update: the bool result reports whether this caller won the
// write, and a false result with nil error means the ride was not in the
// expected state (a lost race or a stale read).
type Repository interface {
	// Create persists a new ride in REQUESTED together with its first
	// status history entry.
	Create(ctx context.Context, r *Ride) error

	// GetByID retrieves a ride without its history
	GetByID(ctx context.Context, id uuid.UUID) (*Ride, error)

	// History returns the append-only status history in commit order
	History(ctx context.Context, id uuid.UUID) ([]StatusChange, error)

	// Accept atomically claims a REQUESTED ride for a driver: sets the
	// driver reference, status ACCEPTED and acceptedAt, and appends the
	// history entry. Exactly one of N concurrent callers succeeds, and
	// ErrDriverActive is returned when the driver already holds another
	// ride in an active status.
	Accept(ctx context.Context, rideID, driverID uuid.UUID, at time.Time) (bool, error)

	// Transition atomically moves a ride from the expected current status
	// to upd.To, stamping the milestone timestamp and appending history.
	Transition(ctx context.Context, rideID uuid.UUID, from Status, upd TransitionUpdate) (bool, error)

	// SetRating records a rating exactly once; false when already rated
	SetRating(ctx context.Context, rideID uuid.UUID, rating int, feedback string) (bool, error)

	// GetActiveByRider returns the rider's ride in an active status, or
	// ErrNotFound when none exists
	GetActiveByRider(ctx context.Context, riderID uuid.UUID) (*Ride, error)

	// GetActiveByDriver returns the driver's ride in ACCEPTED, PICKED_UP
	// or IN_TRANSIT, or ErrNotFound when none exists
	GetActiveByDriver(ctx context.Context, driverID uuid.UUID) (*Ride, error)

	// ListByRider returns the rider's rides, newest first
	ListByRider(ctx context.Context, riderID uuid.UUID) ([]*Ride, error)

	// ListByDriver returns the driver's rides, newest first
	ListByDriver(ctx context.Context, driverID uuid.UUID) ([]*Ride, error)

	// ListAll returns every ride, newest first (admin projection)
	ListAll(ctx context.Context) ([]*Ride, error)

	// ListRequested returns unassigned REQUESTED rides, oldest request
	// first so the longest-waiting rider is served before newer ones
	ListRequested(ctx context.Context, limit int) ([]*Ride, error)

	// CompletedRatings returns the ratings of the driver's rated COMPLETED
	// rides, for average recomputation
	CompletedRatings(ctx context.Context, driverID uuid.UUID) ([]int, error)

	// CompletedByDriver returns the driver's COMPLETED rides, most recent
	// completion first
	CompletedByDriver(ctx context.Context, driverID uuid.UUID) ([]*Ride, error)
}
