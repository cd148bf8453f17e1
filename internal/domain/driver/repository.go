package driver

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by stores when a driver profile does not exist
var ErrNotFound = errors.New("driver profile not found")

// ErrAlreadyExists is returned when creating a profile that exists
var ErrAlreadyExists = errors.New("driver profile already exists")

// Repository is the store contract for the driver registry. Mutations are
// scoped to a single profile and implemented as atomic updates; the
// reconciliation operations invoked after ride completion or cancellation
// must tolerate at-least-once delivery.
type Repository interface {
	// Create persists a fresh profile (OFFLINE, zeroed stats); returns
	// ErrAlreadyExists if the user already has one.
	Create(ctx context.Context, p *Profile) error

	// GetByUserID retrieves a profile with its earnings ledger
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error)

	// SetOnline flips the driver online, recording the location and
	// lastOnlineAt
	SetOnline(ctx context.Context, userID uuid.UUID, loc Location, at time.Time) error

	// SetOffline flips the driver offline, recording lastOfflineAt and
	// atomically accruing hoursDelta into stats.onlineHours
	SetOffline(ctx context.Context, userID uuid.UUID, at time.Time, hoursDelta float64) error

	// UpdateLocation overwrites the live location
	UpdateLocation(ctx context.Context, userID uuid.UUID, loc Location) error

	// SetCurrentRide sets the weak current-ride reference
	SetCurrentRide(ctx context.Context, userID, rideID uuid.UUID) error

	// ClearCurrentRide clears the reference only while it still equals
	// rideID, so a stale retry cannot wipe a newer assignment
	ClearCurrentRide(ctx context.Context, userID, rideID uuid.UUID) error

	// AppendEarning appends a ledger entry and increments
	// stats.totalEarnings by its amount. Entries carrying a ride ID are
	// deduplicated per (driver, ride, type); the bool reports whether the
	// entry was actually inserted.
	AppendEarning(ctx context.Context, userID uuid.UUID, e Earning) (bool, error)

	// IncrementStats applies atomic increments to the aggregate
	IncrementStats(ctx context.Context, userID uuid.UUID, delta StatsDelta) error

	// SetStats overwrites the aggregate (administrative correction)
	SetStats(ctx context.Context, userID uuid.UUID, stats Stats) error

	// SetAverageRating overwrites the recomputed average
	SetAverageRating(ctx context.Context, userID uuid.UUID, avg float64) error

	// ListAll returns every profile, newest first
	ListAll(ctx context.Context) ([]*Profile, error)

	// ListOnline returns profiles currently online, newest first
	ListOnline(ctx context.Context) ([]*Profile, error)

	// Delete permanently removes the profile; ride history is untouched
	Delete(ctx context.Context, userID uuid.UUID) error
}
