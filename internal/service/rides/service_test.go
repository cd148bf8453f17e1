package rides

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityhop/ride-hailing/internal/domain/driver"
	"github.com/cityhop/ride-hailing/internal/domain/identity"
	"github.com/cityhop/ride-hailing/internal/domain/ride"
	"github.com/cityhop/ride-hailing/internal/storage/memory"
	apperrors "github.com/cityhop/ride-hailing/pkg/errors"
	"github.com/cityhop/ride-hailing/pkg/logger"
)

var (
	pickup      = ride.Location{Latitude: 12.9716, Longitude: 77.5946, Address: "MG Road"}
	destination = ride.Location{Latitude: 12.9352, Longitude: 77.6245, Address: "Koramangala"}
)

type fixture struct {
	svc     *Service
	rides   *memory.RideRepository
	drivers *memory.DriverRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)

	rideRepo := memory.NewRideRepository()
	driverRepo := memory.NewDriverRepository()
	return &fixture{
		svc:     NewService(rideRepo, driverRepo, nil, nil, log),
		rides:   rideRepo,
		drivers: driverRepo,
	}
}

func (f *fixture) onlineDriver(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	now := time.Now().UTC()
	err := f.drivers.Create(context.Background(), &driver.Profile{
		UserID:       id,
		OnlineStatus: driver.StatusOffline,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.NoError(t, err)
	err = f.drivers.SetOnline(context.Background(), id, driver.Location{Latitude: 12.97, Longitude: 77.59}, now)
	require.NoError(t, err)
	return id
}

func TestRequest_CreatesRequestedRide(t *testing.T) {
	f := newFixture(t)
	riderID := uuid.New()

	r, err := f.svc.Request(context.Background(), riderID, pickup, destination)
	require.NoError(t, err)

	assert.Equal(t, ride.StatusRequested, r.Status)
	assert.Equal(t, riderID, r.RiderID)
	assert.Nil(t, r.DriverID)
	require.Len(t, r.StatusHistory, 1)
	assert.Equal(t, ride.StatusRequested, r.StatusHistory[0].Status)
}

func TestRequest_RejectsInvalidCoordinates(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Request(context.Background(), uuid.New(), ride.Location{Latitude: 91, Longitude: 0}, destination)
	assert.True(t, apperrors.HasCode(err, "VALIDATION_ERROR"))

	_, err = f.svc.Request(context.Background(), uuid.New(), pickup, ride.Location{Latitude: 0, Longitude: -181})
	assert.True(t, apperrors.HasCode(err, "VALIDATION_ERROR"))
}

func TestRequest_OneActiveRidePerRider(t *testing.T) {
	f := newFixture(t)
	riderID := uuid.New()

	_, err := f.svc.Request(context.Background(), riderID, pickup, destination)
	require.NoError(t, err)

	_, err = f.svc.Request(context.Background(), riderID, pickup, destination)
	assert.ErrorIs(t, err, apperrors.ErrActiveRideExists)

	// a different rider is unaffected
	_, err = f.svc.Request(context.Background(), uuid.New(), pickup, destination)
	assert.NoError(t, err)
}

func TestAccept_AssignsDriver(t *testing.T) {
	f := newFixture(t)
	riderID := uuid.New()
	driverID := f.onlineDriver(t)

	r, err := f.svc.Request(context.Background(), riderID, pickup, destination)
	require.NoError(t, err)

	accepted, err := f.svc.Accept(context.Background(), r.ID, driverID)
	require.NoError(t, err)

	assert.Equal(t, ride.StatusAccepted, accepted.Status)
	require.NotNil(t, accepted.DriverID)
	assert.Equal(t, driverID, *accepted.DriverID)
	assert.NotNil(t, accepted.AcceptedAt)

	p, err := f.drivers.GetByUserID(context.Background(), driverID)
	require.NoError(t, err)
	require.NotNil(t, p.CurrentRideID)
	assert.Equal(t, r.ID, *p.CurrentRideID)
}

func TestAccept_RejectsOfflineDriver(t *testing.T) {
	f := newFixture(t)
	driverID := uuid.New()
	now := time.Now().UTC()
	require.NoError(t, f.drivers.Create(context.Background(), &driver.Profile{
		UserID:       driverID,
		OnlineStatus: driver.StatusOffline,
		CreatedAt:    now,
		UpdatedAt:    now,
	}))

	r, err := f.svc.Request(context.Background(), uuid.New(), pickup, destination)
	require.NoError(t, err)

	_, err = f.svc.Accept(context.Background(), r.ID, driverID)
	assert.ErrorIs(t, err, apperrors.ErrDriverOffline)
}

func TestAccept_RejectsBusyDriver(t *testing.T) {
	f := newFixture(t)
	driverID := f.onlineDriver(t)

	first, err := f.svc.Request(context.Background(), uuid.New(), pickup, destination)
	require.NoError(t, err)
	_, err = f.svc.Accept(context.Background(), first.ID, driverID)
	require.NoError(t, err)

	second, err := f.svc.Request(context.Background(), uuid.New(), pickup, destination)
	require.NoError(t, err)

	_, err = f.svc.Accept(context.Background(), second.ID, driverID)
	assert.ErrorIs(t, err, apperrors.ErrDriverBusy)
}

func TestAccept_StoreRejectsSecondActiveRide(t *testing.T) {
	f := newFixture(t)
	driverID := f.onlineDriver(t)

	first, err := f.svc.Request(context.Background(), uuid.New(), pickup, destination)
	require.NoError(t, err)
	_, err = f.svc.Accept(context.Background(), first.ID, driverID)
	require.NoError(t, err)

	second, err := f.svc.Request(context.Background(), uuid.New(), pickup, destination)
	require.NoError(t, err)

	// the store re-checks the driver under the same lock as the status
	// write, so the guard holds even when callers race past the service
	// pre-check
	won, err := f.rides.Accept(context.Background(), second.ID, driverID, time.Now().UTC())
	assert.False(t, won)
	assert.ErrorIs(t, err, ride.ErrDriverActive)

	unchanged, err := f.rides.GetByID(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusRequested, unchanged.Status)
	assert.Nil(t, unchanged.DriverID)
}

func TestAccept_SecondDriverLoses(t *testing.T) {
	f := newFixture(t)
	first := f.onlineDriver(t)
	second := f.onlineDriver(t)

	r, err := f.svc.Request(context.Background(), uuid.New(), pickup, destination)
	require.NoError(t, err)

	_, err = f.svc.Accept(context.Background(), r.ID, first)
	require.NoError(t, err)

	_, err = f.svc.Accept(context.Background(), r.ID, second)
	assert.True(t, apperrors.HasCode(err, "CONFLICT"), "loser should observe a conflict, got %v", err)

	final, err := f.rides.GetByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, first, *final.DriverID)
}

func TestAdvance_FullLifecycle(t *testing.T) {
	f := newFixture(t)
	riderID := uuid.New()
	driverID := f.onlineDriver(t)

	r, err := f.svc.Request(context.Background(), riderID, pickup, destination)
	require.NoError(t, err)
	_, err = f.svc.Accept(context.Background(), r.ID, driverID)
	require.NoError(t, err)

	picked, err := f.svc.Advance(context.Background(), r.ID, driverID, ride.StatusPickedUp, nil)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusPickedUp, picked.Status)
	assert.NotNil(t, picked.PickedUpAt)

	transit, err := f.svc.Advance(context.Background(), r.ID, driverID, ride.StatusInTransit, nil)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusInTransit, transit.Status)

	fare := 250.0
	distance := 8.4
	duration := 32
	done, err := f.svc.Advance(context.Background(), r.ID, driverID, ride.StatusCompleted, &CompletionDetails{
		Fare: &fare, Distance: &distance, Duration: &duration,
	})
	require.NoError(t, err)
	assert.Equal(t, ride.StatusCompleted, done.Status)
	require.NotNil(t, done.Fare)
	assert.Equal(t, 250.0, *done.Fare)
	assert.Equal(t, 8.4, *done.Distance)
	assert.Equal(t, 32, *done.Duration)

	// history records every hop in commit order
	statuses := make([]ride.Status, 0, len(done.StatusHistory))
	for _, h := range done.StatusHistory {
		statuses = append(statuses, h.Status)
	}
	assert.Equal(t, []ride.Status{
		ride.StatusRequested, ride.StatusAccepted, ride.StatusPickedUp,
		ride.StatusInTransit, ride.StatusCompleted,
	}, statuses)

	// completion reconciles the driver registry
	p, err := f.drivers.GetByUserID(context.Background(), driverID)
	require.NoError(t, err)
	assert.Nil(t, p.CurrentRideID)
	assert.Equal(t, 1, p.Stats.TotalRides)
	assert.Equal(t, 1, p.Stats.CompletedRides)
	assert.Equal(t, 250.0, p.Stats.TotalEarnings)
	require.Len(t, p.Earnings, 1)
	assert.Equal(t, driver.EarningRideCompletion, p.Earnings[0].Type)
	assert.Equal(t, 250.0, p.Earnings[0].Amount)
}

func TestAdvance_RejectsUnassignedDriver(t *testing.T) {
	f := newFixture(t)
	driverID := f.onlineDriver(t)
	other := f.onlineDriver(t)

	r, err := f.svc.Request(context.Background(), uuid.New(), pickup, destination)
	require.NoError(t, err)
	_, err = f.svc.Accept(context.Background(), r.ID, driverID)
	require.NoError(t, err)

	_, err = f.svc.Advance(context.Background(), r.ID, other, ride.StatusPickedUp, nil)
	assert.True(t, apperrors.HasCode(err, "FORBIDDEN"))
}

func TestAdvance_RejectsSkippedMilestone(t *testing.T) {
	f := newFixture(t)
	driverID := f.onlineDriver(t)

	r, err := f.svc.Request(context.Background(), uuid.New(), pickup, destination)
	require.NoError(t, err)
	_, err = f.svc.Accept(context.Background(), r.ID, driverID)
	require.NoError(t, err)

	_, err = f.svc.Advance(context.Background(), r.ID, driverID, ride.StatusCompleted, nil)
	assert.True(t, apperrors.HasCode(err, "INVALID_TRANSITION"))

	_, err = f.svc.Advance(context.Background(), r.ID, driverID, ride.Status("bogus"), nil)
	assert.True(t, apperrors.HasCode(err, "VALIDATION_ERROR"))
}

func TestCancel_ByRiderBeforeAccept(t *testing.T) {
	f := newFixture(t)
	riderID := uuid.New()

	r, err := f.svc.Request(context.Background(), riderID, pickup, destination)
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(context.Background(), r.ID,
		identity.Identity{UserID: riderID, Role: identity.RoleRider}, "changed my mind")
	require.NoError(t, err)

	assert.Equal(t, ride.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, riderID, *cancelled.CancelledBy)
	assert.Equal(t, "changed my mind", cancelled.CancellationReason)

	// rider is free to request again
	_, err = f.svc.Request(context.Background(), riderID, pickup, destination)
	assert.NoError(t, err)
}

func TestCancel_WithDriverCountsAgainstDriver(t *testing.T) {
	f := newFixture(t)
	riderID := uuid.New()
	driverID := f.onlineDriver(t)

	r, err := f.svc.Request(context.Background(), riderID, pickup, destination)
	require.NoError(t, err)
	_, err = f.svc.Accept(context.Background(), r.ID, driverID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), r.ID,
		identity.Identity{UserID: driverID, Role: identity.RoleDriver}, "vehicle breakdown")
	require.NoError(t, err)

	p, err := f.drivers.GetByUserID(context.Background(), driverID)
	require.NoError(t, err)
	assert.Nil(t, p.CurrentRideID)
	assert.Equal(t, 1, p.Stats.CancelledRides)
	assert.Equal(t, 1, p.Stats.TotalRides)
	assert.Equal(t, 0, p.Stats.CompletedRides)
	assert.Empty(t, p.Earnings)
}

func TestCancel_RejectsWrongOwner(t *testing.T) {
	f := newFixture(t)
	riderID := uuid.New()

	r, err := f.svc.Request(context.Background(), riderID, pickup, destination)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), r.ID,
		identity.Identity{UserID: uuid.New(), Role: identity.RoleRider}, "")
	assert.True(t, apperrors.HasCode(err, "FORBIDDEN"))

	// admin may cancel on behalf of either party
	_, err = f.svc.Cancel(context.Background(), r.ID,
		identity.Identity{UserID: uuid.New(), Role: identity.RoleAdmin}, "support request")
	assert.NoError(t, err)
}

func TestCancel_TerminalRideRejected(t *testing.T) {
	f := newFixture(t)
	riderID := uuid.New()

	r, err := f.svc.Request(context.Background(), riderID, pickup, destination)
	require.NoError(t, err)

	actor := identity.Identity{UserID: riderID, Role: identity.RoleRider}
	_, err = f.svc.Cancel(context.Background(), r.ID, actor, "")
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), r.ID, actor, "")
	assert.True(t, apperrors.HasCode(err, "INVALID_TRANSITION"))
}

func TestRate_CompletedRideOnce(t *testing.T) {
	f := newFixture(t)
	riderID := uuid.New()
	driverID := f.onlineDriver(t)
	r := completeRide(t, f, riderID, driverID, 180.0)

	rated, err := f.svc.Rate(context.Background(), r.ID, riderID, 5, "great drive")
	require.NoError(t, err)
	require.NotNil(t, rated.Rating)
	assert.Equal(t, 5, *rated.Rating)
	assert.Equal(t, "great drive", rated.Feedback)

	p, err := f.drivers.GetByUserID(context.Background(), driverID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, p.Stats.AverageRating)

	_, err = f.svc.Rate(context.Background(), r.ID, riderID, 3, "")
	assert.ErrorIs(t, err, apperrors.ErrRideAlreadyRated)
}

func TestRate_Validation(t *testing.T) {
	f := newFixture(t)
	riderID := uuid.New()
	driverID := f.onlineDriver(t)
	r := completeRide(t, f, riderID, driverID, 100.0)

	_, err := f.svc.Rate(context.Background(), r.ID, riderID, 0, "")
	assert.True(t, apperrors.HasCode(err, "VALIDATION_ERROR"))

	_, err = f.svc.Rate(context.Background(), r.ID, riderID, 6, "")
	assert.True(t, apperrors.HasCode(err, "VALIDATION_ERROR"))

	_, err = f.svc.Rate(context.Background(), r.ID, uuid.New(), 4, "")
	assert.ErrorIs(t, err, apperrors.ErrNotYourRide)
}

func TestRate_RejectsNonCompletedRide(t *testing.T) {
	f := newFixture(t)
	riderID := uuid.New()

	r, err := f.svc.Request(context.Background(), riderID, pickup, destination)
	require.NoError(t, err)

	_, err = f.svc.Rate(context.Background(), r.ID, riderID, 4, "")
	assert.True(t, apperrors.HasCode(err, "INVALID_TRANSITION"))
	// the failure names the attempted current/target pair
	assert.Contains(t, err.Error(), string(ride.StatusRequested))
	assert.Contains(t, err.Error(), string(ride.StatusCompleted))
}

func TestRate_AverageAcrossRides(t *testing.T) {
	f := newFixture(t)
	driverID := f.onlineDriver(t)

	riderA := uuid.New()
	ra := completeRide(t, f, riderA, driverID, 100.0)
	_, err := f.svc.Rate(context.Background(), ra.ID, riderA, 4, "")
	require.NoError(t, err)

	riderB := uuid.New()
	rb := completeRide(t, f, riderB, driverID, 150.0)
	_, err = f.svc.Rate(context.Background(), rb.ID, riderB, 5, "")
	require.NoError(t, err)

	p, err := f.drivers.GetByUserID(context.Background(), driverID)
	require.NoError(t, err)
	assert.Equal(t, 4.5, p.Stats.AverageRating)
}

func TestGet_OwnershipChecks(t *testing.T) {
	f := newFixture(t)
	riderID := uuid.New()

	r, err := f.svc.Request(context.Background(), riderID, pickup, destination)
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), r.ID, identity.Identity{UserID: riderID, Role: identity.RoleRider})
	assert.NoError(t, err)

	_, err = f.svc.Get(context.Background(), r.ID, identity.Identity{UserID: uuid.New(), Role: identity.RoleRider})
	assert.True(t, apperrors.HasCode(err, "FORBIDDEN"))

	_, err = f.svc.Get(context.Background(), r.ID, identity.Identity{UserID: uuid.New(), Role: identity.RoleAdmin})
	assert.NoError(t, err)

	_, err = f.svc.Get(context.Background(), uuid.New(), identity.Identity{UserID: riderID, Role: identity.RoleRider})
	assert.ErrorIs(t, err, apperrors.ErrRideNotFound)
}

func TestAvailable_ListsOpenRequestsOldestFirst(t *testing.T) {
	f := newFixture(t)
	driverID := f.onlineDriver(t)

	first, err := f.svc.Request(context.Background(), uuid.New(), pickup, destination)
	require.NoError(t, err)
	second, err := f.svc.Request(context.Background(), uuid.New(), pickup, destination)
	require.NoError(t, err)
	taken, err := f.svc.Request(context.Background(), uuid.New(), pickup, destination)
	require.NoError(t, err)
	_, err = f.svc.Accept(context.Background(), taken.ID, driverID)
	require.NoError(t, err)

	open, err := f.svc.Available(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, first.ID, open[0].ID)
	assert.Equal(t, second.ID, open[1].ID)
}

// completeRide drives a ride through the full happy path
func completeRide(t *testing.T, f *fixture, riderID, driverID uuid.UUID, fare float64) *ride.Ride {
	t.Helper()
	ctx := context.Background()

	r, err := f.svc.Request(ctx, riderID, pickup, destination)
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, r.ID, driverID)
	require.NoError(t, err)
	_, err = f.svc.Advance(ctx, r.ID, driverID, ride.StatusPickedUp, nil)
	require.NoError(t, err)
	_, err = f.svc.Advance(ctx, r.ID, driverID, ride.StatusInTransit, nil)
	require.NoError(t, err)
	done, err := f.svc.Advance(ctx, r.ID, driverID, ride.StatusCompleted, &CompletionDetails{Fare: &fare})
	require.NoError(t, err)
	return done
}
