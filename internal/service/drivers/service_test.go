package drivers

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

var testLocation = driver.Location{Latitude: 12.9716, Longitude: 77.5946, Address: "MG Road"}

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
		svc:     NewService(driverRepo, rideRepo, nil, log),
		rides:   rideRepo,
		drivers: driverRepo,
	}
}

func (f *fixture) driverActor(t *testing.T) identity.Identity {
	t.Helper()
	actor := identity.Identity{UserID: uuid.New(), Role: identity.RoleDriver}
	_, err := f.svc.CreateProfile(context.Background(), actor)
	require.NoError(t, err)
	return actor
}

func TestCreateProfile(t *testing.T) {
	f := newFixture(t)
	actor := identity.Identity{UserID: uuid.New(), Role: identity.RoleDriver}

	p, err := f.svc.CreateProfile(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, actor.UserID, p.UserID)
	assert.Equal(t, driver.StatusOffline, p.OnlineStatus)
	assert.Zero(t, p.Stats.TotalRides)
	assert.Empty(t, p.Earnings)
}

func TestCreateProfile_Duplicate(t *testing.T) {
	f := newFixture(t)
	actor := f.driverActor(t)

	_, err := f.svc.CreateProfile(context.Background(), actor)
	assert.ErrorIs(t, err, apperrors.ErrProfileExists)
}

func TestCreateProfile_RequiresDriverRole(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateProfile(context.Background(),
		identity.Identity{UserID: uuid.New(), Role: identity.RoleRider})
	assert.True(t, apperrors.HasCode(err, "CONFLICT"))
}

func TestSetOnlineStatus_OnlineRequiresLocation(t *testing.T) {
	f := newFixture(t)
	actor := f.driverActor(t)

	_, err := f.svc.SetOnlineStatus(context.Background(), actor.UserID, driver.StatusOnline, nil)
	assert.True(t, apperrors.HasCode(err, "VALIDATION_ERROR"))

	p, err := f.svc.SetOnlineStatus(context.Background(), actor.UserID, driver.StatusOnline, &testLocation)
	require.NoError(t, err)
	assert.True(t, p.IsOnline())
	require.NotNil(t, p.CurrentLocation)
	assert.Equal(t, testLocation.Latitude, p.CurrentLocation.Latitude)
	assert.NotNil(t, p.LastOnlineAt)
}

func TestSetOnlineStatus_RejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	actor := f.driverActor(t)

	_, err := f.svc.SetOnlineStatus(context.Background(), actor.UserID, driver.OnlineStatus("busy"), nil)
	assert.True(t, apperrors.HasCode(err, "VALIDATION_ERROR"))
}

func TestSetOnlineStatus_OfflineAccruesHours(t *testing.T) {
	f := newFixture(t)
	actor := f.driverActor(t)
	ctx := context.Background()

	// simulate a session that started two hours ago
	start := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, f.drivers.SetOnline(ctx, actor.UserID, testLocation, start))

	p, err := f.svc.SetOnlineStatus(ctx, actor.UserID, driver.StatusOffline, nil)
	require.NoError(t, err)
	assert.False(t, p.IsOnline())
	assert.InDelta(t, 2.0, p.Stats.OnlineHours, 0.05)
	assert.NotNil(t, p.LastOfflineAt)
}

func TestSetOnlineStatus_OfflineWhileOfflineAccruesNothing(t *testing.T) {
	f := newFixture(t)
	actor := f.driverActor(t)

	p, err := f.svc.SetOnlineStatus(context.Background(), actor.UserID, driver.StatusOffline, nil)
	require.NoError(t, err)
	assert.Zero(t, p.Stats.OnlineHours)
}

func TestUpdateLocation_RequiresOnline(t *testing.T) {
	f := newFixture(t)
	actor := f.driverActor(t)
	ctx := context.Background()

	_, err := f.svc.UpdateLocation(ctx, actor.UserID, testLocation)
	assert.ErrorIs(t, err, apperrors.ErrDriverOffline)

	_, err = f.svc.SetOnlineStatus(ctx, actor.UserID, driver.StatusOnline, &testLocation)
	require.NoError(t, err)

	moved := driver.Location{Latitude: 12.98, Longitude: 77.60}
	p, err := f.svc.UpdateLocation(ctx, actor.UserID, moved)
	require.NoError(t, err)
	assert.Equal(t, 12.98, p.CurrentLocation.Latitude)
}

func TestRecordEarning(t *testing.T) {
	f := newFixture(t)
	actor := f.driverActor(t)
	ctx := context.Background()

	p, err := f.svc.RecordEarning(ctx, actor.UserID, driver.EarningBonus, 50.0, "Weekend bonus", nil)
	require.NoError(t, err)
	require.Len(t, p.Earnings, 1)
	assert.Equal(t, 50.0, p.Stats.TotalEarnings)

	_, err = f.svc.RecordEarning(ctx, actor.UserID, driver.EarningType("tip"), 10.0, "", nil)
	assert.True(t, apperrors.HasCode(err, "VALIDATION_ERROR"))

	_, err = f.svc.RecordEarning(ctx, actor.UserID, driver.EarningBonus, -5.0, "", nil)
	assert.True(t, apperrors.HasCode(err, "VALIDATION_ERROR"))
}

func TestRecordEarning_DedupedPerRide(t *testing.T) {
	f := newFixture(t)
	actor := f.driverActor(t)
	ctx := context.Background()
	rideID := uuid.New()

	_, err := f.svc.RecordEarning(ctx, actor.UserID, driver.EarningRideCompletion, 200.0, "Ride completion payment", &rideID)
	require.NoError(t, err)

	_, err = f.svc.RecordEarning(ctx, actor.UserID, driver.EarningRideCompletion, 200.0, "Ride completion payment", &rideID)
	assert.True(t, apperrors.HasCode(err, "CONFLICT"))

	p, err := f.svc.Profile(ctx, actor.UserID)
	require.NoError(t, err)
	assert.Len(t, p.Earnings, 1)
	assert.Equal(t, 200.0, p.Stats.TotalEarnings)
}

func TestEarnings_Periods(t *testing.T) {
	f := newFixture(t)
	actor := f.driverActor(t)
	ctx := context.Background()

	// anchor on the day boundary the period filter uses, so the test
	// holds at any time of day
	now := time.Now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	seed := []driver.Earning{
		{Type: driver.EarningRideCompletion, Amount: 100, Date: startOfDay},
		{Type: driver.EarningRideCompletion, Amount: 80, Date: startOfDay.AddDate(0, 0, -3)},
		{Type: driver.EarningBonus, Amount: 40, Date: now.AddDate(0, -2, 0)},
	}
	for _, e := range seed {
		_, err := f.drivers.AppendEarning(ctx, actor.UserID, e)
		require.NoError(t, err)
	}

	today, err := f.svc.Earnings(ctx, actor.UserID, "today")
	require.NoError(t, err)
	assert.Equal(t, 100.0, today.TotalEarnings)

	week, err := f.svc.Earnings(ctx, actor.UserID, "week")
	require.NoError(t, err)
	assert.Equal(t, 180.0, week.TotalEarnings)

	all, err := f.svc.Earnings(ctx, actor.UserID, "")
	require.NoError(t, err)
	assert.Equal(t, "all", all.Period)
	assert.Equal(t, 220.0, all.TotalEarnings)
	assert.Len(t, all.Earnings, 3)

	_, err = f.svc.Earnings(ctx, actor.UserID, "year")
	assert.True(t, apperrors.HasCode(err, "VALIDATION_ERROR"))
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	actor := f.driverActor(t)
	ctx := context.Background()

	// one open request visible to drivers
	require.NoError(t, f.rides.Create(ctx, &ride.Ride{
		ID:          uuid.New(),
		RiderID:     uuid.New(),
		Status:      ride.StatusRequested,
		RequestedAt: time.Now().UTC(),
		CreatedAt:   time.Now().UTC(),
	}))

	d, err := f.svc.Dashboard(ctx, actor.UserID)
	require.NoError(t, err)
	assert.Nil(t, d.ActiveRide)
	assert.Len(t, d.PendingRides, 1)
	assert.Zero(t, d.TodayEarnings)
}

func TestStats_BreakdownAndMonthly(t *testing.T) {
	f := newFixture(t)
	actor := f.driverActor(t)
	ctx := context.Background()

	_, err := f.svc.RecordEarning(ctx, actor.UserID, driver.EarningBonus, 75.0, "Referral bonus", nil)
	require.NoError(t, err)

	// anchor on the month boundary so the monthly count holds on the 1st
	now := time.Now().UTC()
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	completedAt := startOfMonth
	driverID := actor.UserID
	require.NoError(t, f.rides.Create(ctx, &ride.Ride{
		ID:          uuid.New(),
		RiderID:     uuid.New(),
		DriverID:    &driverID,
		Status:      ride.StatusCompleted,
		RequestedAt: startOfMonth.Add(-time.Hour),
		CompletedAt: &completedAt,
		CreatedAt:   startOfMonth.Add(-time.Hour),
	}))

	stats, err := f.svc.Stats(ctx, actor.UserID)
	require.NoError(t, err)
	assert.Equal(t, 75.0, stats.Breakdown["bonuses"])
	assert.Zero(t, stats.Breakdown["penalties"])
	assert.Equal(t, 1, stats.MonthlyRides)
	assert.Len(t, stats.RecentRides, 1)
}

func TestAdjustStats(t *testing.T) {
	f := newFixture(t)
	actor := f.driverActor(t)
	ctx := context.Background()

	total := 10
	completed := 7
	cancelled := 2
	p, err := f.svc.AdjustStats(ctx, actor.UserID, StatsUpdate{
		TotalRides:     &total,
		CompletedRides: &completed,
		CancelledRides: &cancelled,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, p.Stats.TotalRides)
	assert.Equal(t, 7, p.Stats.CompletedRides)

	// partial update keeps untouched fields
	rating := 4.8
	p, err = f.svc.AdjustStats(ctx, actor.UserID, StatsUpdate{AverageRating: &rating})
	require.NoError(t, err)
	assert.Equal(t, 4.8, p.Stats.AverageRating)
	assert.Equal(t, 10, p.Stats.TotalRides)

	bad := 20
	_, err = f.svc.AdjustStats(ctx, actor.UserID, StatsUpdate{CompletedRides: &bad})
	assert.True(t, apperrors.HasCode(err, "VALIDATION_ERROR"))
}

func TestRecomputeAverageRating(t *testing.T) {
	f := newFixture(t)
	actor := f.driverActor(t)
	ctx := context.Background()
	driverID := actor.UserID

	ratings := []int{5, 4, 4}
	for _, rating := range ratings {
		v := rating
		now := time.Now().UTC()
		require.NoError(t, f.rides.Create(ctx, &ride.Ride{
			ID:          uuid.New(),
			RiderID:     uuid.New(),
			DriverID:    &driverID,
			Status:      ride.StatusCompleted,
			Rating:      &v,
			RequestedAt: now,
			CreatedAt:   now,
		}))
	}

	p, err := f.svc.RecomputeAverageRating(ctx, driverID)
	require.NoError(t, err)
	assert.Equal(t, 4.33, p.Stats.AverageRating)
}

func TestRecomputeAverageRating_NoRatedRides(t *testing.T) {
	f := newFixture(t)
	actor := f.driverActor(t)

	p, err := f.svc.RecomputeAverageRating(context.Background(), actor.UserID)
	require.NoError(t, err)
	assert.Zero(t, p.Stats.AverageRating)
}

func TestListAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.driverActor(t)
	b := f.driverActor(t)
	_, err := f.svc.SetOnlineStatus(ctx, a.UserID, driver.StatusOnline, &testLocation)
	require.NoError(t, err)

	all, err := f.svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	online, err := f.svc.ListOnline(ctx)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, a.UserID, online[0].UserID)

	require.NoError(t, f.svc.Delete(ctx, b.UserID))
	assert.ErrorIs(t, f.svc.Delete(ctx, b.UserID), apperrors.ErrDriverNotFound)

	_, err = f.svc.Profile(ctx, b.UserID)
	assert.ErrorIs(t, err, apperrors.ErrDriverNotFound)
}

func TestProfile_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Profile(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrDriverNotFound)
}
