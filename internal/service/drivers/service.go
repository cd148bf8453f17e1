// Package drivers implements the driver registry: profile lifecycle,
// availability, live location, earnings ledger and the stats aggregate.
package drivers

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/cityhop/ride-hailing/internal/domain/driver"
	"github.com/cityhop/ride-hailing/internal/domain/identity"
	"github.com/cityhop/ride-hailing/internal/domain/ride"
	apperrors "github.com/cityhop/ride-hailing/pkg/errors"
	"github.com/cityhop/ride-hailing/pkg/logger"
)

// locationsKey is the redis geo index of live driver positions
const locationsKey = "drivers:locations"

// Dashboard is the driver's home-screen projection
type Dashboard struct {
	Driver          *driver.Profile `json:"driver"`
	ActiveRide      *ride.Ride      `json:"active_ride,omitempty"`
	PendingRides    []*ride.Ride    `json:"pending_rides"`
	TodayEarnings   float64         `json:"today_earnings"`
	WeeklyEarnings  float64         `json:"weekly_earnings"`
	MonthlyEarnings float64         `json:"monthly_earnings"`
}

// EarningsReport is the filtered earnings ledger projection
type EarningsReport struct {
	Earnings      []driver.Earning `json:"earnings"`
	TotalEarnings float64          `json:"total_earnings"`
	Period        string           `json:"period"`
}

// StatsReport augments the stored aggregate with derived figures
type StatsReport struct {
	BasicStats      driver.Stats       `json:"basic_stats"`
	MonthlyRides    int                `json:"monthly_rides"`
	MonthlyEarnings float64            `json:"monthly_earnings"`
	RecentRides     []*ride.Ride       `json:"recent_rides"`
	Breakdown       map[string]float64 `json:"total_earnings_breakdown"`
}

// StatsUpdate is a partial administrative overwrite of the aggregate
type StatsUpdate struct {
	TotalRides     *int     `json:"total_rides,omitempty"`
	CompletedRides *int     `json:"completed_rides,omitempty"`
	CancelledRides *int     `json:"cancelled_rides,omitempty"`
	TotalEarnings  *float64 `json:"total_earnings,omitempty"`
	AverageRating  *float64 `json:"average_rating,omitempty"`
	OnlineHours    *float64 `json:"online_hours,omitempty"`
}

// Service owns driver profile mutation
type Service struct {
	drivers driver.Repository
	rides   ride.Repository
	cache   *redis.Client
	logger  *logger.Logger
}

// NewService creates the driver registry service. cache may be nil.
func NewService(drivers driver.Repository, rides ride.Repository, cache *redis.Client, log *logger.Logger) *Service {
	return &Service{
		drivers: drivers,
		rides:   rides,
		cache:   cache,
		logger:  log,
	}
}

// CreateProfile registers a driver profile for a driver-role user,
// OFFLINE with zeroed stats
func (s *Service) CreateProfile(ctx context.Context, actor identity.Identity) (*driver.Profile, error) {
	if actor.Role != identity.RoleDriver {
		return nil, apperrors.Conflict("User must have driver role", nil)
	}

	now := time.Now().UTC()
	p := &driver.Profile{
		UserID:       actor.UserID,
		OnlineStatus: driver.StatusOffline,
		Earnings:     []driver.Earning{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.drivers.Create(ctx, p); err != nil {
		if errors.Is(err, driver.ErrAlreadyExists) {
			return nil, apperrors.ErrProfileExists
		}
		return nil, apperrors.Internal("Failed to create driver profile", err)
	}

	s.logger.Info("Driver profile created", logger.String("user_id", actor.UserID.String()))
	return p, nil
}

// Profile returns the driver's own profile with its earnings ledger
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*driver.Profile, error) {
	return s.getProfile(ctx, userID)
}

// SetOnlineStatus flips availability. Going online requires a location;
// going offline accrues the elapsed online time into stats.onlineHours.
// Hours accrue only at the offline flip, never continuously.
func (s *Service) SetOnlineStatus(ctx context.Context, userID uuid.UUID, status driver.OnlineStatus, loc *driver.Location) (*driver.Profile, error) {
	if !status.IsValid() {
		return nil, apperrors.ValidationError("Online status must be online or offline", nil)
	}

	p, err := s.getProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if status == driver.StatusOnline {
		if loc == nil {
			return nil, apperrors.ValidationError("Location is required to go online", nil)
		}
		if err := s.drivers.SetOnline(ctx, userID, *loc, now); err != nil {
			return nil, apperrors.Internal("Failed to set driver online", err)
		}
		s.indexLocation(ctx, userID, *loc)
	} else {
		var hours float64
		if p.OnlineStatus == driver.StatusOnline && p.LastOnlineAt != nil {
			hours = now.Sub(*p.LastOnlineAt).Hours()
		}
		if err := s.drivers.SetOffline(ctx, userID, now, hours); err != nil {
			return nil, apperrors.Internal("Failed to set driver offline", err)
		}
		if s.cache != nil {
			s.cache.ZRem(ctx, locationsKey, userID.String())
		}
	}

	s.logger.Info("Driver availability changed",
		logger.String("user_id", userID.String()),
		logger.String("status", string(status)),
	)
	return s.getProfile(ctx, userID)
}

// UpdateLocation overwrites the live position; only meaningful while the
// driver is serving, so offline drivers are rejected
func (s *Service) UpdateLocation(ctx context.Context, userID uuid.UUID, loc driver.Location) (*driver.Profile, error) {
	p, err := s.getProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !p.IsOnline() {
		return nil, apperrors.ErrDriverOffline
	}

	if err := s.drivers.UpdateLocation(ctx, userID, loc); err != nil {
		return nil, apperrors.Internal("Failed to update location", err)
	}
	s.indexLocation(ctx, userID, loc)
	return s.getProfile(ctx, userID)
}

// RecordEarning appends a ledger entry and bumps totalEarnings
func (s *Service) RecordEarning(ctx context.Context, userID uuid.UUID, earningType driver.EarningType, amount float64, description string, rideID *uuid.UUID) (*driver.Profile, error) {
	if !earningType.IsValid() {
		return nil, apperrors.ValidationError("Unknown earning type", nil)
	}
	if amount < 0 {
		return nil, apperrors.ValidationError("Earning amount must not be negative", nil)
	}

	inserted, err := s.drivers.AppendEarning(ctx, userID, driver.Earning{
		RideID:      rideID,
		Type:        earningType,
		Amount:      amount,
		Description: description,
		Date:        time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, driver.ErrNotFound) {
			return nil, apperrors.ErrDriverNotFound
		}
		return nil, apperrors.Internal("Failed to record earning", err)
	}
	if !inserted {
		return nil, apperrors.Conflict("Earning already recorded for this ride", nil)
	}
	return s.getProfile(ctx, userID)
}

// Dashboard assembles the driver's home-screen projection
func (s *Service) Dashboard(ctx context.Context, userID uuid.UUID) (*Dashboard, error) {
	p, err := s.getProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{Driver: p, PendingRides: []*ride.Ride{}}

	if active, err := s.rides.GetActiveByDriver(ctx, userID); err == nil {
		d.ActiveRide = active
	} else if !errors.Is(err, ride.ErrNotFound) {
		return nil, apperrors.Internal("Failed to load active ride", err)
	}

	pending, err := s.rides.ListRequested(ctx, 10)
	if err != nil {
		return nil, apperrors.Internal("Failed to load pending rides", err)
	}
	if pending != nil {
		d.PendingRides = pending
	}

	now := time.Now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	d.TodayEarnings = p.EarningsSince(startOfDay)
	d.WeeklyEarnings = p.EarningsSince(now.AddDate(0, 0, -7))
	d.MonthlyEarnings = p.EarningsSince(time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC))
	return d, nil
}

// Earnings returns the ledger filtered by period: today, week, month or all
func (s *Service) Earnings(ctx context.Context, userID uuid.UUID, period string) (*EarningsReport, error) {
	p, err := s.getProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var cutoff time.Time
	switch period {
	case "today":
		cutoff = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case "week":
		cutoff = now.AddDate(0, 0, -7)
	case "month":
		cutoff = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	case "", "all":
		period = "all"
	default:
		return nil, apperrors.ValidationError("Period must be today, week, month or all", nil)
	}

	report := &EarningsReport{Earnings: []driver.Earning{}, Period: period}
	for _, e := range p.Earnings {
		if !e.Date.Before(cutoff) {
			report.Earnings = append(report.Earnings, e)
			report.TotalEarnings += e.Amount
		}
	}
	return report, nil
}

// Stats returns the stored aggregate augmented with monthly figures and
// a per-type earnings breakdown
func (s *Service) Stats(ctx context.Context, userID uuid.UUID) (*StatsReport, error) {
	p, err := s.getProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	completed, err := s.rides.CompletedByDriver(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load completed rides", err)
	}

	now := time.Now().UTC()
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthlyRides := 0
	for _, r := range completed {
		if r.CompletedAt != nil && !r.CompletedAt.Before(startOfMonth) {
			monthlyRides++
		}
	}

	recent := completed
	if len(recent) > 5 {
		recent = recent[:5]
	}

	return &StatsReport{
		BasicStats:      p.Stats,
		MonthlyRides:    monthlyRides,
		MonthlyEarnings: p.EarningsSince(startOfMonth),
		RecentRides:     recent,
		Breakdown: map[string]float64{
			"ride_completions": p.EarningsByType(driver.EarningRideCompletion),
			"bonuses":          p.EarningsByType(driver.EarningBonus),
			"penalties":        p.EarningsByType(driver.EarningPenalty),
			"adjustments":      p.EarningsByType(driver.EarningAdjustment),
		},
	}, nil
}

// AdjustStats overwrites parts of the aggregate. This is the
// administrative correction path, not normal flow.
func (s *Service) AdjustStats(ctx context.Context, userID uuid.UUID, upd StatsUpdate) (*driver.Profile, error) {
	p, err := s.getProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := p.Stats
	if upd.TotalRides != nil {
		stats.TotalRides = *upd.TotalRides
	}
	if upd.CompletedRides != nil {
		stats.CompletedRides = *upd.CompletedRides
	}
	if upd.CancelledRides != nil {
		stats.CancelledRides = *upd.CancelledRides
	}
	if upd.TotalEarnings != nil {
		stats.TotalEarnings = *upd.TotalEarnings
	}
	if upd.AverageRating != nil {
		stats.AverageRating = *upd.AverageRating
	}
	if upd.OnlineHours != nil {
		stats.OnlineHours = *upd.OnlineHours
	}
	if stats.CompletedRides+stats.CancelledRides > stats.TotalRides {
		return nil, apperrors.ValidationError("completedRides + cancelledRides cannot exceed totalRides", nil)
	}

	if err := s.drivers.SetStats(ctx, userID, stats); err != nil {
		return nil, apperrors.Internal("Failed to update stats", err)
	}
	s.logger.Info("Driver stats adjusted", logger.String("user_id", userID.String()))
	return s.getProfile(ctx, userID)
}

// RecomputeAverageRating rebuilds the stored average from the driver's
// rated COMPLETED rides, rounded to two decimals, 0 when none exist
func (s *Service) RecomputeAverageRating(ctx context.Context, userID uuid.UUID) (*driver.Profile, error) {
	if _, err := s.getProfile(ctx, userID); err != nil {
		return nil, err
	}

	ratings, err := s.rides.CompletedRatings(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load ratings", err)
	}
	avg := 0.0
	if len(ratings) > 0 {
		sum := 0
		for _, r := range ratings {
			sum += r
		}
		avg = math.Round(float64(sum)/float64(len(ratings))*100) / 100
	}
	if err := s.drivers.SetAverageRating(ctx, userID, avg); err != nil {
		return nil, apperrors.Internal("Failed to store average rating", err)
	}
	return s.getProfile(ctx, userID)
}

// ListAll returns every profile (admin projection)
func (s *Service) ListAll(ctx context.Context) ([]*driver.Profile, error) {
	profiles, err := s.drivers.ListAll(ctx)
	if err != nil {
		return nil, apperrors.Internal("Failed to list drivers", err)
	}
	return profiles, nil
}

// ListOnline returns online profiles (admin projection)
func (s *Service) ListOnline(ctx context.Context) ([]*driver.Profile, error) {
	profiles, err := s.drivers.ListOnline(ctx)
	if err != nil {
		return nil, apperrors.Internal("Failed to list online drivers", err)
	}
	return profiles, nil
}

// Delete permanently removes a profile. Ride history keeps its driver
// references.
func (s *Service) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := s.drivers.Delete(ctx, userID); err != nil {
		if errors.Is(err, driver.ErrNotFound) {
			return apperrors.ErrDriverNotFound
		}
		return apperrors.Internal("Failed to delete driver profile", err)
	}
	if s.cache != nil {
		s.cache.ZRem(ctx, locationsKey, userID.String())
	}
	s.logger.Info("Driver profile deleted", logger.String("user_id", userID.String()))
	return nil
}

func (s *Service) getProfile(ctx context.Context, userID uuid.UUID) (*driver.Profile, error) {
	p, err := s.drivers.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, driver.ErrNotFound) {
			return nil, apperrors.ErrDriverNotFound
		}
		return nil, apperrors.Internal("Failed to load driver profile", err)
	}
	return p, nil
}

// indexLocation mirrors the live position into the redis geo index used
// by dashboards; best effort, the registry row stays authoritative
func (s *Service) indexLocation(ctx context.Context, userID uuid.UUID, loc driver.Location) {
	if s.cache == nil {
		return
	}
	if err := s.cache.GeoAdd(ctx, locationsKey, &redis.GeoLocation{
		Name:      userID.String(),
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
	}).Err(); err != nil {
		s.logger.Warn("Failed to index driver location",
			logger.String("user_id", userID.String()), logger.Err(err))
	}
}
