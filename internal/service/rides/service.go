// Package rides implements the coordination layer: the only component
// permitted to mutate both the ride ledger and the driver registry within
// one logical operation. It owns accept-race resolution, the active-ride
// invariants and driver stats reconciliation on terminal transitions.
package rides

import (
	"context"
	"errors"
	"fmt"
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

// Notifier pushes ride lifecycle events to connected clients
type Notifier interface {
	SendToUser(userID string, message interface{})
}

// CompletionDetails carries the optional trip figures recorded when a
// driver completes a ride
type CompletionDetails struct {
	Fare     *float64
	Distance *float64
	Duration *int
}

// Service coordinates the ride ledger and driver registry
type Service struct {
	rides    ride.Repository
	drivers  driver.Repository
	cache    *redis.Client
	notifier Notifier
	logger   *logger.Logger
}

// NewService creates the coordination service. cache and notifier may be
// nil; both are best-effort side channels.
func NewService(rides ride.Repository, drivers driver.Repository, cache *redis.Client, notifier Notifier, log *logger.Logger) *Service {
	return &Service{
		rides:    rides,
		drivers:  drivers,
		cache:    cache,
		notifier: notifier,
		logger:   log,
	}
}

// Request creates a new ride in REQUESTED for the rider. At most one
// active ride per rider at all times.
func (s *Service) Request(ctx context.Context, riderID uuid.UUID, pickup, destination ride.Location) (*ride.Ride, error) {
	if err := validateLocation(pickup, "pickup"); err != nil {
		return nil, err
	}
	if err := validateLocation(destination, "destination"); err != nil {
		return nil, err
	}

	if _, err := s.rides.GetActiveByRider(ctx, riderID); err == nil {
		return nil, apperrors.ErrActiveRideExists
	} else if !errors.Is(err, ride.ErrNotFound) {
		return nil, apperrors.Internal("Failed to check active rides", err)
	}

	now := time.Now().UTC()
	r := &ride.Ride{
		ID:          uuid.New(),
		RiderID:     riderID,
		Status:      ride.StatusRequested,
		Pickup:      pickup,
		Destination: destination,
		RequestedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.rides.Create(ctx, r); err != nil {
		if errors.Is(err, ride.ErrRiderActive) {
			return nil, apperrors.ErrActiveRideExists
		}
		return nil, apperrors.Internal("Failed to create ride", err)
	}

	s.logger.Info("Ride requested",
		logger.String("ride_id", r.ID.String()),
		logger.String("rider_id", riderID.String()),
	)
	return s.withHistory(ctx, r)
}

// Accept atomically claims a REQUESTED ride for an online, unoccupied
// driver. Of N concurrent accepts on the same ride exactly one succeeds;
// the losers observe an invalid transition or a conflict.
func (s *Service) Accept(ctx context.Context, rideID, driverID uuid.UUID) (*ride.Ride, error) {
	profile, err := s.drivers.GetByUserID(ctx, driverID)
	if err != nil {
		if errors.Is(err, driver.ErrNotFound) {
			return nil, apperrors.ErrDriverNotFound
		}
		return nil, apperrors.Internal("Failed to load driver profile", err)
	}
	if !profile.IsOnline() {
		return nil, apperrors.ErrDriverOffline
	}

	if _, err := s.rides.GetActiveByDriver(ctx, driverID); err == nil {
		return nil, apperrors.ErrDriverBusy
	} else if !errors.Is(err, ride.ErrNotFound) {
		return nil, apperrors.Internal("Failed to check active rides", err)
	}

	now := time.Now().UTC()
	won, err := s.rides.Accept(ctx, rideID, driverID, now)
	if err != nil {
		if errors.Is(err, ride.ErrNotFound) {
			return nil, apperrors.ErrRideNotFound
		}
		if errors.Is(err, ride.ErrDriverActive) {
			return nil, apperrors.ErrDriverBusy
		}
		return nil, apperrors.Internal("Failed to accept ride", err)
	}
	if !won {
		return nil, s.lostTransition(ctx, rideID, ride.StatusAccepted)
	}

	// ride commit is authoritative; the registry update below is a
	// back-reference and safe to retry
	if err := s.drivers.SetCurrentRide(ctx, driverID, rideID); err != nil {
		s.logger.Error("Failed to set current ride pointer",
			logger.String("driver_id", driverID.String()), logger.Err(err))
	}
	s.cacheCurrentRide(ctx, driverID, rideID)

	r, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load ride", err)
	}

	s.logger.Info("Ride accepted",
		logger.String("ride_id", rideID.String()),
		logger.String("driver_id", driverID.String()),
	)
	s.notify(r.RiderID, "ride_accepted", r)
	return s.withHistory(ctx, r)
}

// Advance moves a ride along the state machine as a driver progress
// update. Completion carries the trip figures and triggers driver stats
// reconciliation; cancellation through Advance behaves like Cancel
// without a reason.
func (s *Service) Advance(ctx context.Context, rideID, actorID uuid.UUID, target ride.Status, details *CompletionDetails) (*ride.Ride, error) {
	if !target.IsValid() {
		return nil, apperrors.ValidationError(fmt.Sprintf("Unknown status %q", target), nil)
	}

	r, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID == nil || *r.DriverID != actorID {
		return nil, apperrors.Forbidden("Only the assigned driver can update this ride", nil)
	}
	if !ride.CanAdvance(r.Status, target) {
		return nil, apperrors.InvalidTransition(string(r.Status), string(target))
	}

	upd := ride.TransitionUpdate{
		To:      target,
		At:      time.Now().UTC(),
		ActorID: actorID,
	}
	switch target {
	case ride.StatusCompleted:
		if details != nil {
			upd.Fare = details.Fare
			upd.Distance = details.Distance
			upd.Duration = details.Duration
		}
	case ride.StatusCancelled:
		actor := actorID
		upd.CancelledBy = &actor
	}

	won, err := s.rides.Transition(ctx, rideID, r.Status, upd)
	if err != nil {
		if errors.Is(err, ride.ErrNotFound) {
			return nil, apperrors.ErrRideNotFound
		}
		return nil, apperrors.Internal("Failed to update ride status", err)
	}
	if !won {
		return nil, s.lostTransition(ctx, rideID, target)
	}

	switch target {
	case ride.StatusCompleted:
		s.reconcileCompletion(ctx, actorID, rideID, upd.Fare)
	case ride.StatusCancelled:
		s.reconcileCancellation(ctx, actorID, rideID)
	}

	updated, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load ride", err)
	}

	s.logger.Info("Ride status updated",
		logger.String("ride_id", rideID.String()),
		logger.String("status", string(target)),
	)
	s.notify(updated.RiderID, "ride_status", updated)
	return s.withHistory(ctx, updated)
}

// Cancel terminates a non-terminal ride, recording who cancelled and why.
// Unlike Advance it is available from REQUESTED, before any driver is
// assigned.
func (s *Service) Cancel(ctx context.Context, rideID uuid.UUID, actor identity.Identity, reason string) (*ride.Ride, error) {
	r, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case identity.RoleRider:
		if r.RiderID != actor.UserID {
			return nil, apperrors.Forbidden("You can only cancel your own rides", nil)
		}
	case identity.RoleDriver:
		if r.DriverID == nil || *r.DriverID != actor.UserID {
			return nil, apperrors.Forbidden("You can only cancel rides assigned to you", nil)
		}
	case identity.RoleAdmin:
		// admins may cancel on behalf of either party
	default:
		return nil, apperrors.Forbidden("Role cannot cancel rides", nil)
	}

	if !r.CanCancel() {
		return nil, apperrors.InvalidTransition(string(r.Status), string(ride.StatusCancelled))
	}

	cancelledBy := actor.UserID
	won, err := s.rides.Transition(ctx, rideID, r.Status, ride.TransitionUpdate{
		To:          ride.StatusCancelled,
		At:          time.Now().UTC(),
		ActorID:     actor.UserID,
		CancelledBy: &cancelledBy,
		Reason:      reason,
	})
	if err != nil {
		if errors.Is(err, ride.ErrNotFound) {
			return nil, apperrors.ErrRideNotFound
		}
		return nil, apperrors.Internal("Failed to cancel ride", err)
	}
	if !won {
		return nil, s.lostTransition(ctx, rideID, ride.StatusCancelled)
	}

	// a ride cancelled before acceptance has no driver-side effect
	if r.DriverID != nil {
		s.reconcileCancellation(ctx, *r.DriverID, rideID)
	}

	updated, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load ride", err)
	}

	s.logger.Info("Ride cancelled",
		logger.String("ride_id", rideID.String()),
		logger.String("cancelled_by", actor.UserID.String()),
	)
	s.notify(updated.RiderID, "ride_cancelled", updated)
	if updated.DriverID != nil {
		s.notify(*updated.DriverID, "ride_cancelled", updated)
	}
	return s.withHistory(ctx, updated)
}

// Rate records a rider's rating on their own COMPLETED ride, exactly
// once, then recomputes the driver's average.
func (s *Service) Rate(ctx context.Context, rideID, riderID uuid.UUID, rating int, feedback string) (*ride.Ride, error) {
	if rating < 1 || rating > 5 {
		return nil, apperrors.ValidationError("Rating must be between 1 and 5", nil)
	}

	r, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.Status != ride.StatusCompleted {
		return nil, apperrors.InvalidTransition(string(r.Status), string(ride.StatusCompleted))
	}
	if r.RiderID != riderID {
		return nil, apperrors.ErrNotYourRide
	}
	if r.IsRated() {
		return nil, apperrors.ErrRideAlreadyRated
	}

	won, err := s.rides.SetRating(ctx, rideID, rating, feedback)
	if err != nil {
		if errors.Is(err, ride.ErrNotFound) {
			return nil, apperrors.ErrRideNotFound
		}
		return nil, apperrors.Internal("Failed to rate ride", err)
	}
	if !won {
		return nil, apperrors.ErrRideAlreadyRated
	}

	if r.DriverID != nil {
		if err := s.recomputeAverageRating(ctx, *r.DriverID); err != nil {
			s.logger.Error("Failed to recompute driver rating",
				logger.String("driver_id", r.DriverID.String()), logger.Err(err))
		}
	}

	updated, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load ride", err)
	}
	return s.withHistory(ctx, updated)
}

// Get returns one ride; riders and drivers may only see their own
func (s *Service) Get(ctx context.Context, rideID uuid.UUID, actor identity.Identity) (*ride.Ride, error) {
	r, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case identity.RoleAdmin:
	case identity.RoleRider:
		if r.RiderID != actor.UserID {
			return nil, apperrors.Forbidden("You can only view your own rides", nil)
		}
	case identity.RoleDriver:
		if r.DriverID == nil || *r.DriverID != actor.UserID {
			return nil, apperrors.Forbidden("You can only view your own rides", nil)
		}
	default:
		return nil, apperrors.Forbidden("Role cannot view rides", nil)
	}
	return s.withHistory(ctx, r)
}

// HistoryFor lists the caller's rides, newest first
func (s *Service) HistoryFor(ctx context.Context, actor identity.Identity) ([]*ride.Ride, error) {
	switch actor.Role {
	case identity.RoleRider:
		return s.listOrInternal(s.rides.ListByRider(ctx, actor.UserID))
	case identity.RoleDriver:
		return s.listOrInternal(s.rides.ListByDriver(ctx, actor.UserID))
	default:
		return nil, apperrors.Forbidden("Role has no ride history", nil)
	}
}

// ListAll returns every ride (admin projection)
func (s *Service) ListAll(ctx context.Context) ([]*ride.Ride, error) {
	return s.listOrInternal(s.rides.ListAll(ctx))
}

// Available lists open REQUESTED rides for drivers, longest-waiting first
func (s *Service) Available(ctx context.Context) ([]*ride.Ride, error) {
	return s.listOrInternal(s.rides.ListRequested(ctx, 0))
}

// reconcileCompletion applies driver-side effects of a completed ride.
// The earning entry is deduplicated per ride, and the ride counters are
// tied to its first insertion, so a retry cannot double-count.
func (s *Service) reconcileCompletion(ctx context.Context, driverID, rideID uuid.UUID, fare *float64) {
	amount := 0.0
	if fare != nil {
		amount = *fare
	}
	rid := rideID
	inserted, err := s.drivers.AppendEarning(ctx, driverID, driver.Earning{
		RideID:      &rid,
		Type:        driver.EarningRideCompletion,
		Amount:      amount,
		Description: "Ride completion payment",
		Date:        time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("Failed to record completion earning",
			logger.String("driver_id", driverID.String()), logger.Err(err))
		return
	}
	if inserted {
		if err := s.drivers.IncrementStats(ctx, driverID, driver.StatsDelta{
			TotalRides:     1,
			CompletedRides: 1,
		}); err != nil {
			s.logger.Error("Failed to increment completion stats",
				logger.String("driver_id", driverID.String()), logger.Err(err))
		}
	}
	s.clearCurrentRide(ctx, driverID, rideID)
}

// reconcileCancellation applies driver-side effects of a cancelled ride
func (s *Service) reconcileCancellation(ctx context.Context, driverID, rideID uuid.UUID) {
	if err := s.drivers.IncrementStats(ctx, driverID, driver.StatsDelta{
		TotalRides:     1,
		CancelledRides: 1,
	}); err != nil {
		s.logger.Error("Failed to increment cancellation stats",
			logger.String("driver_id", driverID.String()), logger.Err(err))
	}
	s.clearCurrentRide(ctx, driverID, rideID)
}

func (s *Service) recomputeAverageRating(ctx context.Context, driverID uuid.UUID) error {
	ratings, err := s.rides.CompletedRatings(ctx, driverID)
	if err != nil {
		return err
	}
	avg := 0.0
	if len(ratings) > 0 {
		sum := 0
		for _, r := range ratings {
			sum += r
		}
		avg = math.Round(float64(sum)/float64(len(ratings))*100) / 100
	}
	return s.drivers.SetAverageRating(ctx, driverID, avg)
}

func (s *Service) clearCurrentRide(ctx context.Context, driverID, rideID uuid.UUID) {
	if err := s.drivers.ClearCurrentRide(ctx, driverID, rideID); err != nil {
		s.logger.Error("Failed to clear current ride pointer",
			logger.String("driver_id", driverID.String()), logger.Err(err))
	}
	if s.cache != nil {
		s.cache.Del(ctx, currentRideKey(driverID))
	}
}

func (s *Service) cacheCurrentRide(ctx context.Context, driverID, rideID uuid.UUID) {
	if s.cache == nil {
		return
	}
	// mirror with expiry so an abandoned ride cannot pin the key forever
	s.cache.Set(ctx, currentRideKey(driverID), rideID.String(), 24*time.Hour)
}

func currentRideKey(driverID uuid.UUID) string {
	return fmt.Sprintf("driver:%s:current_ride", driverID)
}

func (s *Service) getRide(ctx context.Context, rideID uuid.UUID) (*ride.Ride, error) {
	r, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		if errors.Is(err, ride.ErrNotFound) {
			return nil, apperrors.ErrRideNotFound
		}
		return nil, apperrors.Internal("Failed to load ride", err)
	}
	return r, nil
}

// lostTransition reports the failure kind for a conditional update that
// affected no rows: the ride exists but is no longer in the expected state
func (s *Service) lostTransition(ctx context.Context, rideID uuid.UUID, target ride.Status) error {
	r, err := s.rides.GetByID(ctx, rideID)
	if err != nil {
		return apperrors.InvalidTransition("unknown", string(target))
	}
	if target == ride.StatusAccepted && r.DriverID != nil {
		return apperrors.Conflict("Ride is already assigned to a driver", nil)
	}
	return apperrors.InvalidTransition(string(r.Status), string(target))
}

func (s *Service) withHistory(ctx context.Context, r *ride.Ride) (*ride.Ride, error) {
	history, err := s.rides.History(ctx, r.ID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load ride history", err)
	}
	r.StatusHistory = history
	return r, nil
}

func (s *Service) listOrInternal(rides []*ride.Ride, err error) ([]*ride.Ride, error) {
	if err != nil {
		return nil, apperrors.Internal("Failed to list rides", err)
	}
	return rides, nil
}

func (s *Service) notify(userID uuid.UUID, event string, payload interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.SendToUser(userID.String(), map[string]interface{}{
		"type": event,
		"data": payload,
	})
}

func validateLocation(loc ride.Location, field string) error {
	if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
		return apperrors.ValidationError(fmt.Sprintf("Invalid %s coordinates", field), nil)
	}
	return nil
}
