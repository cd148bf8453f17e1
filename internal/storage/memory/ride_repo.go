// Package memory provides mutex-guarded in-process implementations of the
// store contracts. They preserve the same atomic check-and-set semantics as
// the PostgreSQL repositories and back the service-level unit and race tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cityhop/ride-hailing/internal/domain/ride"
)

// RideRepository is an in-memory ride ledger
type RideRepository struct {
	mu      sync.Mutex
	rides   map[uuid.UUID]*ride.Ride
	history map[uuid.UUID][]ride.StatusChange
}

// NewRideRepository creates an empty in-memory ride store
func NewRideRepository() *RideRepository {
	return &RideRepository{
		rides:   make(map[uuid.UUID]*ride.Ride),
		history: make(map[uuid.UUID][]ride.StatusChange),
	}
}

func (s *RideRepository) Create(ctx context.Context, r *ride.Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.rides {
		if existing.RiderID == r.RiderID && existing.Status.IsActive() {
			return ride.ErrRiderActive
		}
	}

	clone := *r
	s.rides[r.ID] = &clone
	s.history[r.ID] = append(s.history[r.ID], ride.StatusChange{
		Status:    r.Status,
		Timestamp: r.RequestedAt,
		ActorID:   r.RiderID,
	})
	return nil
}

func (s *RideRepository) GetByID(ctx context.Context, id uuid.UUID) (*ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rides[id]
	if !ok {
		return nil, ride.ErrNotFound
	}
	clone := *r
	return &clone, nil
}

func (s *RideRepository) History(ctx context.Context, id uuid.UUID) ([]ride.StatusChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rides[id]; !ok {
		return nil, ride.ErrNotFound
	}
	out := make([]ride.StatusChange, len(s.history[id]))
	copy(out, s.history[id])
	return out, nil
}

func (s *RideRepository) Accept(ctx context.Context, rideID, driverID uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rides[rideID]
	if !ok {
		return false, ride.ErrNotFound
	}
	if r.Status != ride.StatusRequested || r.DriverID != nil {
		return false, nil
	}
	// same lock as the status write, so two accepts by one driver on
	// different rides cannot both pass this check
	for _, other := range s.rides {
		if other.DriverID == nil || *other.DriverID != driverID {
			continue
		}
		switch other.Status {
		case ride.StatusAccepted, ride.StatusPickedUp, ride.StatusInTransit:
			return false, ride.ErrDriverActive
		}
	}

	d := driverID
	r.DriverID = &d
	r.Status = ride.StatusAccepted
	r.AcceptedAt = &at
	r.UpdatedAt = at
	s.history[rideID] = append(s.history[rideID], ride.StatusChange{
		Status:    ride.StatusAccepted,
		Timestamp: at,
		ActorID:   driverID,
	})
	return true, nil
}

func (s *RideRepository) Transition(ctx context.Context, rideID uuid.UUID, from ride.Status, upd ride.TransitionUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rides[rideID]
	if !ok {
		return false, ride.ErrNotFound
	}
	if r.Status != from {
		return false, nil
	}

	r.Status = upd.To
	r.UpdatedAt = upd.At
	switch upd.To {
	case ride.StatusPickedUp:
		at := upd.At
		r.PickedUpAt = &at
	case ride.StatusInTransit:
		at := upd.At
		r.InTransitAt = &at
	case ride.StatusCompleted:
		at := upd.At
		r.CompletedAt = &at
		r.Fare = upd.Fare
		r.Distance = upd.Distance
		r.Duration = upd.Duration
	case ride.StatusCancelled:
		at := upd.At
		r.CancelledAt = &at
		r.CancelledBy = upd.CancelledBy
		r.CancellationReason = upd.Reason
	}
	s.history[rideID] = append(s.history[rideID], ride.StatusChange{
		Status:    upd.To,
		Timestamp: upd.At,
		ActorID:   upd.ActorID,
	})
	return true, nil
}

func (s *RideRepository) SetRating(ctx context.Context, rideID uuid.UUID, rating int, feedback string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rides[rideID]
	if !ok {
		return false, ride.ErrNotFound
	}
	if r.Rating != nil {
		return false, nil
	}
	r.Rating = &rating
	r.Feedback = feedback
	r.UpdatedAt = time.Now()
	return true, nil
}

func (s *RideRepository) GetActiveByRider(ctx context.Context, riderID uuid.UUID) (*ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rides {
		if r.RiderID == riderID && r.Status.IsActive() {
			clone := *r
			return &clone, nil
		}
	}
	return nil, ride.ErrNotFound
}

func (s *RideRepository) GetActiveByDriver(ctx context.Context, driverID uuid.UUID) (*ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rides {
		if r.DriverID == nil || *r.DriverID != driverID {
			continue
		}
		switch r.Status {
		case ride.StatusAccepted, ride.StatusPickedUp, ride.StatusInTransit:
			clone := *r
			return &clone, nil
		}
	}
	return nil, ride.ErrNotFound
}

func (s *RideRepository) ListByRider(ctx context.Context, riderID uuid.UUID) ([]*ride.Ride, error) {
	return s.list(func(r *ride.Ride) bool { return r.RiderID == riderID }, newestFirst, 0)
}

func (s *RideRepository) ListByDriver(ctx context.Context, driverID uuid.UUID) ([]*ride.Ride, error) {
	return s.list(func(r *ride.Ride) bool { return r.DriverID != nil && *r.DriverID == driverID }, newestFirst, 0)
}

func (s *RideRepository) ListAll(ctx context.Context) ([]*ride.Ride, error) {
	return s.list(func(r *ride.Ride) bool { return true }, newestFirst, 0)
}

func (s *RideRepository) ListRequested(ctx context.Context, limit int) ([]*ride.Ride, error) {
	return s.list(func(r *ride.Ride) bool {
		return r.Status == ride.StatusRequested && r.DriverID == nil
	}, oldestRequestFirst, limit)
}

func (s *RideRepository) CompletedRatings(ctx context.Context, driverID uuid.UUID) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ratings []int
	for _, r := range s.rides {
		if r.DriverID != nil && *r.DriverID == driverID && r.Status == ride.StatusCompleted && r.Rating != nil {
			ratings = append(ratings, *r.Rating)
		}
	}
	return ratings, nil
}

func (s *RideRepository) CompletedByDriver(ctx context.Context, driverID uuid.UUID) ([]*ride.Ride, error) {
	rides, err := s.list(func(r *ride.Ride) bool {
		return r.DriverID != nil && *r.DriverID == driverID && r.Status == ride.StatusCompleted
	}, newestFirst, 0)
	if err != nil {
		return nil, err
	}
	sort.Slice(rides, func(i, j int) bool {
		if rides[i].CompletedAt == nil || rides[j].CompletedAt == nil {
			return rides[i].CreatedAt.After(rides[j].CreatedAt)
		}
		return rides[i].CompletedAt.After(*rides[j].CompletedAt)
	})
	return rides, nil
}

type sortOrder int

const (
	newestFirst sortOrder = iota
	oldestRequestFirst
)

func (s *RideRepository) list(match func(*ride.Ride) bool, order sortOrder, limit int) ([]*ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ride.Ride
	for _, r := range s.rides {
		if match(r) {
			clone := *r
			out = append(out, &clone)
		}
	}
	switch order {
	case oldestRequestFirst:
		sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	default:
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
