package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cityhop/ride-hailing/internal/domain/driver"
)

// DriverRepository is an in-memory driver registry
type DriverRepository struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*driver.Profile
	// seen deduplicates ride-linked earnings per (driver, ride, type)
	seen map[string]bool
}

// NewDriverRepository creates an empty in-memory driver store
func NewDriverRepository() *DriverRepository {
	return &DriverRepository{
		profiles: make(map[uuid.UUID]*driver.Profile),
		seen:     make(map[string]bool),
	}
}

func (s *DriverRepository) Create(ctx context.Context, p *driver.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[p.UserID]; ok {
		return driver.ErrAlreadyExists
	}
	clone := cloneProfile(p)
	s.profiles[p.UserID] = clone
	return nil
}

func (s *DriverRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*driver.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, driver.ErrNotFound
	}
	return cloneProfile(p), nil
}

func (s *DriverRepository) SetOnline(ctx context.Context, userID uuid.UUID, loc driver.Location, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return driver.ErrNotFound
	}
	p.OnlineStatus = driver.StatusOnline
	l := loc
	p.CurrentLocation = &l
	t := at
	p.LastOnlineAt = &t
	p.UpdatedAt = at
	return nil
}

func (s *DriverRepository) SetOffline(ctx context.Context, userID uuid.UUID, at time.Time, hoursDelta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return driver.ErrNotFound
	}
	p.OnlineStatus = driver.StatusOffline
	t := at
	p.LastOfflineAt = &t
	p.Stats.OnlineHours += hoursDelta
	p.UpdatedAt = at
	return nil
}

func (s *DriverRepository) UpdateLocation(ctx context.Context, userID uuid.UUID, loc driver.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return driver.ErrNotFound
	}
	l := loc
	p.CurrentLocation = &l
	p.UpdatedAt = time.Now()
	return nil
}

func (s *DriverRepository) SetCurrentRide(ctx context.Context, userID, rideID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return driver.ErrNotFound
	}
	id := rideID
	p.CurrentRideID = &id
	p.UpdatedAt = time.Now()
	return nil
}

func (s *DriverRepository) ClearCurrentRide(ctx context.Context, userID, rideID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return driver.ErrNotFound
	}
	// guard: only clear while the pointer still names this ride, so a
	// stale retry cannot wipe a newer assignment
	if p.CurrentRideID != nil && *p.CurrentRideID == rideID {
		p.CurrentRideID = nil
		p.UpdatedAt = time.Now()
	}
	return nil
}

func (s *DriverRepository) AppendEarning(ctx context.Context, userID uuid.UUID, e driver.Earning) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return false, driver.ErrNotFound
	}
	if e.RideID != nil {
		key := fmt.Sprintf("%s/%s/%s", userID, e.RideID, e.Type)
		if s.seen[key] {
			return false, nil
		}
		s.seen[key] = true
	}
	p.Earnings = append(p.Earnings, e)
	p.Stats.TotalEarnings += e.Amount
	p.UpdatedAt = time.Now()
	return true, nil
}

func (s *DriverRepository) IncrementStats(ctx context.Context, userID uuid.UUID, delta driver.StatsDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return driver.ErrNotFound
	}
	p.Stats.TotalRides += delta.TotalRides
	p.Stats.CompletedRides += delta.CompletedRides
	p.Stats.CancelledRides += delta.CancelledRides
	p.Stats.TotalEarnings += delta.TotalEarnings
	p.Stats.OnlineHours += delta.OnlineHours
	p.UpdatedAt = time.Now()
	return nil
}

func (s *DriverRepository) SetStats(ctx context.Context, userID uuid.UUID, stats driver.Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return driver.ErrNotFound
	}
	p.Stats = stats
	p.UpdatedAt = time.Now()
	return nil
}

func (s *DriverRepository) SetAverageRating(ctx context.Context, userID uuid.UUID, avg float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return driver.ErrNotFound
	}
	p.Stats.AverageRating = avg
	p.UpdatedAt = time.Now()
	return nil
}

func (s *DriverRepository) ListAll(ctx context.Context) ([]*driver.Profile, error) {
	return s.listWhere(func(p *driver.Profile) bool { return true })
}

func (s *DriverRepository) ListOnline(ctx context.Context) ([]*driver.Profile, error) {
	return s.listWhere(func(p *driver.Profile) bool { return p.OnlineStatus == driver.StatusOnline })
}

func (s *DriverRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[userID]; !ok {
		return driver.ErrNotFound
	}
	delete(s.profiles, userID)
	return nil
}

func (s *DriverRepository) listWhere(match func(*driver.Profile) bool) ([]*driver.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*driver.Profile
	for _, p := range s.profiles {
		if match(p) {
			out = append(out, cloneProfile(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func cloneProfile(p *driver.Profile) *driver.Profile {
	clone := *p
	if p.CurrentLocation != nil {
		l := *p.CurrentLocation
		clone.CurrentLocation = &l
	}
	if p.CurrentRideID != nil {
		id := *p.CurrentRideID
		clone.CurrentRideID = &id
	}
	clone.Earnings = make([]driver.Earning, len(p.Earnings))
	copy(clone.Earnings, p.Earnings)
	return &clone
}
