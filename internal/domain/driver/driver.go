package driver

import (
	"time"

	"github.com/google/uuid"
)

// OnlineStatus represents driver availability
type OnlineStatus string

const (
	StatusOnline  OnlineStatus = "online"
	StatusOffline OnlineStatus = "offline"
)

// EarningType classifies an earnings ledger entry
type EarningType string

const (
	EarningRideCompletion EarningType = "ride_completion"
	EarningBonus          EarningType = "bonus"
	EarningPenalty        EarningType = "penalty"
	EarningAdjustment     EarningType = "adjustment"
)

// IsValid validates the status value
func (s OnlineStatus) IsValid() bool {
	return s == StatusOnline || s == StatusOffline
}

// IsValid validates the earning type
func (t EarningType) IsValid() bool {
	switch t {
	case EarningRideCompletion, EarningBonus, EarningPenalty, EarningAdjustment:
		return true
	}
	return false
}

// Location is a driver's live position
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// Earning is one entry of the append-only earnings ledger
type Earning struct {
	RideID      *uuid.UUID  `json:"ride_id,omitempty"`
	Type        EarningType `json:"type"`
	Amount      float64     `json:"amount"`
	Description string      `json:"description"`
	Date        time.Time   `json:"date"`
}

// Stats is the denormalized aggregate kept alongside the profile for fast
// reads. It is maintained incrementally via atomic increments and repaired
// through explicit reconciliation paths, never recomputed per read.
type Stats struct {
	TotalRides     int     `json:"total_rides"`
	CompletedRides int     `json:"completed_rides"`
	CancelledRides int     `json:"cancelled_rides"`
	TotalEarnings  float64 `json:"total_earnings"`
	AverageRating  float64 `json:"average_rating"`
	OnlineHours    float64 `json:"online_hours"`
}

// StatsDelta carries atomic increments applied to the aggregate
type StatsDelta struct {
	TotalRides     int
	CompletedRides int
	CancelledRides int
	TotalEarnings  float64
	OnlineHours    float64
}

// Profile represents a driver's availability and earnings state. One row
// per driver identity; currentRideId is a weak reference resolved through
// the ride ledger, never a shared pointer.
type Profile struct {
	UserID          uuid.UUID    `json:"user_id"`
	OnlineStatus    OnlineStatus `json:"online_status"`
	CurrentLocation *Location    `json:"current_location,omitempty"`
	CurrentRideID   *uuid.UUID   `json:"current_ride_id,omitempty"`
	Earnings        []Earning    `json:"earnings"`
	Stats           Stats        `json:"stats"`
	LastOnlineAt    *time.Time   `json:"last_online_at,omitempty"`
	LastOfflineAt   *time.Time   `json:"last_offline_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// IsOnline reports whether the driver can currently serve rides
func (p *Profile) IsOnline() bool {
	return p.OnlineStatus == StatusOnline
}

// EarningsSince sums ledger entries dated at or after the cutoff
func (p *Profile) EarningsSince(cutoff time.Time) float64 {
	var total float64
	for _, e := range p.Earnings {
		if !e.Date.Before(cutoff) {
			total += e.Amount
		}
	}
	return total
}

// EarningsByType sums ledger entries of one type
func (p *Profile) EarningsByType(t EarningType) float64 {
	var total float64
	for _, e := range p.Earnings {
		if e.Type == t {
			total += e.Amount
		}
	}
	return total
}
