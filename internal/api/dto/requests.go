package dto

// LocationPayload is a coordinate pair with an optional address label
type LocationPayload struct {
	Latitude  float64 `json:"latitude" binding:"required"`
	Longitude float64 `json:"longitude" binding:"required"`
	Address   string  `json:"address"`
}

// RequestRideRequest represents a rider requesting a new ride
type RequestRideRequest struct {
	Pickup      LocationPayload `json:"pickup" binding:"required"`
	Destination LocationPayload `json:"destination" binding:"required"`
}

// AdvanceStatusRequest represents a driver moving a ride forward.
// Fare, distance and duration are only honoured on completion.
type AdvanceStatusRequest struct {
	Status   string   `json:"status" binding:"required"`
	Fare     *float64 `json:"fare,omitempty"`
	Distance *float64 `json:"distance,omitempty"`
	Duration *int     `json:"duration,omitempty"`
}

// CancelRideRequest carries the optional cancellation reason
type CancelRideRequest struct {
	Reason string `json:"reason"`
}

// RateRideRequest represents a rider rating a completed ride
type RateRideRequest struct {
	Rating   int    `json:"rating" binding:"required,min=1,max=5"`
	Feedback string `json:"feedback"`
}

// SetOnlineStatusRequest flips a driver's availability
type SetOnlineStatusRequest struct {
	Status   string           `json:"status" binding:"required,oneof=online offline"`
	Location *LocationPayload `json:"location,omitempty"`
}

// UpdateLocationRequest represents a driver location update
type UpdateLocationRequest struct {
	Latitude  float64 `json:"latitude" binding:"required"`
	Longitude float64 `json:"longitude" binding:"required"`
	Address   string  `json:"address"`
}

// AddEarningRequest appends an entry to a driver's earnings ledger
type AddEarningRequest struct {
	Type        string  `json:"type" binding:"required,oneof=ride_completion bonus penalty adjustment"`
	Amount      float64 `json:"amount" binding:"required"`
	Description string  `json:"description"`
	RideID      *string `json:"ride_id,omitempty"`
}

// UpdateStatsRequest is the administrative partial stats overwrite
type UpdateStatsRequest struct {
	TotalRides     *int     `json:"total_rides,omitempty"`
	CompletedRides *int     `json:"completed_rides,omitempty"`
	CancelledRides *int     `json:"cancelled_rides,omitempty"`
	TotalEarnings  *float64 `json:"total_earnings,omitempty"`
	AverageRating  *float64 `json:"average_rating,omitempty"`
	OnlineHours    *float64 `json:"online_hours,omitempty"`
}
