package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cityhop/ride-hailing/internal/api/dto"
	"github.com/cityhop/ride-hailing/internal/domain/ride"
	"github.com/cityhop/ride-hailing/internal/service/rides"
	"github.com/cityhop/ride-hailing/pkg/logger"
)

// RequestRide handles POST /v1/rides/request
func (h *Handlers) RequestRide(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}

	var req dto.RequestRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "code": "VALIDATION_ERROR", "details": err.Error()})
		return
	}

	r, err := h.Rides.Request(c.Request.Context(), ident.UserID,
		ride.Location{Latitude: req.Pickup.Latitude, Longitude: req.Pickup.Longitude, Address: req.Pickup.Address},
		ride.Location{Latitude: req.Destination.Latitude, Longitude: req.Destination.Longitude, Address: req.Destination.Address},
	)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.Monitor.RecordRideRequested(r.ID.String())
	c.JSON(http.StatusCreated, gin.H{"ride": r})
}

// AcceptRide handles POST /v1/rides/:id/accept
func (h *Handlers) AcceptRide(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}
	rideID, ok := h.rideParam(c)
	if !ok {
		return
	}

	r, err := h.Rides.Accept(c.Request.Context(), rideID, ident.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.Monitor.RecordRideAccepted(r.ID.String(), ident.UserID.String())
	c.JSON(http.StatusOK, gin.H{"ride": r})
}

// UpdateRideStatus handles PATCH /v1/rides/:id/status
func (h *Handlers) UpdateRideStatus(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}
	rideID, ok := h.rideParam(c)
	if !ok {
		return
	}

	var req dto.AdvanceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "code": "VALIDATION_ERROR", "details": err.Error()})
		return
	}

	target := ride.Status(req.Status)
	details := &rides.CompletionDetails{
		Fare:     req.Fare,
		Distance: req.Distance,
		Duration: req.Duration,
	}

	r, err := h.Rides.Advance(c.Request.Context(), rideID, ident.UserID, target, details)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if target == ride.StatusCompleted {
		fare := 0.0
		if r.Fare != nil {
			fare = *r.Fare
		}
		h.Monitor.RecordRideCompleted(r.ID.String(), fare)
	}
	c.JSON(http.StatusOK, gin.H{"ride": r})
}

// CancelRide handles POST /v1/rides/:id/cancel
func (h *Handlers) CancelRide(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}
	rideID, ok := h.rideParam(c)
	if !ok {
		return
	}

	var req dto.CancelRideRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "code": "VALIDATION_ERROR", "details": err.Error()})
			return
		}
	}

	r, err := h.Rides.Cancel(c.Request.Context(), rideID, ident, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.Monitor.RecordRideCancelled(r.ID.String(), ident.UserID.String())
	c.JSON(http.StatusOK, gin.H{"ride": r})
}

// RateRide handles POST /v1/rides/:id/rate
func (h *Handlers) RateRide(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}
	rideID, ok := h.rideParam(c)
	if !ok {
		return
	}

	var req dto.RateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "code": "VALIDATION_ERROR", "details": err.Error()})
		return
	}

	r, err := h.Rides.Rate(c.Request.Context(), rideID, ident.UserID, req.Rating, req.Feedback)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.Logger.Info("Ride rated",
		logger.String("ride_id", rideID.String()),
		logger.Int("rating", req.Rating),
	)
	c.JSON(http.StatusOK, gin.H{"ride": r})
}

// GetRide handles GET /v1/rides/:id
func (h *Handlers) GetRide(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}
	rideID, ok := h.rideParam(c)
	if !ok {
		return
	}

	r, err := h.Rides.Get(c.Request.Context(), rideID, ident)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ride": r})
}

// GetAvailableRides handles GET /v1/rides/available
func (h *Handlers) GetAvailableRides(c *gin.Context) {
	list, err := h.Rides.Available(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rides": list, "count": len(list)})
}

// GetRideHistory handles GET /v1/rides/history
func (h *Handlers) GetRideHistory(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}

	list, err := h.Rides.HistoryFor(c.Request.Context(), ident)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rides": list, "count": len(list)})
}

// GetAllRides handles GET /v1/rides/all-rides
func (h *Handlers) GetAllRides(c *gin.Context) {
	list, err := h.Rides.ListAll(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rides": list, "count": len(list)})
}

func (h *Handlers) rideParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ride id", "code": "VALIDATION_ERROR"})
		return uuid.Nil, false
	}
	return id, true
}
