package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cityhop/ride-hailing/internal/api/dto"
	"github.com/cityhop/ride-hailing/internal/domain/driver"
	"github.com/cityhop/ride-hailing/internal/service/drivers"
)

// CreateDriverProfile handles POST /v1/drivers/profile
func (h *Handlers) CreateDriverProfile(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}

	p, err := h.Drivers.CreateProfile(c.Request.Context(), ident)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"driver": p})
}

// GetDriverProfile handles GET /v1/drivers/profile
func (h *Handlers) GetDriverProfile(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}

	p, err := h.Drivers.Profile(c.Request.Context(), ident.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"driver": p})
}

// SetOnlineStatus handles PATCH /v1/drivers/status
func (h *Handlers) SetOnlineStatus(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}

	var req dto.SetOnlineStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "code": "VALIDATION_ERROR", "details": err.Error()})
		return
	}

	var loc *driver.Location
	if req.Location != nil {
		loc = &driver.Location{
			Latitude:  req.Location.Latitude,
			Longitude: req.Location.Longitude,
			Address:   req.Location.Address,
		}
	}

	p, err := h.Drivers.SetOnlineStatus(c.Request.Context(), ident.UserID, driver.OnlineStatus(req.Status), loc)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.Monitor.RecordDriverStatusChange(ident.UserID.String(), p.IsOnline())
	c.JSON(http.StatusOK, gin.H{"driver": p})
}

// UpdateDriverLocation handles PATCH /v1/drivers/location
func (h *Handlers) UpdateDriverLocation(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}

	var req dto.UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "code": "VALIDATION_ERROR", "details": err.Error()})
		return
	}

	p, err := h.Drivers.UpdateLocation(c.Request.Context(), ident.UserID, driver.Location{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Address:   req.Address,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.Monitor.RecordLocationUpdate()
	c.JSON(http.StatusOK, gin.H{"driver": p})
}

// GetDriverDashboard handles GET /v1/drivers/dashboard
func (h *Handlers) GetDriverDashboard(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}

	d, err := h.Drivers.Dashboard(c.Request.Context(), ident.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// GetDriverEarnings handles GET /v1/drivers/earnings?period=
func (h *Handlers) GetDriverEarnings(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}

	report, err := h.Drivers.Earnings(c.Request.Context(), ident.UserID, c.Query("period"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetDriverStats handles GET /v1/drivers/stats
func (h *Handlers) GetDriverStats(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}

	stats, err := h.Drivers.Stats(c.Request.Context(), ident.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetOnlineDrivers handles GET /v1/drivers/online
func (h *Handlers) GetOnlineDrivers(c *gin.Context) {
	list, err := h.Drivers.ListOnline(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drivers": list, "count": len(list)})
}

// GetAllDrivers handles GET /v1/drivers/all-drivers
func (h *Handlers) GetAllDrivers(c *gin.Context) {
	list, err := h.Drivers.ListAll(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drivers": list, "count": len(list)})
}

// AddDriverEarning handles POST /v1/drivers/:id/earnings (admin only,
// for bonuses, penalties and corrections outside the completion flow)
func (h *Handlers) AddDriverEarning(c *gin.Context) {
	targetID, ok := h.driverParam(c)
	if !ok {
		return
	}

	var req dto.AddEarningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "code": "VALIDATION_ERROR", "details": err.Error()})
		return
	}

	var rideID *uuid.UUID
	if req.RideID != nil {
		parsed, err := uuid.Parse(*req.RideID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ride id", "code": "VALIDATION_ERROR"})
			return
		}
		rideID = &parsed
	}

	p, err := h.Drivers.RecordEarning(c.Request.Context(), targetID, driver.EarningType(req.Type), req.Amount, req.Description, rideID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"driver": p})
}

// UpdateDriverStats handles PATCH /v1/drivers/:id/stats
func (h *Handlers) UpdateDriverStats(c *gin.Context) {
	targetID, ok := h.driverParam(c)
	if !ok {
		return
	}

	var req dto.UpdateStatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "code": "VALIDATION_ERROR", "details": err.Error()})
		return
	}

	p, err := h.Drivers.AdjustStats(c.Request.Context(), targetID, driversStatsUpdate(req))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"driver": p})
}

// RecomputeDriverRating handles POST /v1/admin/drivers/:id/recompute-rating
func (h *Handlers) RecomputeDriverRating(c *gin.Context) {
	targetID, ok := h.driverParam(c)
	if !ok {
		return
	}

	p, err := h.Drivers.RecomputeAverageRating(c.Request.Context(), targetID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"driver": p})
}

// DeleteDriver handles DELETE /v1/drivers/:id
func (h *Handlers) DeleteDriver(c *gin.Context) {
	targetID, ok := h.driverParam(c)
	if !ok {
		return
	}

	if err := h.Drivers.Delete(c.Request.Context(), targetID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Driver profile deleted"})
}

func driversStatsUpdate(req dto.UpdateStatsRequest) drivers.StatsUpdate {
	return drivers.StatsUpdate{
		TotalRides:     req.TotalRides,
		CompletedRides: req.CompletedRides,
		CancelledRides: req.CancelledRides,
		TotalEarnings:  req.TotalEarnings,
		AverageRating:  req.AverageRating,
		OnlineHours:    req.OnlineHours,
	}
}

func (h *Handlers) driverParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid driver id", "code": "VALIDATION_ERROR"})
		return uuid.Nil, false
	}
	return id, true
}
