// Package handlers binds HTTP requests to the ride and driver services.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cityhop/ride-hailing/internal/api/middleware"
	"github.com/cityhop/ride-hailing/internal/domain/identity"
	"github.com/cityhop/ride-hailing/internal/service/drivers"
	"github.com/cityhop/ride-hailing/internal/service/rides"
	apperrors "github.com/cityhop/ride-hailing/pkg/errors"
	"github.com/cityhop/ride-hailing/pkg/logger"
	"github.com/cityhop/ride-hailing/pkg/monitoring"
	"github.com/cityhop/ride-hailing/pkg/websocket"
)

// Handlers holds all handler dependencies
type Handlers struct {
	Rides   *rides.Service
	Drivers *drivers.Service
	Logger  *logger.Logger
	Monitor *monitoring.NewRelicApp
	Hub     *websocket.Hub
}

// NewHandlers creates a new Handlers instance
func NewHandlers(rideSvc *rides.Service, driverSvc *drivers.Service, log *logger.Logger, monitor *monitoring.NewRelicApp, hub *websocket.Hub) *Handlers {
	return &Handlers{
		Rides:   rideSvc,
		Drivers: driverSvc,
		Logger:  log,
		Monitor: monitor,
		Hub:     hub,
	}
}

// respondError maps a service error to its HTTP status and JSON body
func (h *Handlers) respondError(c *gin.Context, err error) {
	appErr := apperrors.GetAppError(err)
	if appErr.Status >= 500 {
		h.Logger.Error("Request failed", logger.String("code", appErr.Code), logger.Err(err))
	}
	c.JSON(appErr.Status, gin.H{
		"error": appErr.Message,
		"code":  appErr.Code,
	})
}

// caller returns the authenticated identity or writes a 401
func (h *Handlers) caller(c *gin.Context) (identity.Identity, bool) {
	ident, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Authentication required",
			"code":  "UNAUTHORIZED",
		})
	}
	return ident, ok
}
