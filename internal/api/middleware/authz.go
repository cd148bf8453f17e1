package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cityhop/ride-hailing/internal/domain/identity"
)

// Operation names an API capability checked at the route boundary
type Operation string

const (
	OpRequestRide     Operation = "ride:request"
	OpAcceptRide      Operation = "ride:accept"
	OpAdvanceRide     Operation = "ride:advance"
	OpCancelRide      Operation = "ride:cancel"
	OpRateRide        Operation = "ride:rate"
	OpViewRide        Operation = "ride:view"
	OpViewHistory     Operation = "ride:history"
	OpListAvailable   Operation = "ride:list_available"
	OpListAllRides    Operation = "ride:list_all"
	OpCreateProfile   Operation = "driver:create_profile"
	OpSetOnlineStatus Operation = "driver:set_status"
	OpUpdateLocation  Operation = "driver:update_location"
	OpViewDashboard   Operation = "driver:dashboard"
	OpViewEarnings    Operation = "driver:earnings"
	OpViewStats       Operation = "driver:stats"
	OpListOnline      Operation = "driver:list_online"
	OpListAllDrivers  Operation = "driver:list_all"
	OpAddEarning      Operation = "driver:add_earning"
	OpUpdateStats     Operation = "driver:update_stats"
	OpDeleteDriver    Operation = "driver:delete"
	OpRecomputeRating Operation = "driver:recompute_rating"
)

// permissions maps each operation to the roles allowed to call it.
// The table is the single authorization decision point; handlers only
// re-check ownership, never role.
var permissions = map[Operation][]identity.Role{
	OpRequestRide:     {identity.RoleRider},
	OpAcceptRide:      {identity.RoleDriver},
	OpAdvanceRide:     {identity.RoleDriver},
	OpCancelRide:      {identity.RoleRider, identity.RoleDriver, identity.RoleAdmin},
	OpRateRide:        {identity.RoleRider},
	OpViewRide:        {identity.RoleRider, identity.RoleDriver, identity.RoleAdmin},
	OpViewHistory:     {identity.RoleRider, identity.RoleDriver},
	OpListAvailable:   {identity.RoleDriver},
	OpListAllRides:    {identity.RoleAdmin},
	OpCreateProfile:   {identity.RoleDriver},
	OpSetOnlineStatus: {identity.RoleDriver},
	OpUpdateLocation:  {identity.RoleDriver},
	OpViewDashboard:   {identity.RoleDriver},
	OpViewEarnings:    {identity.RoleDriver},
	OpViewStats:       {identity.RoleDriver},
	OpListOnline:      {identity.RoleAdmin},
	OpListAllDrivers:  {identity.RoleAdmin},
	OpAddEarning:      {identity.RoleAdmin},
	OpUpdateStats:     {identity.RoleAdmin},
	OpDeleteDriver:    {identity.RoleAdmin},
	OpRecomputeRating: {identity.RoleAdmin},
}

// Allowed reports whether a role may perform an operation
func Allowed(op Operation, role identity.Role) bool {
	for _, allowed := range permissions[op] {
		if allowed == role {
			return true
		}
	}
	return false
}

// Require returns a gin middleware rejecting callers whose role is not
// permitted to perform the operation. Must run after Authenticate.
func Require(op Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := IdentityFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
				"code":  "UNAUTHORIZED",
			})
			return
		}

		if !Allowed(op, ident.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient permissions",
				"code":  "FORBIDDEN",
			})
			return
		}

		c.Next()
	}
}
