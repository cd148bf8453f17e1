package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityhop/ride-hailing/internal/domain/identity"
)

const testSecret = "test-secret"

func TestTokenRoundTrip(t *testing.T) {
	auth := NewAuth(testSecret, time.Hour)
	userID := uuid.New()

	token, err := auth.GenerateToken(userID, identity.RoleDriver)
	require.NoError(t, err)

	ident, err := auth.ValidateToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, userID, ident.UserID)
	assert.Equal(t, identity.RoleDriver, ident.Role)

	// bare token without the Bearer prefix also parses
	ident, err = auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, ident.UserID)
}

func TestValidateToken_Rejections(t *testing.T) {
	auth := NewAuth(testSecret, time.Hour)

	_, err := auth.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewAuth("different-secret", time.Hour)
	token, err := other.GenerateToken(uuid.New(), identity.RoleRider)
	require.NoError(t, err)
	_, err = auth.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewAuth(testSecret, -time.Minute)
	token, err = expired.GenerateToken(uuid.New(), identity.RoleRider)
	require.NoError(t, err)
	_, err = auth.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestAuthenticate_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := NewAuth(testSecret, time.Hour)

	router := gin.New()
	router.GET("/ping", auth.Authenticate(), func(c *gin.Context) {
		ident, ok := IdentityFromContext(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"user_id": ident.UserID})
	})

	// no token
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// header token
	token, err := auth.GenerateToken(uuid.New(), identity.RoleRider)
	require.NoError(t, err)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// query token, the websocket path
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/ping?token="+token, nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPermissionTable(t *testing.T) {
	tests := []struct {
		op      Operation
		role    identity.Role
		allowed bool
	}{
		{OpRequestRide, identity.RoleRider, true},
		{OpRequestRide, identity.RoleDriver, false},
		{OpAcceptRide, identity.RoleDriver, true},
		{OpAcceptRide, identity.RoleRider, false},
		{OpAdvanceRide, identity.RoleAdmin, false},
		{OpCancelRide, identity.RoleRider, true},
		{OpCancelRide, identity.RoleDriver, true},
		{OpCancelRide, identity.RoleAdmin, true},
		{OpRateRide, identity.RoleDriver, false},
		{OpListAllRides, identity.RoleAdmin, true},
		{OpListAllRides, identity.RoleRider, false},
		{OpCreateProfile, identity.RoleDriver, true},
		{OpCreateProfile, identity.RoleAdmin, false},
		{OpListOnline, identity.RoleAdmin, true},
		{OpListOnline, identity.RoleRider, false},
		{OpListOnline, identity.RoleDriver, false},
		{OpAddEarning, identity.RoleAdmin, true},
		{OpAddEarning, identity.RoleDriver, false},
		{OpUpdateStats, identity.RoleDriver, false},
		{OpUpdateStats, identity.RoleAdmin, true},
		{OpDeleteDriver, identity.RoleAdmin, true},
		{OpRecomputeRating, identity.RoleAdmin, true},
		{OpRecomputeRating, identity.RoleDriver, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.op)+"/"+string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.allowed, Allowed(tt.op, tt.role))
		})
	}
}

func TestRequire_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := NewAuth(testSecret, time.Hour)

	router := gin.New()
	router.POST("/rides/request", auth.Authenticate(), Require(OpRequestRide), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	riderToken, err := auth.GenerateToken(uuid.New(), identity.RoleRider)
	require.NoError(t, err)
	driverToken, err := auth.GenerateToken(uuid.New(), identity.RoleDriver)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rides/request", nil)
	req.Header.Set("Authorization", "Bearer "+riderToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/rides/request", nil)
	req.Header.Set("Authorization", "Bearer "+driverToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
