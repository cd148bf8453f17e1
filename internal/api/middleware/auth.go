// Package middleware holds the authentication and authorization layer
// shared by every API route.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cityhop/ride-hailing/internal/domain/identity"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

const identityContextKey = "identity"

// Claims carries the authenticated user's identity inside the JWT
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth validates JWT bearer tokens and stores the caller's identity
// in the request context.
type Auth struct {
	secret []byte
	expiry time.Duration
}

// NewAuth creates the authentication middleware
func NewAuth(secret string, expiry time.Duration) *Auth {
	return &Auth{
		secret: []byte(secret),
		expiry: expiry,
	}
}

// GenerateToken issues a signed token for a user. Exposed for tests
// and for a future login endpoint.
func (a *Auth) GenerateToken(userID uuid.UUID, role identity.Role) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken parses a bearer token and returns the caller's identity
func (a *Auth) ValidateToken(tokenString string) (identity.Identity, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return identity.Identity{}, ErrExpiredToken
		}
		return identity.Identity{}, ErrInvalidToken
	}
	if !token.Valid {
		return identity.Identity{}, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return identity.Identity{}, ErrInvalidToken
	}

	role := identity.Role(claims.Role)
	if !role.IsValid() {
		return identity.Identity{}, ErrInvalidToken
	}

	return identity.Identity{UserID: userID, Role: role}, nil
}

// Authenticate is the gin middleware enforcing a valid bearer token
func (a *Auth) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			// Token may also arrive as a query parameter for websocket
			// clients that cannot set headers.
			header = c.Query("token")
		}
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
				"code":  "UNAUTHORIZED",
			})
			return
		}

		ident, err := a.ValidateToken(header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
				"code":  "UNAUTHORIZED",
			})
			return
		}

		c.Set(identityContextKey, ident)
		c.Next()
	}
}

// IdentityFromContext extracts the authenticated identity set by Authenticate
func IdentityFromContext(c *gin.Context) (identity.Identity, bool) {
	v, ok := c.Get(identityContextKey)
	if !ok {
		return identity.Identity{}, false
	}
	ident, ok := v.(identity.Identity)
	return ident, ok
}
