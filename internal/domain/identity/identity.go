// Package identity carries the verified caller identity handed over by the
// authentication gateway. The core never performs credential checks; it
// only consumes a resolved {userId, role} pair.
package identity

import "github.com/google/uuid"

// Role is the caller's role as asserted by the identity gateway
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
)

// IsValid validates the role value
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleRider, RoleDriver:
		return true
	}
	return false
}

// Identity is a verified caller
type Identity struct {
	UserID uuid.UUID
	Role   Role
}
