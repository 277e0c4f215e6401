// Package auth issues and validates the bearer tokens that guard the admin
// API.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in tokens.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// Claims are the JWT claims of an admin API token.
type Claims struct {
	jwt.RegisteredClaims

	// Role is "admin" or "viewer". Viewers may read stats only.
	Role string `json:"role"`
}

func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}
