package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Principal is the authenticated caller passed explicitly into every
// service operation. Roles are the sole authorization input; USER-level
// permissions are implicit for any authenticated principal.
type Principal struct {
	ID    string
	Email string
	Name  string
	Roles RoleSet
}

// IsAdmin reports whether the principal holds the ADMIN role.
func (p Principal) IsAdmin() bool {
	return p.Roles.Has(RoleAdmin)
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest creates a LOCAL account with the baseline USER role.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// GoogleAuthRequest exchanges a Google ID token for a session token.
type GoogleAuthRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

// UpdateRolesRequest replaces a user's role set.
type UpdateRolesRequest struct {
	Roles []string `json:"roles" validate:"required,min=1"`
}

// AuthResponse returns the issued token and user info.
type AuthResponse struct {
	Token     string   `json:"token"`
	UserID    string   `json:"userId"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	AvatarURL *string  `json:"avatarUrl,omitempty"`
	Roles     []string `json:"roles"`
	ExpiresIn int64    `json:"expiresIn"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// Principal converts token claims into the per-request principal.
func (c *JWTClaims) Principal() Principal {
	roles := make(RoleSet, 0, len(c.Roles))
	for _, r := range c.Roles {
		roles = append(roles, UserRole(r))
	}
	return Principal{ID: c.UserID, Email: c.Email, Name: c.Name, Roles: roles}
}
