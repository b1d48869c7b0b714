package models

import (
	"database/sql/driver"
	"time"

	"github.com/lib/pq"
)

// UserRole represents the available roles for the authorization gate.
type UserRole string

const (
	RoleUser       UserRole = "USER"
	RoleAdmin      UserRole = "ADMIN"
	RoleTechnician UserRole = "TECHNICIAN"
	RoleManager    UserRole = "MANAGER"
)

// ValidRole reports whether the raw value names a known role.
func ValidRole(raw string) bool {
	switch UserRole(raw) {
	case RoleUser, RoleAdmin, RoleTechnician, RoleManager:
		return true
	default:
		return false
	}
}

// RoleSet is the set of roles held by a user, stored as a text array.
type RoleSet []UserRole

// Has reports whether the set contains the given role.
func (s RoleSet) Has(role UserRole) bool {
	for _, r := range s {
		if r == role {
			return true
		}
	}
	return false
}

// Strings returns the set as plain strings for token claims and responses.
func (s RoleSet) Strings() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = string(r)
	}
	return out
}

// Value implements driver.Valuer.
func (s RoleSet) Value() (driver.Value, error) {
	return pq.Array(s.Strings()).Value()
}

// Scan implements sql.Scanner.
func (s *RoleSet) Scan(src interface{}) error {
	var raw pq.StringArray
	if err := raw.Scan(src); err != nil {
		return err
	}
	roles := make(RoleSet, len(raw))
	for i, r := range raw {
		roles[i] = UserRole(r)
	}
	*s = roles
	return nil
}

// AuthProvider identifies how an account was created.
const (
	ProviderLocal  = "LOCAL"
	ProviderGoogle = "GOOGLE"
)

// User represents an application user stored in the users table.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Name         string    `db:"name" json:"name"`
	AvatarURL    *string   `db:"avatar_url" json:"avatarUrl,omitempty"`
	Provider     string    `db:"provider" json:"provider"`
	ProviderID   *string   `db:"provider_id" json:"-"`
	Roles        RoleSet   `db:"roles" json:"roles"`
	Enabled      bool      `db:"enabled" json:"enabled"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
