package types

import (
	"fmt"
	"time"
)

// Role is a named permission group a user can belong to.
type Role string

const (
	// RoleRestricted is assigned to every newly registered user. Members
	// may only edit the activity of an account.
	RoleRestricted Role = "new_hire_permissions"

	// RoleFullAccess is required to create, update or delete accounts.
	RoleFullAccess Role = "all_permissions"
)

// Roles lists every role known to the application.
var Roles = []Role{RoleRestricted, RoleFullAccess}

// ParseRole maps a stored group name to a Role.
func ParseRole(name string) (Role, error) {
	for _, role := range Roles {
		if string(role) == name {
			return role, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", name)
}

// User represents a person who can sign in to the ledger.
// It contains identity, group membership, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's email address.
	Email string `json:"email" db:"email"`

	// IsSuperuser grants every account field regardless of roles.
	IsSuperuser bool `json:"is_superuser" db:"is_superuser"`

	// Roles holds the groups the user belongs to.
	Roles []Role `json:"roles" db:"-"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasRole reports whether the user belongs to role.
func (u User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
