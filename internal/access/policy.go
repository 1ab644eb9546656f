// Package access decides what an authenticated identity may do with the
// trial balance: which actions it may run and which account fields it may
// change.
package access

import "github.com/tbledger/apiserver/types"

// Action is an operation on the trial balance that may be gated.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionExport Action = "export"
)

// Identity is the authenticated caller of a request.
// The zero value is an anonymous identity.
type Identity struct {
	UserID    int
	Username  string
	Roles     []types.Role
	Superuser bool
}

// IdentityFor builds the identity of a stored user.
func IdentityFor(user types.User) Identity {
	roles := make([]types.Role, len(user.Roles))
	copy(roles, user.Roles)
	return Identity{
		UserID:    user.ID,
		Username:  user.Username,
		Roles:     roles,
		Superuser: user.IsSuperuser,
	}
}

// Authenticated reports whether the identity belongs to a signed-in user.
func (id Identity) Authenticated() bool {
	return id.UserID > 0
}

// HasRole reports whether the identity holds role.
func (id Identity) HasRole(role types.Role) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// requiredRole lists the gated actions. Actions missing from the table
// only require an authenticated identity.
var requiredRole = map[Action]types.Role{
	ActionCreate: types.RoleFullAccess,
	ActionUpdate: types.RoleFullAccess,
	ActionDelete: types.RoleFullAccess,
}

// Allowed reports whether id may perform action.
func Allowed(id Identity, action Action) bool {
	if !id.Authenticated() {
		return false
	}
	role, gated := requiredRole[action]
	if !gated {
		return true
	}
	return id.HasRole(role)
}
