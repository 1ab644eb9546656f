package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tbledger/apiserver/types"
)

func TestAllowed(t *testing.T) {
	anonymous := Identity{}
	restricted := Identity{UserID: 1, Roles: []types.Role{types.RoleRestricted}}
	full := Identity{UserID: 2, Roles: []types.Role{types.RoleFullAccess}}
	both := Identity{UserID: 3, Roles: []types.Role{types.RoleRestricted, types.RoleFullAccess}}
	superuser := Identity{UserID: 4, Superuser: true}

	cases := []struct {
		name   string
		id     Identity
		action Action
		want   bool
	}{
		{"anonymous view", anonymous, ActionView, false},
		{"anonymous create", anonymous, ActionCreate, false},
		{"restricted view", restricted, ActionView, true},
		{"restricted export", restricted, ActionExport, true},
		{"restricted create", restricted, ActionCreate, false},
		{"restricted update", restricted, ActionUpdate, false},
		{"restricted delete", restricted, ActionDelete, false},
		{"full create", full, ActionCreate, true},
		{"full update", full, ActionUpdate, true},
		{"full delete", full, ActionDelete, true},
		{"both update", both, ActionUpdate, true},
		{"superuser without group", superuser, ActionDelete, false},
		{"superuser view", superuser, ActionView, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Allowed(tc.id, tc.action))
		})
	}
}

func TestReadOnlyFields(t *testing.T) {
	restricted := ReadOnlyFields(Identity{UserID: 1, Roles: []types.Role{types.RoleRestricted}})
	assert.Equal(t, 3, restricted.Len())
	assert.True(t, restricted.Has(types.FieldName))
	assert.True(t, restricted.Has(types.FieldNumber))
	assert.True(t, restricted.Has(types.FieldOpeningBalance))
	assert.False(t, restricted.Has(types.FieldActivity))

	both := ReadOnlyFields(Identity{UserID: 1, Roles: []types.Role{types.RoleFullAccess, types.RoleRestricted}})
	assert.Equal(t, 3, both.Len())

	full := ReadOnlyFields(Identity{UserID: 2, Roles: []types.Role{types.RoleFullAccess}})
	assert.Zero(t, full.Len())

	superuser := ReadOnlyFields(Identity{UserID: 3, Superuser: true, Roles: []types.Role{types.RoleRestricted}})
	assert.Zero(t, superuser.Len())
}

func TestIdentityFor(t *testing.T) {
	user := types.User{ID: 7, Username: "user_1", IsSuperuser: true, Roles: []types.Role{types.RoleFullAccess}}
	id := IdentityFor(user)

	assert.True(t, id.Authenticated())
	assert.Equal(t, "user_1", id.Username)
	assert.True(t, id.Superuser)
	assert.True(t, id.HasRole(types.RoleFullAccess))

	user.Roles[0] = types.RoleRestricted
	assert.True(t, id.HasRole(types.RoleFullAccess))
}
