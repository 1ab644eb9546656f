package access

import "github.com/tbledger/apiserver/types"

// FieldSet is a set of account form fields.
type FieldSet map[types.AccountField]bool

// Has reports whether field is in the set.
func (s FieldSet) Has(field types.AccountField) bool {
	return s[field]
}

// Len returns the number of fields in the set.
func (s FieldSet) Len() int {
	return len(s)
}

// readOnlyByRole maps each role to the account fields its members may see
// but not change.
var readOnlyByRole = map[types.Role][]types.AccountField{
	types.RoleRestricted: {types.FieldName, types.FieldNumber, types.FieldOpeningBalance},
	types.RoleFullAccess: nil,
}

// ReadOnlyFields returns the account fields id may not change. It is the
// union of the read-only fields of every role id holds; superusers may
// change every field.
func ReadOnlyFields(id Identity) FieldSet {
	fields := FieldSet{}
	if id.Superuser {
		return fields
	}
	for _, role := range id.Roles {
		for _, field := range readOnlyByRole[role] {
			fields[field] = true
		}
	}
	return fields
}
