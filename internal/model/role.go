package model

import "fmt"

// Role is the single authority for what an account may do.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RolePatient   Role = "patient"
)

// Capability names an action guarded by role.
type Capability string

const (
	CapViewOwnActivity  Capability = "view_own_activity"
	CapViewAllActivity  Capability = "view_all_activity"
	CapModerateAccounts Capability = "moderate_accounts"
	CapManageAccounts   Capability = "manage_accounts"
)

var roleCapabilities = map[Role][]Capability{
	RoleAdmin: {
		CapViewOwnActivity,
		CapViewAllActivity,
		CapModerateAccounts,
		CapManageAccounts,
	},
	RoleModerator: {
		CapViewOwnActivity,
		CapViewAllActivity,
		CapModerateAccounts,
	},
	RolePatient: {
		CapViewOwnActivity,
	},
}

// Can reports whether r grants c. Unknown roles grant nothing.
func (r Role) Can(c Capability) bool {
	for _, granted := range roleCapabilities[r] {
		if granted == c {
			return true
		}
	}
	return false
}

func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// ParseRole converts a stored or requested role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
