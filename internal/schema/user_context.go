package schema

// Role is a user's access level within one project. It is derived per
// (user, project) pair, never stored on the user directly except for the
// global super admin flag.
type Role string

const (
	RoleNone              Role = ""
	RoleProjectAdmin      Role = "projectAdmin"
	RoleProjectSuperAdmin Role = "projectSuperAdmin"
	RoleSuperAdmin        Role = "superAdmin"
)

var roleRank = map[Role]int{
	RoleNone:              0,
	RoleProjectAdmin:      1,
	RoleProjectSuperAdmin: 2,
	RoleSuperAdmin:        3,
}

// AtLeast reports whether the role grants at least the given level.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min]
}

// CanMutate reports whether the role may create, edit or delete.
// projectAdmin is read-only.
func (r Role) CanMutate() bool {
	return r.AtLeast(RoleProjectSuperAdmin)
}

// UserContext represents the authenticated admin, set by auth middleware.
type UserContext struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	SuperAdmin bool   `json:"superAdmin"`
}
