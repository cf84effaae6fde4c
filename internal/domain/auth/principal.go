package auth

import "slices"

// Role is the organisation-wide role carried in access tokens. Stage
// approval rights are granted separately per project.
type Role string

const (
	RoleEmployee       Role = "employee"
	RoleProjectManager Role = "project_manager"
	RoleHRManager      Role = "hr_manager"
	RoleSystemAdmin    Role = "system_admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleProjectManager, RoleHRManager, RoleSystemAdmin:
		return true
	}
	return false
}

// Principal is the authenticated caller. Employees are users, so UserID is
// also the employee ID on timesheets.
type Principal struct {
	UserID string
	Role   Role
}

// Is reports whether the principal holds any of roles.
func (p Principal) Is(roles ...Role) bool {
	return slices.Contains(roles, p.Role)
}
