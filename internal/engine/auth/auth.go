package auth

import "fmt"

// Role is a position in the fixed authorization hierarchy.
type Role string

const (
	RoleEmployee    Role = "Employee"
	RoleDispatcher  Role = "Dispatcher"
	RoleOfficeAdmin Role = "Office Admin"
	RoleSuperAdmin  Role = "Super Admin"
)

var ranks = map[Role]int{
	RoleEmployee:    1,
	RoleDispatcher:  2,
	RoleOfficeAdmin: 3,
	RoleSuperAdmin:  4,
}

// Rank returns the role's position in the hierarchy. Unknown roles rank 0,
// below every real role, so an unrecognized actor role is always denied.
// Callers must never pass an unranked role as a requirement.
func Rank(r Role) int {
	return ranks[r]
}

// Known reports whether r is one of the defined roles.
func Known(r Role) bool {
	_, ok := ranks[r]
	return ok
}

// Roles lists the defined roles from lowest to highest rank.
func Roles() []Role {
	return []Role{RoleEmployee, RoleDispatcher, RoleOfficeAdmin, RoleSuperAdmin}
}

// AccessDeniedError indicates the actor's role ranks below the requirement.
type AccessDeniedError struct {
	Required Role
}

func (e AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: role %s or above required", e.Required)
}

// Authorize allows an action iff the actor's rank is at least the required
// rank. It is side-effect-free; a denial must mean no mutation happened.
func Authorize(actor, required Role) error {
	if Rank(actor) >= Rank(required) {
		return nil
	}
	return AccessDeniedError{Required: required}
}

// CanAssign reports whether an actor may hand out the target role. Assigning
// requires holding a rank at least as high as the role being assigned.
func CanAssign(actor, target Role) bool {
	return Known(target) && Rank(actor) >= Rank(target)
}
