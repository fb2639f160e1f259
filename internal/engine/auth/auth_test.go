package auth_test

import (
	"errors"
	"testing"

	"fieldline/internal/engine/auth"
)

func TestRankOrdering(t *testing.T) {
	roles := auth.Roles()
	for i := 1; i < len(roles); i++ {
		if auth.Rank(roles[i-1]) >= auth.Rank(roles[i]) {
			t.Fatalf("rank of %s should be below %s", roles[i-1], roles[i])
		}
	}
	if auth.Rank("Janitor") != 0 {
		t.Fatalf("unknown role should rank 0, got %d", auth.Rank("Janitor"))
	}
}

func TestAuthorize(t *testing.T) {
	cases := []struct {
		actor    auth.Role
		required auth.Role
		allowed  bool
	}{
		{auth.RoleEmployee, auth.RoleEmployee, true},
		{auth.RoleEmployee, auth.RoleDispatcher, false},
		{auth.RoleDispatcher, auth.RoleDispatcher, true},
		{auth.RoleDispatcher, auth.RoleOfficeAdmin, false},
		{auth.RoleOfficeAdmin, auth.RoleDispatcher, true},
		{auth.RoleOfficeAdmin, auth.RoleOfficeAdmin, true},
		{auth.RoleOfficeAdmin, auth.RoleSuperAdmin, false},
		{auth.RoleSuperAdmin, auth.RoleOfficeAdmin, true},
		{auth.RoleSuperAdmin, auth.RoleSuperAdmin, true},
		{"Janitor", auth.RoleEmployee, false},
		{"", auth.RoleEmployee, false},
	}
	for _, tc := range cases {
		err := auth.Authorize(tc.actor, tc.required)
		if tc.allowed && err != nil {
			t.Errorf("Authorize(%q, %q): unexpected denial: %v", tc.actor, tc.required, err)
		}
		if !tc.allowed {
			var denied auth.AccessDeniedError
			if !errors.As(err, &denied) {
				t.Errorf("Authorize(%q, %q): expected AccessDeniedError, got %v", tc.actor, tc.required, err)
			} else if denied.Required != tc.required {
				t.Errorf("Authorize(%q, %q): denial names %q", tc.actor, tc.required, denied.Required)
			}
		}
	}
}

func TestCanAssign(t *testing.T) {
	if !auth.CanAssign(auth.RoleSuperAdmin, auth.RoleSuperAdmin) {
		t.Fatal("super admin should assign super admin")
	}
	if !auth.CanAssign(auth.RoleOfficeAdmin, auth.RoleDispatcher) {
		t.Fatal("office admin should assign dispatcher")
	}
	if auth.CanAssign(auth.RoleDispatcher, auth.RoleOfficeAdmin) {
		t.Fatal("dispatcher must not assign office admin")
	}
	if auth.CanAssign(auth.RoleSuperAdmin, "Janitor") {
		t.Fatal("unknown target role must never be assignable")
	}
}
