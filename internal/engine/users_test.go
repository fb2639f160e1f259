package engine_test

import (
	"errors"
	"testing"

	"fieldline/internal/engine"
	"fieldline/internal/engine/auth"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.Engine.Register(env.Ctx, "alice", "s3cret", auth.RoleOfficeAdmin)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Role != string(auth.RoleOfficeAdmin) || u.ID == "" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.PasswordHash == "s3cret" {
		t.Fatal("password stored in clear")
	}

	got, err := env.Engine.Authenticate(env.Ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("authenticated wrong user: %+v", got)
	}

	if _, err := env.Engine.Authenticate(env.Ctx, "alice", "wrong"); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "nobody", "s3cret"); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("unknown user: got %v", err)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Register(env.Ctx, "alice", "pw1", auth.RoleEmployee); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := env.Engine.Register(env.Ctx, "alice", "pw2", auth.RoleDispatcher); !errors.Is(err, engine.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	var invalid engine.InvalidInputError
	if _, err := env.Engine.Register(env.Ctx, "", "pw", auth.RoleEmployee); !errors.As(err, &invalid) {
		t.Fatalf("empty username: got %v", err)
	}
	if _, err := env.Engine.Register(env.Ctx, "bob", "", auth.RoleEmployee); !errors.As(err, &invalid) {
		t.Fatalf("empty password: got %v", err)
	}
	if _, err := env.Engine.Register(env.Ctx, "bob", "pw", "Janitor"); !errors.As(err, &invalid) {
		t.Fatalf("unknown role: got %v", err)
	}
}

func TestSetUserRole(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.Engine.Register(env.Ctx, "bob", "pw", auth.RoleEmployee)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// Office Admin can hand out roles up to their own rank.
	got, err := env.Engine.SetUserRole(env.Ctx, admin, u.ID, auth.RoleDispatcher)
	if err != nil {
		t.Fatalf("set role: %v", err)
	}
	if got.Role != string(auth.RoleDispatcher) {
		t.Fatalf("role = %q", got.Role)
	}

	// But never above it.
	var denied auth.AccessDeniedError
	if _, err := env.Engine.SetUserRole(env.Ctx, admin, u.ID, auth.RoleSuperAdmin); !errors.As(err, &denied) {
		t.Fatalf("expected denial granting Super Admin, got %v", err)
	}
	if _, err := env.Engine.SetUserRole(env.Ctx, dispatcher, u.ID, auth.RoleOfficeAdmin); !errors.As(err, &denied) {
		t.Fatalf("expected denial for dispatcher, got %v", err)
	}

	super := engine.Actor{ID: "root", Role: auth.RoleSuperAdmin}
	if _, err := env.Engine.SetUserRole(env.Ctx, super, u.ID, auth.RoleSuperAdmin); err != nil {
		t.Fatalf("super admin grant: %v", err)
	}
}
