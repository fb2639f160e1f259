package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"fieldline/internal/domain"
	"fieldline/internal/engine/auth"
	"fieldline/internal/events"
	"fieldline/internal/repo"
)

// Register creates a new user account. Registration is open; the role is
// chosen by the caller, as installations gate sign-up at the network edge.
func (e Engine) Register(ctx context.Context, username, password string, role auth.Role) (domain.User, error) {
	if username == "" {
		return domain.User{}, InvalidInputError{Field: "username", Reason: "must not be empty"}
	}
	if password == "" {
		return domain.User{}, InvalidInputError{Field: "password", Reason: "must not be empty"}
	}
	if !auth.Known(role) {
		return domain.User{}, InvalidInputError{Field: "role", Reason: fmt.Sprintf("unknown role %q", role)}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	u := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         string(role),
		CreatedAt:    e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		if repo.IsUniqueViolation(err) {
			return domain.User{}, ErrDuplicateUsername
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "user.registered", "user", u.ID, u.ID, events.EventPayload{"role": u.Role}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Authenticate checks a username/password pair. An unknown username and a
// wrong password fail identically.
func (e Engine) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByUsername(ctx, username)
	if err != nil {
		if err == repo.ErrNotFound {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// SetUserRole changes another user's role. The actor must hold a role
// ranking at least as high as the role being granted.
func (e Engine) SetUserRole(ctx context.Context, actor Actor, userID string, role auth.Role) (domain.User, error) {
	if !auth.CanAssign(actor.Role, role) {
		if !auth.Known(role) {
			return domain.User{}, InvalidInputError{Field: "role", Reason: fmt.Sprintf("unknown role %q", role)}
		}
		return domain.User{}, auth.AccessDeniedError{Required: role}
	}
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateUserRole(ctx, tx, userID, string(role)); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, "user.role.set", "user", userID, actor.ID, events.EventPayload{
		"from": u.Role,
		"to":   string(role),
	}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	u.Role = string(role)
	return u, nil
}

// GetUser loads a user by id. Requires Office Admin.
func (e Engine) GetUser(ctx context.Context, actor Actor, userID string) (domain.User, error) {
	if err := auth.Authorize(actor.Role, auth.RoleOfficeAdmin); err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, userID)
}

// ListUsers returns all accounts. Requires Office Admin.
func (e Engine) ListUsers(ctx context.Context, actor Actor) ([]domain.User, error) {
	if err := auth.Authorize(actor.Role, auth.RoleOfficeAdmin); err != nil {
		return nil, err
	}
	return e.Repo.ListUsers(ctx)
}
