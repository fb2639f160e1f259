package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fieldline/internal/domain"
	"fieldline/internal/engine/auth"
	"fieldline/internal/repo"
)

// CreateAPIKey mints a key bound to the actor's account and returns the raw
// secret once; only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actor Actor, name string) (domain.APIKey, string, error) {
	if err := auth.Authorize(actor.Role, auth.RoleEmployee); err != nil {
		return domain.APIKey{}, "", err
	}
	raw := uuid.NewString()
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actor.ID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, raw, nil
}

// ResolveAPIKey maps a raw key to the account that owns it.
func (e Engine) ResolveAPIKey(ctx context.Context, raw string) (domain.User, error) {
	key, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(raw))
	if err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, key.ActorID)
}

// ListAPIKeys returns the actor's keys. Super Admin sees every key.
func (e Engine) ListAPIKeys(ctx context.Context, actor Actor) ([]domain.APIKey, error) {
	if err := auth.Authorize(actor.Role, auth.RoleEmployee); err != nil {
		return nil, err
	}
	if actor.Role == auth.RoleSuperAdmin {
		return e.Repo.ListAPIKeys(ctx, "")
	}
	return e.Repo.ListAPIKeys(ctx, actor.ID)
}

// DeleteAPIKey revokes a key. Owners revoke their own; Super Admin any.
func (e Engine) DeleteAPIKey(ctx context.Context, actor Actor, id string) error {
	if actor.Role != auth.RoleSuperAdmin {
		keys, err := e.Repo.ListAPIKeys(ctx, actor.ID)
		if err != nil {
			return err
		}
		owned := false
		for _, k := range keys {
			if k.ID == id {
				owned = true
				break
			}
		}
		if !owned {
			return auth.AccessDeniedError{Required: auth.RoleSuperAdmin}
		}
	}
	return e.Repo.DeleteAPIKey(ctx, id)
}

// TailEvents returns the newest audit events, optionally filtered.
func (e Engine) TailEvents(ctx context.Context, actor Actor, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if err := auth.Authorize(actor.Role, auth.RoleOfficeAdmin); err != nil {
		return nil, err
	}
	return e.Repo.LatestEvents(ctx, limit, evtType, entityKind, entityID)
}
