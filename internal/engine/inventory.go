package engine

import (
	"context"
	"fmt"
	"time"

	"fieldline/internal/domain"
	"fieldline/internal/engine/auth"
	"fieldline/internal/events"
)

// InventoryItemOptions carry the caller-supplied fields for an inventory
// item. TaskID is a weak reference: it is stored as given and never checked
// against the tasks table, so stock can be staged before its task exists.
type InventoryItemOptions struct {
	Name     string
	Quantity int
	Location string
	TaskID   *int64
}

func validateInventoryOptions(opts InventoryItemOptions) error {
	if opts.Name == "" {
		return InvalidInputError{Field: "name", Reason: "must not be empty"}
	}
	if opts.Quantity < 0 {
		return InvalidInputError{Field: "quantity", Reason: "must not be negative"}
	}
	return nil
}

// CreateInventoryItem records a stock item. Requires Office Admin.
func (e Engine) CreateInventoryItem(ctx context.Context, actor Actor, opts InventoryItemOptions) (domain.InventoryItem, error) {
	if err := auth.Authorize(actor.Role, auth.RoleOfficeAdmin); err != nil {
		return domain.InventoryItem{}, err
	}
	if err := validateInventoryOptions(opts); err != nil {
		return domain.InventoryItem{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	defer tx.Rollback()

	item := domain.InventoryItem{
		Name:      opts.Name,
		Quantity:  opts.Quantity,
		Location:  opts.Location,
		TaskID:    opts.TaskID,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	id, err := e.Repo.InsertInventoryItem(ctx, tx, item)
	if err != nil {
		return domain.InventoryItem{}, fmt.Errorf("insert inventory item: %w", err)
	}
	item.ID = id
	if err := e.Events.Append(ctx, tx, "inventory.created", "inventory_item", fmt.Sprint(id), actor.ID, events.EventPayload{
		"name":     item.Name,
		"quantity": item.Quantity,
	}); err != nil {
		return domain.InventoryItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.InventoryItem{}, err
	}
	return item, nil
}

// UpdateInventoryItem overwrites a stock item. Requires Office Admin.
func (e Engine) UpdateInventoryItem(ctx context.Context, actor Actor, id int64, opts InventoryItemOptions) (domain.InventoryItem, error) {
	if err := auth.Authorize(actor.Role, auth.RoleOfficeAdmin); err != nil {
		return domain.InventoryItem{}, err
	}
	existing, err := e.Repo.GetInventoryItem(ctx, id)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	if err := validateInventoryOptions(opts); err != nil {
		return domain.InventoryItem{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	defer tx.Rollback()

	item := domain.InventoryItem{
		ID:        id,
		Name:      opts.Name,
		Quantity:  opts.Quantity,
		Location:  opts.Location,
		TaskID:    opts.TaskID,
		CreatedAt: existing.CreatedAt,
	}
	if err := e.Repo.UpdateInventoryItem(ctx, tx, item); err != nil {
		return domain.InventoryItem{}, err
	}
	if err := e.Events.Append(ctx, tx, "inventory.updated", "inventory_item", fmt.Sprint(id), actor.ID, events.EventPayload{
		"quantity": item.Quantity,
	}); err != nil {
		return domain.InventoryItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.InventoryItem{}, err
	}
	return item, nil
}

// DeleteInventoryItem removes a stock item. Requires Office Admin.
func (e Engine) DeleteInventoryItem(ctx context.Context, actor Actor, id int64) error {
	if err := auth.Authorize(actor.Role, auth.RoleOfficeAdmin); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteInventoryItem(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "inventory.deleted", "inventory_item", fmt.Sprint(id), actor.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// GetInventoryItem loads one stock item. Requires Office Admin.
func (e Engine) GetInventoryItem(ctx context.Context, actor Actor, id int64) (domain.InventoryItem, error) {
	if err := auth.Authorize(actor.Role, auth.RoleOfficeAdmin); err != nil {
		return domain.InventoryItem{}, err
	}
	return e.Repo.GetInventoryItem(ctx, id)
}

// ListInventoryItems returns all stock items. Requires Office Admin.
func (e Engine) ListInventoryItems(ctx context.Context, actor Actor) ([]domain.InventoryItem, error) {
	if err := auth.Authorize(actor.Role, auth.RoleOfficeAdmin); err != nil {
		return nil, err
	}
	return e.Repo.ListInventoryItems(ctx)
}
