package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"fieldline/internal/domain"
	"fieldline/internal/engine/auth"
	"fieldline/internal/events"
)

// EstimateOptions carry the caller-supplied fields for an estimate or an
// invoice; both aggregate the same shape over a set of tasks.
type EstimateOptions struct {
	TaskIDs []int64
	Total   float64
	Region  string
	Store   string
	Manager string
}

func (e Engine) validateEstimateOptions(ctx context.Context, opts EstimateOptions) error {
	if len(opts.TaskIDs) == 0 {
		return InvalidInputError{Field: "task_ids", Reason: "must reference at least one task"}
	}
	if opts.Total < 0 {
		return InvalidInputError{Field: "total", Reason: "must not be negative"}
	}
	for _, id := range opts.TaskIDs {
		ok, err := e.Repo.TaskExists(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return InvalidInputError{Field: "task_ids", Reason: fmt.Sprintf("task %d does not exist", id)}
		}
	}
	return nil
}

// checkEstimateTotal recomputes the sum of estimated costs for the referenced
// tasks and compares it with the caller's total, when recompute is on.
func (e Engine) checkEstimateTotal(ctx context.Context, opts EstimateOptions) error {
	if !e.Config.Aggregation.Recompute {
		return nil
	}
	var sum float64
	for _, id := range opts.TaskIDs {
		t, err := e.Repo.GetTask(ctx, id)
		if err != nil {
			return err
		}
		sum += t.EstimatedCost
	}
	if math.Abs(sum-opts.Total) > e.Config.Aggregation.Tolerance {
		return TotalMismatchError{Supplied: opts.Total, Computed: sum}
	}
	return nil
}

// checkInvoiceTotal is the invoice counterpart: it sums final costs, and a
// referenced task with no final cost recorded makes the invoice invalid.
func (e Engine) checkInvoiceTotal(ctx context.Context, opts EstimateOptions) error {
	if !e.Config.Aggregation.Recompute {
		return nil
	}
	var sum float64
	for _, id := range opts.TaskIDs {
		t, err := e.Repo.GetTask(ctx, id)
		if err != nil {
			return err
		}
		if t.FinalCost == nil {
			return InvalidInputError{Field: "task_ids", Reason: fmt.Sprintf("task %d has no final cost recorded", id)}
		}
		sum += *t.FinalCost
	}
	if math.Abs(sum-opts.Total) > e.Config.Aggregation.Tolerance {
		return TotalMismatchError{Supplied: opts.Total, Computed: sum}
	}
	return nil
}

// CreateEstimate records an estimate over a set of tasks. Requires Office
// Admin.
func (e Engine) CreateEstimate(ctx context.Context, actor Actor, opts EstimateOptions) (domain.Estimate, error) {
	if err := auth.Authorize(actor.Role, auth.RoleOfficeAdmin); err != nil {
		return domain.Estimate{}, err
	}
	if err := e.validateEstimateOptions(ctx, opts); err != nil {
		return domain.Estimate{}, err
	}
	if err := e.checkEstimateTotal(ctx, opts); err != nil {
		return domain.Estimate{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Estimate{}, err
	}
	defer tx.Rollback()

	est := domain.Estimate{
		TaskIDs:            opts.TaskIDs,
		TotalEstimatedCost: opts.Total,
		Region:             opts.Region,
		Store:              opts.Store,
		Manager:            opts.Manager,
		CreatedAt:          e.now().UTC().Format(time.RFC3339),
	}
	id, err := e.Repo.InsertEstimate(ctx, tx, est)
	if err != nil {
		return domain.Estimate{}, fmt.Errorf("insert estimate: %w", err)
	}
	est.ID = id
	if err := e.Events.Append(ctx, tx, "estimate.created", "estimate", fmt.Sprint(id), actor.ID, events.EventPayload{
		"total": est.TotalEstimatedCost,
		"tasks": len(est.TaskIDs),
	}); err != nil {
		return domain.Estimate{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Estimate{}, err
	}
	return est, nil
}

// UpdateEstimate overwrites an existing estimate. Requires Office Admin.
func (e Engine) UpdateEstimate(ctx context.Context, actor Actor, id int64, opts EstimateOptions) (domain.Estimate, error) {
	if err := auth.Authorize(actor.Role, auth.RoleOfficeAdmin); err != nil {
		return domain.Estimate{}, err
	}
	existing, err := e.Repo.GetEstimate(ctx, id)
	if err != nil {
		return domain.Estimate{}, err
	}
	if err := e.validateEstimateOptions(ctx, opts); err != nil {
		return domain.Estimate{}, err
	}
	if err := e.checkEstimateTotal(ctx, opts); err != nil {
		return domain.Estimate{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Estimate{}, err
	}
	defer tx.Rollback()

	est := domain.Estimate{
		ID:                 id,
		TaskIDs:            opts.TaskIDs,
		TotalEstimatedCost: opts.Total,
		Region:             opts.Region,
		Store:              opts.Store,
		Manager:            opts.Manager,
		CreatedAt:          existing.CreatedAt,
	}
	if err := e.Repo.UpdateEstimate(ctx, tx, est); err != nil {
		return domain.Estimate{}, err
	}
	if err := e.Events.Append(ctx, tx, "estimate.updated", "estimate", fmt.Sprint(id), actor.ID, events.EventPayload{
		"total": est.TotalEstimatedCost,
	}); err != nil {
		return domain.Estimate{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Estimate{}, err
	}
	return est, nil
}

// GetEstimate loads one estimate. Requires Office Admin.
func (e Engine) GetEstimate(ctx context.Context, actor Actor, id int64) (domain.Estimate, error) {
	if err := auth.Authorize(actor.Role, auth.RoleOfficeAdmin); err != nil {
		return domain.Estimate{}, err
	}
	return e.Repo.GetEstimate(ctx, id)
}

// ListEstimates returns estimates, newest first. Requires Office Admin.
func (e Engine) ListEstimates(ctx context.Context, actor Actor, limit int) ([]domain.Estimate, error) {
	if err := auth.Authorize(actor.Role, auth.RoleOfficeAdmin); err != nil {
		return nil, err
	}
	return e.Repo.ListEstimates(ctx, limit)
}

// CreateInvoice records an invoice over a set of tasks. Requires Office
// Admin.
func (e Engine) CreateInvoice(ctx context.Context, actor Actor, opts EstimateOptions) (domain.Invoice, error) {
	if err := auth.Authorize(actor.Role, auth.RoleOfficeAdmin); err != nil {
		return domain.Invoice{}, err
	}
	if err := e.validateEstimateOptions(ctx, opts); err != nil {
		return domain.Invoice{}, err
	}
	if err := e.checkInvoiceTotal(ctx, opts); err != nil {
		return domain.Invoice{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invoice{}, err
	}
	defer tx.Rollback()

	inv := domain.Invoice{
		TaskIDs:        opts.TaskIDs,
		TotalFinalCost: opts.Total,
		Region:         opts.Region,
		Store:          opts.Store,
		Manager:        opts.Manager,
		CreatedAt:      e.now().UTC().Format(time.RFC3339),
	}
	id, err := e.Repo.InsertInvoice(ctx, tx, inv)
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("insert invoice: %w", err)
	}
	inv.ID = id
	if err := e.Events.Append(ctx, tx, "invoice.created", "invoice", fmt.Sprint(id), actor.ID, events.EventPayload{
		"total": inv.TotalFinalCost,
		"tasks": len(inv.TaskIDs),
	}); err != nil {
		return domain.Invoice{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Invoice{}, err
	}
	return inv, nil
}

// UpdateInvoice overwrites an existing invoice. Requires Office Admin.
func (e Engine) UpdateInvoice(ctx context.Context, actor Actor, id int64, opts EstimateOptions) (domain.Invoice, error) {
	if err := auth.Authorize(actor.Role, auth.RoleOfficeAdmin); err != nil {
		return domain.Invoice{}, err
	}
	existing, err := e.Repo.GetInvoice(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	if err := e.validateEstimateOptions(ctx, opts); err != nil {
		return domain.Invoice{}, err
	}
	if err := e.checkInvoiceTotal(ctx, opts); err != nil {
		return domain.Invoice{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invoice{}, err
	}
	defer tx.Rollback()

	inv := domain.Invoice{
		ID:             id,
		TaskIDs:        opts.TaskIDs,
		TotalFinalCost: opts.Total,
		Region:         opts.Region,
		Store:          opts.Store,
		Manager:        opts.Manager,
		CreatedAt:      existing.CreatedAt,
	}
	if err := e.Repo.UpdateInvoice(ctx, tx, inv); err != nil {
		return domain.Invoice{}, err
	}
	if err := e.Events.Append(ctx, tx, "invoice.updated", "invoice", fmt.Sprint(id), actor.ID, events.EventPayload{
		"total": inv.TotalFinalCost,
	}); err != nil {
		return domain.Invoice{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Invoice{}, err
	}
	return inv, nil
}

// GetInvoice loads one invoice. Requires Office Admin.
func (e Engine) GetInvoice(ctx context.Context, actor Actor, id int64) (domain.Invoice, error) {
	if err := auth.Authorize(actor.Role, auth.RoleOfficeAdmin); err != nil {
		return domain.Invoice{}, err
	}
	return e.Repo.GetInvoice(ctx, id)
}

// ListInvoices returns invoices, newest first. Requires Office Admin.
func (e Engine) ListInvoices(ctx context.Context, actor Actor, limit int) ([]domain.Invoice, error) {
	if err := auth.Authorize(actor.Role, auth.RoleOfficeAdmin); err != nil {
		return nil, err
	}
	return e.Repo.ListInvoices(ctx, limit)
}

// GenerateOrderList returns the ids of inventory items linked to the task
// whose quantity sits below the reorder threshold. Requires Office Admin.
func (e Engine) GenerateOrderList(ctx context.Context, actor Actor, taskID int64) ([]int64, error) {
	if err := auth.Authorize(actor.Role, auth.RoleOfficeAdmin); err != nil {
		return nil, err
	}
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	items, err := e.Repo.ListTaskInventory(ctx, taskID)
	if err != nil {
		return nil, err
	}
	order := []int64{}
	for _, item := range items {
		if item.Quantity < e.Config.Inventory.ReorderThreshold {
			order = append(order, item.ID)
		}
	}
	return order, nil
}
