package engine_test

import (
	"errors"
	"testing"

	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/repo"
)

func TestEstimateRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreateTask(t, env, engine.TaskCreateOptions{Description: "a", EstimatedCost: 100})
	b := mustCreateTask(t, env, engine.TaskCreateOptions{Description: "b", EstimatedCost: 250})

	est, err := env.Engine.CreateEstimate(env.Ctx, admin, engine.EstimateOptions{
		TaskIDs: []int64{a.ID, b.ID},
		Total:   350,
		Region:  "north",
		Store:   "store-7",
		Manager: "pat",
	})
	if err != nil {
		t.Fatalf("create estimate: %v", err)
	}
	got, err := env.Engine.GetEstimate(env.Ctx, admin, est.ID)
	if err != nil {
		t.Fatalf("get estimate: %v", err)
	}
	if got.TotalEstimatedCost != 350 || len(got.TaskIDs) != 2 || got.Region != "north" {
		t.Fatalf("estimate did not round-trip: %+v", got)
	}
}

func TestEstimateValidation(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreateTask(t, env, engine.TaskCreateOptions{EstimatedCost: 100})

	var invalid engine.InvalidInputError
	_, err := env.Engine.CreateEstimate(env.Ctx, admin, engine.EstimateOptions{Total: 10})
	if !errors.As(err, &invalid) {
		t.Fatalf("empty task_ids: expected InvalidInputError, got %v", err)
	}
	_, err = env.Engine.CreateEstimate(env.Ctx, admin, engine.EstimateOptions{TaskIDs: []int64{task.ID + 50}, Total: 10})
	if !errors.As(err, &invalid) {
		t.Fatalf("missing task: expected InvalidInputError, got %v", err)
	}
	_, err = env.Engine.CreateEstimate(env.Ctx, dispatcher, engine.EstimateOptions{TaskIDs: []int64{task.ID}, Total: 100})
	if err == nil {
		t.Fatal("dispatcher must not create estimates")
	}
}

func TestEstimateRecompute(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Aggregation.Recompute = true
	env.Engine.Config.Aggregation.Tolerance = 0.01
	a := mustCreateTask(t, env, engine.TaskCreateOptions{Description: "a", EstimatedCost: 100})
	b := mustCreateTask(t, env, engine.TaskCreateOptions{Description: "b", EstimatedCost: 250})

	_, err := env.Engine.CreateEstimate(env.Ctx, admin, engine.EstimateOptions{
		TaskIDs: []int64{a.ID, b.ID},
		Total:   400,
	})
	var mismatch engine.TotalMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected TotalMismatchError, got %v", err)
	}
	if mismatch.Computed != 350 || mismatch.Supplied != 400 {
		t.Fatalf("mismatch detail wrong: %+v", mismatch)
	}
	if _, err := env.Engine.CreateEstimate(env.Ctx, admin, engine.EstimateOptions{
		TaskIDs: []int64{a.ID, b.ID},
		Total:   350.005, // inside tolerance
	}); err != nil {
		t.Fatalf("total within tolerance rejected: %v", err)
	}
}

func TestInvoiceRecomputeNeedsFinalCosts(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Aggregation.Recompute = true
	task := mustCreateTask(t, env, engine.TaskCreateOptions{EstimatedCost: 100})

	_, err := env.Engine.CreateInvoice(env.Ctx, admin, engine.EstimateOptions{
		TaskIDs: []int64{task.ID},
		Total:   100,
	})
	var invalid engine.InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected rejection for missing final cost, got %v", err)
	}

	final := 130.0
	if _, err := env.Engine.UpdateTask(env.Ctx, admin, task.ID, engine.TaskUpdateOptions{
		Description: task.Description, Location: task.Location,
		EstimatedCost: task.EstimatedCost, FinalCost: &final,
		Status: domain.TaskStatusCompleted, Priority: task.Priority,
	}); err != nil {
		t.Fatalf("set final cost: %v", err)
	}
	inv, err := env.Engine.CreateInvoice(env.Ctx, admin, engine.EstimateOptions{
		TaskIDs: []int64{task.ID},
		Total:   130,
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if inv.TotalFinalCost != 130 {
		t.Fatalf("invoice total = %v, want 130", inv.TotalFinalCost)
	}
}

func TestGenerateOrderList(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreateTask(t, env, engine.TaskCreateOptions{})
	other := mustCreateTask(t, env, engine.TaskCreateOptions{Description: "other"})

	add := func(name string, qty int, taskID int64) domain.InventoryItem {
		t.Helper()
		item, err := env.Engine.CreateInventoryItem(env.Ctx, admin, engine.InventoryItemOptions{
			Name: name, Quantity: qty, TaskID: &taskID,
		})
		if err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
		return item
	}
	low := add("pipe fitting", 2, task.ID)     // below default threshold 5
	add("copper pipe", 12, task.ID)            // plenty
	add("solder", 1, other.ID)                 // low, but other task
	zero := add("teflon tape", 0, task.ID)     // out of stock

	ids, err := env.Engine.GenerateOrderList(env.Ctx, admin, task.ID)
	if err != nil {
		t.Fatalf("order list: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("order list = %v, want exactly the two low items", ids)
	}
	found := map[int64]bool{}
	for _, id := range ids {
		found[id] = true
	}
	if !found[low.ID] || !found[zero.ID] {
		t.Fatalf("order list %v missing expected items %d, %d", ids, low.ID, zero.ID)
	}

	if _, err := env.Engine.GenerateOrderList(env.Ctx, admin, task.ID+99); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing task, got %v", err)
	}
}

func TestInventoryWeakTaskRef(t *testing.T) {
	env := newTestEnv(t)
	ghost := int64(404)
	item, err := env.Engine.CreateInventoryItem(env.Ctx, admin, engine.InventoryItemOptions{
		Name: "spare valve", Quantity: 3, TaskID: &ghost,
	})
	if err != nil {
		t.Fatalf("weak task ref must be accepted: %v", err)
	}
	if item.TaskID == nil || *item.TaskID != 404 {
		t.Fatalf("task ref not stored: %+v", item)
	}

	var invalid engine.InvalidInputError
	if _, err := env.Engine.CreateInventoryItem(env.Ctx, admin, engine.InventoryItemOptions{Name: "", Quantity: 1}); !errors.As(err, &invalid) {
		t.Fatalf("expected name rejection, got %v", err)
	}
	if _, err := env.Engine.CreateInventoryItem(env.Ctx, admin, engine.InventoryItemOptions{Name: "x", Quantity: -1}); !errors.As(err, &invalid) {
		t.Fatalf("expected quantity rejection, got %v", err)
	}
	if _, err := env.Engine.CreateInventoryItem(env.Ctx, employee, engine.InventoryItemOptions{Name: "x", Quantity: 1}); err == nil {
		t.Fatal("employee must not manage inventory")
	}
}
