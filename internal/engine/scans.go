package engine

import (
	"context"
	"fmt"
	"time"

	"fieldline/internal/domain"
	"fieldline/internal/engine/auth"
	"fieldline/internal/events"
)

// Scan slots on a task: the receipt photographed before work starts and the
// one photographed after.
const (
	ScanSlotBefore = "before"
	ScanSlotAfter  = "after"
)

// RecordScan stores extracted receipt text into one of the task's scan
// slots. Receipt processing is an Office Admin operation, same as the scan
// endpoint that feeds it.
func (e Engine) RecordScan(ctx context.Context, actor Actor, taskID int64, slot, text string) (domain.Task, error) {
	if err := auth.Authorize(actor.Role, auth.RoleOfficeAdmin); err != nil {
		return domain.Task{}, err
	}
	if slot != ScanSlotBefore && slot != ScanSlotAfter {
		return domain.Task{}, InvalidInputError{Field: "slot", Reason: fmt.Sprintf("unknown slot %q", slot)}
	}
	if text == "" {
		return domain.Task{}, InvalidInputError{Field: "text", Reason: "must not be empty"}
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if slot == ScanSlotBefore {
		t.BeforeScan = &text
	} else {
		t.AfterScan = &text
	}
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.scan.recorded", "task", fmt.Sprint(taskID), actor.ID, events.EventPayload{
		"slot": slot,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}
