package engine_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/engine/auth"
	"fieldline/internal/migrate"
	"fieldline/internal/repo"
)

var (
	admin      = engine.Actor{ID: "admin-1", Role: auth.RoleOfficeAdmin}
	dispatcher = engine.Actor{ID: "dispatch-1", Role: auth.RoleDispatcher}
	employee   = engine.Actor{ID: "crew-1", Role: auth.RoleEmployee}
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func mustCreateTask(t *testing.T, env testEnv, opts engine.TaskCreateOptions) domain.Task {
	t.Helper()
	if opts.Description == "" {
		opts.Description = "replace water heater"
	}
	if opts.Location == "" {
		opts.Location = "12 Elm St"
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	task, err := env.Engine.CreateTask(env.Ctx, admin, opts)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestCreateTaskForcesNotStarted(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, admin, engine.TaskCreateOptions{
		Description:   "replace water heater",
		Location:      "12 Elm St",
		EstimatedCost: 450,
		Priority:      domain.PriorityHigh,
		Status:        domain.TaskStatusCompleted, // must be ignored
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != domain.TaskStatusNotStarted {
		t.Fatalf("new task status = %q, want %q", task.Status, domain.TaskStatusNotStarted)
	}
	stored, err := env.Engine.GetTask(env.Ctx, employee, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if stored.Status != domain.TaskStatusNotStarted {
		t.Fatalf("stored status = %q, want %q", stored.Status, domain.TaskStatusNotStarted)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		opts engine.TaskCreateOptions
	}{
		{"empty description", engine.TaskCreateOptions{Location: "x", Priority: domain.PriorityLow}},
		{"empty location", engine.TaskCreateOptions{Description: "x", Priority: domain.PriorityLow}},
		{"negative cost", engine.TaskCreateOptions{Description: "x", Location: "y", EstimatedCost: -1, Priority: domain.PriorityLow}},
		{"bad priority", engine.TaskCreateOptions{Description: "x", Location: "y", Priority: "Whenever"}},
		{"malformed deadline", engine.TaskCreateOptions{Description: "x", Location: "y", Priority: domain.PriorityLow, Deadline: strptr("tomorrow")}},
		{"past deadline", engine.TaskCreateOptions{Description: "x", Location: "y", Priority: domain.PriorityLow, Deadline: strptr("2020-01-01T00:00:00Z")}},
		{"missing dependency", engine.TaskCreateOptions{Description: "x", Location: "y", Priority: domain.PriorityLow, Dependencies: []int64{99}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Engine.CreateTask(env.Ctx, admin, tc.opts)
			var invalid engine.InvalidInputError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidInputError, got %v", err)
			}
		})
	}
}

func TestCreateTaskRequiresOfficeAdmin(t *testing.T) {
	env := newTestEnv(t)
	for _, actor := range []engine.Actor{employee, dispatcher} {
		_, err := env.Engine.CreateTask(env.Ctx, actor, engine.TaskCreateOptions{
			Description: "x", Location: "y", Priority: domain.PriorityLow,
		})
		var denied auth.AccessDeniedError
		if !errors.As(err, &denied) {
			t.Fatalf("actor %s: expected AccessDeniedError, got %v", actor.Role, err)
		}
	}
	tasks, err := env.Engine.ListTasks(env.Ctx, employee, repo.TaskFilters{})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("denied creates must not persist, found %d tasks", len(tasks))
	}
}

func TestUpdateTaskOverwrites(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreateTask(t, env, engine.TaskCreateOptions{Comments: "call ahead"})

	final := 480.0
	updated, err := env.Engine.UpdateTask(env.Ctx, admin, task.ID, engine.TaskUpdateOptions{
		Description:   "replace water heater and valve",
		Location:      "12 Elm St",
		EstimatedCost: 500,
		FinalCost:     &final,
		Status:        domain.TaskStatusCompleted,
		Priority:      domain.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	// Full overwrite: comments were not supplied, so they are gone.
	if updated.Comments != "" {
		t.Fatalf("comments survived a full overwrite: %q", updated.Comments)
	}
	if updated.Status != domain.TaskStatusCompleted || updated.FinalCost == nil || *updated.FinalCost != 480 {
		t.Fatalf("overwrite did not stick: %+v", updated)
	}
	if updated.CreatedAt != task.CreatedAt {
		t.Fatalf("created_at changed on update")
	}
}

func TestUpdateMissingTaskLeavesStoreUnchanged(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreateTask(t, env, engine.TaskCreateOptions{})

	_, err := env.Engine.UpdateTask(env.Ctx, admin, task.ID+100, engine.TaskUpdateOptions{
		Description: "ghost", Location: "nowhere",
		Status: domain.TaskStatusNotStarted, Priority: domain.PriorityLow,
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	stored, err := env.Engine.GetTask(env.Ctx, employee, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !reflect.DeepEqual(stored, task) {
		t.Fatalf("existing task changed after failed update:\n got %+v\nwant %+v", stored, task)
	}
}

func TestSetPriorityTouchesOnlyPriority(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreateTask(t, env, engine.TaskCreateOptions{
		EstimatedCost: 120,
		Comments:      "gate code 4411",
		Attachments:   []string{"photo-1.jpg"},
	})

	updated, err := env.Engine.SetPriority(env.Ctx, dispatcher, task.ID, domain.PriorityUrgent)
	if err != nil {
		t.Fatalf("set priority: %v", err)
	}
	if updated.Priority != domain.PriorityUrgent {
		t.Fatalf("priority = %q, want %q", updated.Priority, domain.PriorityUrgent)
	}
	stored, err := env.Engine.GetTask(env.Ctx, employee, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	want := task
	want.Priority = domain.PriorityUrgent
	if !reflect.DeepEqual(stored, want) {
		t.Fatalf("fields other than priority changed:\n got %+v\nwant %+v", stored, want)
	}
}

func TestSetPriorityRules(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreateTask(t, env, engine.TaskCreateOptions{})

	if _, err := env.Engine.SetPriority(env.Ctx, employee, task.ID, domain.PriorityHigh); err == nil {
		t.Fatal("employee must not set priority")
	}
	var invalid engine.InvalidInputError
	if _, err := env.Engine.SetPriority(env.Ctx, dispatcher, task.ID, "ASAP"); !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError for unknown priority, got %v", err)
	}
	if _, err := env.Engine.SetPriority(env.Ctx, dispatcher, task.ID+9, domain.PriorityHigh); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDependencyCycleRejected(t *testing.T) {
	env := newTestEnv(t)
	a := mustCreateTask(t, env, engine.TaskCreateOptions{Description: "a"})
	b := mustCreateTask(t, env, engine.TaskCreateOptions{Description: "b", Dependencies: []int64{a.ID}})
	c := mustCreateTask(t, env, engine.TaskCreateOptions{Description: "c", Dependencies: []int64{b.ID}})

	// a -> c would close the loop a <- b <- c.
	_, err := env.Engine.UpdateTask(env.Ctx, admin, a.ID, engine.TaskUpdateOptions{
		Description: "a", Location: "12 Elm St",
		Status: domain.TaskStatusNotStarted, Priority: domain.PriorityMedium,
		Dependencies: []int64{c.ID},
	})
	var invalid engine.InvalidInputError
	if !errors.As(err, &invalid) || invalid.Field != "dependencies" {
		t.Fatalf("expected dependency cycle rejection, got %v", err)
	}

	// Self-dependency is the degenerate cycle.
	_, err = env.Engine.UpdateTask(env.Ctx, admin, a.ID, engine.TaskUpdateOptions{
		Description: "a", Location: "12 Elm St",
		Status: domain.TaskStatusNotStarted, Priority: domain.PriorityMedium,
		Dependencies: []int64{a.ID},
	})
	if !errors.As(err, &invalid) {
		t.Fatalf("expected self-dependency rejection, got %v", err)
	}
}

func TestStrictTransitions(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Lifecycle.StrictTransitions = true
	task := mustCreateTask(t, env, engine.TaskCreateOptions{})

	// Not Started -> Completed skips In Progress.
	_, err := env.Engine.UpdateTask(env.Ctx, admin, task.ID, engine.TaskUpdateOptions{
		Description: task.Description, Location: task.Location,
		Status: domain.TaskStatusCompleted, Priority: task.Priority,
	})
	var invalid engine.InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected transition rejection, got %v", err)
	}

	for _, status := range []string{domain.TaskStatusInProgress, domain.TaskStatusCompleted} {
		if _, err := env.Engine.UpdateTask(env.Ctx, admin, task.ID, engine.TaskUpdateOptions{
			Description: task.Description, Location: task.Location,
			Status: status, Priority: task.Priority,
		}); err != nil {
			t.Fatalf("to %s: %v", status, err)
		}
	}
}

func TestRecordScan(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreateTask(t, env, engine.TaskCreateOptions{})

	if _, err := env.Engine.RecordScan(env.Ctx, employee, task.ID, engine.ScanSlotBefore, "HOME DEPOT $42.17"); err == nil {
		t.Fatal("expected access denied for employee")
	}
	updated, err := env.Engine.RecordScan(env.Ctx, admin, task.ID, engine.ScanSlotBefore, "HOME DEPOT $42.17")
	if err != nil {
		t.Fatalf("record scan: %v", err)
	}
	if updated.BeforeScan == nil || *updated.BeforeScan != "HOME DEPOT $42.17" {
		t.Fatalf("before scan not recorded: %+v", updated)
	}
	if updated.AfterScan != nil {
		t.Fatalf("after scan set unexpectedly")
	}
	var invalid engine.InvalidInputError
	if _, err := env.Engine.RecordScan(env.Ctx, admin, task.ID, "during", "x"); !errors.As(err, &invalid) {
		t.Fatalf("expected slot rejection, got %v", err)
	}
}

func strptr(s string) *string { return &s }
