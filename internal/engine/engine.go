package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fieldline/internal/config"
	"fieldline/internal/domain"
	"fieldline/internal/engine/auth"
	"fieldline/internal/events"
	"fieldline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Actor identifies who is performing an operation.
type Actor struct {
	ID   string
	Role auth.Role
}

// TaskCreateOptions are parameters for creating a task. Status is accepted
// but ignored: new tasks always start as Not Started.
type TaskCreateOptions struct {
	Description   string
	Location      string
	EstimatedCost float64
	Priority      string
	Status        string
	Deadline      *string
	Dependencies  []int64
	Comments      string
	Attachments   []string
}

// TaskUpdateOptions overwrite every mutable field of a task.
type TaskUpdateOptions struct {
	Description   string
	Location      string
	EstimatedCost float64
	FinalCost     *float64
	Status        string
	Priority      string
	Deadline      *string
	Dependencies  []int64
	Comments      string
	Attachments   []string
	BeforeScan    *string
	AfterScan     *string
}

// CreateTask inserts a new task. Requires Office Admin.
func (e Engine) CreateTask(ctx context.Context, actor Actor, opts TaskCreateOptions) (domain.Task, error) {
	if err := auth.Authorize(actor.Role, auth.RoleOfficeAdmin); err != nil {
		return domain.Task{}, err
	}
	if opts.Description == "" {
		return domain.Task{}, InvalidInputError{Field: "description", Reason: "must not be empty"}
	}
	if opts.Location == "" {
		return domain.Task{}, InvalidInputError{Field: "location", Reason: "must not be empty"}
	}
	if opts.EstimatedCost < 0 {
		return domain.Task{}, InvalidInputError{Field: "estimated_cost", Reason: "must not be negative"}
	}
	if !domain.ValidPriority(opts.Priority) {
		return domain.Task{}, InvalidInputError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", opts.Priority)}
	}
	if err := e.validateDeadline(opts.Deadline); err != nil {
		return domain.Task{}, err
	}
	if err := e.validateDependencies(ctx, 0, opts.Dependencies); err != nil {
		return domain.Task{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	ts := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		Description:   opts.Description,
		Location:      opts.Location,
		EstimatedCost: opts.EstimatedCost,
		Status:        domain.TaskStatusNotStarted,
		Priority:      opts.Priority,
		Deadline:      opts.Deadline,
		Dependencies:  opts.Dependencies,
		Comments:      opts.Comments,
		Attachments:   opts.Attachments,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	id, err := e.Repo.InsertTask(ctx, tx, t)
	if err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	t.ID = id
	if err := e.Events.Append(ctx, tx, "task.created", "task", fmt.Sprint(id), actor.ID, events.EventPayload{
		"status":   t.Status,
		"priority": t.Priority,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// UpdateTask overwrites the task identified by id with the supplied fields.
// Requires Office Admin.
func (e Engine) UpdateTask(ctx context.Context, actor Actor, id int64, opts TaskUpdateOptions) (domain.Task, error) {
	if err := auth.Authorize(actor.Role, auth.RoleOfficeAdmin); err != nil {
		return domain.Task{}, err
	}
	existing, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if opts.Description == "" {
		return domain.Task{}, InvalidInputError{Field: "description", Reason: "must not be empty"}
	}
	if opts.Location == "" {
		return domain.Task{}, InvalidInputError{Field: "location", Reason: "must not be empty"}
	}
	if opts.EstimatedCost < 0 {
		return domain.Task{}, InvalidInputError{Field: "estimated_cost", Reason: "must not be negative"}
	}
	if opts.FinalCost != nil && *opts.FinalCost < 0 {
		return domain.Task{}, InvalidInputError{Field: "final_cost", Reason: "must not be negative"}
	}
	if !domain.ValidTaskStatus(opts.Status) {
		return domain.Task{}, InvalidInputError{Field: "status", Reason: fmt.Sprintf("unknown status %q", opts.Status)}
	}
	if !domain.ValidPriority(opts.Priority) {
		return domain.Task{}, InvalidInputError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", opts.Priority)}
	}
	if opts.Deadline != nil {
		if _, err := time.Parse(time.RFC3339, *opts.Deadline); err != nil {
			return domain.Task{}, InvalidInputError{Field: "deadline", Reason: "must be an RFC3339 timestamp"}
		}
	}
	if e.Config.Lifecycle.StrictTransitions {
		if err := ensureStatusTransition(existing.Status, opts.Status); err != nil {
			return domain.Task{}, err
		}
	}
	if err := e.validateDependencies(ctx, id, opts.Dependencies); err != nil {
		return domain.Task{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t := domain.Task{
		ID:            id,
		Description:   opts.Description,
		Location:      opts.Location,
		EstimatedCost: opts.EstimatedCost,
		FinalCost:     opts.FinalCost,
		Status:        opts.Status,
		Priority:      opts.Priority,
		Deadline:      opts.Deadline,
		Dependencies:  opts.Dependencies,
		Comments:      opts.Comments,
		Attachments:   opts.Attachments,
		BeforeScan:    opts.BeforeScan,
		AfterScan:     opts.AfterScan,
		CreatedAt:     existing.CreatedAt,
		UpdatedAt:     e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", "task", fmt.Sprint(id), actor.ID, events.EventPayload{
		"from_status": existing.Status,
		"to_status":   t.Status,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// SetPriority changes a task's priority and nothing else. Requires
// Dispatcher.
func (e Engine) SetPriority(ctx context.Context, actor Actor, id int64, priority string) (domain.Task, error) {
	if err := auth.Authorize(actor.Role, auth.RoleDispatcher); err != nil {
		return domain.Task{}, err
	}
	if !domain.ValidPriority(priority) {
		return domain.Task{}, InvalidInputError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", priority)}
	}
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTaskPriority(ctx, tx, id, priority); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.priority.set", "task", fmt.Sprint(id), actor.ID, events.EventPayload{
		"from": t.Priority,
		"to":   priority,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	t.Priority = priority
	return t, nil
}

// GetTask loads a single task. Any authenticated role may read.
func (e Engine) GetTask(ctx context.Context, actor Actor, id int64) (domain.Task, error) {
	if err := auth.Authorize(actor.Role, auth.RoleEmployee); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, id)
}

// ListTasks returns tasks matching the filters, newest first.
func (e Engine) ListTasks(ctx context.Context, actor Actor, f repo.TaskFilters) ([]domain.Task, error) {
	if err := auth.Authorize(actor.Role, auth.RoleEmployee); err != nil {
		return nil, err
	}
	if f.Status != "" && !domain.ValidTaskStatus(f.Status) {
		return nil, InvalidInputError{Field: "status", Reason: fmt.Sprintf("unknown status %q", f.Status)}
	}
	if f.Priority != "" && !domain.ValidPriority(f.Priority) {
		return nil, InvalidInputError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", f.Priority)}
	}
	return e.Repo.ListTasks(ctx, f)
}

func (e Engine) validateDeadline(deadline *string) error {
	if deadline == nil {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, *deadline)
	if err != nil {
		return InvalidInputError{Field: "deadline", Reason: "must be an RFC3339 timestamp"}
	}
	if ts.Before(e.now().UTC().Truncate(time.Second)) {
		return InvalidInputError{Field: "deadline", Reason: "must not be in the past"}
	}
	return nil
}

// validateDependencies checks that every referenced task exists and that
// following dependency edges from them never reaches back to id. Pass id 0
// for a task being created; a new task cannot be on any existing path.
func (e Engine) validateDependencies(ctx context.Context, id int64, deps []int64) error {
	seen := map[int64]bool{}
	stack := make([]int64, 0, len(deps))
	for _, dep := range deps {
		if id != 0 && dep == id {
			return InvalidInputError{Field: "dependencies", Reason: "task cannot depend on itself"}
		}
		ok, err := e.Repo.TaskExists(ctx, dep)
		if err != nil {
			return err
		}
		if !ok {
			return InvalidInputError{Field: "dependencies", Reason: fmt.Sprintf("task %d does not exist", dep)}
		}
		stack = append(stack, dep)
	}
	if id == 0 {
		return nil
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		t, err := e.Repo.GetTask(ctx, cur)
		if err != nil {
			if err == repo.ErrNotFound {
				continue
			}
			return err
		}
		for _, next := range t.Dependencies {
			if next == id {
				return InvalidInputError{Field: "dependencies", Reason: fmt.Sprintf("dependency on task %d would form a cycle", cur)}
			}
			stack = append(stack, next)
		}
	}
	return nil
}

// statusTransitions is the graph enforced when lifecycle.strict_transitions
// is on. Keys map a current status to the statuses it may move to.
var statusTransitions = map[string][]string{
	domain.TaskStatusNotStarted: {domain.TaskStatusInProgress, domain.TaskStatusCancelled},
	domain.TaskStatusInProgress: {domain.TaskStatusCompleted, domain.TaskStatusCancelled, domain.TaskStatusNotStarted},
	domain.TaskStatusCompleted:  {},
	domain.TaskStatusCancelled:  {domain.TaskStatusNotStarted},
}

func ensureStatusTransition(from, to string) error {
	if from == to {
		return nil
	}
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return InvalidInputError{Field: "status", Reason: fmt.Sprintf("cannot move from %s to %s", from, to)}
}
