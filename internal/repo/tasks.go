package repo

import (
	"context"
	"database/sql"
	"strings"

	"fieldline/internal/domain"
)

const taskColumns = `id,description,location,estimated_cost,final_cost,status,priority,deadline,dependencies,comments,attachments,before_scan,after_scan,created_at,updated_at`

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(description,location,estimated_cost,final_cost,status,priority,deadline,dependencies,comments,attachments,before_scan,after_scan,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.Description, t.Location, t.EstimatedCost, nullableFloatPtr(t.FinalCost), t.Status, t.Priority,
		nullableStringPtr(t.Deadline), encodeIDList(t.Dependencies), nullable(t.Comments), encodeStringList(t.Attachments),
		nullableStringPtr(t.BeforeScan), nullableStringPtr(t.AfterScan), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateTask overwrites every mutable field of the row.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET description=?, location=?, estimated_cost=?, final_cost=?, status=?, priority=?, deadline=?, dependencies=?, comments=?, attachments=?, before_scan=?, after_scan=?, updated_at=? WHERE id=?`,
		t.Description, t.Location, t.EstimatedCost, nullableFloatPtr(t.FinalCost), t.Status, t.Priority,
		nullableStringPtr(t.Deadline), encodeIDList(t.Dependencies), nullable(t.Comments), encodeStringList(t.Attachments),
		nullableStringPtr(t.BeforeScan), nullableStringPtr(t.AfterScan), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTaskPriority touches the priority column and nothing else.
func (r Repo) UpdateTaskPriority(ctx context.Context, tx *sql.Tx, id int64, priority string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET priority=? WHERE id=?`, priority, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var finalCost sql.NullFloat64
	var deadline, dependencies, comments, attachments, beforeScan, afterScan sql.NullString
	err := scan(&t.ID, &t.Description, &t.Location, &t.EstimatedCost, &finalCost, &t.Status, &t.Priority,
		&deadline, &dependencies, &comments, &attachments, &beforeScan, &afterScan, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if finalCost.Valid {
		v := finalCost.Float64
		t.FinalCost = &v
	}
	if deadline.Valid {
		t.Deadline = &deadline.String
	}
	t.Dependencies = decodeIDList(dependencies)
	if comments.Valid {
		t.Comments = comments.String
	}
	t.Attachments = decodeStringList(attachments)
	if beforeScan.Valid {
		t.BeforeScan = &beforeScan.String
	}
	if afterScan.Valid {
		t.AfterScan = &afterScan.String
	}
	return t, nil
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

type TaskFilters struct {
	Status   string
	Priority string
	Limit    int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// TaskExists reports whether a task row exists without loading it.
func (r Repo) TaskExists(ctx context.Context, id int64) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id=? LIMIT 1`, id)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}
