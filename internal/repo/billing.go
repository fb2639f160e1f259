package repo

import (
	"context"
	"database/sql"

	"fieldline/internal/domain"
)

func (r Repo) InsertEstimate(ctx context.Context, tx *sql.Tx, e domain.Estimate) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO estimates(task_ids,total_estimated_cost,region,store,manager,created_at) VALUES (?,?,?,?,?,?)`,
		encodeIDList(e.TaskIDs), e.TotalEstimatedCost, e.Region, e.Store, e.Manager, e.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) UpdateEstimate(ctx context.Context, tx *sql.Tx, e domain.Estimate) error {
	res, err := tx.ExecContext(ctx, `UPDATE estimates SET task_ids=?, total_estimated_cost=?, region=?, store=?, manager=? WHERE id=?`,
		encodeIDList(e.TaskIDs), e.TotalEstimatedCost, e.Region, e.Store, e.Manager, e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetEstimate(ctx context.Context, id int64) (domain.Estimate, error) {
	var e domain.Estimate
	var taskIDs sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,task_ids,total_estimated_cost,region,store,manager,created_at FROM estimates WHERE id=?`, id).
		Scan(&e.ID, &taskIDs, &e.TotalEstimatedCost, &e.Region, &e.Store, &e.Manager, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	e.TaskIDs = decodeIDList(taskIDs)
	return e, nil
}

func (r Repo) ListEstimates(ctx context.Context, limit int) ([]domain.Estimate, error) {
	query := `SELECT id,task_ids,total_estimated_cost,region,store,manager,created_at FROM estimates ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Estimate
	for rows.Next() {
		var e domain.Estimate
		var taskIDs sql.NullString
		if err := rows.Scan(&e.ID, &taskIDs, &e.TotalEstimatedCost, &e.Region, &e.Store, &e.Manager, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.TaskIDs = decodeIDList(taskIDs)
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) InsertInvoice(ctx context.Context, tx *sql.Tx, inv domain.Invoice) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO invoices(task_ids,total_final_cost,region,store,manager,created_at) VALUES (?,?,?,?,?,?)`,
		encodeIDList(inv.TaskIDs), inv.TotalFinalCost, inv.Region, inv.Store, inv.Manager, inv.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) UpdateInvoice(ctx context.Context, tx *sql.Tx, inv domain.Invoice) error {
	res, err := tx.ExecContext(ctx, `UPDATE invoices SET task_ids=?, total_final_cost=?, region=?, store=?, manager=? WHERE id=?`,
		encodeIDList(inv.TaskIDs), inv.TotalFinalCost, inv.Region, inv.Store, inv.Manager, inv.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetInvoice(ctx context.Context, id int64) (domain.Invoice, error) {
	var inv domain.Invoice
	var taskIDs sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,task_ids,total_final_cost,region,store,manager,created_at FROM invoices WHERE id=?`, id).
		Scan(&inv.ID, &taskIDs, &inv.TotalFinalCost, &inv.Region, &inv.Store, &inv.Manager, &inv.CreatedAt)
	if err == sql.ErrNoRows {
		return inv, ErrNotFound
	}
	if err != nil {
		return inv, err
	}
	inv.TaskIDs = decodeIDList(taskIDs)
	return inv, nil
}

func (r Repo) ListInvoices(ctx context.Context, limit int) ([]domain.Invoice, error) {
	query := `SELECT id,task_ids,total_final_cost,region,store,manager,created_at FROM invoices ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Invoice
	for rows.Next() {
		var inv domain.Invoice
		var taskIDs sql.NullString
		if err := rows.Scan(&inv.ID, &taskIDs, &inv.TotalFinalCost, &inv.Region, &inv.Store, &inv.Manager, &inv.CreatedAt); err != nil {
			return nil, err
		}
		inv.TaskIDs = decodeIDList(taskIDs)
		res = append(res, inv)
	}
	return res, rows.Err()
}
