package repo

import (
	"context"
	"database/sql"

	"fieldline/internal/domain"
)

func (r Repo) InsertInventoryItem(ctx context.Context, tx *sql.Tx, item domain.InventoryItem) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO inventory_items(name,quantity,location,task_id,created_at) VALUES (?,?,?,?,?)`,
		item.Name, item.Quantity, item.Location, nullableInt64Ptr(item.TaskID), item.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) UpdateInventoryItem(ctx context.Context, tx *sql.Tx, item domain.InventoryItem) error {
	res, err := tx.ExecContext(ctx, `UPDATE inventory_items SET name=?, quantity=?, location=?, task_id=? WHERE id=?`,
		item.Name, item.Quantity, item.Location, nullableInt64Ptr(item.TaskID), item.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteInventoryItem(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM inventory_items WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanInventoryItem(scan func(dest ...any) error) (domain.InventoryItem, error) {
	var item domain.InventoryItem
	var taskID sql.NullInt64
	err := scan(&item.ID, &item.Name, &item.Quantity, &item.Location, &taskID, &item.CreatedAt)
	if err == sql.ErrNoRows {
		return item, ErrNotFound
	}
	if err != nil {
		return item, err
	}
	if taskID.Valid {
		v := taskID.Int64
		item.TaskID = &v
	}
	return item, nil
}

func (r Repo) GetInventoryItem(ctx context.Context, id int64) (domain.InventoryItem, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,name,quantity,location,task_id,created_at FROM inventory_items WHERE id=?`, id)
	return scanInventoryItem(row.Scan)
}

func (r Repo) ListInventoryItems(ctx context.Context) ([]domain.InventoryItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,quantity,location,task_id,created_at FROM inventory_items ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.InventoryItem
	for rows.Next() {
		item, err := scanInventoryItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, item)
	}
	return res, rows.Err()
}

// ListTaskInventory returns the items linked to a task.
func (r Repo) ListTaskInventory(ctx context.Context, taskID int64) ([]domain.InventoryItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,quantity,location,task_id,created_at FROM inventory_items WHERE task_id=? ORDER BY id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.InventoryItem
	for rows.Next() {
		item, err := scanInventoryItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, item)
	}
	return res, rows.Err()
}
