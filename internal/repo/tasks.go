package repo

import (
	"context"
	"database/sql"
	"errors"

	"reviewline/internal/domain"
)

// ErrConflict reports that a task was claimed by someone else first.
var ErrConflict = errors.New("conflict")

func (r Repo) InsertWorkspaceItem(ctx context.Context, tx *sql.Tx, w domain.WorkspaceItem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO workspace_items(id,item_id,collection_id,created_at) VALUES (?,?,?,?)`,
		w.ID, w.ItemID, w.CollectionID, w.CreatedAt)
	return err
}

func scanWorkspaceItem(scan func(...any) error) (domain.WorkspaceItem, error) {
	var w domain.WorkspaceItem
	err := scan(&w.ID, &w.ItemID, &w.CollectionID, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	return w, err
}

func (r Repo) GetWorkspaceItem(ctx context.Context, id string) (domain.WorkspaceItem, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,item_id,collection_id,created_at FROM workspace_items WHERE id=?`, id)
	return scanWorkspaceItem(row.Scan)
}

func (r Repo) GetWorkspaceItemTx(ctx context.Context, tx *sql.Tx, id string) (domain.WorkspaceItem, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,item_id,collection_id,created_at FROM workspace_items WHERE id=?`, id)
	return scanWorkspaceItem(row.Scan)
}

func (r Repo) GetWorkspaceItemByItem(ctx context.Context, itemID string) (domain.WorkspaceItem, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,item_id,collection_id,created_at FROM workspace_items WHERE item_id=?`, itemID)
	return scanWorkspaceItem(row.Scan)
}

func (r Repo) ListWorkspaceItems(ctx context.Context, submitterID string) ([]domain.WorkspaceItem, error) {
	query := `SELECT w.id,w.item_id,w.collection_id,w.created_at FROM workspace_items w`
	var args []any
	if submitterID != "" {
		query += ` JOIN items i ON i.id=w.item_id WHERE i.submitter_id=?`
		args = append(args, submitterID)
	}
	query += ` ORDER BY w.created_at DESC, w.id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkspaceItem
	for rows.Next() {
		w, err := scanWorkspaceItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) DeleteWorkspaceItem(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM workspace_items WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertWorkflowItem(ctx context.Context, tx *sql.Tx, w domain.WorkflowItem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO workflow_items(id,item_id,collection_id,state,created_at) VALUES (?,?,?,?,?)`,
		w.ID, w.ItemID, w.CollectionID, w.State, w.CreatedAt)
	return err
}

func scanWorkflowItem(scan func(...any) error) (domain.WorkflowItem, error) {
	var w domain.WorkflowItem
	err := scan(&w.ID, &w.ItemID, &w.CollectionID, &w.State, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	return w, err
}

func (r Repo) GetWorkflowItem(ctx context.Context, id string) (domain.WorkflowItem, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,item_id,collection_id,state,created_at FROM workflow_items WHERE id=?`, id)
	return scanWorkflowItem(row.Scan)
}

func (r Repo) GetWorkflowItemTx(ctx context.Context, tx *sql.Tx, id string) (domain.WorkflowItem, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,item_id,collection_id,state,created_at FROM workflow_items WHERE id=?`, id)
	return scanWorkflowItem(row.Scan)
}

func (r Repo) ListWorkflowItems(ctx context.Context) ([]domain.WorkflowItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,item_id,collection_id,state,created_at FROM workflow_items ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkflowItem
	for rows.Next() {
		w, err := scanWorkflowItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) DeleteWorkflowItem(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM workflow_items WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertPoolTask(ctx context.Context, tx *sql.Tx, t domain.PoolTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO pool_tasks(id,workflow_item_id,group_id,created_at) VALUES (?,?,?,?)`,
		t.ID, t.WorkflowItemID, t.GroupID, t.CreatedAt)
	return err
}

func scanPoolTask(scan func(...any) error) (domain.PoolTask, error) {
	var t domain.PoolTask
	err := scan(&t.ID, &t.WorkflowItemID, &t.GroupID, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) GetPoolTask(ctx context.Context, id string) (domain.PoolTask, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,workflow_item_id,group_id,created_at FROM pool_tasks WHERE id=?`, id)
	return scanPoolTask(row.Scan)
}

// ListPoolTasksFor returns the pool tasks whose group the actor belongs to.
func (r Repo) ListPoolTasksFor(ctx context.Context, actorID string) ([]domain.PoolTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT p.id,p.workflow_item_id,p.group_id,p.created_at
FROM pool_tasks p JOIN group_members m ON m.group_id=p.group_id
WHERE m.actor_id=? ORDER BY p.created_at, p.id`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPoolTasks(rows)
}

func (r Repo) ListPoolTasks(ctx context.Context) ([]domain.PoolTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,workflow_item_id,group_id,created_at FROM pool_tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPoolTasks(rows)
}

func collectPoolTasks(rows *sql.Rows) ([]domain.PoolTask, error) {
	var res []domain.PoolTask
	for rows.Next() {
		t, err := scanPoolTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ClaimPoolTask converts a pool task into a claimed task atomically. The
// DELETE acts as the race arbiter: whichever transaction deletes the row
// first wins, the loser sees zero rows affected and gets ErrConflict.
func (r Repo) ClaimPoolTask(ctx context.Context, tx *sql.Tx, poolTaskID string, claimed domain.ClaimedTask) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM pool_tasks WHERE id=?`, poolTaskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	// Drop sibling pool tasks for the same workflow item so no stale
	// entries survive the claim.
	if _, err := tx.ExecContext(ctx, `DELETE FROM pool_tasks WHERE workflow_item_id=?`, claimed.WorkflowItemID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO claimed_tasks(id,workflow_item_id,owner_id,claimed_at) VALUES (?,?,?,?)`,
		claimed.ID, claimed.WorkflowItemID, claimed.OwnerID, claimed.ClaimedAt)
	return err
}

func scanClaimedTask(scan func(...any) error) (domain.ClaimedTask, error) {
	var t domain.ClaimedTask
	err := scan(&t.ID, &t.WorkflowItemID, &t.OwnerID, &t.ClaimedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) GetClaimedTask(ctx context.Context, id string) (domain.ClaimedTask, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,workflow_item_id,owner_id,claimed_at FROM claimed_tasks WHERE id=?`, id)
	return scanClaimedTask(row.Scan)
}

func (r Repo) GetClaimedTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.ClaimedTask, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,workflow_item_id,owner_id,claimed_at FROM claimed_tasks WHERE id=?`, id)
	return scanClaimedTask(row.Scan)
}

func (r Repo) ListClaimedTasks(ctx context.Context, ownerID string) ([]domain.ClaimedTask, error) {
	query := `SELECT id,workflow_item_id,owner_id,claimed_at FROM claimed_tasks`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id=?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY claimed_at, id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ClaimedTask
	for rows.Next() {
		t, err := scanClaimedTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) DeleteClaimedTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM claimed_tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
