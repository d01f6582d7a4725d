package repo

import (
	"context"
	"database/sql"

	"reviewline/internal/domain"
)

func (r Repo) InsertRelationship(ctx context.Context, tx *sql.Tx, rel domain.Relationship) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO relationships(id,left_item_id,right_item_id,leftward_type,rightward_type,created_at) VALUES (?,?,?,?,?,?)`,
		rel.ID, rel.LeftItemID, rel.RightItemID, rel.LeftwardType, rel.RightwardType, rel.CreatedAt)
	return err
}

const relColumns = `id,left_item_id,right_item_id,leftward_type,rightward_type,created_at`

func scanRelationship(scan func(...any) error) (domain.Relationship, error) {
	var rel domain.Relationship
	err := scan(&rel.ID, &rel.LeftItemID, &rel.RightItemID, &rel.LeftwardType, &rel.RightwardType, &rel.CreatedAt)
	if err == sql.ErrNoRows {
		return rel, ErrNotFound
	}
	return rel, err
}

// GetRelationshipByLeft returns the relationship with the given left item and
// leftward label. At most one exists per (left, label).
func (r Repo) GetRelationshipByLeft(ctx context.Context, leftItemID, leftwardType string) (domain.Relationship, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+relColumns+` FROM relationships WHERE left_item_id=? AND leftward_type=?`,
		leftItemID, leftwardType)
	return scanRelationship(row.Scan)
}

func (r Repo) GetRelationshipByLeftTx(ctx context.Context, tx *sql.Tx, leftItemID, leftwardType string) (domain.Relationship, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+relColumns+` FROM relationships WHERE left_item_id=? AND leftward_type=?`,
		leftItemID, leftwardType)
	return scanRelationship(row.Scan)
}

// GetRelationshipByRight returns the relationship with the given right item
// and rightward label.
func (r Repo) GetRelationshipByRight(ctx context.Context, rightItemID, rightwardType string) (domain.Relationship, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+relColumns+` FROM relationships WHERE right_item_id=? AND rightward_type=?`,
		rightItemID, rightwardType)
	return scanRelationship(row.Scan)
}

func (r Repo) GetRelationshipByRightTx(ctx context.Context, tx *sql.Tx, rightItemID, rightwardType string) (domain.Relationship, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+relColumns+` FROM relationships WHERE right_item_id=? AND rightward_type=?`,
		rightItemID, rightwardType)
	return scanRelationship(row.Scan)
}

func (r Repo) DeleteRelationship(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM relationships WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
