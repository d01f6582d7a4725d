package repo

import (
	"context"
	"database/sql"
	"time"

	"reviewline/internal/domain"
)

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (r Repo) InsertItem(ctx context.Context, tx *sql.Tx, it domain.Item) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO items(id,collection_id,submitter_id,in_archive,withdrawn,discoverable,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?)`,
		it.ID, it.CollectionID, it.SubmitterID, boolInt(it.InArchive), boolInt(it.Withdrawn), boolInt(it.Discoverable),
		it.CreatedAt, it.UpdatedAt)
	return err
}

func (r Repo) UpdateItemState(ctx context.Context, tx *sql.Tx, it domain.Item) error {
	res, err := tx.ExecContext(ctx, `UPDATE items SET in_archive=?, withdrawn=?, discoverable=?, updated_at=? WHERE id=?`,
		boolInt(it.InArchive), boolInt(it.Withdrawn), boolInt(it.Discoverable), it.UpdatedAt, it.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanItem(scan func(...any) error) (domain.Item, error) {
	var it domain.Item
	var inArchive, withdrawn, discoverable int
	err := scan(&it.ID, &it.CollectionID, &it.SubmitterID, &inArchive, &withdrawn, &discoverable, &it.CreatedAt, &it.UpdatedAt)
	if err == sql.ErrNoRows {
		return it, ErrNotFound
	}
	if err != nil {
		return it, err
	}
	it.InArchive = inArchive != 0
	it.Withdrawn = withdrawn != 0
	it.Discoverable = discoverable != 0
	return it, nil
}

const itemColumns = `id,collection_id,submitter_id,in_archive,withdrawn,discoverable,created_at,updated_at`

func (r Repo) GetItem(ctx context.Context, id string) (domain.Item, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id=?`, id)
	return scanItem(row.Scan)
}

func (r Repo) GetItemTx(ctx context.Context, tx *sql.Tx, id string) (domain.Item, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id=?`, id)
	return scanItem(row.Scan)
}

type ItemFilters struct {
	CollectionID string
	InArchive    *bool
	Withdrawn    *bool
	Limit        int
}

func (r Repo) ListItems(ctx context.Context, f ItemFilters) ([]domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE 1=1`
	var args []any
	if f.CollectionID != "" {
		query += ` AND collection_id=?`
		args = append(args, f.CollectionID)
	}
	if f.InArchive != nil {
		query += ` AND in_archive=?`
		args = append(args, boolInt(*f.InArchive))
	}
	if f.Withdrawn != nil {
		query += ` AND withdrawn=?`
		args = append(args, boolInt(*f.Withdrawn))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Item
	for rows.Next() {
		it, err := scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

func (r Repo) DeleteItem(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMetadata replaces all values of one field on an item.
func (r Repo) SetMetadata(ctx context.Context, tx *sql.Tx, itemID, schema, element, qualifier string, values []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM item_metadata WHERE item_id=? AND schema=? AND element=? AND qualifier=?`,
		itemID, schema, element, qualifier); err != nil {
		return err
	}
	for place, v := range values {
		if _, err := tx.ExecContext(ctx, `INSERT INTO item_metadata(item_id,schema,element,qualifier,text_value,place) VALUES (?,?,?,?,?,?)`,
			itemID, schema, element, qualifier, v, place); err != nil {
			return err
		}
	}
	return nil
}

// CopyMetadata replaces every metadata value on the destination item with
// a copy of the source item's values.
func (r Repo) CopyMetadata(ctx context.Context, tx *sql.Tx, fromItemID, toItemID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM item_metadata WHERE item_id=?`, toItemID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO item_metadata(item_id,schema,element,qualifier,text_value,place)
SELECT ?,schema,element,qualifier,text_value,place FROM item_metadata WHERE item_id=?`, toItemID, fromItemID)
	return err
}

func (r Repo) ListMetadata(ctx context.Context, itemID string) ([]domain.MetadataValue, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT item_id,schema,element,qualifier,text_value,place FROM item_metadata WHERE item_id=? ORDER BY schema,element,qualifier,place`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMetadata(rows)
}

func (r Repo) ListMetadataTx(ctx context.Context, tx *sql.Tx, itemID string) ([]domain.MetadataValue, error) {
	rows, err := tx.QueryContext(ctx, `SELECT item_id,schema,element,qualifier,text_value,place FROM item_metadata WHERE item_id=? ORDER BY schema,element,qualifier,place`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMetadata(rows)
}

func collectMetadata(rows *sql.Rows) ([]domain.MetadataValue, error) {
	var res []domain.MetadataValue
	for rows.Next() {
		var m domain.MetadataValue
		if err := rows.Scan(&m.ItemID, &m.Schema, &m.Element, &m.Qualifier, &m.Value, &m.Place); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// FirstMetadataValue returns the first value of a field, or "" when absent.
func (r Repo) FirstMetadataValue(ctx context.Context, itemID, schema, element, qualifier string) (string, error) {
	var v string
	err := r.DB.QueryRowContext(ctx, `SELECT text_value FROM item_metadata WHERE item_id=? AND schema=? AND element=? AND qualifier=? ORDER BY place LIMIT 1`,
		itemID, schema, element, qualifier).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
