package repo

import (
	"context"
	"database/sql"

	"reviewline/internal/domain"
)

func (r Repo) InsertActor(ctx context.Context, tx *sql.Tx, a domain.Actor) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO actors(id,email,admin,created_at) VALUES (?,?,?,?)`,
		a.ID, a.Email, boolInt(a.Admin), a.CreatedAt)
	return err
}

func scanActor(scan func(...any) error) (domain.Actor, error) {
	var a domain.Actor
	var admin int
	err := scan(&a.ID, &a.Email, &admin, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Admin = admin != 0
	return a, nil
}

func (r Repo) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,email,admin,created_at FROM actors WHERE id=?`, id)
	return scanActor(row.Scan)
}

func (r Repo) GetActorByEmail(ctx context.Context, email string) (domain.Actor, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,email,admin,created_at FROM actors WHERE email=?`, email)
	return scanActor(row.Scan)
}

func (r Repo) ListActors(ctx context.Context) ([]domain.Actor, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,email,admin,created_at FROM actors ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Actor
	for rows.Next() {
		a, err := scanActor(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) SetActorAdmin(ctx context.Context, tx *sql.Tx, actorID string, admin bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE actors SET admin=? WHERE id=?`, boolInt(admin), actorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertGroup(ctx context.Context, tx *sql.Tx, g domain.Group) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO groups(id,name,created_at) VALUES (?,?,?)`,
		g.ID, g.Name, g.CreatedAt)
	return err
}

func (r Repo) GetGroup(ctx context.Context, id string) (domain.Group, error) {
	var g domain.Group
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM groups WHERE id=?`, id).
		Scan(&g.ID, &g.Name, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	return g, err
}

func (r Repo) GetGroupByName(ctx context.Context, name string) (domain.Group, error) {
	var g domain.Group
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM groups WHERE name=?`, name).
		Scan(&g.ID, &g.Name, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	return g, err
}

func (r Repo) ListGroups(ctx context.Context) ([]domain.Group, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at FROM groups ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Group
	for rows.Next() {
		var g domain.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

func (r Repo) AddGroupMember(ctx context.Context, tx *sql.Tx, groupID, actorID string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO group_members(group_id,actor_id) VALUES (?,?)`,
		groupID, actorID)
	return err
}

func (r Repo) RemoveGroupMember(ctx context.Context, tx *sql.Tx, groupID, actorID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=? AND actor_id=?`, groupID, actorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) IsGroupMember(ctx context.Context, groupID, actorID string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM group_members WHERE group_id=? AND actor_id=?`,
		groupID, actorID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) ListGroupMembers(ctx context.Context, groupID string) ([]domain.Actor, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT a.id,a.email,a.admin,a.created_at
FROM actors a JOIN group_members m ON m.actor_id=a.id
WHERE m.group_id=? ORDER BY a.email`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Actor
	for rows.Next() {
		a, err := scanActor(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
