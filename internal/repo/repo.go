package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"reviewline/internal/config"
	"reviewline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertSite(ctx context.Context, tx *sql.Tx, s domain.Site) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO sites(id,name,created_at) VALUES (?,?,?)`,
		s.ID, s.Name, s.CreatedAt)
	return err
}

// GetSite returns the singleton site row.
func (r Repo) GetSite(ctx context.Context) (domain.Site, error) {
	var s domain.Site
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM sites LIMIT 1`).
		Scan(&s.ID, &s.Name, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) UpsertSiteConfig(ctx context.Context, siteID string, cfg *config.Config) error {
	return upsertSiteConfig(ctx, r.DB, nil, siteID, cfg)
}

func (r Repo) UpsertSiteConfigTx(ctx context.Context, tx *sql.Tx, siteID string, cfg *config.Config) error {
	return upsertSiteConfig(ctx, nil, tx, siteID, cfg)
}

func upsertSiteConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, siteID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	now := nowRFC3339()
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO site_configs(site_id,config_yaml,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(site_id) DO UPDATE SET config_yaml=excluded.config_yaml, updated_at=excluded.updated_at`, siteID, string(payload), now, now)
	return err
}

func (r Repo) GetSiteConfig(ctx context.Context, siteID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_yaml FROM site_configs WHERE site_id=?`, siteID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return config.FromYAML([]byte(payload))
}

func (r Repo) InsertCommunity(ctx context.Context, tx *sql.Tx, c domain.Community) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO communities(id,name,created_at) VALUES (?,?,?)`,
		c.ID, c.Name, c.CreatedAt)
	return err
}

func (r Repo) GetCommunity(ctx context.Context, id string) (domain.Community, error) {
	var c domain.Community
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM communities WHERE id=?`, id).
		Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) ListCommunities(ctx context.Context) ([]domain.Community, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at FROM communities ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Community
	for rows.Next() {
		var c domain.Community
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) InsertCollection(ctx context.Context, tx *sql.Tx, c domain.Collection) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO collections(id,community_id,name,review_group_id,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.CommunityID, c.Name, nullableStringPtr(c.ReviewGroupID), c.CreatedAt)
	return err
}

func scanCollection(scan func(...any) error) (domain.Collection, error) {
	var c domain.Collection
	var reviewGroup sql.NullString
	err := scan(&c.ID, &c.CommunityID, &c.Name, &reviewGroup, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if reviewGroup.Valid {
		c.ReviewGroupID = &reviewGroup.String
	}
	return c, nil
}

func (r Repo) GetCollection(ctx context.Context, id string) (domain.Collection, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,community_id,name,review_group_id,created_at FROM collections WHERE id=?`, id)
	return scanCollection(row.Scan)
}

func (r Repo) GetCollectionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Collection, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,community_id,name,review_group_id,created_at FROM collections WHERE id=?`, id)
	return scanCollection(row.Scan)
}

func (r Repo) ListCollections(ctx context.Context, communityID string) ([]domain.Collection, error) {
	query := `SELECT id,community_id,name,review_group_id,created_at FROM collections`
	var args []any
	if communityID != "" {
		query += ` WHERE community_id=?`
		args = append(args, communityID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Collection
	for rows.Next() {
		c, err := scanCollection(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) SetCollectionReviewGroup(ctx context.Context, tx *sql.Tx, collectionID string, groupID *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE collections SET review_group_id=? WHERE id=?`,
		nullableStringPtr(groupID), collectionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
