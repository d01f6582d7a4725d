package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reviewline/internal/authz"
	"reviewline/internal/config"
	"reviewline/internal/domain"
	"reviewline/internal/events"
	"reviewline/internal/repo"
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

func (e Engine) ts() string {
	return e.now().UTC().Format(time.RFC3339)
}

// InitSite creates the singleton site together with its default
// configuration.
func (e Engine) InitSite(ctx context.Context, name, actorID string) (domain.Site, error) {
	if name == "" {
		return domain.Site{}, errors.New("site name is required")
	}
	if _, err := e.Repo.GetSite(ctx); err == nil {
		return domain.Site{}, errors.New("site already initialized")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Site{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Site{}, err
	}
	defer tx.Rollback()

	s := domain.Site{ID: uuid.NewString(), Name: name, CreatedAt: e.ts()}
	if err := e.Repo.InsertSite(ctx, tx, s); err != nil {
		return domain.Site{}, fmt.Errorf("insert site: %w", err)
	}
	if err := e.Repo.UpsertSiteConfigTx(ctx, tx, s.ID, config.Default(name)); err != nil {
		return domain.Site{}, fmt.Errorf("insert site config: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "site.init", "site", s.ID, actorID, events.EventPayload{"name": name}); err != nil {
		return domain.Site{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Site{}, err
	}
	return s, nil
}

func (e Engine) CreateCommunity(ctx context.Context, name, actorID string) (domain.Community, error) {
	if name == "" {
		return domain.Community{}, errors.New("community name is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Community{}, err
	}
	defer tx.Rollback()

	c := domain.Community{ID: uuid.NewString(), Name: name, CreatedAt: e.ts()}
	if err := e.Repo.InsertCommunity(ctx, tx, c); err != nil {
		return domain.Community{}, fmt.Errorf("insert community: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "community.created", "community", c.ID, actorID, events.EventPayload{"name": name}); err != nil {
		return domain.Community{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Community{}, err
	}
	return c, nil
}

// CollectionCreateOptions are parameters for creating a collection.
type CollectionCreateOptions struct {
	CommunityID   string
	Name          string
	ReviewGroupID string
	ActorID       string
}

func (e Engine) CreateCollection(ctx context.Context, opts CollectionCreateOptions) (domain.Collection, error) {
	if opts.Name == "" {
		return domain.Collection{}, errors.New("collection name is required")
	}
	if _, err := e.Repo.GetCommunity(ctx, opts.CommunityID); err != nil {
		return domain.Collection{}, err
	}
	if opts.ReviewGroupID != "" {
		if _, err := e.Repo.GetGroup(ctx, opts.ReviewGroupID); err != nil {
			return domain.Collection{}, err
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Collection{}, err
	}
	defer tx.Rollback()

	c := domain.Collection{
		ID:          uuid.NewString(),
		CommunityID: opts.CommunityID,
		Name:        opts.Name,
		CreatedAt:   e.ts(),
	}
	if opts.ReviewGroupID != "" {
		c.ReviewGroupID = &opts.ReviewGroupID
	}
	if err := e.Repo.InsertCollection(ctx, tx, c); err != nil {
		return domain.Collection{}, fmt.Errorf("insert collection: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "collection.created", "collection", c.ID, opts.ActorID, events.EventPayload{
		"name": opts.Name, "review_group_id": opts.ReviewGroupID,
	}); err != nil {
		return domain.Collection{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Collection{}, err
	}
	return c, nil
}

// SetCollectionReviewGroup changes the review group of a collection. An
// empty groupID removes the review step entirely.
func (e Engine) SetCollectionReviewGroup(ctx context.Context, collectionID, groupID, actorID string) error {
	if _, err := e.Repo.GetCollection(ctx, collectionID); err != nil {
		return err
	}
	var gid *string
	if groupID != "" {
		if _, err := e.Repo.GetGroup(ctx, groupID); err != nil {
			return err
		}
		gid = &groupID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.SetCollectionReviewGroup(ctx, tx, collectionID, gid); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "collection.review_group_set", "collection", collectionID, actorID, events.EventPayload{
		"review_group_id": groupID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) CreateActor(ctx context.Context, email string, admin bool, actorID string) (domain.Actor, error) {
	if email == "" {
		return domain.Actor{}, errors.New("email is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Actor{}, err
	}
	defer tx.Rollback()

	a := domain.Actor{ID: uuid.NewString(), Email: email, Admin: admin, CreatedAt: e.ts()}
	if err := e.Repo.InsertActor(ctx, tx, a); err != nil {
		return domain.Actor{}, fmt.Errorf("insert actor: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "actor.created", "actor", a.ID, actorID, events.EventPayload{
		"email": email, "admin": admin,
	}); err != nil {
		return domain.Actor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Actor{}, err
	}
	return a, nil
}

func (e Engine) CreateGroup(ctx context.Context, name, actorID string) (domain.Group, error) {
	if name == "" {
		return domain.Group{}, errors.New("group name is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Group{}, err
	}
	defer tx.Rollback()

	g := domain.Group{ID: uuid.NewString(), Name: name, CreatedAt: e.ts()}
	if err := e.Repo.InsertGroup(ctx, tx, g); err != nil {
		return domain.Group{}, fmt.Errorf("insert group: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "group.created", "group", g.ID, actorID, events.EventPayload{"name": name}); err != nil {
		return domain.Group{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Group{}, err
	}
	return g, nil
}

func (e Engine) AddGroupMember(ctx context.Context, groupID, memberID, actorID string) error {
	if _, err := e.Repo.GetGroup(ctx, groupID); err != nil {
		return err
	}
	if _, err := e.Repo.GetActor(ctx, memberID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.AddGroupMember(ctx, tx, groupID, memberID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "group.member_added", "group", groupID, actorID, events.EventPayload{
		"member_id": memberID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) RemoveGroupMember(ctx context.Context, groupID, memberID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.RemoveGroupMember(ctx, tx, groupID, memberID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "group.member_removed", "group", groupID, actorID, events.EventPayload{
		"member_id": memberID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateAPIKey mints a key for an actor and returns the raw secret. Only
// the hash is stored; the secret is shown once.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name, requesterID string) (domain.APIKey, string, error) {
	if _, err := e.Repo.GetActor(ctx, actorID); err != nil {
		return domain.APIKey{}, "", err
	}
	raw := uuid.NewString()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()

	k := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.ts(),
	}
	if err := e.Repo.InsertAPIKey(ctx, tx, k); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("insert api key: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "apikey.created", "actor", actorID, requesterID, events.EventPayload{
		"key_id": k.ID, "name": name,
	}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return k, raw, nil
}

// UpdateSiteConfig validates and stores a new site configuration.
func (e Engine) UpdateSiteConfig(ctx context.Context, cfg *config.Config, actorID string) error {
	s, err := e.Repo.GetSite(ctx)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.UpsertSiteConfigTx(ctx, tx, s.ID, cfg); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "site.config_updated", "site", s.ID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func forbidden(reason string) error {
	return authz.ForbiddenError{Reason: reason}
}
