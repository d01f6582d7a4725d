package correction_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"reviewline/internal/config"
	"reviewline/internal/correction"
	"reviewline/internal/db"
	"reviewline/internal/domain"
	"reviewline/internal/engine"
	"reviewline/internal/migrate"
	"reviewline/internal/repo"
)

type catalogEnv struct {
	Ctx     context.Context
	Engine  engine.Engine
	Catalog correction.Catalog
	Col     domain.Collection
	Admin   domain.Actor
}

func newCatalogEnv(t *testing.T) catalogEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("test-site")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitSite(ctx, "test-site", "system"); err != nil {
		t.Fatal(err)
	}
	admin, err := eng.CreateActor(ctx, "admin@example.org", true, "system")
	if err != nil {
		t.Fatal(err)
	}
	community, err := eng.CreateCommunity(ctx, "c", admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	col, err := eng.CreateCollection(ctx, engine.CollectionCreateOptions{CommunityID: community.ID, Name: "direct", ActorID: admin.ID})
	if err != nil {
		t.Fatal(err)
	}
	return catalogEnv{
		Ctx: ctx, Engine: eng,
		Catalog: correction.NewCatalog(cfg, eng.Repo),
		Col:     col, Admin: admin,
	}
}

func (env catalogEnv) installedItem(t *testing.T) domain.Item {
	t.Helper()
	w, err := env.Engine.CreateWorkspaceItem(env.Ctx, env.Col.ID, env.Admin.ID, "Test item")
	if err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.Submit(env.Ctx, w.ID, env.Admin)
	if err != nil || !res.Installed {
		t.Fatalf("install: %v", err)
	}
	it, err := env.Engine.Repo.GetItem(env.Ctx, res.ItemID)
	if err != nil {
		t.Fatal(err)
	}
	return it
}

func TestFindByIDAndTopic(t *testing.T) {
	env := newCatalogEnv(t)
	if got := len(env.Catalog.FindAll()); got != 2 {
		t.Fatalf("expected 2 types, got %d", got)
	}
	ct, err := env.Catalog.FindByID(config.TypeRequestWithdrawn)
	if err != nil || ct.Topic != config.TopicRequestWithdrawn {
		t.Fatalf("find by id: %v %+v", err, ct)
	}
	if _, err := env.Catalog.FindByID("nosuch"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing id: %v", err)
	}
	ct, err = env.Catalog.FindByTopic(config.TopicRequestReinstate)
	if err != nil || ct.ID != config.TypeRequestReinstate {
		t.Fatalf("find by topic: %v %+v", err, ct)
	}
	if _, err := env.Catalog.FindByTopic("NO/TOPIC"); !errors.Is(err, correction.ErrNoContent) {
		t.Fatalf("missing topic: %v", err)
	}
}

func TestApplicableForArchivedItem(t *testing.T) {
	env := newCatalogEnv(t)
	it := env.installedItem(t)
	types, err := env.Catalog.FindApplicable(env.Ctx, it)
	if err != nil {
		t.Fatal(err)
	}
	if len(types) != 1 || types[0].ID != config.TypeRequestWithdrawn {
		t.Fatalf("archived item: %+v", types)
	}

	// the discoverable flag does not affect applicability
	it.Discoverable = false
	types, err = env.Catalog.FindApplicable(env.Ctx, it)
	if err != nil || len(types) != 1 || types[0].ID != config.TypeRequestWithdrawn {
		t.Fatalf("undiscoverable archived item: %v %+v", err, types)
	}
}

func TestApplicableForWithdrawnItem(t *testing.T) {
	env := newCatalogEnv(t)
	it := env.installedItem(t)
	withdrawn, err := env.Engine.Withdraw(env.Ctx, it.ID, env.Admin)
	if err != nil {
		t.Fatal(err)
	}
	types, err := env.Catalog.FindApplicable(env.Ctx, withdrawn)
	if err != nil {
		t.Fatal(err)
	}
	if len(types) != 1 || types[0].ID != config.TypeRequestReinstate {
		t.Fatalf("withdrawn item: %+v", types)
	}
}

func TestApplicableForInProgressItem(t *testing.T) {
	env := newCatalogEnv(t)
	w, err := env.Engine.CreateWorkspaceItem(env.Ctx, env.Col.ID, env.Admin.ID, "wip")
	if err != nil {
		t.Fatal(err)
	}
	it, err := env.Engine.Repo.GetItem(env.Ctx, w.ItemID)
	if err != nil {
		t.Fatal(err)
	}
	types, err := env.Catalog.FindApplicable(env.Ctx, it)
	if err != nil {
		t.Fatal(err)
	}
	if len(types) != 0 {
		t.Fatalf("in-progress item should have no applicable types: %+v", types)
	}
}

func TestOpenCorrectionBlocksWithdrawRequest(t *testing.T) {
	env := newCatalogEnv(t)
	it := env.installedItem(t)
	if _, err := env.Engine.CreateCorrection(env.Ctx, it.ID, env.Admin); err != nil {
		t.Fatal(err)
	}
	types, err := env.Catalog.FindApplicable(env.Ctx, it)
	if err != nil {
		t.Fatal(err)
	}
	if len(types) != 0 {
		t.Fatalf("open correction should block the withdraw request: %+v", types)
	}
}
