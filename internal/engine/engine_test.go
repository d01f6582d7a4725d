package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"reviewline/internal/authz"
	"reviewline/internal/config"
	"reviewline/internal/db"
	"reviewline/internal/domain"
	"reviewline/internal/engine"
	"reviewline/internal/migrate"
	"reviewline/internal/repo"
)

type testEnv struct {
	Engine    engine.Engine
	Ctx       context.Context
	Reviewed  domain.Collection
	Direct    domain.Collection
	Reviewers domain.Group
	Submitter domain.Actor
	Reviewer  domain.Actor
	Reviewer2 domain.Actor
	Admin     domain.Actor
}

func newTestEnv(t *testing.T) testEnv {
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
		t.Fatalf("init site: %v", err)
	}
	admin, err := eng.CreateActor(ctx, "admin@example.org", true, "system")
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	submitter, err := eng.CreateActor(ctx, "submitter@example.org", false, admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	reviewer, err := eng.CreateActor(ctx, "reviewer@example.org", false, admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	reviewer2, err := eng.CreateActor(ctx, "reviewer2@example.org", false, admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	group, err := eng.CreateGroup(ctx, "reviewers", admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range []domain.Actor{reviewer, reviewer2} {
		if err := eng.AddGroupMember(ctx, group.ID, a.ID, admin.ID); err != nil {
			t.Fatal(err)
		}
	}
	community, err := eng.CreateCommunity(ctx, "sciences", admin.ID)
	if err != nil {
		t.Fatal(err)
	}
	reviewed, err := eng.CreateCollection(ctx, engine.CollectionCreateOptions{
		CommunityID: community.ID, Name: "reviewed", ReviewGroupID: group.ID, ActorID: admin.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	direct, err := eng.CreateCollection(ctx, engine.CollectionCreateOptions{
		CommunityID: community.ID, Name: "direct", ActorID: admin.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	return testEnv{
		Engine: eng, Ctx: ctx,
		Reviewed: reviewed, Direct: direct, Reviewers: group,
		Submitter: submitter, Reviewer: reviewer, Reviewer2: reviewer2, Admin: admin,
	}
}

// installItem pushes a submission through to installed, claiming and
// approving when the collection has a review step.
func installItem(t *testing.T, env testEnv, col domain.Collection, title string) domain.Item {
	t.Helper()
	w, err := env.Engine.CreateWorkspaceItem(env.Ctx, col.ID, env.Submitter.ID, title)
	if err != nil {
		t.Fatalf("create workspace item: %v", err)
	}
	res, err := env.Engine.Submit(env.Ctx, w.ID, env.Submitter)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Installed {
		tasks, err := env.Engine.Repo.ListPoolTasksFor(env.Ctx, env.Reviewer.ID)
		if err != nil || len(tasks) == 0 {
			t.Fatalf("pool tasks: %v (%d)", err, len(tasks))
		}
		ct, err := env.Engine.Claim(env.Ctx, tasks[len(tasks)-1].ID, env.Reviewer)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if err := env.Engine.Approve(env.Ctx, ct.ID, env.Reviewer); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}
	it, err := env.Engine.Repo.GetItem(env.Ctx, res.ItemID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	return it
}

func itemTitle(t *testing.T, env testEnv, itemID string) string {
	t.Helper()
	v, err := env.Engine.Repo.FirstMetadataValue(env.Ctx, itemID, "dc", "title", "")
	if err != nil {
		t.Fatalf("title: %v", err)
	}
	return v
}

func TestSubmitCreatesPoolTask(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWorkspaceItem(env.Ctx, env.Reviewed.ID, env.Submitter.ID, "Test item")
	if err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.Submit(env.Ctx, w.ID, env.Submitter)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Installed || res.WorkflowItem == nil {
		t.Fatalf("expected review path, got %+v", res)
	}
	it, err := env.Engine.Repo.GetItem(env.Ctx, res.ItemID)
	if err != nil || it.InArchive {
		t.Fatalf("item should not be installed yet: %v %+v", err, it)
	}
	tasks, err := env.Engine.Repo.ListPoolTasksFor(env.Ctx, env.Reviewer.ID)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("expected one pool task, got %d (%v)", len(tasks), err)
	}
	// the workspace entry is consumed by submit
	if _, err := env.Engine.Repo.GetWorkspaceItem(env.Ctx, w.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("workspace item should be gone, got %v", err)
	}
}

func TestSubmitWithoutReviewersInstalls(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWorkspaceItem(env.Ctx, env.Direct.ID, env.Submitter.ID, "Direct item")
	if err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.Submit(env.Ctx, w.ID, env.Submitter)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Installed {
		t.Fatalf("expected immediate install")
	}
	it, err := env.Engine.Repo.GetItem(env.Ctx, res.ItemID)
	if err != nil || !it.InArchive {
		t.Fatalf("item should be installed: %v %+v", err, it)
	}
	pool, _ := env.Engine.Repo.ListPoolTasks(env.Ctx)
	claimed, _ := env.Engine.Repo.ListClaimedTasks(env.Ctx, "")
	if len(pool) != 0 || len(claimed) != 0 {
		t.Fatalf("no tasks expected, got %d pool %d claimed", len(pool), len(claimed))
	}
}

func TestClaimConflict(t *testing.T) {
	env := newTestEnv(t)
	w, _ := env.Engine.CreateWorkspaceItem(env.Ctx, env.Reviewed.ID, env.Submitter.ID, "Test item")
	if _, err := env.Engine.Submit(env.Ctx, w.ID, env.Submitter); err != nil {
		t.Fatal(err)
	}
	tasks, _ := env.Engine.Repo.ListPoolTasksFor(env.Ctx, env.Reviewer.ID)
	if len(tasks) != 1 {
		t.Fatalf("expected one pool task, got %d", len(tasks))
	}
	ct, err := env.Engine.Claim(env.Ctx, tasks[0].ID, env.Reviewer)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := env.Engine.Claim(env.Ctx, tasks[0].ID, env.Reviewer2); !errors.Is(err, repo.ErrNotFound) && !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("second claim should conflict, got %v", err)
	}
	claimed, err := env.Engine.Repo.ListClaimedTasks(env.Ctx, "")
	if err != nil || len(claimed) != 1 || claimed[0].OwnerID != env.Reviewer.ID {
		t.Fatalf("exactly one claimed task owned by first claimant expected: %v %+v", err, claimed)
	}
	if claimed[0].ID != ct.ID {
		t.Fatalf("claimed task changed")
	}
}

func TestClaimRequiresGroupMembership(t *testing.T) {
	env := newTestEnv(t)
	w, _ := env.Engine.CreateWorkspaceItem(env.Ctx, env.Reviewed.ID, env.Submitter.ID, "Test item")
	if _, err := env.Engine.Submit(env.Ctx, w.ID, env.Submitter); err != nil {
		t.Fatal(err)
	}
	tasks, _ := env.Engine.Repo.ListPoolTasks(env.Ctx)
	var fe authz.ForbiddenError
	if _, err := env.Engine.Claim(env.Ctx, tasks[0].ID, env.Submitter); !errors.As(err, &fe) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestApproveInstallsItem(t *testing.T) {
	env := newTestEnv(t)
	it := installItem(t, env, env.Reviewed, "Test item")
	if !it.InArchive || it.Withdrawn {
		t.Fatalf("item should be installed: %+v", it)
	}
	pool, _ := env.Engine.Repo.ListPoolTasks(env.Ctx)
	claimed, _ := env.Engine.Repo.ListClaimedTasks(env.Ctx, "")
	wfs, _ := env.Engine.Repo.ListWorkflowItems(env.Ctx)
	if len(pool)+len(claimed)+len(wfs) != 0 {
		t.Fatalf("workflow state should be cleaned up")
	}
}

func TestApproveByNonOwnerForbidden(t *testing.T) {
	env := newTestEnv(t)
	w, _ := env.Engine.CreateWorkspaceItem(env.Ctx, env.Reviewed.ID, env.Submitter.ID, "Test item")
	if _, err := env.Engine.Submit(env.Ctx, w.ID, env.Submitter); err != nil {
		t.Fatal(err)
	}
	tasks, _ := env.Engine.Repo.ListPoolTasks(env.Ctx)
	ct, err := env.Engine.Claim(env.Ctx, tasks[0].ID, env.Reviewer)
	if err != nil {
		t.Fatal(err)
	}
	var fe authz.ForbiddenError
	if err := env.Engine.Approve(env.Ctx, ct.ID, env.Reviewer2); !errors.As(err, &fe) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := env.Engine.Reject(env.Ctx, ct.ID, "nope", env.Reviewer2); !errors.As(err, &fe) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestRejectReturnsToWorkspace(t *testing.T) {
	env := newTestEnv(t)
	w, _ := env.Engine.CreateWorkspaceItem(env.Ctx, env.Reviewed.ID, env.Submitter.ID, "Test item")
	res, err := env.Engine.Submit(env.Ctx, w.ID, env.Submitter)
	if err != nil {
		t.Fatal(err)
	}
	tasks, _ := env.Engine.Repo.ListPoolTasks(env.Ctx)
	ct, err := env.Engine.Claim(env.Ctx, tasks[0].ID, env.Reviewer)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Reject(env.Ctx, ct.ID, "needs sources", env.Reviewer); err != nil {
		t.Fatalf("reject: %v", err)
	}
	it, err := env.Engine.Repo.GetItem(env.Ctx, res.ItemID)
	if err != nil || it.InArchive {
		t.Fatalf("item should stay uninstalled: %v %+v", err, it)
	}
	ws, err := env.Engine.Repo.GetWorkspaceItemByItem(env.Ctx, res.ItemID)
	if err != nil {
		t.Fatalf("submitter should regain a workspace item: %v", err)
	}
	if ws.CollectionID != env.Reviewed.ID {
		t.Fatalf("workspace item in wrong collection")
	}
	claimed, _ := env.Engine.Repo.ListClaimedTasks(env.Ctx, "")
	if len(claimed) != 0 {
		t.Fatalf("claimed task should be gone")
	}
}

func TestReturnToPool(t *testing.T) {
	env := newTestEnv(t)
	w, _ := env.Engine.CreateWorkspaceItem(env.Ctx, env.Reviewed.ID, env.Submitter.ID, "Test item")
	if _, err := env.Engine.Submit(env.Ctx, w.ID, env.Submitter); err != nil {
		t.Fatal(err)
	}
	tasks, _ := env.Engine.Repo.ListPoolTasks(env.Ctx)
	ct, err := env.Engine.Claim(env.Ctx, tasks[0].ID, env.Reviewer)
	if err != nil {
		t.Fatal(err)
	}
	pt, err := env.Engine.ReturnToPool(env.Ctx, ct.ID, env.Reviewer)
	if err != nil {
		t.Fatalf("return to pool: %v", err)
	}
	if pt.GroupID != env.Reviewers.ID {
		t.Fatalf("new pool task for wrong group")
	}
	claimed, _ := env.Engine.Repo.ListClaimedTasks(env.Ctx, "")
	if len(claimed) != 0 {
		t.Fatalf("claimed task should be gone")
	}
	// the other reviewer can now claim it
	if _, err := env.Engine.Claim(env.Ctx, pt.ID, env.Reviewer2); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
}

func TestWithdrawReinstate(t *testing.T) {
	env := newTestEnv(t)
	it := installItem(t, env, env.Direct, "Test item")
	if _, err := env.Engine.Withdraw(env.Ctx, it.ID, env.Submitter); err == nil {
		t.Fatalf("withdraw should require admin")
	}
	withdrawn, err := env.Engine.Withdraw(env.Ctx, it.ID, env.Admin)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if withdrawn.InArchive || !withdrawn.Withdrawn {
		t.Fatalf("bad withdraw state: %+v", withdrawn)
	}
	if _, err := env.Engine.Withdraw(env.Ctx, it.ID, env.Admin); err == nil {
		t.Fatalf("double withdraw should fail")
	}
	back, err := env.Engine.Reinstate(env.Ctx, it.ID, env.Admin)
	if err != nil {
		t.Fatalf("reinstate: %v", err)
	}
	if !back.InArchive || back.Withdrawn {
		t.Fatalf("bad reinstate state: %+v", back)
	}
}

func TestCorrectionApproveMergesAndDeletes(t *testing.T) {
	env := newTestEnv(t)
	orig := installItem(t, env, env.Reviewed, "Test item")

	cw, err := env.Engine.CreateCorrection(env.Ctx, orig.ID, env.Submitter)
	if err != nil {
		t.Fatalf("create correction: %v", err)
	}
	if err := env.Engine.SetItemMetadata(env.Ctx, cw.ItemID, "dc", "title", "", []string{"Test item correction"}, env.Submitter); err != nil {
		t.Fatalf("edit correction: %v", err)
	}
	if got := itemTitle(t, env, orig.ID); got != "Test item" {
		t.Fatalf("original title changed early: %q", got)
	}
	if _, err := env.Engine.Submit(env.Ctx, cw.ID, env.Submitter); err != nil {
		t.Fatal(err)
	}
	tasks, _ := env.Engine.Repo.ListPoolTasks(env.Ctx)
	ct, err := env.Engine.Claim(env.Ctx, tasks[0].ID, env.Reviewer)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Approve(env.Ctx, ct.ID, env.Reviewer); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := itemTitle(t, env, orig.ID); got != "Test item correction" {
		t.Fatalf("merge missed: title %q", got)
	}
	if _, err := env.Engine.Repo.GetItem(env.Ctx, cw.ItemID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("correction item should be deleted, got %v", err)
	}
	if _, err := env.Engine.Repo.GetRelationshipByRight(env.Ctx, orig.ID, domain.RelIsCorrectedByItem); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("relationship should be deleted, got %v", err)
	}
}

func TestCorrectionRejectKeepsShadow(t *testing.T) {
	env := newTestEnv(t)
	orig := installItem(t, env, env.Reviewed, "Test item")

	cw, err := env.Engine.CreateCorrection(env.Ctx, orig.ID, env.Submitter)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.SetItemMetadata(env.Ctx, cw.ItemID, "dc", "title", "", []string{"Test item correction"}, env.Submitter); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Submit(env.Ctx, cw.ID, env.Submitter); err != nil {
		t.Fatal(err)
	}
	tasks, _ := env.Engine.Repo.ListPoolTasks(env.Ctx)
	ct, err := env.Engine.Claim(env.Ctx, tasks[0].ID, env.Reviewer)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Reject(env.Ctx, ct.ID, "wrong title", env.Reviewer); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got := itemTitle(t, env, orig.ID); got != "Test item" {
		t.Fatalf("original must stay untouched, title %q", got)
	}
	// the correction survives a reject: still addressable, still linked,
	// back in the submitter's workspace for another round
	if _, err := env.Engine.Repo.GetItem(env.Ctx, cw.ItemID); err != nil {
		t.Fatalf("correction item should survive reject: %v", err)
	}
	if _, err := env.Engine.Repo.GetRelationshipByRight(env.Ctx, orig.ID, domain.RelIsCorrectedByItem); err != nil {
		t.Fatalf("relationship should survive reject: %v", err)
	}
	if _, err := env.Engine.Repo.GetWorkspaceItemByItem(env.Ctx, cw.ItemID); err != nil {
		t.Fatalf("correction should be re-editable: %v", err)
	}
}

func TestCorrectionAutoApplyWithoutReviewers(t *testing.T) {
	env := newTestEnv(t)
	orig := installItem(t, env, env.Direct, "Test item")

	cw, err := env.Engine.CreateCorrection(env.Ctx, orig.ID, env.Submitter)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.SetItemMetadata(env.Ctx, cw.ItemID, "dc", "title", "", []string{"Test item correction"}, env.Submitter); err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.Submit(env.Ctx, cw.ID, env.Submitter)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Installed {
		t.Fatalf("expected auto-apply")
	}
	if got := itemTitle(t, env, orig.ID); got != "Test item correction" {
		t.Fatalf("auto-apply missed: title %q", got)
	}
	if _, err := env.Engine.Repo.GetItem(env.Ctx, cw.ItemID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("correction item should be deleted, got %v", err)
	}
	pool, _ := env.Engine.Repo.ListPoolTasks(env.Ctx)
	claimed, _ := env.Engine.Repo.ListClaimedTasks(env.Ctx, "")
	if len(pool)+len(claimed) != 0 {
		t.Fatalf("no tasks expected on auto-apply")
	}
}

func TestCorrectionConflictWhenOneOpen(t *testing.T) {
	env := newTestEnv(t)
	orig := installItem(t, env, env.Direct, "Test item")
	if _, err := env.Engine.CreateCorrection(env.Ctx, orig.ID, env.Submitter); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateCorrection(env.Ctx, orig.ID, env.Reviewer); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	installItem(t, env, env.Reviewed, "Test item")
	evts, err := env.Engine.Repo.ListEvents(env.Ctx, "", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for _, ev := range evts {
		seen[ev.Type] = true
	}
	for _, want := range []string{"site.init", "workspace.created", "workflow.submitted", "task.claimed", "task.approved", "item.installed"} {
		if !seen[want] {
			t.Fatalf("missing event %s (have %v)", want, seen)
		}
	}
}
