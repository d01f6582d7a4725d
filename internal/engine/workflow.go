package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"reviewline/internal/domain"
	"reviewline/internal/events"
	"reviewline/internal/repo"
)

// CreateWorkspaceItem starts a new submission: a non-archived item plus
// the workspace entry that keeps it editable by its submitter.
func (e Engine) CreateWorkspaceItem(ctx context.Context, collectionID, submitterID, title string) (domain.WorkspaceItem, error) {
	if _, err := e.Repo.GetCollection(ctx, collectionID); err != nil {
		return domain.WorkspaceItem{}, err
	}
	if _, err := e.Repo.GetActor(ctx, submitterID); err != nil {
		return domain.WorkspaceItem{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkspaceItem{}, err
	}
	defer tx.Rollback()

	now := e.ts()
	it := domain.Item{
		ID:           uuid.NewString(),
		CollectionID: collectionID,
		SubmitterID:  submitterID,
		Discoverable: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.Repo.InsertItem(ctx, tx, it); err != nil {
		return domain.WorkspaceItem{}, fmt.Errorf("insert item: %w", err)
	}
	if title != "" {
		if err := e.Repo.SetMetadata(ctx, tx, it.ID, "dc", "title", "", []string{title}); err != nil {
			return domain.WorkspaceItem{}, fmt.Errorf("set title: %w", err)
		}
	}
	w := domain.WorkspaceItem{ID: uuid.NewString(), ItemID: it.ID, CollectionID: collectionID, CreatedAt: now}
	if err := e.Repo.InsertWorkspaceItem(ctx, tx, w); err != nil {
		return domain.WorkspaceItem{}, fmt.Errorf("insert workspace item: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "workspace.created", "item", it.ID, submitterID, events.EventPayload{
		"workspace_item_id": w.ID, "collection_id": collectionID,
	}); err != nil {
		return domain.WorkspaceItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkspaceItem{}, err
	}
	return w, nil
}

// SetItemMetadata replaces the values of one field. Installed items may
// only be edited by an admin; in-progress items by their submitter or an
// admin.
func (e Engine) SetItemMetadata(ctx context.Context, itemID, schema, element, qualifier string, values []string, actor domain.Actor) error {
	if schema == "" || element == "" {
		return errors.New("schema and element are required")
	}
	it, err := e.Repo.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if it.InArchive || it.Withdrawn {
		if !actor.Admin {
			return forbidden("installed items are editable by admins only")
		}
	} else if it.SubmitterID != actor.ID && !actor.Admin {
		return forbidden("item belongs to another submitter")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.SetMetadata(ctx, tx, itemID, schema, element, qualifier, values); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "item.metadata_set", "item", itemID, actor.ID, events.EventPayload{
		"field": domain.MetadataValue{Schema: schema, Element: element, Qualifier: qualifier}.Field(),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// SubmitResult reports where a submission went: into review, or straight
// to installed when the collection has no review step.
type SubmitResult struct {
	WorkflowItem *domain.WorkflowItem `json:"workflow_item,omitempty"`
	Installed    bool                 `json:"installed"`
	ItemID       string               `json:"item_id"`
}

// Submit moves a workspace item into the review workflow. Collections
// without a review group skip review: the item installs immediately, and
// a pending correction auto-applies.
func (e Engine) Submit(ctx context.Context, workspaceItemID string, actor domain.Actor) (SubmitResult, error) {
	w, err := e.Repo.GetWorkspaceItem(ctx, workspaceItemID)
	if err != nil {
		return SubmitResult{}, err
	}
	it, err := e.Repo.GetItem(ctx, w.ItemID)
	if err != nil {
		return SubmitResult{}, err
	}
	if it.SubmitterID != actor.ID && !actor.Admin {
		return SubmitResult{}, forbidden("workspace item belongs to another submitter")
	}
	col, err := e.Repo.GetCollection(ctx, w.CollectionID)
	if err != nil {
		return SubmitResult{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return SubmitResult{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteWorkspaceItem(ctx, tx, w.ID); err != nil {
		return SubmitResult{}, err
	}
	if col.ReviewGroupID == nil {
		if err := e.install(ctx, tx, it.ID, actor.ID); err != nil {
			return SubmitResult{}, err
		}
		if err := tx.Commit(); err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{Installed: true, ItemID: it.ID}, nil
	}

	now := e.ts()
	wf := domain.WorkflowItem{
		ID:           uuid.NewString(),
		ItemID:       it.ID,
		CollectionID: col.ID,
		State:        "review",
		CreatedAt:    now,
	}
	if err := e.Repo.InsertWorkflowItem(ctx, tx, wf); err != nil {
		return SubmitResult{}, fmt.Errorf("insert workflow item: %w", err)
	}
	pt := domain.PoolTask{ID: uuid.NewString(), WorkflowItemID: wf.ID, GroupID: *col.ReviewGroupID, CreatedAt: now}
	if err := e.Repo.InsertPoolTask(ctx, tx, pt); err != nil {
		return SubmitResult{}, fmt.Errorf("insert pool task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "workflow.submitted", "item", it.ID, actor.ID, events.EventPayload{
		"workflow_item_id": wf.ID, "pool_task_id": pt.ID,
	}); err != nil {
		return SubmitResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{WorkflowItem: &wf, ItemID: it.ID}, nil
}

// Claim converts a pool task into a claimed task owned by the actor. The
// actor must belong to the task's reviewer group. A concurrent claim on
// the same task fails with ErrConflict and leaves no partial state.
func (e Engine) Claim(ctx context.Context, poolTaskID string, actor domain.Actor) (domain.ClaimedTask, error) {
	pt, err := e.Repo.GetPoolTask(ctx, poolTaskID)
	if err != nil {
		return domain.ClaimedTask{}, err
	}
	member, err := e.Repo.IsGroupMember(ctx, pt.GroupID, actor.ID)
	if err != nil {
		return domain.ClaimedTask{}, err
	}
	if !member && !actor.Admin {
		return domain.ClaimedTask{}, forbidden("not a member of the reviewer group")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ClaimedTask{}, err
	}
	defer tx.Rollback()

	ct := domain.ClaimedTask{
		ID:             uuid.NewString(),
		WorkflowItemID: pt.WorkflowItemID,
		OwnerID:        actor.ID,
		ClaimedAt:      e.ts(),
	}
	if err := e.Repo.ClaimPoolTask(ctx, tx, pt.ID, ct); err != nil {
		return domain.ClaimedTask{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.claimed", "workflow_item", pt.WorkflowItemID, actor.ID, events.EventPayload{
		"claimed_task_id": ct.ID,
	}); err != nil {
		return domain.ClaimedTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ClaimedTask{}, err
	}
	return ct, nil
}

// Approve completes a claimed task. A plain submission installs; a
// correction merges its edits onto the original and the correction item
// is deleted. Task-state cleanup and the merge commit together.
func (e Engine) Approve(ctx context.Context, claimedTaskID string, actor domain.Actor) error {
	ct, wf, err := e.ownedTask(ctx, claimedTaskID, actor)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteClaimedTask(ctx, tx, ct.ID); err != nil {
		return err
	}
	if err := e.Repo.DeleteWorkflowItem(ctx, tx, wf.ID); err != nil {
		return err
	}
	if err := e.install(ctx, tx, wf.ItemID, actor.ID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.approved", "workflow_item", wf.ID, actor.ID, events.EventPayload{
		"item_id": wf.ItemID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// Reject returns the submission to its submitter's workspace with a
// reason. The item, and for corrections the correction item and its
// relationship, stay addressable and re-editable.
func (e Engine) Reject(ctx context.Context, claimedTaskID, reason string, actor domain.Actor) error {
	if reason == "" {
		return errors.New("reject reason is required")
	}
	ct, wf, err := e.ownedTask(ctx, claimedTaskID, actor)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteClaimedTask(ctx, tx, ct.ID); err != nil {
		return err
	}
	if err := e.Repo.DeleteWorkflowItem(ctx, tx, wf.ID); err != nil {
		return err
	}
	w := domain.WorkspaceItem{
		ID:           uuid.NewString(),
		ItemID:       wf.ItemID,
		CollectionID: wf.CollectionID,
		CreatedAt:    e.ts(),
	}
	if err := e.Repo.InsertWorkspaceItem(ctx, tx, w); err != nil {
		return fmt.Errorf("insert workspace item: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "task.rejected", "workflow_item", wf.ID, actor.ID, events.EventPayload{
		"item_id": wf.ItemID, "reason": reason, "workspace_item_id": w.ID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// ReturnToPool releases a claimed task back to the reviewer group.
func (e Engine) ReturnToPool(ctx context.Context, claimedTaskID string, actor domain.Actor) (domain.PoolTask, error) {
	ct, wf, err := e.ownedTask(ctx, claimedTaskID, actor)
	if err != nil {
		return domain.PoolTask{}, err
	}
	col, err := e.Repo.GetCollection(ctx, wf.CollectionID)
	if err != nil {
		return domain.PoolTask{}, err
	}
	if col.ReviewGroupID == nil {
		return domain.PoolTask{}, errors.New("collection no longer has a review group")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.PoolTask{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteClaimedTask(ctx, tx, ct.ID); err != nil {
		return domain.PoolTask{}, err
	}
	pt := domain.PoolTask{
		ID:             uuid.NewString(),
		WorkflowItemID: wf.ID,
		GroupID:        *col.ReviewGroupID,
		CreatedAt:      e.ts(),
	}
	if err := e.Repo.InsertPoolTask(ctx, tx, pt); err != nil {
		return domain.PoolTask{}, fmt.Errorf("insert pool task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "task.returned", "workflow_item", wf.ID, actor.ID, events.EventPayload{
		"pool_task_id": pt.ID,
	}); err != nil {
		return domain.PoolTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.PoolTask{}, err
	}
	return pt, nil
}

// Withdraw pulls an installed item out of the archive.
func (e Engine) Withdraw(ctx context.Context, itemID string, actor domain.Actor) (domain.Item, error) {
	if !actor.Admin {
		return domain.Item{}, forbidden("withdraw requires admin")
	}
	it, err := e.Repo.GetItem(ctx, itemID)
	if err != nil {
		return domain.Item{}, err
	}
	if !it.InArchive || it.Withdrawn {
		return domain.Item{}, fmt.Errorf("item %s is not installed", itemID)
	}
	it.InArchive = false
	it.Withdrawn = true
	it.UpdatedAt = e.ts()
	if err := e.updateItemState(ctx, it, "item.withdrawn", actor.ID); err != nil {
		return domain.Item{}, err
	}
	return it, nil
}

// Reinstate puts a withdrawn item back into the archive.
func (e Engine) Reinstate(ctx context.Context, itemID string, actor domain.Actor) (domain.Item, error) {
	if !actor.Admin {
		return domain.Item{}, forbidden("reinstate requires admin")
	}
	it, err := e.Repo.GetItem(ctx, itemID)
	if err != nil {
		return domain.Item{}, err
	}
	if !it.Withdrawn {
		return domain.Item{}, fmt.Errorf("item %s is not withdrawn", itemID)
	}
	it.InArchive = true
	it.Withdrawn = false
	it.UpdatedAt = e.ts()
	if err := e.updateItemState(ctx, it, "item.reinstated", actor.ID); err != nil {
		return domain.Item{}, err
	}
	return it, nil
}

func (e Engine) updateItemState(ctx context.Context, it domain.Item, evtType, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateItemState(ctx, tx, it); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, evtType, "item", it.ID, actorID, events.EventPayload{
		"in_archive": it.InArchive, "withdrawn": it.Withdrawn,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) ownedTask(ctx context.Context, claimedTaskID string, actor domain.Actor) (domain.ClaimedTask, domain.WorkflowItem, error) {
	ct, err := e.Repo.GetClaimedTask(ctx, claimedTaskID)
	if err != nil {
		return domain.ClaimedTask{}, domain.WorkflowItem{}, err
	}
	if ct.OwnerID != actor.ID {
		return domain.ClaimedTask{}, domain.WorkflowItem{}, forbidden("task claimed by another reviewer")
	}
	wf, err := e.Repo.GetWorkflowItem(ctx, ct.WorkflowItemID)
	if err != nil {
		return domain.ClaimedTask{}, domain.WorkflowItem{}, err
	}
	return ct, wf, nil
}

// install archives a plain submission, or applies a pending correction
// when the item is the shadow side of a correction relationship.
func (e Engine) install(ctx context.Context, tx *sql.Tx, itemID, actorID string) error {
	rel, err := e.Repo.GetRelationshipByLeftTx(ctx, tx, itemID, domain.RelIsCorrectionOfItem)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if err == nil {
		return e.applyCorrection(ctx, tx, rel, actorID)
	}
	it, err := e.Repo.GetItemTx(ctx, tx, itemID)
	if err != nil {
		return err
	}
	it.InArchive = true
	it.Withdrawn = false
	it.UpdatedAt = e.ts()
	if err := e.Repo.UpdateItemState(ctx, tx, it); err != nil {
		return err
	}
	return e.Events.Append(ctx, tx, "item.installed", "item", it.ID, actorID, nil)
}
