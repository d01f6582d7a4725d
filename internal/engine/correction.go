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

// CreateCorrection opens a shadow workspace item holding proposed edits to
// an installed item. The shadow starts as a metadata copy of the original
// and is linked to it; an item carries at most one open correction.
func (e Engine) CreateCorrection(ctx context.Context, originalItemID string, actor domain.Actor) (domain.WorkspaceItem, error) {
	orig, err := e.Repo.GetItem(ctx, originalItemID)
	if err != nil {
		return domain.WorkspaceItem{}, err
	}
	if !orig.InArchive || orig.Withdrawn {
		return domain.WorkspaceItem{}, fmt.Errorf("item %s is not installed", originalItemID)
	}
	if _, err := e.Repo.GetRelationshipByRight(ctx, originalItemID, domain.RelIsCorrectedByItem); err == nil {
		return domain.WorkspaceItem{}, repo.ErrConflict
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.WorkspaceItem{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkspaceItem{}, err
	}
	defer tx.Rollback()

	now := e.ts()
	shadow := domain.Item{
		ID:           uuid.NewString(),
		CollectionID: orig.CollectionID,
		SubmitterID:  actor.ID,
		Discoverable: false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.Repo.InsertItem(ctx, tx, shadow); err != nil {
		return domain.WorkspaceItem{}, fmt.Errorf("insert correction item: %w", err)
	}
	if err := e.Repo.CopyMetadata(ctx, tx, orig.ID, shadow.ID); err != nil {
		return domain.WorkspaceItem{}, fmt.Errorf("copy metadata: %w", err)
	}
	rel := domain.Relationship{
		ID:            uuid.NewString(),
		LeftItemID:    shadow.ID,
		RightItemID:   orig.ID,
		LeftwardType:  domain.RelIsCorrectionOfItem,
		RightwardType: domain.RelIsCorrectedByItem,
		CreatedAt:     now,
	}
	if err := e.Repo.InsertRelationship(ctx, tx, rel); err != nil {
		return domain.WorkspaceItem{}, fmt.Errorf("insert relationship: %w", err)
	}
	w := domain.WorkspaceItem{ID: uuid.NewString(), ItemID: shadow.ID, CollectionID: orig.CollectionID, CreatedAt: now}
	if err := e.Repo.InsertWorkspaceItem(ctx, tx, w); err != nil {
		return domain.WorkspaceItem{}, fmt.Errorf("insert workspace item: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "correction.created", "item", orig.ID, actor.ID, events.EventPayload{
		"correction_item_id": shadow.ID, "workspace_item_id": w.ID,
	}); err != nil {
		return domain.WorkspaceItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkspaceItem{}, err
	}
	return w, nil
}

// applyCorrection merges the shadow's metadata onto the original and
// discards the shadow and its relationship. Runs inside the caller's
// transaction so the merge and the task cleanup commit together.
func (e Engine) applyCorrection(ctx context.Context, tx *sql.Tx, rel domain.Relationship, actorID string) error {
	if err := e.Repo.CopyMetadata(ctx, tx, rel.LeftItemID, rel.RightItemID); err != nil {
		return fmt.Errorf("merge metadata: %w", err)
	}
	orig, err := e.Repo.GetItemTx(ctx, tx, rel.RightItemID)
	if err != nil {
		return err
	}
	orig.UpdatedAt = e.ts()
	if err := e.Repo.UpdateItemState(ctx, tx, orig); err != nil {
		return err
	}
	if err := e.Repo.DeleteRelationship(ctx, tx, rel.ID); err != nil {
		return err
	}
	// Deleting the shadow cascades its metadata and any workspace or
	// workflow rows still pointing at it.
	if err := e.Repo.DeleteItem(ctx, tx, rel.LeftItemID); err != nil {
		return err
	}
	return e.Events.Append(ctx, tx, "correction.applied", "item", rel.RightItemID, actorID, events.EventPayload{
		"correction_item_id": rel.LeftItemID,
	})
}
