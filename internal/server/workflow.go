package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"reviewline/internal/domain"
	"reviewline/internal/engine"
)

func registerWorkflow(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-workspace-item",
		Method:        http.MethodPost,
		Path:          "/workspaceitems",
		Summary:       "Start a new submission",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateWorkspaceItemRequest `json:"body"`
	}) (*struct {
		Body domain.WorkspaceItem `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.CollectionID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "collection_id is required", nil)
		}
		w, err := e.CreateWorkspaceItem(ctx, input.Body.CollectionID, actor.ID, input.Body.Title)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkspaceItem `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-workspace-items",
		Method:      http.MethodGet,
		Path:        "/workspaceitems",
		Summary:     "List own workspace items",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.WorkspaceItem `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		submitter := actor.ID
		if actor.Admin {
			submitter = ""
		}
		ws, err := e.Repo.ListWorkspaceItems(ctx, submitter)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.WorkspaceItem `json:"body"`
		}{Body: ws}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-workspace-item",
		Method:      http.MethodPost,
		Path:        "/workspaceitems/{workspace_item_id}/submit",
		Summary:     "Submit a workspace item into review",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkspaceItemID string `path:"workspace_item_id"`
	}) (*struct {
		Body engine.SubmitResult `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Submit(ctx, input.WorkspaceItemID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.SubmitResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-pool-tasks",
		Method:      http.MethodGet,
		Path:        "/pooltasks",
		Summary:     "List pool tasks visible to the caller",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.PoolTask `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var (
			tasks []domain.PoolTask
			err   error
		)
		if actor.Admin {
			tasks, err = e.Repo.ListPoolTasks(ctx)
		} else {
			tasks, err = e.Repo.ListPoolTasksFor(ctx, actor.ID)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.PoolTask `json:"body"`
		}{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "claim-pool-task",
		Method:        http.MethodPost,
		Path:          "/pooltasks/{pool_task_id}/claim",
		Summary:       "Claim a pool task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		PoolTaskID string `path:"pool_task_id"`
	}) (*struct {
		Body domain.ClaimedTask `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ct, err := e.Claim(ctx, input.PoolTaskID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ClaimedTask `json:"body"`
		}{Body: ct}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-claimed-tasks",
		Method:      http.MethodGet,
		Path:        "/claimedtasks",
		Summary:     "List own claimed tasks",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.ClaimedTask `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		owner := actor.ID
		if actor.Admin {
			owner = ""
		}
		tasks, err := e.Repo.ListClaimedTasks(ctx, owner)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ClaimedTask `json:"body"`
		}{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-claimed-task",
		Method:      http.MethodPost,
		Path:        "/claimedtasks/{claimed_task_id}/approve",
		Summary:     "Approve the submission under review",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ClaimedTaskID string `path:"claimed_task_id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Approve(ctx, input.ClaimedTaskID, actor); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "approved"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-claimed-task",
		Method:      http.MethodPost,
		Path:        "/claimedtasks/{claimed_task_id}/reject",
		Summary:     "Reject the submission under review",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ClaimedTaskID string `path:"claimed_task_id"`
		Body          RejectRequest `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Reason == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "reason is required", nil)
		}
		if err := e.Reject(ctx, input.ClaimedTaskID, input.Body.Reason, actor); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "rejected"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "return-claimed-task",
		Method:      http.MethodPost,
		Path:        "/claimedtasks/{claimed_task_id}/return",
		Summary:     "Return a claimed task to the pool",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ClaimedTaskID string `path:"claimed_task_id"`
	}) (*struct {
		Body domain.PoolTask `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		pt, err := e.ReturnToPool(ctx, input.ClaimedTaskID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PoolTask `json:"body"`
		}{Body: pt}, nil
	})
}
