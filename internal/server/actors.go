package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"reviewline/internal/domain"
	"reviewline/internal/engine"
)

func registerActors(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-actor",
		Method:        http.MethodPost,
		Path:          "/actors",
		Summary:       "Create actor",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateActorRequest `json:"body"`
	}) (*struct {
		Body domain.Actor `json:"body"`
	}, error) {
		admin, authErr := requireAdmin(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateActor(ctx, input.Body.Email, input.Body.Admin, admin.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Actor `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-actor",
		Method:      http.MethodGet,
		Path:        "/actors/{actor_id}",
		Summary:     "Get actor",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActorID string `path:"actor_id"`
	}) (*struct {
		Body domain.Actor `json:"body"`
	}, error) {
		requester, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if requester.ID != input.ActorID && !requester.Admin {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "actor belongs to someone else", nil)
		}
		a, err := e.Repo.GetActor(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Actor `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "whoami",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current actor",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Actor `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body domain.Actor `json:"body"`
		}{Body: actor}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-group",
		Method:        http.MethodPost,
		Path:          "/groups",
		Summary:       "Create group",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateGroupRequest `json:"body"`
	}) (*struct {
		Body domain.Group `json:"body"`
	}, error) {
		admin, authErr := requireAdmin(ctx)
		if authErr != nil {
			return nil, authErr
		}
		g, err := e.CreateGroup(ctx, input.Body.Name, admin.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Group `json:"body"`
		}{Body: g}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-group-member",
		Method:        http.MethodPost,
		Path:          "/groups/{group_id}/members",
		Summary:       "Add group member",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GroupID string `path:"group_id"`
		Body    AddGroupMemberRequest `json:"body"`
	}) (*struct {
		Body []domain.Actor `json:"body"`
	}, error) {
		admin, authErr := requireAdmin(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.AddGroupMember(ctx, input.GroupID, input.Body.ActorID, admin.ID); err != nil {
			return nil, handleError(err)
		}
		members, err := e.Repo.ListGroupMembers(ctx, input.GroupID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Actor `json:"body"`
		}{Body: members}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Mint an API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body struct {
			ID      string `json:"id"`
			ActorID string `json:"actor_id"`
			Key     string `json:"key"`
		} `json:"body"`
	}, error) {
		requester, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		target := input.Body.ActorID
		if target == "" {
			target = requester.ID
		}
		if target != requester.ID && !requester.Admin {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "cannot mint keys for another actor", nil)
		}
		k, raw, err := e.CreateAPIKey(ctx, target, input.Body.Name, requester.ID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				ID      string `json:"id"`
				ActorID string `json:"actor_id"`
				Key     string `json:"key"`
			} `json:"body"`
		}{}
		out.Body.ID = k.ID
		out.Body.ActorID = k.ActorID
		out.Body.Key = raw
		return out, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Tail the event log",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		if _, authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		limit := input.Limit
		if limit <= 0 {
			limit = 100
		}
		evts, err := e.Repo.ListEvents(ctx, input.EntityKind, input.EntityID, limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: evts}, nil
	})
}
