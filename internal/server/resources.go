package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"reviewline/internal/domain"
	"reviewline/internal/engine"
	"reviewline/internal/repo"
)

func requireAdmin(ctx context.Context) (domain.Actor, huma.StatusError) {
	actor, authErr := requireActor(ctx)
	if authErr != nil {
		return domain.Actor{}, authErr
	}
	if !actor.Admin {
		return domain.Actor{}, newAPIError(http.StatusForbidden, "forbidden", "admin required", nil)
	}
	return actor, nil
}

func registerCommunities(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-community",
		Method:        http.MethodPost,
		Path:          "/communities",
		Summary:       "Create community",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateCommunityRequest `json:"body"`
	}) (*struct {
		Body domain.Community `json:"body"`
	}, error) {
		actor, authErr := requireAdmin(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateCommunity(ctx, input.Body.Name, actor.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Community `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-communities",
		Method:      http.MethodGet,
		Path:        "/communities",
		Summary:     "List communities",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Community `json:"body"`
	}, error) {
		cs, err := e.Repo.ListCommunities(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Community `json:"body"`
		}{Body: cs}, nil
	})
}

func registerCollections(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-collection",
		Method:        http.MethodPost,
		Path:          "/collections",
		Summary:       "Create collection",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateCollectionRequest `json:"body"`
	}) (*struct {
		Body domain.Collection `json:"body"`
	}, error) {
		actor, authErr := requireAdmin(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateCollection(ctx, engine.CollectionCreateOptions{
			CommunityID:   input.Body.CommunityID,
			Name:          input.Body.Name,
			ReviewGroupID: input.Body.ReviewGroupID,
			ActorID:       actor.ID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Collection `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-collections",
		Method:      http.MethodGet,
		Path:        "/collections",
		Summary:     "List collections",
	}, func(ctx context.Context, input *struct {
		CommunityID string `query:"community_id"`
	}) (*struct {
		Body []domain.Collection `json:"body"`
	}, error) {
		cs, err := e.Repo.ListCollections(ctx, input.CommunityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Collection `json:"body"`
		}{Body: cs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-collection",
		Method:      http.MethodGet,
		Path:        "/collections/{collection_id}",
		Summary:     "Get collection",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CollectionID string `path:"collection_id"`
	}) (*struct {
		Body domain.Collection `json:"body"`
	}, error) {
		c, err := e.Repo.GetCollection(ctx, input.CollectionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Collection `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-collection-review-group",
		Method:      http.MethodPut,
		Path:        "/collections/{collection_id}/reviewgroup",
		Summary:     "Set or clear the collection review group",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CollectionID string `path:"collection_id"`
		Body         SetReviewGroupRequest `json:"body"`
	}) (*struct {
		Body domain.Collection `json:"body"`
	}, error) {
		actor, authErr := requireAdmin(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SetCollectionReviewGroup(ctx, input.CollectionID, input.Body.ReviewGroupID, actor.ID); err != nil {
			return nil, handleError(err)
		}
		c, err := e.Repo.GetCollection(ctx, input.CollectionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Collection `json:"body"`
		}{Body: c}, nil
	})
}

func registerItems(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-item",
		Method:      http.MethodGet,
		Path:        "/items/{item_id}",
		Summary:     "Get item",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body domain.Item `json:"body"`
	}, error) {
		it, err := e.Repo.GetItem(ctx, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Item `json:"body"`
		}{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-items",
		Method:      http.MethodGet,
		Path:        "/items",
		Summary:     "List items",
	}, func(ctx context.Context, input *struct {
		CollectionID string `query:"collection_id"`
		Limit        int    `query:"limit"`
	}) (*struct {
		Body []domain.Item `json:"body"`
	}, error) {
		items, err := e.Repo.ListItems(ctx, repo.ItemFilters{CollectionID: input.CollectionID, Limit: input.Limit})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Item `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-item-metadata",
		Method:      http.MethodGet,
		Path:        "/items/{item_id}/metadata",
		Summary:     "List item metadata",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body []domain.MetadataValue `json:"body"`
	}, error) {
		if _, err := e.Repo.GetItem(ctx, input.ItemID); err != nil {
			return nil, handleError(err)
		}
		values, err := e.Repo.ListMetadata(ctx, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.MetadataValue `json:"body"`
		}{Body: values}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-item-metadata",
		Method:      http.MethodPut,
		Path:        "/items/{item_id}/metadata",
		Summary:     "Replace values of one metadata field",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
		Body   SetMetadataRequest `json:"body"`
	}) (*struct {
		Body []domain.MetadataValue `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SetItemMetadata(ctx, input.ItemID, input.Body.Schema, input.Body.Element, input.Body.Qualifier, input.Body.Values, actor); err != nil {
			return nil, handleError(err)
		}
		values, err := e.Repo.ListMetadata(ctx, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.MetadataValue `json:"body"`
		}{Body: values}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "withdraw-item",
		Method:      http.MethodPost,
		Path:        "/items/{item_id}/withdraw",
		Summary:     "Withdraw an installed item",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body domain.Item `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		it, err := e.Withdraw(ctx, input.ItemID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Item `json:"body"`
		}{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reinstate-item",
		Method:      http.MethodPost,
		Path:        "/items/{item_id}/reinstate",
		Summary:     "Reinstate a withdrawn item",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body domain.Item `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		it, err := e.Reinstate(ctx, input.ItemID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Item `json:"body"`
		}{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-correction",
		Method:        http.MethodPost,
		Path:          "/items/{item_id}/correction",
		Summary:       "Open a correction for an installed item",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body domain.WorkspaceItem `json:"body"`
	}, error) {
		actor, authErr := requireActor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.CreateCorrection(ctx, input.ItemID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkspaceItem `json:"body"`
		}{Body: w}, nil
	})
}
