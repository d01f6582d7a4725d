package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"reviewline/internal/authz"
)

func registerAuthorizations(api huma.API, resolver authz.Resolver) {
	huma.Register(api, huma.Operation{
		OperationID: "get-authorization",
		Method:      http.MethodGet,
		Path:        "/authorizations/{grant_id}",
		Summary:     "Resolve an authorization grant",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		GrantID string `path:"grant_id"`
	}) (*struct {
		Body GrantResponse `json:"body"`
	}, error) {
		g, err := resolver.ViewGrant(ctx, actorFromContext(ctx), input.GrantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GrantResponse `json:"body"`
		}{Body: grantResponse(g)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "search-authorizations-by-object",
		Method:      http.MethodGet,
		Path:        "/authorizations/search/object",
		Summary:     "List grants holding for an actor over a target",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		TargetType string `query:"target_type"`
		TargetID   string `query:"target_id"`
		ActorID    string `query:"actor_id"`
		Feature    string `query:"feature"`
	}) (*struct {
		Body []GrantResponse `json:"body"`
	}, error) {
		if input.TargetType == "" || input.TargetID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "target_type and target_id are required", nil)
		}
		target := authz.Target{Type: input.TargetType, ID: input.TargetID}
		grants, err := resolver.FindByObject(ctx, actorFromContext(ctx), input.ActorID, target, input.Feature)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []GrantResponse `json:"body"`
		}{Body: grantResponses(grants)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-features",
		Method:      http.MethodGet,
		Path:        "/authorizations/features",
		Summary:     "List registered feature names",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []string `json:"body"`
	}, error) {
		return &struct {
			Body []string `json:"body"`
		}{Body: resolver.Registry.Names()}, nil
	})
}
