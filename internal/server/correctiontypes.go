package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"reviewline/internal/correction"
)

func registerCorrectionTypes(api huma.API, cfg Config) {
	catalog := cfg.Catalog
	e := cfg.Engine

	huma.Register(api, huma.Operation{
		OperationID: "list-correction-types",
		Method:      http.MethodGet,
		Path:        "/correctiontypes",
		Summary:     "List correction types",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []CorrectionTypeResponse `json:"body"`
	}, error) {
		return &struct {
			Body []CorrectionTypeResponse `json:"body"`
		}{Body: correctionTypeResponses(catalog.FindAll())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-correction-type",
		Method:      http.MethodGet,
		Path:        "/correctiontypes/{type_id}",
		Summary:     "Get a correction type",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TypeID string `path:"type_id"`
	}) (*struct {
		Body CorrectionTypeResponse `json:"body"`
	}, error) {
		t, err := catalog.FindByID(input.TypeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CorrectionTypeResponse `json:"body"`
		}{Body: correctionTypeResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "find-correction-type-by-topic",
		Method:      http.MethodGet,
		Path:        "/correctiontypes/search/findByTopic",
		Summary:     "Find a correction type by request topic",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Topic string `query:"topic"`
	}) (*struct {
		Status int
		Body   *CorrectionTypeResponse `json:"body,omitempty"`
	}, error) {
		if input.Topic == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "topic is required", nil)
		}
		t, err := catalog.FindByTopic(input.Topic)
		if errors.Is(err, correction.ErrNoContent) {
			// a well-formed topic with no match is empty, not missing
			return &struct {
				Status int
				Body   *CorrectionTypeResponse `json:"body,omitempty"`
			}{Status: http.StatusNoContent}, nil
		}
		if err != nil {
			return nil, handleError(err)
		}
		body := correctionTypeResponse(t)
		return &struct {
			Status int
			Body   *CorrectionTypeResponse `json:"body,omitempty"`
		}{Status: http.StatusOK, Body: &body}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "find-correction-types-by-item",
		Method:      http.MethodGet,
		Path:        "/correctiontypes/search/findByItem",
		Summary:     "List correction types applicable to an item",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UUID string `query:"uuid"`
	}) (*struct {
		Body []CorrectionTypeResponse `json:"body"`
	}, error) {
		if input.UUID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "uuid is required", nil)
		}
		it, err := e.Repo.GetItem(ctx, input.UUID)
		if err != nil {
			return nil, handleError(err)
		}
		types, err := catalog.FindApplicable(ctx, it)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []CorrectionTypeResponse `json:"body"`
		}{Body: correctionTypeResponses(types)}, nil
	})
}
