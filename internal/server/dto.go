package server

import (
	"reviewline/internal/authz"
	"reviewline/internal/config"
)

// GrantResponse is the wire shape of a computed authorization grant.
type GrantResponse struct {
	ID         string `json:"id"`
	ActorID    string `json:"actor_id,omitempty"`
	Feature    string `json:"feature"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
}

func grantResponse(g authz.Grant) GrantResponse {
	return GrantResponse{
		ID:         g.ID.String(),
		ActorID:    g.ID.ActorID,
		Feature:    g.ID.Feature,
		TargetType: g.ID.TargetType,
		TargetID:   g.ID.TargetID,
	}
}

func grantResponses(grants []authz.Grant) []GrantResponse {
	out := make([]GrantResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, grantResponse(g))
	}
	return out
}

type CorrectionTypeResponse struct {
	ID                      string `json:"id"`
	Topic                   string `json:"topic"`
	CreatesNewItem          bool   `json:"creates_new_item"`
	RequireArchived         bool   `json:"require_archived"`
	RequireWithdrawn        bool   `json:"require_withdrawn"`
	RequireNoOpenCorrection bool   `json:"require_no_open_correction"`
}

func correctionTypeResponse(t config.CorrectionType) CorrectionTypeResponse {
	return CorrectionTypeResponse{
		ID:                      t.ID,
		Topic:                   t.Topic,
		CreatesNewItem:          t.CreatesNewItem,
		RequireArchived:         t.RequireArchived,
		RequireWithdrawn:        t.RequireWithdrawn,
		RequireNoOpenCorrection: t.RequireNoOpenCorrection,
	}
}

func correctionTypeResponses(types []config.CorrectionType) []CorrectionTypeResponse {
	out := make([]CorrectionTypeResponse, 0, len(types))
	for _, t := range types {
		out = append(out, correctionTypeResponse(t))
	}
	return out
}

type CreateCommunityRequest struct {
	Name string `json:"name"`
}

type CreateCollectionRequest struct {
	CommunityID   string `json:"community_id"`
	Name          string `json:"name"`
	ReviewGroupID string `json:"review_group_id,omitempty"`
}

type SetReviewGroupRequest struct {
	ReviewGroupID string `json:"review_group_id"`
}

type CreateActorRequest struct {
	Email string `json:"email"`
	Admin bool   `json:"admin,omitempty"`
}

type CreateGroupRequest struct {
	Name string `json:"name"`
}

type AddGroupMemberRequest struct {
	ActorID string `json:"actor_id"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

type CreateWorkspaceItemRequest struct {
	CollectionID string `json:"collection_id"`
	Title        string `json:"title,omitempty"`
}

type SetMetadataRequest struct {
	Schema    string   `json:"schema"`
	Element   string   `json:"element"`
	Qualifier string   `json:"qualifier,omitempty"`
	Values    []string `json:"values"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}
