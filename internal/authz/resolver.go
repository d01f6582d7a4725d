package authz

import (
	"context"
	"errors"
	"fmt"

	"reviewline/internal/domain"
	"reviewline/internal/repo"
)

// Grant is a computed authorization: the feature held for the (actor,
// target) pair at evaluation time. Grants are never stored.
type Grant struct {
	ID       GrantID  `json:"id"`
	Decision Decision `json:"-"`
}

type Resolver struct {
	Registry *Registry
	Repo     repo.Repo
}

// Resolve produces exactly one Decision for the triple. A missing feature
// is NotApplicable. Evaluator faults, including panics, are captured and
// returned as EvaluationFailed with the wrapping error; they never
// propagate raw.
func (r Resolver) Resolve(ctx context.Context, actor *domain.Actor, featureName string, target Target) (dec Decision, err error) {
	fn, ok := r.Registry.Find(featureName)
	if !ok {
		return NotApplicable, nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			dec = EvaluationFailed
			err = EvaluationError{Feature: featureName, Cause: fmt.Errorf("panic: %v", rec)}
		}
	}()
	dec, evalErr := fn(ctx, actor, target)
	if evalErr != nil {
		return EvaluationFailed, EvaluationError{Feature: featureName, Cause: evalErr}
	}
	return dec, nil
}

// ViewGrant resolves a grant identifier on behalf of a requester. The check
// order is fixed: parse, referenced-actor existence, requester
// entitlement, target existence, then evaluation. A grant that does not
// hold is indistinguishable from a missing one.
func (r Resolver) ViewGrant(ctx context.Context, requester *domain.Actor, rawID string) (Grant, error) {
	g, err := ParseGrantID(rawID)
	if err != nil {
		return Grant{}, err
	}
	if g.ActorID != "" {
		if _, err := r.Repo.GetActor(ctx, g.ActorID); err != nil {
			return Grant{}, err
		}
		if err := r.requireOwnOrAdmin(requester, g.ActorID); err != nil {
			return Grant{}, err
		}
	}
	exists, err := r.Repo.TargetExists(ctx, g.TargetType, g.TargetID)
	if err != nil {
		return Grant{}, err
	}
	if !exists {
		return Grant{}, repo.ErrNotFound
	}
	actor, err := r.grantActor(ctx, g)
	if err != nil {
		return Grant{}, err
	}
	dec, err := r.Resolve(ctx, actor, g.Feature, g.Target())
	switch dec {
	case Granted:
		return Grant{ID: g, Decision: Granted}, nil
	case EvaluationFailed:
		return Grant{}, err
	default:
		return Grant{}, repo.ErrNotFound
	}
}

// FindByObject evaluates features for one actor over one target and
// returns the grants that hold. An empty featureName evaluates every
// registered feature. actorID empty means the anonymous actor.
func (r Resolver) FindByObject(ctx context.Context, requester *domain.Actor, actorID string, target Target, featureName string) ([]Grant, error) {
	if actorID != "" {
		if _, err := r.Repo.GetActor(ctx, actorID); err != nil {
			return nil, err
		}
		if err := r.requireOwnOrAdmin(requester, actorID); err != nil {
			return nil, err
		}
	}
	exists, err := r.Repo.TargetExists(ctx, target.Type, target.ID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, repo.ErrNotFound
	}
	actor, err := r.grantActor(ctx, GrantID{ActorID: actorID})
	if err != nil {
		return nil, err
	}
	names := r.Registry.Names()
	if featureName != "" {
		names = []string{featureName}
	}
	var grants []Grant
	for _, name := range names {
		dec, err := r.Resolve(ctx, actor, name, target)
		if dec == EvaluationFailed {
			return nil, err
		}
		if dec == Granted {
			grants = append(grants, Grant{
				ID:       GrantID{ActorID: actorID, Feature: name, TargetType: target.Type, TargetID: target.ID},
				Decision: Granted,
			})
		}
	}
	return grants, nil
}

func (r Resolver) requireOwnOrAdmin(requester *domain.Actor, actorID string) error {
	if requester == nil {
		return ErrNotAuthenticated
	}
	if requester.ID != actorID && !requester.Admin {
		return ForbiddenError{Reason: "grant belongs to another actor"}
	}
	return nil
}

func (r Resolver) grantActor(ctx context.Context, g GrantID) (*domain.Actor, error) {
	if g.ActorID == "" {
		return nil, nil
	}
	a, err := r.Repo.GetActor(ctx, g.ActorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, repo.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}
