package authz

import (
	"context"
	"errors"

	"reviewline/internal/domain"
)

// Builtin feature names.
const (
	FeatureAlwaysTrue         = "alwaysTrue"
	FeatureAlwaysFalse        = "alwaysFalse"
	FeatureAlwaysFault        = "alwaysFault"
	FeatureTrueForAdmins      = "trueForAdmins"
	FeatureTrueForLoggedUsers = "trueForLoggedUsers"
	FeatureCanChangePassword  = "canChangePassword"
	FeatureWithdrawItem       = "withdrawItem"
	FeatureReinstateItem      = "reinstateItem"
)

// ItemLookup is the read-only access item-gated features need.
type ItemLookup interface {
	GetItem(ctx context.Context, id string) (domain.Item, error)
}

// RegisterBuiltins registers the stock features. faultFeature additionally
// registers an evaluator that always faults, for exercising the error
// path; it is never registered in normal operation.
func RegisterBuiltins(r *Registry, items ItemLookup, faultFeature bool) {
	r.MustRegister(FeatureAlwaysTrue, func(ctx context.Context, actor *domain.Actor, target Target) (Decision, error) {
		return Granted, nil
	})
	r.MustRegister(FeatureAlwaysFalse, func(ctx context.Context, actor *domain.Actor, target Target) (Decision, error) {
		return Denied, nil
	})
	r.MustRegister(FeatureTrueForAdmins, func(ctx context.Context, actor *domain.Actor, target Target) (Decision, error) {
		if actor != nil && actor.Admin {
			return Granted, nil
		}
		return NotApplicable, nil
	})
	r.MustRegister(FeatureTrueForLoggedUsers, func(ctx context.Context, actor *domain.Actor, target Target) (Decision, error) {
		if actor != nil {
			return Granted, nil
		}
		return NotApplicable, nil
	})
	r.MustRegister(FeatureCanChangePassword, func(ctx context.Context, actor *domain.Actor, target Target) (Decision, error) {
		if target.Type != domain.TypeEPerson || actor == nil {
			return NotApplicable, nil
		}
		if actor.ID == target.ID || actor.Admin {
			return Granted, nil
		}
		return NotApplicable, nil
	})
	r.MustRegister(FeatureWithdrawItem, itemStateFeature(items, func(actor *domain.Actor, it domain.Item) Decision {
		if actor == nil || !actor.Admin {
			return NotApplicable
		}
		if it.InArchive && !it.Withdrawn {
			return Granted
		}
		return NotApplicable
	}))
	r.MustRegister(FeatureReinstateItem, itemStateFeature(items, func(actor *domain.Actor, it domain.Item) Decision {
		if actor == nil || !actor.Admin {
			return NotApplicable
		}
		if it.Withdrawn {
			return Granted
		}
		return NotApplicable
	}))
	if faultFeature {
		r.MustRegister(FeatureAlwaysFault, func(ctx context.Context, actor *domain.Actor, target Target) (Decision, error) {
			return EvaluationFailed, errors.New("deliberate fault")
		})
	}
}

func itemStateFeature(items ItemLookup, decide func(*domain.Actor, domain.Item) Decision) EvaluateFunc {
	return func(ctx context.Context, actor *domain.Actor, target Target) (Decision, error) {
		if target.Type != domain.TypeItem {
			return NotApplicable, nil
		}
		it, err := items.GetItem(ctx, target.ID)
		if err != nil {
			return EvaluationFailed, err
		}
		return decide(actor, it), nil
	}
}
