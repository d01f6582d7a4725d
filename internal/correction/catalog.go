package correction

import (
	"context"
	"errors"

	"reviewline/internal/config"
	"reviewline/internal/domain"
	"reviewline/internal/repo"
)

// ErrNoContent reports a well-formed topic lookup with no matching type.
// The boundary reports it as an empty response, not as a missing resource.
var ErrNoContent = errors.New("no content")

// Catalog answers which correction types exist and which apply to a given
// item. Applicability is driven entirely by each type's configured
// predicate; the catalog never special-cases by name.
type Catalog struct {
	Types []config.CorrectionType
	Repo  repo.Repo
}

func NewCatalog(cfg *config.Config, r repo.Repo) Catalog {
	return Catalog{Types: cfg.Correction.Types, Repo: r}
}

func (c Catalog) FindAll() []config.CorrectionType {
	out := make([]config.CorrectionType, len(c.Types))
	copy(out, c.Types)
	return out
}

func (c Catalog) FindByID(id string) (config.CorrectionType, error) {
	for _, t := range c.Types {
		if t.ID == id {
			return t, nil
		}
	}
	return config.CorrectionType{}, repo.ErrNotFound
}

func (c Catalog) FindByTopic(topic string) (config.CorrectionType, error) {
	for _, t := range c.Types {
		if t.Topic == topic {
			return t, nil
		}
	}
	return config.CorrectionType{}, ErrNoContent
}

// FindApplicable returns the types whose predicate holds for the item.
func (c Catalog) FindApplicable(ctx context.Context, it domain.Item) ([]config.CorrectionType, error) {
	var out []config.CorrectionType
	for _, t := range c.Types {
		ok, err := c.applies(ctx, t, it)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (c Catalog) applies(ctx context.Context, t config.CorrectionType, it domain.Item) (bool, error) {
	if t.RequireArchived && (!it.InArchive || it.Withdrawn) {
		return false, nil
	}
	if t.RequireWithdrawn && !it.Withdrawn {
		return false, nil
	}
	if !t.RequireArchived && !t.RequireWithdrawn && !it.InArchive {
		// A type with no state predicate still targets installed items.
		return false, nil
	}
	if t.RequireNoOpenCorrection {
		open, err := c.hasOpenCorrection(ctx, it.ID)
		if err != nil {
			return false, err
		}
		if open {
			return false, nil
		}
	}
	return true, nil
}

func (c Catalog) hasOpenCorrection(ctx context.Context, itemID string) (bool, error) {
	_, err := c.Repo.GetRelationshipByRight(ctx, itemID, domain.RelIsCorrectedByItem)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return true, err
	}
	return true, nil
}
