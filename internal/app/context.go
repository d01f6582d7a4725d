package app

import (
	"context"
	"errors"
	"fmt"

	"reviewline/internal/config"
	"reviewline/internal/domain"
	"reviewline/internal/repo"
)

// ResolveSiteAndConfig loads the singleton site and its stored
// configuration, seeding a default config if the row is missing. The
// site itself is never created implicitly; `rl site init` does that.
func ResolveSiteAndConfig(ctx context.Context, r repo.Repo) (domain.Site, *config.Config, error) {
	s, err := r.GetSite(ctx)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Site{}, nil, fmt.Errorf("site not initialized; run `rl site init`")
		}
		return domain.Site{}, nil, err
	}
	cfg, err := r.GetSiteConfig(ctx, s.ID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return domain.Site{}, nil, err
		}
		cfg = config.Default(s.Name)
		if err := r.UpsertSiteConfig(ctx, s.ID, cfg); err != nil {
			return domain.Site{}, nil, fmt.Errorf("seed site config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return domain.Site{}, nil, fmt.Errorf("site config invalid: %w", err)
	}
	return s, cfg, nil
}
