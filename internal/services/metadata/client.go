// Copyright (c) 2026, the metabus contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metadata

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/avhub/metabus/internal/domain"
	"github.com/avhub/metabus/internal/models"
	"github.com/avhub/metabus/internal/scraper"
)

// Client is the resolution surface shared by both modes. Internal mode
// scrapes the origin behind the cache tiers; external mode proxies a hosted
// JSON API.
type Client interface {
	SearchMovies(ctx context.Context, query models.SearchQuery) (*models.SearchResultPage, error)
	GetMovie(ctx context.Context, id string) (*models.MovieDetail, error)
	GetMagnets(ctx context.Context, id string) ([]models.Magnet, error)
	GetStar(ctx context.Context, id string) (*models.StarDetail, error)
	SearchStars(ctx context.Context, name string) ([]models.StarDetail, error)
}

var (
	_ Client = (*Resolver)(nil)
	_ Client = (*ExternalClient)(nil)
)

// NewClient builds the resolution client selected by cfg.Mode.
func NewClient(cfg *domain.Config, db *sql.DB) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	if cfg.Mode == domain.ModeExternal {
		log.Info().Str("url", cfg.ExternalAPIURL).Msg("using external metadata api")
		return NewExternalClient(cfg.ExternalAPIURL, timeout)
	}

	var fallback Client
	if cfg.AllowExternalFallback {
		fallback = NewExternalClient(cfg.ExternalAPIURL, timeout)
	}

	origin := scraper.NewClient(cfg.BaseURL, timeout,
		time.Duration(cfg.MinRequestIntervalMs)*time.Millisecond)

	log.Info().
		Str("origin", origin.BaseURL()).
		Bool("fallback", fallback != nil).
		Msg("using internal scrape resolver")

	return NewResolver(ResolverOptions{
		Origin:     origin,
		MovieStore: models.NewMovieStore(db),
		StarStore:  models.NewStarStore(db),
		CacheTTL:   time.Duration(cfg.Internal.CacheTTLSeconds) * time.Second,
		PageSize:   cfg.PageSize,
		Fallback:   fallback,
	})
}
