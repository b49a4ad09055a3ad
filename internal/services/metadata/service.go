// Copyright (c) 2026, the metabus contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metadata resolves movie metadata through a layered pipeline:
// volatile memory cache, durable sqlite store, live origin scrape, and an
// optional hosted-API fallback for origin outages.
package metadata

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/avhub/metabus/internal/models"
	"github.com/avhub/metabus/internal/scraper"
)

const (
	minCacheTTL  = time.Minute
	minPageSize  = 10
	pagesWindow  = 10
	starCacheTTL = 24 * time.Hour
)

// originClient is the live-scrape surface the resolver depends on.
type originClient interface {
	FetchSearch(ctx context.Context, query models.SearchQuery) (*models.SearchResultPage, error)
	FetchDetail(ctx context.Context, id string) (*models.MovieDetail, error)
	FetchMagnets(ctx context.Context, id string, tokens models.SessionTokens) ([]models.Magnet, error)
	FetchStar(ctx context.Context, id string, uncensored bool) (*models.StarDetail, error)
}

// Resolver implements internal-mode resolution: cache tiers first, then a
// live scrape, with an optional fallback client consulted only on transient
// origin failures. Fallback results are served but never cached.
type Resolver struct {
	origin   originClient
	cache    *movieCache
	stars    *models.StarStore
	history  *models.MovieStore
	fallback Client
	pageSize int
	locks    *keyLock
	log      zerolog.Logger
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	Origin     originClient
	MovieStore *models.MovieStore
	StarStore  *models.StarStore
	CacheTTL   time.Duration
	PageSize   int
	Fallback   Client
}

// NewResolver constructs the internal-mode resolver.
func NewResolver(opts ResolverOptions) *Resolver {
	ttl := opts.CacheTTL
	if ttl < minCacheTTL {
		ttl = minCacheTTL
	}
	pageSize := opts.PageSize
	if pageSize < minPageSize {
		pageSize = minPageSize
	}

	return &Resolver{
		origin:   opts.Origin,
		cache:    newMovieCache(opts.MovieStore, ttl),
		stars:    opts.StarStore,
		history:  opts.MovieStore,
		fallback: opts.Fallback,
		pageSize: pageSize,
		locks:    newKeyLock(),
		log:      log.With().Str("component", "resolver").Logger(),
	}
}

// SearchMovies resolves a search query.
//
// Keyword queries always hit the origin so results stay current; every
// returned card is upserted into the cache. Filter-only queries are answered
// entirely from the durable tier with zero origin traffic. With neither
// keyword nor filter, the most recently cached records are listed.
func (r *Resolver) SearchMovies(ctx context.Context, query models.SearchQuery) (*models.SearchResultPage, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	query.Keyword = strings.TrimSpace(query.Keyword)

	if query.Keyword != "" {
		return r.searchByKeyword(ctx, query)
	}
	if query.FilterType != "" {
		return r.searchByFilter(ctx, query)
	}
	return r.recentMovies(ctx, query)
}

func (r *Resolver) searchByKeyword(ctx context.Context, query models.SearchQuery) (*models.SearchResultPage, error) {
	page, err := r.origin.FetchSearch(ctx, query)
	if err != nil {
		if r.fallback != nil && isTransient(err) {
			r.log.Warn().Err(err).Str("keyword", query.Keyword).Msg("origin search failed, using fallback")
			return r.fallback.SearchMovies(ctx, query)
		}
		return nil, err
	}

	if err := r.history.RecordSearch(ctx, query.Keyword); err != nil {
		r.log.Warn().Err(err).Msg("failed to record search history")
	}
	if err := r.cache.PutSummaries(ctx, page.Movies); err != nil {
		r.log.Warn().Err(err).Str("keyword", query.Keyword).Msg("failed to cache search results")
	}
	return page, nil
}

func (r *Resolver) searchByFilter(ctx context.Context, query models.SearchQuery) (*models.SearchResultPage, error) {
	movies, total, err := r.history.ByFilter(ctx, query.FilterType, query.FilterValue, query.Page, r.pageSize)
	if err != nil {
		return nil, err
	}
	return &models.SearchResultPage{
		Movies:     movies,
		Pagination: buildPagination(query.Page, total, r.pageSize),
	}, nil
}

func (r *Resolver) recentMovies(ctx context.Context, query models.SearchQuery) (*models.SearchResultPage, error) {
	movies, total, err := r.history.Recent(ctx, query.Page, r.pageSize)
	if err != nil {
		return nil, err
	}
	return &models.SearchResultPage{
		Movies:     movies,
		Pagination: buildPagination(query.Page, total, r.pageSize),
	}, nil
}

// GetMovie resolves one full record. Concurrent requests for the same id
// collapse into a single origin fetch; the cache is rechecked under the
// per-id lock before scraping.
func (r *Resolver) GetMovie(ctx context.Context, id string) (*models.MovieDetail, error) {
	id = models.NormalizeID(id)

	if movie, found, err := r.cache.Get(ctx, id); err != nil {
		return nil, err
	} else if found {
		return movie, nil
	}

	r.locks.Lock(id)
	defer r.locks.Unlock(id)

	if movie, found, err := r.cache.Get(ctx, id); err != nil {
		return nil, err
	} else if found {
		return movie, nil
	}

	return r.fetchAndCache(ctx, id)
}

// fetchAndCache scrapes detail plus magnets and stores the result. Callers
// must hold the per-id lock.
func (r *Resolver) fetchAndCache(ctx context.Context, id string) (*models.MovieDetail, error) {
	detail, err := r.origin.FetchDetail(ctx, id)
	if err != nil {
		if errors.Is(err, scraper.ErrNotFound) {
			// Definitive: the fallback is not consulted and nothing is
			// cached.
			return nil, err
		}
		if r.fallback != nil && isTransient(err) {
			r.log.Warn().Err(err).Str("id", id).Msg("origin detail fetch failed, using fallback")
			return r.fallback.GetMovie(ctx, id)
		}
		return nil, err
	}

	// Magnets are best effort: a failed magnet fetch still yields a
	// cacheable detail record.
	magnets, err := r.origin.FetchMagnets(ctx, id, detail.Tokens)
	if err != nil {
		r.log.Warn().Err(err).Str("id", id).Msg("magnet fetch failed, caching detail without magnets")
	} else {
		detail.Magnets = magnets
	}

	if err := r.cache.Put(ctx, detail); err != nil {
		r.log.Warn().Err(err).Str("id", id).Msg("failed to cache movie detail")
	}
	return detail, nil
}

// GetMagnets returns the magnet list for id. A cached record with magnets
// answers directly; otherwise the detail is re-scraped for fresh session
// tokens, since tokens do not survive the durable tier.
func (r *Resolver) GetMagnets(ctx context.Context, id string) ([]models.Magnet, error) {
	id = models.NormalizeID(id)

	if movie, found, err := r.cache.Get(ctx, id); err != nil {
		return nil, err
	} else if found && len(movie.Magnets) > 0 {
		return movie.Magnets, nil
	}

	r.locks.Lock(id)
	defer r.locks.Unlock(id)

	if movie, found, err := r.cache.Get(ctx, id); err != nil {
		return nil, err
	} else if found && len(movie.Magnets) > 0 {
		return movie.Magnets, nil
	}

	detail, err := r.fetchAndCache(ctx, id)
	if err != nil {
		if r.fallback != nil && isTransient(err) {
			return r.fallback.GetMagnets(ctx, id)
		}
		return nil, err
	}
	return detail.Magnets, nil
}

// GetStar resolves a performer profile through the durable tier, falling
// back to the uncensored star page when the censored one is missing.
func (r *Resolver) GetStar(ctx context.Context, id string) (*models.StarDetail, error) {
	if star, found, err := r.stars.Get(ctx, id, starCacheTTL); err != nil {
		return nil, err
	} else if found {
		return star, nil
	}

	star, err := r.origin.FetchStar(ctx, id, false)
	if errors.Is(err, scraper.ErrNotFound) {
		star, err = r.origin.FetchStar(ctx, id, true)
	}
	if err != nil {
		if errors.Is(err, scraper.ErrNotFound) {
			return nil, err
		}
		if r.fallback != nil && isTransient(err) {
			r.log.Warn().Err(err).Str("id", id).Msg("origin star fetch failed, using fallback")
			return r.fallback.GetStar(ctx, id)
		}
		return nil, err
	}

	if err := r.stars.Save(ctx, star); err != nil {
		r.log.Warn().Err(err).Str("id", id).Msg("failed to cache star profile")
	}
	return star, nil
}

// SearchStars lists cached performer profiles whose name contains the given
// fragment. When the durable tier has no match the fallback is consulted and
// its profiles are saved, so the next search answers locally.
func (r *Resolver) SearchStars(ctx context.Context, name string) ([]models.StarDetail, error) {
	stars, err := r.stars.SearchByName(ctx, name, r.pageSize)
	if err != nil {
		return nil, err
	}
	if len(stars) > 0 || r.fallback == nil {
		return stars, nil
	}

	stars, err = r.fallback.SearchStars(ctx, name)
	if err != nil {
		return nil, err
	}
	for i := range stars {
		if err := r.stars.Save(ctx, &stars[i]); err != nil {
			r.log.Warn().Err(err).Str("id", stars[i].ID).Msg("failed to cache star profile")
		}
	}
	return stars, nil
}

// RecentSearches lists the latest recorded search keywords.
func (r *Resolver) RecentSearches(ctx context.Context, limit int) ([]string, error) {
	return r.history.RecentSearches(ctx, limit)
}

// CacheStats reports cache tier metrics.
func (r *Resolver) CacheStats(ctx context.Context) (*CacheStats, error) {
	return r.cache.Stats(ctx)
}

// CacheCleanup removes expired durable rows and clears the memory tier.
func (r *Resolver) CacheCleanup(ctx context.Context) (int64, error) {
	return r.cache.Cleanup(ctx)
}

// CacheFlush empties the cache entirely.
func (r *Resolver) CacheFlush(ctx context.Context) (int64, error) {
	return r.cache.Flush(ctx)
}

func isTransient(err error) bool {
	return errors.Is(err, &scraper.TransientError{}) || errors.Is(err, &scraper.ParseError{}) ||
		errors.Is(err, &UpstreamError{})
}

// buildPagination derives page links for durable-tier listings, mirroring
// the sliding window the origin renders: up to ten page numbers centered on
// the current page.
func buildPagination(currentPage, total, pageSize int) models.Pagination {
	if currentPage < 1 {
		currentPage = 1
	}
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	start := 1
	if currentPage > 6 {
		start = currentPage - 5
	}
	end := start + pagesWindow - 1
	if end > totalPages {
		end = totalPages
	}
	if start > end {
		start = end
	}

	pages := make([]int, 0, end-start+1)
	for page := start; page <= end; page++ {
		pages = append(pages, page)
	}

	pagination := models.Pagination{CurrentPage: currentPage, Pages: pages}
	if currentPage < totalPages {
		pagination.HasNextPage = true
		pagination.NextPage = currentPage + 1
	}
	return pagination
}
