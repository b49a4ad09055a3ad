// Copyright (c) 2026, the metabus contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/avhub/metabus/internal/buildinfo"
	"github.com/avhub/metabus/internal/models"
	"github.com/avhub/metabus/internal/scraper"
)

// DefaultExternalAPIURL is the hosted metadata API used when external mode
// is selected without an explicit URL.
const DefaultExternalAPIURL = "https://www.javbus.com/api"

const (
	externalMaxRetries   = 3
	externalRetryDelay   = 500 * time.Millisecond
	externalDefaultLimit = 15 * time.Second
)

// UpstreamError represents an HTTP error from the external metadata API.
type UpstreamError struct {
	StatusCode int
	URL        string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("external api %s: HTTP %d", e.URL, e.StatusCode)
}

func (e *UpstreamError) Is(target error) bool {
	_, ok := target.(*UpstreamError)
	return ok
}

// ExternalClient resolves metadata against a hosted JSON API instead of
// scraping the origin site. It serves both as the primary source in external
// mode and as the fallback in internal mode.
type ExternalClient struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewExternalClient constructs a client for the hosted API.
func NewExternalClient(baseURL string, timeout time.Duration) *ExternalClient {
	if baseURL == "" {
		baseURL = DefaultExternalAPIURL
	}
	if timeout <= 0 {
		timeout = externalDefaultLimit
	}
	return &ExternalClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "external").Logger(),
	}
}

// SearchMovies queries the hosted API. Keyword queries use the search
// endpoint; filter and no-keyword queries use the listing endpoint.
func (c *ExternalClient) SearchMovies(ctx context.Context, query models.SearchQuery) (*models.SearchResultPage, error) {
	page := query.Page
	if page < 1 {
		page = 1
	}

	params := url.Values{"page": {strconv.Itoa(page)}}
	if query.UncensoredOnly {
		params.Set("type", "uncensored")
	}

	var endpoint string
	if kw := strings.TrimSpace(query.Keyword); kw != "" {
		endpoint = "/movies/search"
		params.Set("keyword", kw)
	} else {
		endpoint = "/movies"
		if query.FilterType != "" {
			params.Set("filterType", string(query.FilterType))
			params.Set("filterValue", query.FilterValue)
		}
		params.Set("magnet", "all")
	}

	var result models.SearchResultPage
	if err := c.getJSON(ctx, endpoint, params, &result); err != nil {
		return nil, err
	}
	result.Keyword = query.Keyword
	if result.Pagination.CurrentPage == 0 {
		result.Pagination.CurrentPage = page
	}
	return &result, nil
}

// GetMovie fetches a full record, magnets included.
func (c *ExternalClient) GetMovie(ctx context.Context, id string) (*models.MovieDetail, error) {
	id = models.NormalizeID(id)

	var detail models.MovieDetail
	if err := c.getJSON(ctx, "/movies/"+url.PathEscape(id), nil, &detail); err != nil {
		return nil, err
	}
	if detail.ID == "" {
		detail.ID = id
	}
	return &detail, nil
}

// GetMagnets fetches the magnet list for id via the movie endpoint.
func (c *ExternalClient) GetMagnets(ctx context.Context, id string) ([]models.Magnet, error) {
	detail, err := c.GetMovie(ctx, id)
	if err != nil {
		return nil, err
	}
	return detail.Magnets, nil
}

// GetStar fetches a performer profile.
func (c *ExternalClient) GetStar(ctx context.Context, id string) (*models.StarDetail, error) {
	var star models.StarDetail
	if err := c.getJSON(ctx, "/stars/"+url.PathEscape(id), nil, &star); err != nil {
		return nil, err
	}
	if star.ID == "" {
		star.ID = id
	}
	return &star, nil
}

// SearchStars queries the hosted star search endpoint. A not-found response
// is an empty result, matching the empty-page semantics of movie search.
func (c *ExternalClient) SearchStars(ctx context.Context, name string) ([]models.StarDetail, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("star name cannot be empty")
	}

	var result struct {
		Stars []models.StarDetail `json:"stars"`
	}
	if err := c.getJSON(ctx, "/stars/search", url.Values{"keyword": {name}}, &result); err != nil {
		if errors.Is(err, scraper.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return result.Stars, nil
}

// getJSON performs a GET with retries on transient failures. A 404 maps to
// the shared not-found sentinel and is never retried.
func (c *ExternalClient) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	requestURL := c.baseURL + endpoint
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("build request: %w", err))
			}
			req.Header.Set("User-Agent", buildinfo.UserAgent)
			req.Header.Set("Accept", "application/json")

			resp, err := c.http.Do(req)
			if err != nil {
				return fmt.Errorf("external api %s: %w", requestURL, err)
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusNotFound:
				return retry.Unrecoverable(scraper.ErrNotFound)
			case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
				return &UpstreamError{StatusCode: resp.StatusCode, URL: requestURL}
			case resp.StatusCode >= 400:
				return retry.Unrecoverable(&UpstreamError{StatusCode: resp.StatusCode, URL: requestURL})
			}

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read external api response: %w", err)
			}
			if err := json.Unmarshal(body, out); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode external api response: %w", err))
			}
			return nil
		},
		retry.Attempts(externalMaxRetries),
		retry.Delay(externalRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			c.log.Debug().Err(err).Uint("attempt", attempt+1).Str("url", requestURL).Msg("retrying external api request")
		}),
	)
}

// IsNotFound reports whether err is the terminal not-found outcome from any
// source.
func IsNotFound(err error) bool {
	return errors.Is(err, scraper.ErrNotFound)
}
