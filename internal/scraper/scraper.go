// Copyright (c) 2026, the metabus contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package scraper fetches and parses catalog pages from the origin site. It
// mimics a regular browser session, serializes requests through a rate
// limiter, and converts markup into the shared data model.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/avhub/metabus/internal/buildinfo"
	"github.com/avhub/metabus/internal/models"
)

const (
	// DefaultBaseURL is the origin site root used when none is configured.
	DefaultBaseURL = "https://www.javbus.com"

	// DefaultMinInterval spaces origin requests far enough apart to stay
	// under the site's anti-bot threshold.
	DefaultMinInterval = time.Second

	magnetEndpoint = "/ajax/uncledatoolsbyajax.php"

	acceptHeader   = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	acceptLanguage = "zh-CN,zh;q=0.9,en;q=0.8"
)

// Client scrapes the origin site. All fetches share one cookie jar and one
// rate limiter, so a Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *Limiter
	log     zerolog.Logger
}

// NewClient constructs a scraper client for the given origin root. A zero
// timeout or interval selects the default.
func NewClient(baseURL string, timeout, minInterval time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}

	jar, _ := cookiejar.New(nil)

	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		limiter: NewLimiter(minInterval),
		log:     log.With().Str("component", "scraper").Logger(),
	}
}

// BaseURL returns the configured origin root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// searchURL builds the listing URL for a query. Keyword queries use the
// search path; without a keyword the latest-movies listing is paged instead.
func (c *Client) searchURL(query models.SearchQuery) string {
	prefix := ""
	if query.UncensoredOnly {
		prefix = "/uncensored"
	}
	page := query.Page
	if page < 1 {
		page = 1
	}

	if kw := strings.TrimSpace(query.Keyword); kw != "" {
		return fmt.Sprintf("%s%s/search/%s/%d", c.baseURL, prefix, url.PathEscape(kw), page)
	}
	if page > 1 {
		return fmt.Sprintf("%s%s/page/%d", c.baseURL, prefix, page)
	}
	if prefix != "" {
		return c.baseURL + prefix
	}
	return c.baseURL + "/"
}

func (c *Client) detailURL(id string) string {
	return c.baseURL + "/" + url.PathEscape(id)
}

func (c *Client) starURL(id string, uncensored bool) string {
	if uncensored {
		return c.baseURL + "/uncensored/star/" + url.PathEscape(id)
	}
	return c.baseURL + "/star/" + url.PathEscape(id)
}

// FetchSearch scrapes one listing page. An empty movie list with valid
// markup is a legitimate empty result, not an error.
func (c *Client) FetchSearch(ctx context.Context, query models.SearchQuery) (*models.SearchResultPage, error) {
	pageURL := c.searchURL(query)
	doc, _, err := c.fetchDocument(ctx, pageURL)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// The origin serves 404 for searches with zero hits.
			return &models.SearchResultPage{
				Movies:     []models.MovieSummary{},
				Pagination: models.Pagination{CurrentPage: max(query.Page, 1), Pages: []int{max(query.Page, 1)}},
				Keyword:    query.Keyword,
			}, nil
		}
		return nil, err
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	movies, pagination := parseSearchPage(doc, c.baseURL, page)
	c.log.Debug().Str("url", pageURL).Int("movies", len(movies)).Msg("scraped listing page")

	return &models.SearchResultPage{
		Movies:     movies,
		Pagination: pagination,
		Keyword:    query.Keyword,
	}, nil
}

// FetchDetail scrapes the detail page for id. Detail pages are served at the
// site root regardless of the censored/uncensored split.
func (c *Client) FetchDetail(ctx context.Context, id string) (*models.MovieDetail, error) {
	pageURL := c.detailURL(id)
	doc, rawHTML, err := c.fetchDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	detail, err := parseDetailPage(doc, rawHTML, id, c.baseURL, pageURL)
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) && parseErr.Reason == "missing title" {
			// Some origin mirrors serve a styled "not found" page with
			// status 200.
			return nil, ErrNotFound
		}
		return nil, err
	}

	c.log.Debug().Str("id", id).Int("samples", len(detail.Samples)).Msg("scraped detail page")
	return detail, nil
}

// FetchMagnets posts the token form harvested from a detail page to the
// magnet endpoint and parses the returned table rows.
func (c *Client) FetchMagnets(ctx context.Context, id string, tokens models.SessionTokens) ([]models.Magnet, error) {
	if tokens.GID == "" || tokens.UC == "" {
		return nil, &ParseError{URL: c.detailURL(id), Reason: "missing magnet session tokens"}
	}

	img := tokens.Img
	if img == "" {
		img = id
	}
	form := url.Values{
		"gid":   {tokens.GID},
		"lang":  {"zh"},
		"img":   {img},
		"uc":    {tokens.UC},
		"floor": {fmt.Sprintf("%d", time.Now().UnixMilli())},
	}

	endpoint := c.baseURL + magnetEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build magnet request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", c.detailURL(id))
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	// The endpoint returns bare <tr> rows; without a wrapping table the
	// HTML parser discards them.
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<table>" + body + "</table>"))
	if err != nil {
		return nil, &ParseError{URL: endpoint, Reason: err.Error()}
	}

	magnets := parseMagnets(doc)
	c.log.Debug().Str("id", id).Int("magnets", len(magnets)).Msg("scraped magnet rows")
	return magnets, nil
}

// FetchStar scrapes a performer profile from their listing page.
func (c *Client) FetchStar(ctx context.Context, id string, uncensored bool) (*models.StarDetail, error) {
	pageURL := c.starURL(id, uncensored)
	doc, _, err := c.fetchDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	star, err := parseStarPage(doc, id, c.baseURL)
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return star, nil
}

func (c *Client) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request for %s: %w", pageURL, err)
	}
	c.setHeaders(req)

	body, err := c.do(req)
	if err != nil {
		return nil, "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, "", &ParseError{URL: pageURL, Reason: err.Error()}
	}
	return doc, body, nil
}

func (c *Client) do(req *http.Request) (string, error) {
	if err := c.limiter.Acquire(req.Context()); err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &TransientError{URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return "", &TransientError{StatusCode: resp.StatusCode, URL: req.URL.String()}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransientError{URL: req.URL.String(), Err: err}
	}
	return string(body), nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", buildinfo.BrowserUserAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguage)
	req.Header.Set("Referer", c.baseURL+"/")
}
