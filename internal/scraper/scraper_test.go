// Copyright (c) 2026, the metabus contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avhub/metabus/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, 5*time.Second, time.Millisecond)
}

func TestSearchURL(t *testing.T) {
	client := NewClient("https://www.javbus.com", 0, 0)

	tests := []struct {
		name     string
		query    models.SearchQuery
		expected string
	}{
		{
			name:     "keyword",
			query:    models.SearchQuery{Keyword: "abc", Page: 1},
			expected: "https://www.javbus.com/search/abc/1",
		},
		{
			name:     "keyword uncensored page 3",
			query:    models.SearchQuery{Keyword: "abc", UncensoredOnly: true, Page: 3},
			expected: "https://www.javbus.com/uncensored/search/abc/3",
		},
		{
			name:     "keyword with spaces",
			query:    models.SearchQuery{Keyword: "two words", Page: 1},
			expected: "https://www.javbus.com/search/two%20words/1",
		},
		{
			name:     "latest first page",
			query:    models.SearchQuery{Page: 1},
			expected: "https://www.javbus.com/",
		},
		{
			name:     "latest page 2",
			query:    models.SearchQuery{Page: 2},
			expected: "https://www.javbus.com/page/2",
		},
		{
			name:     "latest uncensored",
			query:    models.SearchQuery{UncensoredOnly: true},
			expected: "https://www.javbus.com/uncensored",
		},
		{
			name:     "latest uncensored page 4",
			query:    models.SearchQuery{UncensoredOnly: true, Page: 4},
			expected: "https://www.javbus.com/uncensored/page/4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, client.searchURL(tt.query))
		})
	}
}

func TestFetchSearch(t *testing.T) {
	var gotPath, gotUA string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(searchPageHTML))
	})

	page, err := client.FetchSearch(context.Background(), models.SearchQuery{Keyword: "abc", Page: 2})
	require.NoError(t, err)

	assert.Equal(t, "/search/abc/2", gotPath)
	assert.Contains(t, gotUA, "Mozilla/5.0", "origin requests must look like a browser")
	assert.Len(t, page.Movies, 2)
	assert.Equal(t, "abc", page.Keyword)
	assert.Equal(t, 2, page.Pagination.CurrentPage)
}

func TestFetchSearchNoResults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	page, err := client.FetchSearch(context.Background(), models.SearchQuery{Keyword: "zzz", Page: 1})
	require.NoError(t, err, "zero-hit search is an empty page, not an error")
	assert.Empty(t, page.Movies)
	assert.False(t, page.Pagination.HasNextPage)
}

func TestFetchDetail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ABC-001", r.URL.Path)
		w.Write([]byte(detailPageHTML))
	})

	detail, err := client.FetchDetail(context.Background(), "ABC-001")
	require.NoError(t, err)
	assert.Equal(t, "ABC-001", detail.ID)
	assert.Equal(t, "12345678", detail.Tokens.GID)
}

func TestFetchDetailNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := client.FetchDetail(context.Background(), "NOPE-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchDetailSoftNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="error-page">404</div></body></html>`))
	})

	_, err := client.FetchDetail(context.Background(), "NOPE-404")
	assert.ErrorIs(t, err, ErrNotFound, "titleless 200 page should read as not found")
}

func TestFetchDetailServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.FetchDetail(context.Background(), "ABC-001")
	require.Error(t, err)
	assert.ErrorIs(t, err, &TransientError{})
}

func TestFetchMagnets(t *testing.T) {
	var gotForm map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, magnetEndpoint, r.URL.Path)
		assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		assert.Contains(t, r.Header.Get("Referer"), "/ABC-001")
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"gid":  r.PostForm.Get("gid"),
			"lang": r.PostForm.Get("lang"),
			"img":  r.PostForm.Get("img"),
			"uc":   r.PostForm.Get("uc"),
		}
		w.Write([]byte(magnetRowsHTML))
	})

	magnets, err := client.FetchMagnets(context.Background(), "ABC-001", models.SessionTokens{
		GID: "12345678",
		UC:  "0",
		Img: "/pics/cover/abc001_b.jpg",
	})
	require.NoError(t, err)

	assert.Equal(t, "12345678", gotForm["gid"])
	assert.Equal(t, "zh", gotForm["lang"])
	assert.Equal(t, "/pics/cover/abc001_b.jpg", gotForm["img"])
	assert.Equal(t, "0", gotForm["uc"])
	require.Len(t, magnets, 2)
	assert.Equal(t, "abcdef0123456789", magnets[0].ID)
}

func TestFetchMagnetsMissingTokens(t *testing.T) {
	client := NewClient("https://www.javbus.com", 0, 0)

	_, err := client.FetchMagnets(context.Background(), "ABC-001", models.SessionTokens{})
	require.Error(t, err)
	assert.ErrorIs(t, err, &ParseError{})
}

func TestFetchStar(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/star/2jd", r.URL.Path)
		w.Write([]byte(starPageHTML))
	})

	star, err := client.FetchStar(context.Background(), "2jd", false)
	require.NoError(t, err)
	assert.Equal(t, "Alice Example", star.Name)
}

func TestFetchStarUncensoredPath(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/uncensored/star/2jd", r.URL.Path)
		w.Write([]byte(starPageHTML))
	})

	_, err := client.FetchStar(context.Background(), "2jd", true)
	require.NoError(t, err)
}
