// Copyright (c) 2026, the metabus contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avhub/metabus/internal/models"
	"github.com/avhub/metabus/internal/scraper"
)

func newExternalForTest(t *testing.T, handler http.HandlerFunc) *ExternalClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewExternalClient(server.URL, 5*time.Second)
}

func TestExternalGetMovie(t *testing.T) {
	client := newExternalForTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/movies/ABC-001", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "ABC-001",
			"title": "ABC-001 Some Title",
			"img": "https://img.example.com/abc001.jpg",
			"date": "2024-05-01",
			"videoLength": 150,
			"magnets": [{"id": "hash", "link": "magnet:?xt=urn:btih:hash", "isHD": true}]
		}`))
	})

	movie, err := client.GetMovie(context.Background(), "abc 001")
	require.NoError(t, err)
	assert.Equal(t, "ABC-001", movie.ID)
	assert.Equal(t, 150, movie.VideoLength)
	require.Len(t, movie.Magnets, 1)
	assert.True(t, movie.Magnets[0].IsHD)
}

func TestExternalGetMovieNotFound(t *testing.T) {
	client := newExternalForTest(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := client.GetMovie(context.Background(), "NOPE-404")
	assert.ErrorIs(t, err, scraper.ErrNotFound)
}

func TestExternalRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	client := newExternalForTest(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"id": "ABC-002", "title": "ABC-002"}`))
	})

	movie, err := client.GetMovie(context.Background(), "ABC-002")
	require.NoError(t, err)
	assert.Equal(t, "ABC-002", movie.ID)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestExternalDoesNotRetryNotFound(t *testing.T) {
	var attempts atomic.Int32
	client := newExternalForTest(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.NotFound(w, r)
	})

	_, err := client.GetMovie(context.Background(), "NOPE-404")
	assert.ErrorIs(t, err, scraper.ErrNotFound)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestExternalSearchMovies(t *testing.T) {
	var gotQuery string
	client := newExternalForTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/movies/search", r.URL.Path)
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{
			"movies": [{"id": "KW-001", "title": "First"}],
			"pagination": {"currentPage": 1, "hasNextPage": true, "nextPage": 2, "pages": [1, 2]}
		}`))
	})

	page, err := client.SearchMovies(context.Background(), models.SearchQuery{Keyword: "kw", Page: 1})
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "keyword=kw")
	assert.Contains(t, gotQuery, "page=1")
	require.Len(t, page.Movies, 1)
	assert.True(t, page.Pagination.HasNextPage)
	assert.Equal(t, "kw", page.Keyword)
}

func TestExternalSearchMoviesFilter(t *testing.T) {
	var gotQuery string
	client := newExternalForTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/movies", r.URL.Path)
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"movies": [], "pagination": {"currentPage": 1}}`))
	})

	_, err := client.SearchMovies(context.Background(), models.SearchQuery{
		FilterType:     models.FilterStar,
		FilterValue:    "2jd",
		UncensoredOnly: true,
		Page:           2,
	})
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "filterType=star")
	assert.Contains(t, gotQuery, "filterValue=2jd")
	assert.Contains(t, gotQuery, "type=uncensored")
	assert.Contains(t, gotQuery, "magnet=all")
	assert.Contains(t, gotQuery, "page=2")
}

func TestExternalGetStar(t *testing.T) {
	client := newExternalForTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stars/2jd", r.URL.Path)
		w.Write([]byte(`{"id": "2jd", "name": "Alice Example", "birthday": "1995-04-12"}`))
	})

	star, err := client.GetStar(context.Background(), "2jd")
	require.NoError(t, err)
	assert.Equal(t, "Alice Example", star.Name)
	assert.Equal(t, "1995-04-12", star.Birthday)
}

func TestExternalSearchStars(t *testing.T) {
	var gotQuery string
	client := newExternalForTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stars/search", r.URL.Path)
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"stars": [{"id": "2jd", "name": "Alice Example"}]}`))
	})

	stars, err := client.SearchStars(context.Background(), "Alice")
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "keyword=Alice")
	require.Len(t, stars, 1)
	assert.Equal(t, "2jd", stars[0].ID)
}

func TestExternalSearchStarsNotFoundIsEmpty(t *testing.T) {
	client := newExternalForTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	stars, err := client.SearchStars(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, stars)
}

func TestExternalClientErrorIsTerminal(t *testing.T) {
	var attempts atomic.Int32
	client := newExternalForTest(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.GetMovie(context.Background(), "ABC-003")
	require.Error(t, err)
	assert.ErrorIs(t, err, &UpstreamError{})
	assert.Equal(t, int32(1), attempts.Load())
}
