// Copyright (c) 2026, the metabus contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avhub/metabus/internal/database"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testMovie(id string) *MovieDetail {
	return &MovieDetail{
		MovieSummary: MovieSummary{
			ID:    id,
			Title: "Title " + id,
			Img:   "https://img.example.com/" + id + ".jpg",
			Date:  "2024-05-01",
		},
		VideoLength: 120,
		Director:    &Ref{ID: "dir-1", Name: "Some Director"},
		Producer:    &Ref{ID: "stu-1", Name: "Some Studio"},
		Publisher:   &Ref{ID: "lab-1", Name: "Some Label"},
		Series:      &Ref{ID: "ser-1", Name: "Some Series"},
		Genres:      []Ref{{ID: "g1", Name: "Drama"}, {ID: "g2", Name: "Action"}},
		Stars:       []Ref{{ID: "s1", Name: "Alice"}, {ID: "s2", Name: "Bob"}},
		Magnets: []Magnet{
			{ID: "abcdef", Link: "magnet:?xt=urn:btih:abcdef", Title: id, Size: "5.2GB", NumberSize: 5583457484, IsHD: true},
		},
	}
}

func TestMovieStoreSaveAndGet(t *testing.T) {
	store := NewMovieStore(newTestDB(t))
	ctx := context.Background()

	movie := testMovie("ABC-001")
	require.NoError(t, store.Save(ctx, movie))

	got, found, err := store.Get(ctx, "ABC-001", time.Hour)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, movie.Title, got.Title)
	assert.Equal(t, movie.Img, got.Img)
	assert.Equal(t, 120, got.VideoLength)
	require.NotNil(t, got.Director)
	assert.Equal(t, "Some Director", got.Director.Name)
	assert.Len(t, got.Genres, 2)
	assert.Len(t, got.Stars, 2)
	require.Len(t, got.Magnets, 1)
	assert.True(t, got.Magnets[0].IsHD)
}

func TestMovieStoreSaveSummariesBatch(t *testing.T) {
	store := NewMovieStore(newTestDB(t))
	ctx := context.Background()

	summaries := []MovieSummary{
		{ID: "BAT-001", Title: "First", Date: "2024-01-01"},
		{ID: "BAT-002", Title: "Second", Date: "2024-02-01"},
	}
	require.NoError(t, store.SaveSummaries(ctx, summaries))

	for _, summary := range summaries {
		got, found, err := store.Get(ctx, summary.ID, time.Hour)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, summary.Title, got.Title)
	}

	require.NoError(t, store.SaveSummaries(ctx, nil))
}

func TestMovieStoreSaveSummariesRollsBackOnBadRow(t *testing.T) {
	store := NewMovieStore(newTestDB(t))
	ctx := context.Background()

	err := store.SaveSummaries(ctx, []MovieSummary{
		{ID: "BAT-003", Title: "Valid"},
		{ID: "   ", Title: "No id"},
	})
	require.Error(t, err)

	// The valid row must not survive the failed batch.
	_, found, err := store.Get(ctx, "BAT-003", time.Hour)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMovieStoreGetMissing(t *testing.T) {
	store := NewMovieStore(newTestDB(t))

	got, found, err := store.Get(context.Background(), "NOPE-404", time.Hour)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestMovieStoreGetExpired(t *testing.T) {
	db := newTestDB(t)
	store := NewMovieStore(db)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testMovie("ABC-002")))

	// Age the row past any reasonable TTL.
	_, err := db.Exec(`UPDATE movies SET last_updated = ? WHERE id = ?`,
		time.Now().Add(-2*time.Hour).Unix(), "ABC-002")
	require.NoError(t, err)

	_, found, err := store.Get(ctx, "ABC-002", time.Hour)
	require.NoError(t, err)
	assert.False(t, found, "expired row should read as absent")

	// The row itself survives until explicit cleanup.
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM movies WHERE id = ?`, "ABC-002").Scan(&count))
	assert.Equal(t, 1, count)

	// A fresh save makes it visible again.
	require.NoError(t, store.Save(ctx, testMovie("ABC-002")))
	_, found, err = store.Get(ctx, "ABC-002", time.Hour)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestMovieStoreNormalizesID(t *testing.T) {
	store := NewMovieStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testMovie("abc 003")))

	got, found, err := store.Get(ctx, "  abc   003 ", time.Hour)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ABC-003", NormalizeID(got.ID))
}

func TestMovieStoreSaveOverwrites(t *testing.T) {
	store := NewMovieStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testMovie("ABC-004")))

	// A later summary-only save replaces the record wholesale.
	require.NoError(t, store.SaveSummary(ctx, MovieSummary{
		ID:    "ABC-004",
		Title: "Updated Title",
		Img:   "https://img.example.com/new.jpg",
		Date:  "2024-06-01",
	}))

	got, found, err := store.Get(ctx, "ABC-004", time.Hour)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Updated Title", got.Title)
	assert.Nil(t, got.Director)
	assert.Empty(t, got.Magnets)
}

func TestMovieStoreByFilter(t *testing.T) {
	store := NewMovieStore(newTestDB(t))
	ctx := context.Background()

	first := testMovie("FIL-001")
	first.Date = "2024-01-01"
	second := testMovie("FIL-002")
	second.Date = "2024-03-01"
	second.Stars = []Ref{{ID: "s9", Name: "Carol"}}
	second.Producer = &Ref{ID: "stu-2", Name: "Other Studio"}
	third := testMovie("FIL-003")
	third.Date = ""
	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))
	require.NoError(t, store.Save(ctx, third))

	tests := []struct {
		name    string
		kind    FilterKind
		value   string
		wantIDs []string
	}{
		{
			name:    "star by id",
			kind:    FilterStar,
			value:   "s1",
			wantIDs: []string{"FIL-001", "FIL-003"},
		},
		{
			name:    "star by name case-insensitive",
			kind:    FilterStar,
			value:   "CAROL",
			wantIDs: []string{"FIL-002"},
		},
		{
			name:    "genre by name",
			kind:    FilterGenre,
			value:   "drama",
			wantIDs: []string{"FIL-002", "FIL-001", "FIL-003"},
		},
		{
			name:    "director",
			kind:    FilterDirector,
			value:   "some director",
			wantIDs: []string{"FIL-002", "FIL-001", "FIL-003"},
		},
		{
			name:    "studio",
			kind:    FilterStudio,
			value:   "Other Studio",
			wantIDs: []string{"FIL-002"},
		},
		{
			name:    "label",
			kind:    FilterLabel,
			value:   "Some Label",
			wantIDs: []string{"FIL-002", "FIL-001", "FIL-003"},
		},
		{
			name:    "series",
			kind:    FilterSeries,
			value:   "Some Series",
			wantIDs: []string{"FIL-002", "FIL-001", "FIL-003"},
		},
		{
			name:    "no matches",
			kind:    FilterGenre,
			value:   "nonexistent",
			wantIDs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			movies, total, err := store.ByFilter(ctx, tt.kind, tt.value, 1, 30)
			require.NoError(t, err)
			assert.Equal(t, len(tt.wantIDs), total)
			ids := make([]string, 0, len(movies))
			for _, m := range movies {
				ids = append(ids, m.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestMovieStoreByFilterPagination(t *testing.T) {
	store := NewMovieStore(newTestDB(t))
	ctx := context.Background()

	for _, id := range []string{"PAG-001", "PAG-002", "PAG-003"} {
		require.NoError(t, store.Save(ctx, testMovie(id)))
	}

	movies, total, err := store.ByFilter(ctx, FilterGenre, "Drama", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, movies, 2)

	movies, total, err = store.ByFilter(ctx, FilterGenre, "Drama", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, movies, 1)
}

func TestMovieStoreByFilterRejectsBadInput(t *testing.T) {
	store := NewMovieStore(newTestDB(t))
	ctx := context.Background()

	_, _, err := store.ByFilter(ctx, FilterGenre, "  ", 1, 30)
	assert.Error(t, err)

	_, _, err = store.ByFilter(ctx, FilterKind("bogus"), "value", 1, 30)
	assert.Error(t, err)
}

func TestMovieStoreRecent(t *testing.T) {
	db := newTestDB(t)
	store := NewMovieStore(db)
	ctx := context.Background()

	base := time.Now().Unix()
	for i, id := range []string{"REC-001", "REC-002", "REC-003"} {
		require.NoError(t, store.Save(ctx, testMovie(id)))
		_, err := db.Exec(`UPDATE movies SET last_updated = ? WHERE id = ?`, base+int64(i), id)
		require.NoError(t, err)
	}

	movies, total, err := store.Recent(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, movies, 2)
	assert.Equal(t, "REC-003", movies[0].ID)
	assert.Equal(t, "REC-002", movies[1].ID)
}

func TestSearchHistory(t *testing.T) {
	store := NewMovieStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.RecordSearch(ctx, "alpha"))
	require.NoError(t, store.RecordSearch(ctx, "beta"))
	require.NoError(t, store.RecordSearch(ctx, "alpha"))
	require.NoError(t, store.RecordSearch(ctx, "   "))

	keywords, err := store.RecentSearches(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, keywords, 2)
	assert.Contains(t, keywords, "alpha")
	assert.Contains(t, keywords, "beta")
}

func TestMovieStoreCleanupAndFlush(t *testing.T) {
	db := newTestDB(t)
	store := NewMovieStore(db)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testMovie("CLN-001")))
	require.NoError(t, store.Save(ctx, testMovie("CLN-002")))
	_, err := db.Exec(`UPDATE movies SET last_updated = ? WHERE id = ?`,
		time.Now().Add(-48*time.Hour).Unix(), "CLN-001")
	require.NoError(t, err)

	deleted, err := store.CleanupExpired(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, found, err := store.Get(ctx, "CLN-002", time.Hour)
	require.NoError(t, err)
	assert.True(t, found)

	deleted, err = store.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Movies)
}

func TestMovieStoreStats(t *testing.T) {
	store := NewMovieStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testMovie("STA-001")))
	require.NoError(t, store.Save(ctx, testMovie("STA-002")))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Movies)
	assert.Positive(t, stats.ApproxSizeBytes)
	require.NotNil(t, stats.OldestUpdatedAt)
	require.NotNil(t, stats.NewestUpdatedAt)
	assert.False(t, stats.NewestUpdatedAt.Before(*stats.OldestUpdatedAt))
}
