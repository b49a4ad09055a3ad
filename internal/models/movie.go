// Copyright (c) 2026, the metabus contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/avhub/metabus/internal/dbinterface"
)

// MovieStore persists catalog records in the durable cache tier. Rows are
// keyed by normalized catalog id and carry the full record as JSON plus a few
// extracted columns for filter-only browsing. Expired rows are reported as
// absent by Get but are never removed by resolution traffic; CleanupExpired
// and Flush are explicit maintenance operations.
type MovieStore struct {
	db dbinterface.TxQuerier
}

// NewMovieStore constructs a movie store over the given database.
func NewMovieStore(db dbinterface.TxQuerier) *MovieStore {
	return &MovieStore{db: db}
}

// MovieStoreStats summarizes the durable tier for maintenance tooling.
type MovieStoreStats struct {
	Movies          int64      `json:"movies"`
	Stars           int64      `json:"stars"`
	ApproxSizeBytes int64      `json:"approxSizeBytes"`
	OldestUpdatedAt *time.Time `json:"oldestUpdatedAt,omitempty"`
	NewestUpdatedAt *time.Time `json:"newestUpdatedAt,omitempty"`
}

// Save upserts one record with a fresh timestamp, overwriting any previous
// row wholesale. Partial records (search summaries) replace richer ones; the
// resolver refreshes them on the next detail fetch after expiry.
func (s *MovieStore) Save(ctx context.Context, movie *MovieDetail) error {
	return saveMovie(ctx, s.db, movie)
}

func saveMovie(ctx context.Context, q dbinterface.Querier, movie *MovieDetail) error {
	if movie == nil {
		return fmt.Errorf("movie cannot be nil")
	}
	id := NormalizeID(movie.ID)
	if id == "" {
		return fmt.Errorf("movie id cannot be empty")
	}

	data, err := json.Marshal(movie)
	if err != nil {
		return fmt.Errorf("encode movie %s: %w", id, err)
	}

	const query = `
		INSERT INTO movies (
			id, data, title, cover, release_date, director, producer, publisher, series,
			genre_matcher, star_matcher, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			title = excluded.title,
			cover = excluded.cover,
			release_date = excluded.release_date,
			director = excluded.director,
			producer = excluded.producer,
			publisher = excluded.publisher,
			series = excluded.series,
			genre_matcher = excluded.genre_matcher,
			star_matcher = excluded.star_matcher,
			last_updated = excluded.last_updated
	`

	if _, err := q.ExecContext(
		ctx,
		query,
		id,
		string(data),
		movie.Title,
		movie.Img,
		movie.Date,
		refName(movie.Director),
		refName(movie.Producer),
		refName(movie.Publisher),
		refName(movie.Series),
		buildRefMatcher(movie.Genres),
		buildRefMatcher(movie.Stars),
		time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("store movie %s: %w", id, err)
	}

	return nil
}

// SaveSummary upserts a card-level record as a detail with empty extensions.
func (s *MovieStore) SaveSummary(ctx context.Context, summary MovieSummary) error {
	return s.Save(ctx, &MovieDetail{MovieSummary: summary})
}

// SaveSummaries upserts a page of card-level records in one transaction. A
// bad row leaves the whole batch unapplied.
func (s *MovieStore) SaveSummaries(ctx context.Context, summaries []MovieSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin summary batch: %w", err)
	}
	defer tx.Rollback()

	for _, summary := range summaries {
		if err := saveMovie(ctx, tx, &MovieDetail{MovieSummary: summary}); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit summary batch: %w", err)
	}
	return nil
}

// Get returns the record for id when its age is within ttl. Older rows are
// treated as absent and left in place.
func (s *MovieStore) Get(ctx context.Context, id string, ttl time.Duration) (*MovieDetail, bool, error) {
	id = NormalizeID(id)
	if id == "" {
		return nil, false, fmt.Errorf("movie id cannot be empty")
	}

	var (
		data        string
		lastUpdated int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT data, last_updated FROM movies WHERE id = ?`, id).
		Scan(&data, &lastUpdated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fetch movie %s: %w", id, err)
	}

	storedAt := time.Unix(lastUpdated, 0)
	if ttl > 0 && !storedAt.Add(ttl).After(time.Now()) {
		return nil, false, nil
	}

	movie, err := decodeMovie(data)
	if err != nil {
		log.Warn().Err(err).Str("id", id).Msg("discarding undecodable movie row")
		return nil, false, nil
	}
	return movie, true, nil
}

// StoredAt returns the timestamp of the row for id, if any. The resolver uses
// it to honor the durable entry's remaining TTL when promoting to memory.
func (s *MovieStore) StoredAt(ctx context.Context, id string) (time.Time, bool, error) {
	var lastUpdated int64
	err := s.db.QueryRowContext(ctx, `SELECT last_updated FROM movies WHERE id = ?`, NormalizeID(id)).
		Scan(&lastUpdated)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("fetch movie timestamp: %w", err)
	}
	return time.Unix(lastUpdated, 0), true, nil
}

// ByFilter returns the page of records matching one filter, ordered by
// release date descending with dateless rows last, plus the total match
// count. Browsing ignores TTL: stale catalog entries are still browsable.
func (s *MovieStore) ByFilter(ctx context.Context, kind FilterKind, value string, page, pageSize int) ([]MovieSummary, int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, 0, fmt.Errorf("filter value cannot be empty")
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 30
	}

	where, arg, err := filterPredicate(kind, value)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM movies WHERE `+where, arg).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count movies by %s: %w", kind, err)
	}

	query := `
		SELECT data FROM movies
		WHERE ` + where + `
		ORDER BY CASE WHEN release_date IS NULL OR release_date = '' THEN 1 ELSE 0 END,
			release_date DESC, id ASC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, arg, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list movies by %s: %w", kind, err)
	}
	defer rows.Close()

	summaries, err := scanSummaries(rows)
	if err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

// Recent returns the page of most recently updated records plus the total
// row count.
func (s *MovieStore) Recent(ctx context.Context, page, pageSize int) ([]MovieSummary, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 30
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM movies`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count movies: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM movies
		ORDER BY last_updated DESC, id ASC
		LIMIT ? OFFSET ?
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list recent movies: %w", err)
	}
	defer rows.Close()

	summaries, err := scanSummaries(rows)
	if err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

// RecordSearch upserts one keyword into the search history.
func (s *MovieStore) RecordSearch(ctx context.Context, keyword string) error {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO search_history (keyword, search_time) VALUES (?, ?)
		ON CONFLICT(keyword) DO UPDATE SET search_time = excluded.search_time
	`, keyword, time.Now().Unix()); err != nil {
		return fmt.Errorf("record search %q: %w", keyword, err)
	}
	return nil
}

// RecentSearches returns the most recent keywords, newest first.
func (s *MovieStore) RecentSearches(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT keyword FROM search_history ORDER BY search_time DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent searches: %w", err)
	}
	defer rows.Close()

	var keywords []string
	for rows.Next() {
		var kw string
		if err := rows.Scan(&kw); err != nil {
			return nil, fmt.Errorf("scan recent search: %w", err)
		}
		keywords = append(keywords, kw)
	}
	return keywords, rows.Err()
}

// CleanupExpired removes rows older than ttl. Maintenance only; resolution
// traffic never calls this.
func (s *MovieStore) CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM movies WHERE last_updated < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired movies: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup expired movies rows affected: %w", err)
	}
	return deleted, nil
}

// Flush removes every movie row.
func (s *MovieStore) Flush(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM movies`)
	if err != nil {
		return 0, fmt.Errorf("flush movies: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("flush movies rows affected: %w", err)
	}
	return deleted, nil
}

// Stats returns summary metrics for maintenance tooling.
func (s *MovieStore) Stats(ctx context.Context) (*MovieStoreStats, error) {
	const query = `
		SELECT
			COUNT(*) AS movies,
			COALESCE(SUM(LENGTH(data)), 0) AS approx_size,
			MIN(last_updated) AS oldest,
			MAX(last_updated) AS newest
		FROM movies
	`

	var (
		movies    int64
		sizeBytes int64
		oldest    sql.NullInt64
		newest    sql.NullInt64
	)
	if err := s.db.QueryRowContext(ctx, query).Scan(&movies, &sizeBytes, &oldest, &newest); err != nil {
		return nil, fmt.Errorf("movie store stats: %w", err)
	}

	stats := &MovieStoreStats{Movies: movies, ApproxSizeBytes: sizeBytes}
	stats.OldestUpdatedAt = timeFromUnixNull(oldest)
	stats.NewestUpdatedAt = timeFromUnixNull(newest)

	var stars int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stars`).Scan(&stars); err == nil {
		stats.Stars = stars
	}
	return stats, nil
}

func filterPredicate(kind FilterKind, value string) (where string, arg any, err error) {
	switch kind {
	case FilterStar:
		return `instr(star_matcher, '|' || LOWER(?) || '|') > 0`, value, nil
	case FilterGenre:
		return `instr(genre_matcher, '|' || LOWER(?) || '|') > 0`, value, nil
	case FilterDirector:
		return `LOWER(director) = LOWER(?)`, value, nil
	case FilterStudio:
		return `LOWER(producer) = LOWER(?)`, value, nil
	case FilterLabel:
		return `LOWER(publisher) = LOWER(?)`, value, nil
	case FilterSeries:
		return `LOWER(series) = LOWER(?)`, value, nil
	default:
		return "", nil, fmt.Errorf("unknown filter kind %q", kind)
	}
}

// buildRefMatcher flattens refs into a "|id|name|" membership string so
// sqlite's instr can test set containment without a join table.
func buildRefMatcher(refs []Ref) string {
	if len(refs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('|')
	for _, ref := range refs {
		if id := strings.ToLower(strings.TrimSpace(ref.ID)); id != "" {
			b.WriteString(id)
			b.WriteByte('|')
		}
		if name := strings.ToLower(strings.TrimSpace(ref.Name)); name != "" {
			b.WriteString(name)
			b.WriteByte('|')
		}
	}
	if b.Len() == 1 {
		return ""
	}
	return b.String()
}

func refName(ref *Ref) string {
	if ref == nil {
		return ""
	}
	return ref.Name
}

func decodeMovie(data string) (*MovieDetail, error) {
	var movie MovieDetail
	if err := json.Unmarshal([]byte(data), &movie); err != nil {
		return nil, fmt.Errorf("decode movie row: %w", err)
	}
	return &movie, nil
}

func scanSummaries(rows *sql.Rows) ([]MovieSummary, error) {
	var summaries []MovieSummary
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan movie row: %w", err)
		}
		movie, err := decodeMovie(data)
		if err != nil {
			log.Debug().Err(err).Msg("skipping undecodable movie row")
			continue
		}
		summaries = append(summaries, movie.MovieSummary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movie rows: %w", err)
	}
	return summaries, nil
}

func timeFromUnixNull(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	ts := time.Unix(value.Int64, 0).UTC()
	return &ts
}
