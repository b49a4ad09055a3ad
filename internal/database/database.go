// Copyright (c) 2026, the metabus contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS movies (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	title TEXT,
	cover TEXT,
	release_date TEXT,
	director TEXT,
	producer TEXT,
	publisher TEXT,
	series TEXT,
	genre_matcher TEXT NOT NULL DEFAULT '',
	star_matcher TEXT NOT NULL DEFAULT '',
	last_updated INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_movies_last_updated ON movies (last_updated DESC);
CREATE INDEX IF NOT EXISTS idx_movies_release_date ON movies (release_date DESC);

CREATE TABLE IF NOT EXISTS stars (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	name TEXT,
	last_updated INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS search_history (
	keyword TEXT PRIMARY KEY,
	search_time INTEGER NOT NULL
);
`

// New opens (creating if necessary) the sqlite database backing the durable
// cache tier and ensures the schema exists.
func New(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// modernc sqlite serializes writes internally; a single connection
	// avoids SQLITE_BUSY churn under concurrent resolvers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	log.Debug().Str("path", path).Msg("database ready")
	return db, nil
}

// NewMemory opens a throwaway in-memory database for tests.
func NewMemory() (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}
