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

	"github.com/avhub/metabus/internal/dbinterface"
)

// StarStore persists performer profiles in the durable cache tier.
type StarStore struct {
	db dbinterface.Querier
}

// NewStarStore constructs a star store over the given database.
func NewStarStore(db dbinterface.Querier) *StarStore {
	return &StarStore{db: db}
}

// Save upserts one profile with a fresh timestamp.
func (s *StarStore) Save(ctx context.Context, star *StarDetail) error {
	if star == nil {
		return fmt.Errorf("star cannot be nil")
	}
	id := strings.TrimSpace(star.ID)
	if id == "" {
		return fmt.Errorf("star id cannot be empty")
	}

	data, err := json.Marshal(star)
	if err != nil {
		return fmt.Errorf("encode star %s: %w", id, err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO stars (id, data, name, last_updated) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			name = excluded.name,
			last_updated = excluded.last_updated
	`, id, string(data), star.Name, time.Now().Unix()); err != nil {
		return fmt.Errorf("store star %s: %w", id, err)
	}
	return nil
}

// Get returns the profile for id when its age is within ttl.
func (s *StarStore) Get(ctx context.Context, id string, ttl time.Duration) (*StarDetail, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false, fmt.Errorf("star id cannot be empty")
	}

	var (
		data        string
		lastUpdated int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT data, last_updated FROM stars WHERE id = ?`, id).
		Scan(&data, &lastUpdated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fetch star %s: %w", id, err)
	}

	if ttl > 0 && !time.Unix(lastUpdated, 0).Add(ttl).After(time.Now()) {
		return nil, false, nil
	}

	var star StarDetail
	if err := json.Unmarshal([]byte(data), &star); err != nil {
		return nil, false, fmt.Errorf("decode star %s: %w", id, err)
	}
	return &star, true, nil
}

// SearchByName returns profiles whose name contains the given fragment,
// case-insensitively, newest first.
func (s *StarStore) SearchByName(ctx context.Context, name string, limit int) ([]StarDetail, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("star name cannot be empty")
	}
	if limit <= 0 {
		limit = 30
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM stars
		WHERE name LIKE '%' || ? || '%'
		ORDER BY last_updated DESC
		LIMIT ?
	`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("search stars by name: %w", err)
	}
	defer rows.Close()

	var stars []StarDetail
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan star row: %w", err)
		}
		var star StarDetail
		if err := json.Unmarshal([]byte(data), &star); err != nil {
			continue
		}
		stars = append(stars, star)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate star rows: %w", err)
	}
	return stars, nil
}
