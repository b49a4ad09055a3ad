// Copyright (c) 2026, the metabus contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metadata

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/avhub/metabus/internal/models"
)

const (
	defaultMemoryTTL   = 5 * time.Minute
	memorySweepTrigger = 4096
)

type memoryEntry struct {
	movie     *models.MovieDetail
	expiresAt time.Time
}

// movieCache layers a volatile in-process map over the durable movie store.
// Writes land in both tiers with one fresh timestamp; reads check memory
// first and promote durable hits, capped by the durable entry's remaining
// lifetime so a record never outlives its durable TTL in memory.
type movieCache struct {
	store  *models.MovieStore
	ttl    time.Duration
	memTTL time.Duration

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func newMovieCache(store *models.MovieStore, ttl time.Duration) *movieCache {
	memTTL := defaultMemoryTTL
	if ttl > 0 && ttl < memTTL {
		memTTL = ttl
	}
	return &movieCache{
		store:   store,
		ttl:     ttl,
		memTTL:  memTTL,
		entries: make(map[string]memoryEntry),
	}
}

// Get returns the cached record for id, if present and unexpired in either
// tier.
func (c *movieCache) Get(ctx context.Context, id string) (*models.MovieDetail, bool, error) {
	id = models.NormalizeID(id)

	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()
	if ok {
		if time.Now().Before(entry.expiresAt) {
			return entry.movie, true, nil
		}
		c.mu.Lock()
		delete(c.entries, id)
		c.mu.Unlock()
	}

	movie, found, err := c.store.Get(ctx, id, c.ttl)
	if err != nil || !found {
		return nil, false, err
	}

	c.promote(ctx, id, movie)
	return movie, true, nil
}

// promote copies a durable hit into memory without extending its life past
// the durable expiry.
func (c *movieCache) promote(ctx context.Context, id string, movie *models.MovieDetail) {
	expiresAt := time.Now().Add(c.memTTL)
	if storedAt, ok, err := c.store.StoredAt(ctx, id); err == nil && ok && c.ttl > 0 {
		if durableExpiry := storedAt.Add(c.ttl); durableExpiry.Before(expiresAt) {
			expiresAt = durableExpiry
		}
	}

	c.mu.Lock()
	c.entries[id] = memoryEntry{movie: movie, expiresAt: expiresAt}
	c.mu.Unlock()
}

// Put writes the record to the durable tier and, on success, to memory.
func (c *movieCache) Put(ctx context.Context, movie *models.MovieDetail) error {
	if err := c.store.Save(ctx, movie); err != nil {
		return err
	}

	id := models.NormalizeID(movie.ID)
	c.mu.Lock()
	c.entries[id] = memoryEntry{movie: movie, expiresAt: time.Now().Add(c.memTTL)}
	if len(c.entries) > memorySweepTrigger {
		c.sweepLocked()
	}
	c.mu.Unlock()
	return nil
}

// PutSummary caches a card-level record, replacing any richer one.
func (c *movieCache) PutSummary(ctx context.Context, summary models.MovieSummary) error {
	return c.Put(ctx, &models.MovieDetail{MovieSummary: summary})
}

// PutSummaries caches a page of card-level records in one durable write.
func (c *movieCache) PutSummaries(ctx context.Context, summaries []models.MovieSummary) error {
	if len(summaries) == 0 {
		return nil
	}
	if err := c.store.SaveSummaries(ctx, summaries); err != nil {
		return err
	}

	expiresAt := time.Now().Add(c.memTTL)
	c.mu.Lock()
	for i := range summaries {
		id := models.NormalizeID(summaries[i].ID)
		c.entries[id] = memoryEntry{
			movie:     &models.MovieDetail{MovieSummary: summaries[i]},
			expiresAt: expiresAt,
		}
	}
	if len(c.entries) > memorySweepTrigger {
		c.sweepLocked()
	}
	c.mu.Unlock()
	return nil
}

func (c *movieCache) sweepLocked() {
	now := time.Now()
	for id, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, id)
		}
	}
	log.Debug().Int("remaining", len(c.entries)).Msg("swept expired memory cache entries")
}

// Cleanup removes durable rows past the configured TTL and drops the memory
// tier.
func (c *movieCache) Cleanup(ctx context.Context) (int64, error) {
	deleted, err := c.store.CleanupExpired(ctx, c.ttl)
	if err != nil {
		return 0, err
	}
	c.dropMemory()
	return deleted, nil
}

// Flush empties both tiers.
func (c *movieCache) Flush(ctx context.Context) (int64, error) {
	deleted, err := c.store.Flush(ctx)
	if err != nil {
		return 0, err
	}
	c.dropMemory()
	return deleted, nil
}

func (c *movieCache) dropMemory() {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
}

// Stats reports durable-tier metrics plus the live memory entry count.
func (c *movieCache) Stats(ctx context.Context) (*CacheStats, error) {
	storeStats, err := c.store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	memEntries := len(c.entries)
	c.mu.RUnlock()

	return &CacheStats{
		MovieStoreStats: *storeStats,
		MemoryEntries:   memEntries,
		TTL:             c.ttl,
	}, nil
}

// CacheStats combines durable store metrics with volatile tier state.
type CacheStats struct {
	models.MovieStoreStats

	MemoryEntries int           `json:"memoryEntries"`
	TTL           time.Duration `json:"ttl"`
}
