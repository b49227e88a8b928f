// Package denylist tracks records whose source repeatedly fails to serve
// them. Entries are time-bounded: a broken id drops out of catalog results
// until its entry expires, then gets another chance.
package denylist

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediafuse/mediafuse/internal/store"
)

// DefaultTTL bounds how long a broken record stays excluded.
const DefaultTTL = 6 * time.Hour

// failureThreshold is how many server-fault failures an id accumulates
// before it is denylisted.
const failureThreshold = 3

type entry struct {
	reason    string
	expiresAt time.Time
}

// Denylist is the broken-record exclusion service.
type Denylist struct {
	mu       sync.RWMutex
	entries  map[string]entry
	failures map[string]int
	dirty    bool

	ttl    time.Duration
	db     *store.DB
	logger zerolog.Logger
}

// New loads the denylist from sqlite, dropping already-expired rows.
func New(db *store.DB, ttl time.Duration, logger zerolog.Logger) (*Denylist, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	d := &Denylist{
		entries:  make(map[string]entry),
		failures: make(map[string]int),
		ttl:      ttl,
		db:       db,
		logger:   logger.With().Str("component", "denylist").Logger(),
	}

	rows, err := db.Conn().Query(`SELECT record_id, reason, expires_at FROM denylist`)
	if err != nil {
		return nil, fmt.Errorf("failed to load denylist: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	for rows.Next() {
		var id, reason string
		var expiresAt time.Time
		if err := rows.Scan(&id, &reason, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan denylist row: %w", err)
		}
		if expiresAt.After(now) {
			d.entries[id] = entry{reason: reason, expiresAt: expiresAt}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate denylist rows: %w", err)
	}

	d.logger.Debug().Int("entries", len(d.entries)).Msg("Denylist loaded")
	return d, nil
}

// RecordFailure notes one server-fault failure for an id and denylists it
// once the threshold is reached. Returns true if the id is now denied.
func (d *Denylist) RecordFailure(id, reason string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.failures[id]++
	if d.failures[id] < failureThreshold {
		return false
	}

	delete(d.failures, id)
	d.entries[id] = entry{reason: reason, expiresAt: time.Now().Add(d.ttl)}
	d.dirty = true
	d.logger.Info().Str("id", id).Str("reason", reason).Dur("ttl", d.ttl).
		Msg("Record denylisted after repeated failures")
	return true
}

// Add denylists an id immediately.
func (d *Denylist) Add(id, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[id] = entry{reason: reason, expiresAt: time.Now().Add(d.ttl)}
	d.dirty = true
}

// IsDenied reports whether an id is currently excluded. Expired entries are
// pruned lazily.
func (d *Denylist) IsDenied(id string) bool {
	d.mu.RLock()
	e, ok := d.entries[id]
	d.mu.RUnlock()
	if !ok {
		return false
	}
	if time.Now().After(e.expiresAt) {
		d.mu.Lock()
		delete(d.entries, id)
		d.dirty = true
		d.mu.Unlock()
		return false
	}
	return true
}

// ClearFailures resets the failure counter for an id after a success.
func (d *Denylist) ClearFailures(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.failures, id)
}

// Len returns the number of active entries.
func (d *Denylist) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Flush rewrites the sqlite table from the in-memory state.
func (d *Denylist) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.dirty {
		return nil
	}

	tx, err := d.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin denylist flush: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM denylist`); err != nil {
		return fmt.Errorf("failed to clear denylist table: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO denylist (record_id, reason, expires_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare denylist flush: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for id, e := range d.entries {
		if e.expiresAt.Before(now) {
			continue
		}
		if _, err := stmt.Exec(id, e.reason, e.expiresAt); err != nil {
			return fmt.Errorf("failed to flush denylist entry %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit denylist flush: %w", err)
	}
	d.dirty = false
	return nil
}

// Close flushes pending entries. The shutdown hook.
func (d *Denylist) Close() error {
	return d.Flush()
}
