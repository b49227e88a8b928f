// Package registry maps source-native slugs to canonical aggregated record
// ids. It replaces what used to be an ambient global: it is constructed once,
// injected where needed, buffers writes in memory and flushes to sqlite on
// shutdown.
package registry

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mediafuse/mediafuse/internal/store"
)

// Registry is the slug-to-record mapping service.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	dirty   map[string]bool

	db     *store.DB
	logger zerolog.Logger
}

// Entry is one slug mapping.
type Entry struct {
	Slug     string
	RecordID string
	Source   string
}

// New loads the registry from sqlite.
func New(db *store.DB, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{
		entries: make(map[string]Entry),
		dirty:   make(map[string]bool),
		db:      db,
		logger:  logger.With().Str("component", "registry").Logger(),
	}

	rows, err := db.Conn().Query(`SELECT slug, record_id, source FROM slugs`)
	if err != nil {
		return nil, fmt.Errorf("failed to load slug registry: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Slug, &e.RecordID, &e.Source); err != nil {
			return nil, fmt.Errorf("failed to scan slug row: %w", err)
		}
		r.entries[e.Slug] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate slug rows: %w", err)
	}

	r.logger.Debug().Int("slugs", len(r.entries)).Msg("Slug registry loaded")
	return r, nil
}

// Register records a slug mapping. Later registrations for the same slug win.
func (r *Registry) Register(slug, recordID, sourceName string) {
	if slug == "" || recordID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[slug] = Entry{Slug: slug, RecordID: recordID, Source: sourceName}
	r.dirty[slug] = true
}

// Resolve returns the canonical record id for a slug.
func (r *Registry) Resolve(slug string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[slug]
	return e.RecordID, ok
}

// Snapshot returns slug -> record id for the offline bundle.
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.entries))
	for slug, e := range r.entries {
		out[slug] = e.RecordID
	}
	return out
}

// Len returns the number of registered slugs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Flush writes dirty entries to sqlite.
func (r *Registry) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.dirty) == 0 {
		return nil
	}

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin registry flush: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO slugs (slug, record_id, source, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(slug) DO UPDATE SET record_id = excluded.record_id,
			source = excluded.source, updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("failed to prepare registry flush: %w", err)
	}
	defer stmt.Close()

	for slug := range r.dirty {
		e := r.entries[slug]
		if _, err := stmt.Exec(e.Slug, e.RecordID, e.Source); err != nil {
			return fmt.Errorf("failed to flush slug %s: %w", slug, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registry flush: %w", err)
	}

	flushed := len(r.dirty)
	r.dirty = make(map[string]bool)
	r.logger.Debug().Int("slugs", flushed).Msg("Slug registry flushed")
	return nil
}

// Close flushes any buffered entries. The shutdown hook.
func (r *Registry) Close() error {
	return r.Flush()
}
