package registry

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mediafuse/mediafuse/internal/store"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRegisterResolve(t *testing.T) {
	db := newTestDB(t)
	r, err := New(db, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	r.Register("alpha", "source-1:alpha", "source-1")

	id, ok := r.Resolve("alpha")
	if !ok || id != "source-1:alpha" {
		t.Errorf("Resolve = %q, %v", id, ok)
	}
	if _, ok := r.Resolve("missing"); ok {
		t.Error("expected miss for unregistered slug")
	}
}

func TestRegisterIgnoresEmpty(t *testing.T) {
	db := newTestDB(t)
	r, _ := New(db, zerolog.Nop())

	r.Register("", "source-1:alpha", "source-1")
	r.Register("alpha", "", "source-1")
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d entries", r.Len())
	}
}

func TestLaterRegistrationWins(t *testing.T) {
	db := newTestDB(t)
	r, _ := New(db, zerolog.Nop())

	r.Register("alpha", "source-1:alpha", "source-1")
	r.Register("alpha", "source-2:alpha", "source-2")

	id, _ := r.Resolve("alpha")
	if id != "source-2:alpha" {
		t.Errorf("expected later registration to win, got %q", id)
	}
}

func TestFlushAndReload(t *testing.T) {
	db := newTestDB(t)
	r, _ := New(db, zerolog.Nop())

	r.Register("alpha", "source-1:alpha", "source-1")
	r.Register("beta", "source-1:beta", "source-1")
	if err := r.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// Update after flush; only the dirty entry should be written again.
	r.Register("alpha", "source-2:alpha", "source-2")
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reloaded, err := New(db, zerolog.Nop())
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Len() != 2 {
		t.Fatalf("expected 2 entries after reload, got %d", reloaded.Len())
	}
	id, _ := reloaded.Resolve("alpha")
	if id != "source-2:alpha" {
		t.Errorf("expected updated mapping persisted, got %q", id)
	}
}

func TestSnapshot(t *testing.T) {
	db := newTestDB(t)
	r, _ := New(db, zerolog.Nop())

	r.Register("alpha", "source-1:alpha", "source-1")
	snap := r.Snapshot()
	if snap["alpha"] != "source-1:alpha" {
		t.Errorf("unexpected snapshot: %v", snap)
	}

	// Snapshot must be detached from the live map.
	snap["alpha"] = "mutated"
	if id, _ := r.Resolve("alpha"); id != "source-1:alpha" {
		t.Error("snapshot mutation leaked into registry")
	}
}
