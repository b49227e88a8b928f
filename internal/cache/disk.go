package cache

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// diskTier persists one JSON file per key under a cache directory. Filenames
// derive from a hash of the key so keys with path separators or unicode stay
// safe on any filesystem. Writes are whole-file replaces; two concurrent
// writers to one key may lose a write, which is acceptable for a best-effort
// cache.
type diskTier struct {
	dir    string
	logger zerolog.Logger
}

func newDiskTier(dir string, logger zerolog.Logger) (*diskTier, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &diskTier{dir: dir, logger: logger}, nil
}

func (d *diskTier) path(key string) string {
	h := fnv.New64a()
	h.Write([]byte(key))
	return filepath.Join(d.dir, fmt.Sprintf("%016x.json", h.Sum64()))
}

// read loads the entry for key. IO and decode failures degrade to a miss.
// Entries past their retention window are removed on sight.
func (d *diskTier) read(key string, now time.Time) (Entry, bool) {
	data, err := os.ReadFile(d.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			d.logger.Warn().Err(err).Str("key", key).Msg("Disk cache read failed, treating as miss")
			diskErrors.WithLabelValues("read").Inc()
		}
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		d.logger.Warn().Err(err).Str("key", key).Msg("Disk cache entry corrupt, removing")
		diskErrors.WithLabelValues("decode").Inc()
		_ = os.Remove(d.path(key))
		return Entry{}, false
	}

	if !entry.Retained(now) {
		_ = os.Remove(d.path(key))
		return Entry{}, false
	}
	return entry, true
}

// write stores the entry. Failures are logged and swallowed; the memory tier
// still holds the value.
func (d *diskTier) write(entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		d.logger.Warn().Err(err).Str("key", entry.Key).Msg("Disk cache encode failed")
		diskErrors.WithLabelValues("encode").Inc()
		return
	}
	if err := os.WriteFile(d.path(entry.Key), data, 0o640); err != nil {
		d.logger.Warn().Err(err).Str("key", entry.Key).Msg("Disk cache write failed")
		diskErrors.WithLabelValues("write").Inc()
	}
}

func (d *diskTier) delete(key string) {
	if err := os.Remove(d.path(key)); err != nil && !os.IsNotExist(err) {
		d.logger.Warn().Err(err).Str("key", key).Msg("Disk cache delete failed")
		diskErrors.WithLabelValues("delete").Inc()
	}
}
