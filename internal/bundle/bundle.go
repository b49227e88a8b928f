// Package bundle reads and writes precomputed catalog snapshots. A bundle
// holds fully merged records for every configured view plus the slug
// registry, letting an instance serve a complete catalog with zero upstream
// traffic.
package bundle

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediafuse/mediafuse/internal/cache"
	"github.com/mediafuse/mediafuse/internal/catalog"
	"github.com/mediafuse/mediafuse/internal/record"
)

// FormatVersion is bumped whenever Document's layout changes incompatibly.
const FormatVersion = 2

// Document is the on-disk bundle layout.
type Document struct {
	Version   int       `json:"version"`
	BuildDate time.Time `json:"buildDate"`

	// Providers records which source definitions the bundle was built with,
	// so a mismatched deployment is detectable.
	Providers map[string]ProviderMeta `json:"providers,omitempty"`
	// Catalogs maps view id to its complete merged record set.
	Catalogs map[string][]record.Aggregated `json:"catalogs"`
	// SlugRegistry maps source-native slugs to canonical record ids.
	SlugRegistry map[string]string `json:"slugRegistry,omitempty"`

	Stats Stats `json:"stats"`
}

// ProviderMeta describes one source the bundle was built from.
type ProviderMeta struct {
	Priority    int  `json:"priority"`
	PrimaryTier bool `json:"primaryTier,omitempty"`
}

// Stats summarizes a bundle for logging and sanity checks.
type Stats struct {
	Records int `json:"records"`
	Views   int `json:"views"`
	Slugs   int `json:"slugs"`
}

// Write serializes a document to path as gzipped JSON, going through a temp
// file so a crashed build never leaves a truncated bundle behind.
func Write(doc *Document, path string) error {
	doc.Version = FormatVersion
	if doc.BuildDate.IsZero() {
		doc.BuildDate = time.Now().UTC()
	}
	doc.Stats = computeStats(doc)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create bundle directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create bundle file: %w", err)
	}

	zw := gzip.NewWriter(f)
	enc := json.NewEncoder(zw)
	if err := enc.Encode(doc); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to finish bundle compression: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close bundle file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move bundle into place: %w", err)
	}
	return nil
}

// Load reads a bundle from path.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle compression header: %w", err)
	}
	defer zr.Close()

	doc := &Document{}
	if err := json.NewDecoder(zr).Decode(doc); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	if doc.Version != FormatVersion {
		return nil, fmt.Errorf("bundle format version %d is not supported (want %d)", doc.Version, FormatVersion)
	}
	return doc, nil
}

// Seed installs a loaded bundle into the catalog service and switches the
// cache into bulk mode: with the full dataset resident, per-page disk
// caching is pure overhead.
func Seed(doc *Document, svc *catalog.Service, c *cache.Cache, logger zerolog.Logger) error {
	for view, items := range doc.Catalogs {
		if err := svc.Seed(view, "", items); err != nil {
			return fmt.Errorf("failed to seed view %s: %w", view, err)
		}
	}
	c.SetBulkMode(true)

	logger.Info().
		Int("views", doc.Stats.Views).
		Int("records", doc.Stats.Records).
		Time("built", doc.BuildDate).
		Msg("Bundle loaded, cache switched to bulk mode")
	return nil
}

func computeStats(doc *Document) Stats {
	s := Stats{Views: len(doc.Catalogs), Slugs: len(doc.SlugRegistry)}
	for _, items := range doc.Catalogs {
		s.Records += len(items)
	}
	return s
}
