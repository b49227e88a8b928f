package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleDefinitions = `
sources:
  - name: source-2
    priority: 2
    full_first_page: true
  - name: source-1
    priority: 1
    primary_tier: true
    rate_per_second: 2
    burst: 4

views:
  - id: trending-week
    time_window: 168h
    sort: rating

boilerplate_patterns:
  - '(?i)visit our site'
`

func writeDefinitions(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write definitions: %v", err)
	}
	return path
}

func TestLoadDefinitionsSortsByPriority(t *testing.T) {
	defs, err := LoadDefinitions(writeDefinitions(t, sampleDefinitions))
	if err != nil {
		t.Fatalf("LoadDefinitions failed: %v", err)
	}

	order := defs.PriorityOrder()
	if len(order) != 2 || order[0] != "source-1" || order[1] != "source-2" {
		t.Errorf("unexpected priority order: %v", order)
	}

	tier := defs.PrimaryTier()
	if !tier["source-1"] || tier["source-2"] {
		t.Errorf("unexpected primary tier: %v", tier)
	}

	def, ok := defs.Definition("source-2")
	if !ok || !def.FullFirstPage {
		t.Errorf("unexpected definition: %+v ok=%v", def, ok)
	}

	if len(defs.Views) != 1 || defs.Views[0].TimeWindow != Duration(168*time.Hour) {
		t.Errorf("unexpected views: %+v", defs.Views)
	}
	if len(defs.BoilerplatePatterns) != 1 {
		t.Errorf("unexpected patterns: %v", defs.BoilerplatePatterns)
	}
}

func TestLoadDefinitionsRejectsEmpty(t *testing.T) {
	if _, err := LoadDefinitions(writeDefinitions(t, "sources: []\n")); err == nil {
		t.Fatal("expected error for empty source list")
	}
}

func TestLoadDefinitionsMissingFile(t *testing.T) {
	if _, err := LoadDefinitions(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
