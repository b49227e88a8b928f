package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// SourceDefinition describes one upstream source: its trust level, rating
// semantics and fetch limits. Definitions are data, not code, so new sources
// can be reprioritized without a rebuild.
type SourceDefinition struct {
	Name          string  `yaml:"name"`
	Priority      int     `yaml:"priority"` // lower = consulted first
	PrimaryTier   bool    `yaml:"primary_tier"`
	Host          string  `yaml:"host"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
	// FullFirstPage disables the incremental-refresh early stop for sources
	// whose "recent" ordering is not reliably monotonic.
	FullFirstPage bool `yaml:"full_first_page"`
}

// Duration parses yaml duration strings ("168h") into a time.Duration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// ViewDefinition describes one catalog view served to clients.
type ViewDefinition struct {
	ID         string   `yaml:"id"`
	Genre      string   `yaml:"genre"`
	TimeWindow Duration `yaml:"time_window"`
	Sort       string   `yaml:"sort"`
}

// Definitions is the parsed source definitions file.
type Definitions struct {
	Sources []SourceDefinition `yaml:"sources"`
	Views   []ViewDefinition   `yaml:"views"`
	// BoilerplatePatterns extends the built-in promotional description
	// patterns. Entries are Go regular expressions.
	BoilerplatePatterns []string `yaml:"boilerplate_patterns"`
}

// LoadDefinitions parses a source definitions YAML file.
func LoadDefinitions(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source definitions: %w", err)
	}

	defs := &Definitions{}
	if err := yaml.Unmarshal(data, defs); err != nil {
		return nil, fmt.Errorf("failed to parse source definitions: %w", err)
	}

	if len(defs.Sources) == 0 {
		return nil, fmt.Errorf("source definitions %s contain no sources", path)
	}

	sort.SliceStable(defs.Sources, func(i, j int) bool {
		return defs.Sources[i].Priority < defs.Sources[j].Priority
	})

	return defs, nil
}

// PriorityOrder returns source names ordered by priority.
func (d *Definitions) PriorityOrder() []string {
	names := make([]string, 0, len(d.Sources))
	for _, s := range d.Sources {
		names = append(names, s.Name)
	}
	return names
}

// PrimaryTier returns the set of primary-trust source names.
func (d *Definitions) PrimaryTier() map[string]bool {
	tier := make(map[string]bool)
	for _, s := range d.Sources {
		if s.PrimaryTier {
			tier[s.Name] = true
		}
	}
	return tier
}

// Definition returns the definition for a named source.
func (d *Definitions) Definition(name string) (SourceDefinition, bool) {
	for _, s := range d.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceDefinition{}, false
}
