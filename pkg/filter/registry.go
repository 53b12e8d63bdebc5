// Package filter maps statement ids to a tenant-rewrite exclusion flag.
package filter

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Registry is an immutable statement id to exclusion flag lookup. The zero
// value excludes nothing. It is safe for concurrent reads.
type Registry struct {
	entries map[string]bool
	suffix  string
}

// IsExcluded reports whether statementID is excluded from tenant rewriting.
// A single trailing occurrence of the configured suffix is stripped before the
// lookup. Unknown ids are not excluded.
func (r *Registry) IsExcluded(statementID string) bool {
	if r == nil || len(r.entries) == 0 {
		return false
	}
	id := statementID
	if r.suffix != "" {
		id = strings.TrimSuffix(id, r.suffix)
	}
	return r.entries[id]
}

// Len returns the number of registered statement ids.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Builder collects exclusion markers during startup.
type Builder struct {
	entries map[string]bool
	suffix  string
}

// NewBuilder creates a Builder whose registry strips suffix from incoming ids.
func NewBuilder(suffix string) *Builder {
	return &Builder{entries: make(map[string]bool), suffix: suffix}
}

// Mark records the exclusion flag for a fully qualified statement id.
// A later Mark for the same id wins.
func (b *Builder) Mark(statementID string, exclude bool) *Builder {
	b.entries[statementID] = exclude
	return b
}

// Exclude is Mark(statementID, true).
func (b *Builder) Exclude(statementID string) *Builder {
	return b.Mark(statementID, true)
}

// Build snapshots the collected markers into a Registry. Further calls on
// the Builder do not affect it.
func (b *Builder) Build() *Registry {
	entries := make(map[string]bool, len(b.entries))
	for id, exclude := range b.entries {
		entries[id] = exclude
	}
	return &Registry{entries: entries, suffix: b.suffix}
}

// fileFormat is the on-disk exclusion document:
//
//	statements:
//	  orders.CountAll: true
//	  orders.List: false
type fileFormat struct {
	Statements map[string]bool `yaml:"statements"`
}

// LoadFile reads exclusion markers from a YAML file into b.
func (b *Builder) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read exclusions file: %w", err)
	}
	return b.LoadYAML(data)
}

// LoadYAML reads exclusion markers from a YAML document into b.
func (b *Builder) LoadYAML(data []byte) error {
	var doc fileFormat
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse exclusions: %w", err)
	}
	for id, exclude := range doc.Statements {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("parse exclusions: empty statement id")
		}
		b.Mark(id, exclude)
	}
	return nil
}
