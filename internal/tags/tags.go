// Package tags provides the tag registry: a read-only lookup table of
// categorized labels (domain, type, use_case) used to filter the pattern
// catalog.
//
// Tags are declared in a single YAML document keyed by category:
//
//	domain:
//	  - id: security
//	    name: Security
//	    description: Security analysis and hardening
//	type:
//	  - id: analysis
//	    name: Analysis
//
// The registry is built once at startup and never mutated afterwards, so
// it is safe for concurrent reads without locking.
package tags

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/patternforge/patternforge/pkg/models"
)

// Registry is an immutable category → tag lookup table.
type Registry struct {
	byCategory map[models.TagCategory][]models.TagDefinition
	byID       map[string]models.TagDefinition
}

// knownCategories are the accepted top-level keys of the tags document.
var knownCategories = map[models.TagCategory]bool{
	models.TagCategoryDomain:  true,
	models.TagCategoryType:    true,
	models.TagCategoryUseCase: true,
}

// LoadFile reads and parses the tags document at path.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tags file: %w", err)
	}
	return Parse(raw)
}

// Parse builds a Registry from raw YAML content.
func Parse(raw []byte) (*Registry, error) {
	var doc map[string][]models.TagDefinition
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse tags document: %w", err)
	}

	r := &Registry{
		byCategory: make(map[models.TagCategory][]models.TagDefinition),
		byID:       make(map[string]models.TagDefinition),
	}
	for cat, defs := range doc {
		category := models.TagCategory(strings.ToLower(cat))
		if !knownCategories[category] {
			return nil, fmt.Errorf("unknown tag category %q", cat)
		}
		for _, def := range defs {
			if def.ID == "" {
				return nil, fmt.Errorf("tag without id in category %q", cat)
			}
			if _, dup := r.byID[def.ID]; dup {
				return nil, fmt.Errorf("duplicate tag id %q", def.ID)
			}
			def.Category = category
			r.byCategory[category] = append(r.byCategory[category], def)
			r.byID[def.ID] = def
		}
	}
	for cat := range r.byCategory {
		defs := r.byCategory[cat]
		sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	}
	return r, nil
}

// Empty returns a registry with no tags. Patterns may still carry tag ids
// the registry does not know; filtering works on the flattened id set.
func Empty() *Registry {
	return &Registry{
		byCategory: make(map[models.TagCategory][]models.TagDefinition),
		byID:       make(map[string]models.TagDefinition),
	}
}

// Get returns the tag definition for an id.
func (r *Registry) Get(id string) (models.TagDefinition, bool) {
	def, ok := r.byID[strings.ToLower(id)]
	return def, ok
}

// ByCategory returns all tags grouped by category, each slice sorted by id.
func (r *Registry) ByCategory() map[models.TagCategory][]models.TagDefinition {
	out := make(map[models.TagCategory][]models.TagDefinition, len(r.byCategory))
	for cat, defs := range r.byCategory {
		out[cat] = append([]models.TagDefinition(nil), defs...)
	}
	return out
}

// All returns every tag definition across categories, sorted by id.
func (r *Registry) All() []models.TagDefinition {
	var all []models.TagDefinition
	for _, defs := range r.byCategory {
		all = append(all, defs...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// Len returns the number of registered tags.
func (r *Registry) Len() int {
	return len(r.byID)
}
