package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/patternforge/patternforge/pkg/models"
)

// Document is one raw pattern source document.
type Document struct {
	Path    string
	Content []byte
}

// SourceReader abstracts how pattern documents are read. The engine ships
// a directory-based reader; tests inject documents directly.
type SourceReader interface {
	ReadAll(dir string) ([]Document, error)
}

// DirReader reads every .md document in a directory (non-recursive).
type DirReader struct{}

// ReadAll implements SourceReader over the local filesystem. A missing
// directory yields an empty document set, not an error: the private
// pattern directory is optional.
func (DirReader) ReadAll(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pattern dir %s: %w", dir, err)
	}

	var docs []Document
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read pattern %s: %w", path, err)
		}
		docs = append(docs, Document{Path: path, Content: raw})
	}
	return docs, nil
}

// Registry is the immutable pattern catalog. It is built once at startup
// and read concurrently without locking thereafter.
type Registry struct {
	patterns map[string]*models.PatternDefinition
	failed   map[string]*LoadError // definitions that failed to load, by id
	ids      []string              // sorted, for stable listings
}

// Load builds a registry from the builtin directory and an optional
// private directory. A private definition with the same id replaces the
// builtin one entirely; this is expected, not an error. Malformed
// documents are recorded and surfaced only when their id is requested.
func Load(reader SourceReader, builtinDir, privateDir string) (*Registry, error) {
	r := &Registry{
		patterns: make(map[string]*models.PatternDefinition),
		failed:   make(map[string]*LoadError),
	}

	if err := r.loadDir(reader, builtinDir, models.SourceBuiltin); err != nil {
		return nil, err
	}
	if privateDir != "" {
		if err := r.loadDir(reader, privateDir, models.SourcePrivate); err != nil {
			return nil, err
		}
	}

	for id := range r.patterns {
		r.ids = append(r.ids, id)
	}
	sort.Strings(r.ids)

	log.Info().
		Int("patterns", len(r.patterns)).
		Int("failed", len(r.failed)).
		Msg("Pattern registry loaded")
	return r, nil
}

func (r *Registry) loadDir(reader SourceReader, dir string, source models.PatternSource) error {
	docs, err := reader.ReadAll(dir)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		def, lerr := ParseDocument(doc.Path, doc.Content)
		if lerr != nil {
			log.Warn().Str("path", doc.Path).Str("reason", lerr.Reason).Msg("Pattern failed to load")
			r.failed[lerr.PatternID] = lerr
			continue
		}
		def.Source = source
		if prev, exists := r.patterns[def.ID]; exists {
			log.Debug().
				Str("pattern", def.ID).
				Str("replaces", string(prev.Source)).
				Msg("Private pattern overrides builtin")
		}
		// A good definition supersedes an earlier failure for the same id.
		delete(r.failed, def.ID)
		r.patterns[def.ID] = def
	}
	return nil
}

// Get returns the definition for id. Unknown ids yield *NotFoundError;
// ids whose document failed to parse yield the original *LoadError.
func (r *Registry) Get(id string) (*models.PatternDefinition, error) {
	if def, ok := r.patterns[id]; ok {
		return def, nil
	}
	if lerr, ok := r.failed[id]; ok {
		return nil, lerr
	}
	return nil, &NotFoundError{ID: id}
}

// List returns pattern summaries, optionally filtered by tags. Filtering
// uses OR semantics over the flattened tag-id set: a pattern matches when
// its tags intersect the query set, regardless of category.
func (r *Registry) List(filterTags []string) []models.PatternSummary {
	var out []models.PatternSummary
	for _, id := range r.ids {
		def := r.patterns[id]
		if len(filterTags) > 0 && !intersects(def.Tags, filterTags) {
			continue
		}
		out = append(out, models.PatternSummary{ID: def.ID, Name: def.Name, Tags: def.Tags})
	}
	return out
}

// TagsOf returns the tag ids of a pattern.
func (r *Registry) TagsOf(id string) ([]string, error) {
	def, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), def.Tags...), nil
}

// Len returns the number of successfully loaded patterns.
func (r *Registry) Len() int {
	return len(r.patterns)
}

func intersects(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}
