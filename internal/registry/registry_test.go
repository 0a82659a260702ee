package registry

import (
	"errors"
	"testing"
)

// mapReader serves documents from an in-memory map keyed by directory.
type mapReader map[string][]Document

func (m mapReader) ReadAll(dir string) ([]Document, error) {
	return m[dir], nil
}

func patternDoc(id, tags string) []byte {
	doc := "# Pattern: " + id + "\n"
	if tags != "" {
		doc += "Tags: " + tags + "\n"
	}
	doc += `
## Purpose
Purpose of ` + id + `.

## Functionality
* Do the thing

## Outputs
` + "```yaml" + `
- name: result
  type: text
  required: true
` + "```" + `
`
	return []byte(doc)
}

func TestLoad_MergePrivateWins(t *testing.T) {
	reader := mapReader{
		"builtin": {
			{Path: "builtin/alpha.md", Content: patternDoc("alpha", "security")},
			{Path: "builtin/beta.md", Content: patternDoc("beta", "writing")},
		},
		"private": {
			{Path: "private/alpha.md", Content: patternDoc("alpha", "custom")},
		},
	}

	r, err := Load(reader, "builtin", "private")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}

	alpha, err := r.Get("alpha")
	if err != nil {
		t.Fatalf("Get(alpha) error = %v", err)
	}
	// Replacement is total, not a field merge: the private tags win.
	if len(alpha.Tags) != 1 || alpha.Tags[0] != "custom" {
		t.Errorf("alpha.Tags = %v, want [custom]", alpha.Tags)
	}
	if alpha.Source != "private" {
		t.Errorf("alpha.Source = %q, want private", alpha.Source)
	}
}

func TestGet_NotFound(t *testing.T) {
	r, _ := Load(mapReader{}, "builtin", "")
	_, err := r.Get("ghost")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Get(ghost) error = %v, want *NotFoundError", err)
	}
	if nf.ID != "ghost" {
		t.Errorf("NotFoundError.ID = %q, want ghost", nf.ID)
	}
}

func TestLoad_BadPatternIsolated(t *testing.T) {
	reader := mapReader{
		"builtin": {
			{Path: "builtin/good.md", Content: patternDoc("good", "")},
			{Path: "builtin/bad.md", Content: []byte("# Pattern: bad\n\n## Purpose\nX.\n")},
		},
	}

	r, err := Load(reader, "builtin", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// The good pattern still serves.
	if _, err := r.Get("good"); err != nil {
		t.Errorf("Get(good) error = %v", err)
	}

	// The bad one surfaces its load error only when requested.
	_, err = r.Get("bad")
	var lerr *LoadError
	if !errors.As(err, &lerr) {
		t.Fatalf("Get(bad) error = %v, want *LoadError", err)
	}
	if lerr.PatternID != "bad" {
		t.Errorf("LoadError.PatternID = %q, want bad", lerr.PatternID)
	}
}

func TestList_TagFilterUnionSemantics(t *testing.T) {
	reader := mapReader{
		"builtin": {
			{Path: "b/a.md", Content: patternDoc("audit_code", "security, analysis")},
			{Path: "b/b.md", Content: patternDoc("harden_server", "security")},
			{Path: "b/c.md", Content: patternDoc("write_post", "writing")},
		},
	}
	r, err := Load(reader, "builtin", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	all := r.List(nil)
	if len(all) != 3 {
		t.Errorf("List(nil) = %d patterns, want 3", len(all))
	}

	security := r.List([]string{"security"})
	if len(security) != 2 {
		t.Fatalf("List(security) = %d patterns, want 2", len(security))
	}
	for _, s := range security {
		if s.ID == "write_post" {
			t.Error("List(security) should not include write_post")
		}
	}

	// OR across the flattened tag set, regardless of category
	either := r.List([]string{"analysis", "writing"})
	if len(either) != 2 {
		t.Errorf("List(analysis|writing) = %d patterns, want 2", len(either))
	}

	none := r.List([]string{"nonexistent"})
	if len(none) != 0 {
		t.Errorf("List(nonexistent) = %d patterns, want 0", len(none))
	}
}

func TestList_StableOrder(t *testing.T) {
	reader := mapReader{
		"builtin": {
			{Path: "b/z.md", Content: patternDoc("zeta", "")},
			{Path: "b/a.md", Content: patternDoc("alpha", "")},
		},
	}
	r, _ := Load(reader, "builtin", "")
	list := r.List(nil)
	if list[0].ID != "alpha" || list[1].ID != "zeta" {
		t.Errorf("List order = [%s %s], want [alpha zeta]", list[0].ID, list[1].ID)
	}
}

func TestTagsOf(t *testing.T) {
	reader := mapReader{
		"builtin": {{Path: "b/a.md", Content: patternDoc("alpha", "security, analysis")}},
	}
	r, _ := Load(reader, "builtin", "")
	got, err := r.TagsOf("alpha")
	if err != nil {
		t.Fatalf("TagsOf() error = %v", err)
	}
	if len(got) != 2 || got[0] != "security" {
		t.Errorf("TagsOf(alpha) = %v, want [security analysis]", got)
	}
}
