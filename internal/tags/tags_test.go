package tags_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/patternforge/patternforge/internal/tags"
	"github.com/patternforge/patternforge/pkg/models"
)

const tagsDoc = `
domain:
  - id: security
    name: Security
    description: Security analysis and hardening
  - id: writing
    name: Writing
type:
  - id: analysis
    name: Analysis
use_case:
  - id: code-review
    name: Code Review
`

func TestParse(t *testing.T) {
	r, err := tags.Parse([]byte(tagsDoc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if r.Len() != 4 {
		t.Errorf("Len() = %d, want 4", r.Len())
	}

	def, ok := r.Get("security")
	if !ok {
		t.Fatal("Get(security) not found")
	}
	if def.Category != models.TagCategoryDomain {
		t.Errorf("security category = %q, want %q", def.Category, models.TagCategoryDomain)
	}
	if def.Name != "Security" {
		t.Errorf("security name = %q, want Security", def.Name)
	}
}

func TestParse_ByCategory(t *testing.T) {
	r, err := tags.Parse([]byte(tagsDoc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	byCat := r.ByCategory()
	if got := len(byCat[models.TagCategoryDomain]); got != 2 {
		t.Errorf("domain tags = %d, want 2", got)
	}
	if got := len(byCat[models.TagCategoryUseCase]); got != 1 {
		t.Errorf("use_case tags = %d, want 1", got)
	}

	// Sorted by id within a category
	domain := byCat[models.TagCategoryDomain]
	if domain[0].ID != "security" || domain[1].ID != "writing" {
		t.Errorf("domain order = [%s %s], want [security writing]", domain[0].ID, domain[1].ID)
	}
}

func TestParse_UnknownCategory(t *testing.T) {
	_, err := tags.Parse([]byte("flavor:\n  - id: spicy\n"))
	if err == nil {
		t.Fatal("Parse() with unknown category should fail")
	}
}

func TestParse_DuplicateID(t *testing.T) {
	doc := `
domain:
  - id: security
type:
  - id: security
`
	_, err := tags.Parse([]byte(doc))
	if err == nil {
		t.Fatal("Parse() with duplicate tag id should fail")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tags.yaml")
	if err := os.WriteFile(path, []byte(tagsDoc), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := tags.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if _, ok := r.Get("code-review"); !ok {
		t.Error("Get(code-review) not found after LoadFile")
	}
}

func TestEmpty(t *testing.T) {
	r := tags.Empty()
	if r.Len() != 0 {
		t.Errorf("Empty().Len() = %d, want 0", r.Len())
	}
	if _, ok := r.Get("anything"); ok {
		t.Error("Empty().Get() should miss")
	}
}
