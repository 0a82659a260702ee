package resolver

import (
	"errors"
	"testing"

	"github.com/patternforge/patternforge/pkg/models"
)

func floatPtr(v float64) *float64 { return &v }

func shellPattern() *models.PatternDefinition {
	return &models.PatternDefinition{
		ID:   "shell_command",
		Name: "Shell Command Helper",
		Inputs: []models.InputSpec{
			{Name: "task", Type: models.InputText, Required: true},
			{Name: "shell", Type: models.InputSelect, Options: []string{"bash", "zsh", "fish"}, Default: "bash"},
			{Name: "strictness", Type: models.InputNumber, Min: floatPtr(0), Max: floatPtr(10)},
		},
	}
}

func sourcePattern() *models.PatternDefinition {
	return &models.PatternDefinition{
		ID: "summarize_source",
		Inputs: []models.InputSpec{
			{Name: "url", Type: models.InputText, Group: "source"},
			{Name: "file", Type: models.InputPDFFile, Group: "source"},
		},
		InputGroups: []models.InputGroup{
			{Name: "source", RequiredInputs: 1},
		},
	}
}

func TestResolve_DefaultsAndOmissions(t *testing.T) {
	got, err := Resolve(shellPattern(), map[string]any{"task": "list open ports"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Values["task"] != "list open ports" {
		t.Errorf("task = %v", got.Values["task"])
	}
	if got.Values["shell"] != "bash" {
		t.Errorf("shell = %v, want default bash", got.Values["shell"])
	}
	// No default, not required: omitted with an explicit marker.
	if _, ok := got.Values["strictness"]; ok {
		t.Error("strictness should not be in Values")
	}
	if !got.IsOmitted("strictness") {
		t.Error("strictness should be marked omitted")
	}
}

func TestResolve_CollectsAllViolations(t *testing.T) {
	p := shellPattern()
	_, err := Resolve(p, map[string]any{
		"shell":      "powershell",
		"strictness": 42,
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Resolve() error = %v, want *ValidationError", err)
	}
	if verr.PatternID != "shell_command" {
		t.Errorf("PatternID = %q", verr.PatternID)
	}
	// Missing required task, bad select option, out-of-range number:
	// all three in one pass.
	if len(verr.Fields) != 3 {
		t.Fatalf("Fields = %d violations %v, want 3", len(verr.Fields), verr.Fields)
	}
	kinds := map[string]ViolationKind{}
	for _, f := range verr.Fields {
		kinds[f.Field] = f.Kind
	}
	if kinds["task"] != MissingRequired {
		t.Errorf("task kind = %q, want missing_required", kinds["task"])
	}
	if kinds["shell"] != InvalidOption {
		t.Errorf("shell kind = %q, want invalid_option", kinds["shell"])
	}
	if kinds["strictness"] != OutOfRange {
		t.Errorf("strictness kind = %q, want out_of_range", kinds["strictness"])
	}
}

func TestResolve_NumberCoercion(t *testing.T) {
	got, err := Resolve(shellPattern(), map[string]any{
		"task":       "x",
		"strictness": "7",
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Values["strictness"] != 7.0 {
		t.Errorf("strictness = %v (%T), want 7", got.Values["strictness"], got.Values["strictness"])
	}
}

func TestResolve_JSONInput(t *testing.T) {
	p := &models.PatternDefinition{
		ID: "jsonpat",
		Inputs: []models.InputSpec{
			{Name: "doc", Type: models.InputJSON, Required: true},
		},
	}

	got, err := Resolve(p, map[string]any{"doc": `{"a": 1}`})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	m, ok := got.Values["doc"].(map[string]any)
	if !ok || m["a"] != 1.0 {
		t.Errorf("doc = %v, want parsed object", got.Values["doc"])
	}

	_, err = Resolve(p, map[string]any{"doc": `{"a": `})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields[0].Kind != InvalidJSON {
		t.Errorf("malformed JSON: error = %v, want invalid_json violation", err)
	}
}

func TestResolve_UnknownInputRejected(t *testing.T) {
	_, err := Resolve(shellPattern(), map[string]any{"task": "x", "tsak": "typo"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Resolve() error = %v, want *ValidationError", err)
	}
	if len(verr.Fields) != 1 || verr.Fields[0].Kind != UnknownInput || verr.Fields[0].Field != "tsak" {
		t.Errorf("Fields = %v, want single unknown_input for tsak", verr.Fields)
	}
}

// ─── Input group count constraint ────────────────────────────

func TestResolve_GroupExactCount(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]any
		ok       bool
		expected int
		actual   int
	}{
		{name: "url only", raw: map[string]any{"url": "https://example.com"}, ok: true},
		{name: "file only", raw: map[string]any{"file": "report.pdf"}, ok: true},
		{name: "neither", raw: map[string]any{}, expected: 1, actual: 0},
		{name: "both", raw: map[string]any{"url": "https://example.com", "file": "report.pdf"}, expected: 1, actual: 2},
		{name: "blank member counts as absent", raw: map[string]any{"url": "  ", "file": "report.pdf"}, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(sourcePattern(), tt.raw)
			if tt.ok {
				if err != nil {
					t.Fatalf("Resolve() error = %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Resolve() error = %v, want *ValidationError", err)
			}
			if len(verr.Groups) != 1 {
				t.Fatalf("Groups = %v, want one violation", verr.Groups)
			}
			g := verr.Groups[0]
			if g.Group != "source" || g.Expected != tt.expected || g.Actual != tt.actual {
				t.Errorf("violation = %+v, want source expected=%d actual=%d", g, tt.expected, tt.actual)
			}
			if got != nil {
				t.Error("resolved inputs should be nil on failure")
			}
		})
	}
}

func TestResolve_GroupMembersNotIndividuallyRequired(t *testing.T) {
	got, err := Resolve(sourcePattern(), map[string]any{"url": "https://example.com"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !got.IsOmitted("file") {
		t.Error("unused group member should be marked omitted")
	}
}

func TestResolve_AttachmentRefs(t *testing.T) {
	p := &models.PatternDefinition{
		ID: "describe_image",
		Inputs: []models.InputSpec{
			{Name: "image", Type: models.InputImageURL, Required: true},
		},
	}

	if _, err := Resolve(p, map[string]any{"image": "https://example.com/cat.png"}); err != nil {
		t.Errorf("valid URL rejected: %v", err)
	}

	_, err := Resolve(p, map[string]any{"image": "ftp://example.com/cat.png"})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields[0].Kind != InvalidRef {
		t.Errorf("non-http URL: error = %v, want invalid_ref", err)
	}
}

func TestResolve_IgnoreUndefined(t *testing.T) {
	p := &models.PatternDefinition{
		ID: "loose",
		Inputs: []models.InputSpec{
			{Name: "context", Type: models.InputText, Required: true, IgnoreUndefined: true},
		},
	}
	got, err := Resolve(p, map[string]any{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !got.IsOmitted("context") {
		t.Error("context should be marked omitted")
	}
}
