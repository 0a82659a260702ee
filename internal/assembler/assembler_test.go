package assembler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/patternforge/patternforge/pkg/models"
)

type stubResolver struct {
	seen []models.AttachmentRef
}

func (s *stubResolver) Materialize(_ context.Context, ref models.AttachmentRef) (models.Attachment, error) {
	s.seen = append(s.seen, ref)
	return models.Attachment{Name: ref.Name, Kind: ref.Kind, URL: ref.Ref}, nil
}

func floatPtr(v float64) *float64 { return &v }

func basePattern() *models.PatternDefinition {
	return &models.PatternDefinition{
		ID:      "shell_command",
		Purpose: "Generate a safe shell command.",
		Functionality: []string{
			"Produce exactly one command",
			"Explain what the command does",
		},
		Inputs: []models.InputSpec{
			{Name: "task", Type: models.InputText, Required: true},
		},
		Outputs: []models.OutputSpec{
			{Name: "command", Type: models.OutputText, Required: true, Action: models.ActionExecute},
			{Name: "explanation", Type: models.OutputMarkdown, Required: true},
		},
		Model: models.ModelConfig{
			Provider:    "openrouter",
			ModelName:   "anthropic/claude-3.5-sonnet",
			Temperature: floatPtr(0.2),
		},
	}
}

func TestAssemble_InstructionOrder(t *testing.T) {
	a := New(nil)
	resolved := &models.ResolvedInputs{Values: map[string]any{"task": "list open ports"}}

	payload, err := a.Assemble(context.Background(), basePattern(), resolved, nil, nil)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if payload.PatternID != "shell_command" {
		t.Errorf("PatternID = %q", payload.PatternID)
	}
	if len(payload.Instructions) != 4 {
		t.Fatalf("Instructions = %d blocks, want 4 (purpose, directives, inputs, format)", len(payload.Instructions))
	}
	if payload.Instructions[0] != "Generate a safe shell command." {
		t.Errorf("Instructions[0] = %q", payload.Instructions[0])
	}
	if !strings.Contains(payload.Instructions[1], "Produce exactly one command") {
		t.Errorf("Instructions[1] missing directive: %q", payload.Instructions[1])
	}
	if !strings.Contains(payload.Instructions[2], "task: list open ports") {
		t.Errorf("Instructions[2] missing input: %q", payload.Instructions[2])
	}
	if !strings.Contains(payload.Instructions[3], `"command"`) ||
		!strings.Contains(payload.Instructions[3], `"explanation"`) {
		t.Errorf("Instructions[3] missing output keys: %q", payload.Instructions[3])
	}
	if payload.Variables["task"] != "list open ports" {
		t.Errorf("Variables = %v", payload.Variables)
	}
}

func TestAssemble_ModelOverridePrecedence(t *testing.T) {
	a := New(nil)
	override := &models.ModelConfig{ModelName: "openai/gpt-4o", Temperature: floatPtr(0.9)}

	payload, err := a.Assemble(context.Background(), basePattern(),
		&models.ResolvedInputs{Values: map[string]any{"task": "x"}}, nil, override)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	cfg := payload.ModelConfig
	if cfg.ModelName != "openai/gpt-4o" {
		t.Errorf("ModelName = %q, want override", cfg.ModelName)
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.9 {
		t.Errorf("Temperature = %v, want override 0.9", cfg.Temperature)
	}
	// Fields the override leaves unset keep the pattern's values.
	if cfg.Provider != "openrouter" {
		t.Errorf("Provider = %q, want pattern value", cfg.Provider)
	}
}

func TestAssemble_FormatInstructionsOverride(t *testing.T) {
	p := basePattern()
	p.Model.FormatInstructions = "Reply in pirate speak."

	a := New(nil)
	payload, err := a.Assemble(context.Background(), p,
		&models.ResolvedInputs{Values: map[string]any{"task": "x"}}, nil, nil)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	last := payload.Instructions[len(payload.Instructions)-1]
	if last != "Reply in pirate speak." {
		t.Errorf("format block = %q, want the custom instructions verbatim", last)
	}
}

func TestAssemble_AttachmentInputs(t *testing.T) {
	p := &models.PatternDefinition{
		ID:      "describe_image",
		Purpose: "Describe the image.",
		Inputs: []models.InputSpec{
			{Name: "image", Type: models.InputImageURL, Required: true},
			{Name: "report", Type: models.InputPDFFile},
		},
		Outputs: []models.OutputSpec{{Name: "description", Type: models.OutputText, Required: true}},
	}
	stub := &stubResolver{}
	a := New(stub)

	payload, err := a.Assemble(context.Background(), p, &models.ResolvedInputs{Values: map[string]any{
		"image":  "https://example.com/cat.png",
		"report": "notes.pdf",
	}}, nil, nil)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	if len(payload.Attachments) != 2 {
		t.Fatalf("Attachments = %d, want 2", len(payload.Attachments))
	}
	if stub.seen[0].Kind != models.MediaImage || stub.seen[1].Kind != models.MediaPDF {
		t.Errorf("kinds = %v %v, want image then pdf", stub.seen[0].Kind, stub.seen[1].Kind)
	}
	// Attachment values never leak into prompt variables.
	if _, ok := payload.Variables["image"]; ok {
		t.Error("image should not appear in Variables")
	}
}

func TestAssemble_AttachmentWithoutResolver(t *testing.T) {
	p := &models.PatternDefinition{
		ID:      "describe_image",
		Purpose: "Describe.",
		Inputs:  []models.InputSpec{{Name: "image", Type: models.InputImageURL, Required: true}},
		Outputs: []models.OutputSpec{{Name: "description", Type: models.OutputText}},
	}
	_, err := New(nil).Assemble(context.Background(), p,
		&models.ResolvedInputs{Values: map[string]any{"image": "https://example.com/a.png"}}, nil, nil)
	if err == nil {
		t.Fatal("Assemble() should fail without an attachment resolver")
	}
}

func TestGeneratedFormatInstructions_SingleJSONOutput(t *testing.T) {
	got := GeneratedFormatInstructions([]models.OutputSpec{{
		Name:     "analysis",
		Type:     models.OutputJSON,
		Required: true,
		Schema:   map[string]string{"severity": "string", "issues": "array"},
	}})
	if !strings.Contains(got, "single valid JSON document") {
		t.Errorf("missing bare-JSON demand: %q", got)
	}
	if !strings.Contains(got, "code fences") {
		t.Errorf("missing fence prohibition: %q", got)
	}
	if !strings.Contains(got, `"severity"`) || !strings.Contains(got, `"issues"`) {
		t.Errorf("missing schema properties: %q", got)
	}
}

func TestTrimHistory(t *testing.T) {
	turn := func(content string) models.Turn {
		return models.Turn{Role: models.RoleUser, Content: content, Timestamp: time.Now()}
	}
	history := []models.Turn{turn("aaaaa"), turn("bbbbb"), turn("ccccc")}

	got := trimHistory(history, 10)
	if len(got) != 2 || got[0].Content != "bbbbb" {
		t.Errorf("trimHistory(10) = %d turns starting %q, want 2 starting bbbbb", len(got), got[0].Content)
	}

	if got := trimHistory(history, 0); len(got) != 3 {
		t.Errorf("trimHistory(0) = %d turns, want all 3", len(got))
	}
}
