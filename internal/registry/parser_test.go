package registry

import (
	"strings"
	"testing"

	"github.com/patternforge/patternforge/pkg/models"
)

const shellCommandDoc = `# Pattern: shell_command
Name: Shell Command Helper
Tags: devops, generation

## Purpose
Generate a safe shell command for the user's stated task.

## Functionality
* Produce exactly one command
* Explain what the command does
* Never produce destructive commands without a warning

## Inputs
` + "```yaml" + `
- name: task
  description: What the user wants to accomplish
  type: text
  required: true
- name: shell
  type: select
  options: [bash, zsh, fish]
  default: bash
- name: strictness
  type: number
  min: 0
  max: 10
  default: 5
` + "```" + `

## Outputs
` + "```yaml" + `
- name: command
  description: The shell command
  type: text
  required: true
  action: execute
- name: explanation
  description: What the command does
  type: markdown
  required: true
  action: display
` + "```" + `

## Model Configuration
` + "```yaml" + `
provider: openrouter
model_name: anthropic/claude-3.5-sonnet
temperature: 0.2
max_tokens: 1200
custom_parameters:
  top_p: 0.9
` + "```" + `
`

// ─── Round-trip fidelity ─────────────────────────────────────

func TestParseDocument(t *testing.T) {
	def, lerr := ParseDocument("shell_command.md", []byte(shellCommandDoc))
	if lerr != nil {
		t.Fatalf("ParseDocument() error = %v", lerr)
	}

	if def.ID != "shell_command" {
		t.Errorf("ID = %q, want shell_command", def.ID)
	}
	if def.Name != "Shell Command Helper" {
		t.Errorf("Name = %q, want Shell Command Helper", def.Name)
	}
	if len(def.Tags) != 2 || def.Tags[0] != "devops" || def.Tags[1] != "generation" {
		t.Errorf("Tags = %v, want [devops generation]", def.Tags)
	}
	if !strings.Contains(def.Purpose, "safe shell command") {
		t.Errorf("Purpose = %q, missing expected text", def.Purpose)
	}
	if len(def.Functionality) != 3 {
		t.Fatalf("Functionality has %d directives, want 3", len(def.Functionality))
	}
	if def.Functionality[0] != "Produce exactly one command" {
		t.Errorf("Functionality[0] = %q", def.Functionality[0])
	}

	if len(def.Inputs) != 3 {
		t.Fatalf("Inputs has %d entries, want 3", len(def.Inputs))
	}
	task := def.Inputs[0]
	if task.Name != "task" || task.Type != models.InputText || !task.Required {
		t.Errorf("Inputs[0] = %+v, want required text input named task", task)
	}
	shell := def.Inputs[1]
	if shell.Type != models.InputSelect || len(shell.Options) != 3 || shell.Default != "bash" {
		t.Errorf("Inputs[1] = %+v, want select with 3 options and default bash", shell)
	}
	strictness := def.Inputs[2]
	if strictness.Min == nil || *strictness.Min != 0 || strictness.Max == nil || *strictness.Max != 10 {
		t.Errorf("Inputs[2] bounds = (%v, %v), want (0, 10)", strictness.Min, strictness.Max)
	}

	if len(def.Outputs) != 2 {
		t.Fatalf("Outputs has %d entries, want 2", len(def.Outputs))
	}
	if def.Outputs[0].Action != models.ActionExecute {
		t.Errorf("Outputs[0].Action = %q, want execute", def.Outputs[0].Action)
	}
	if def.Outputs[1].Type != models.OutputMarkdown {
		t.Errorf("Outputs[1].Type = %q, want markdown", def.Outputs[1].Type)
	}

	if def.Model.Provider != "openrouter" {
		t.Errorf("Model.Provider = %q, want openrouter", def.Model.Provider)
	}
	if def.Model.Temperature == nil || *def.Model.Temperature != 0.2 {
		t.Errorf("Model.Temperature = %v, want 0.2", def.Model.Temperature)
	}
	if def.Model.MaxTokens == nil || *def.Model.MaxTokens != 1200 {
		t.Errorf("Model.MaxTokens = %v, want 1200", def.Model.MaxTokens)
	}
	if def.Model.CustomParameters["top_p"] != 0.9 {
		t.Errorf("Model.CustomParameters[top_p] = %v, want 0.9", def.Model.CustomParameters["top_p"])
	}
}

func TestParseDocument_InputGroups(t *testing.T) {
	doc := `# Pattern: summarize_source
Tags: writing

## Purpose
Summarize content from a URL or a file.

## Functionality
* Summarize the provided source

## Inputs
` + "```yaml" + `
- name: url
  type: text
  group: source
- name: file
  type: pdf_file
  group: source
` + "```" + `

## Input Groups
` + "```yaml" + `
- name: source
  description: exactly one of url or file
  required_inputs: 1
` + "```" + `

## Outputs
` + "```yaml" + `
- name: summary
  type: markdown
  required: true
` + "```" + `
`
	def, lerr := ParseDocument("summarize_source.md", []byte(doc))
	if lerr != nil {
		t.Fatalf("ParseDocument() error = %v", lerr)
	}
	if len(def.InputGroups) != 1 {
		t.Fatalf("InputGroups has %d entries, want 1", len(def.InputGroups))
	}
	g := def.InputGroups[0]
	if g.Name != "source" || g.RequiredInputs != 1 {
		t.Errorf("InputGroups[0] = %+v, want source with required_inputs=1", g)
	}
	if members := def.GroupMembers("source"); len(members) != 2 {
		t.Errorf("GroupMembers(source) = %d, want 2", len(members))
	}
	// Name defaults to the id when no Name line is present
	if def.Name != "summarize_source" {
		t.Errorf("Name = %q, want id fallback", def.Name)
	}
}

// ─── Load-time validation failures ───────────────────────────

func TestParseDocument_Failures(t *testing.T) {
	base := func(inputs, groups, outputs string) string {
		doc := `# Pattern: broken

## Purpose
Testing.

## Functionality
* Do a thing
`
		if inputs != "" {
			doc += "\n## Inputs\n```yaml\n" + inputs + "```\n"
		}
		if groups != "" {
			doc += "\n## Input Groups\n```yaml\n" + groups + "```\n"
		}
		doc += "\n## Outputs\n```yaml\n" + outputs + "```\n"
		return doc
	}

	tests := []struct {
		name   string
		doc    string
		reason string
	}{
		{
			name:   "duplicate input name",
			doc:    base("- name: a\n  type: text\n- name: a\n  type: text\n", "", "- name: out\n  type: text\n"),
			reason: "duplicate input name",
		},
		{
			name:   "duplicate output name",
			doc:    base("", "", "- name: out\n  type: text\n- name: out\n  type: json\n"),
			reason: "duplicate output name",
		},
		{
			name:   "dangling group reference",
			doc:    base("- name: a\n  type: text\n  group: nope\n", "", "- name: out\n  type: text\n"),
			reason: "undeclared group",
		},
		{
			name:   "select default not in options",
			doc:    base("- name: mode\n  type: select\n  options: [fast, slow]\n  default: warp\n", "", "- name: out\n  type: text\n"),
			reason: "not in options",
		},
		{
			name: "required_inputs exceeds members",
			doc: base("- name: a\n  type: text\n  group: g\n", "- name: g\n  required_inputs: 2\n",
				"- name: out\n  type: text\n"),
			reason: "requires 2 inputs but has 1",
		},
		{
			name:   "unknown input type",
			doc:    base("- name: a\n  type: hologram\n", "", "- name: out\n  type: text\n"),
			reason: "unknown type",
		},
		{
			name:   "schema property with unknown type",
			doc:    base("", "", "- name: report\n  type: json\n  schema:\n    severity: string\n    count: int\n"),
			reason: `schema property "count" has unknown type "int"`,
		},
		{
			name:   "missing purpose",
			doc:    "# Pattern: broken\n\n## Functionality\n* x\n\n## Outputs\n```yaml\n- name: out\n  type: text\n```\n",
			reason: "missing required section: Purpose",
		},
		{
			name:   "missing outputs",
			doc:    "# Pattern: broken\n\n## Purpose\nX.\n\n## Functionality\n* x\n",
			reason: "missing required section: Outputs",
		},
		{
			name:   "missing title",
			doc:    "## Purpose\nX.\n",
			reason: "missing title line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, lerr := ParseDocument("broken.md", []byte(tt.doc))
			if lerr == nil {
				t.Fatal("ParseDocument() should fail")
			}
			if !strings.Contains(lerr.Reason, tt.reason) {
				t.Errorf("Reason = %q, want substring %q", lerr.Reason, tt.reason)
			}
		})
	}
}

func TestParseDocument_WriteActionRequiresFilename(t *testing.T) {
	doc := `# Pattern: writer

## Purpose
X.

## Functionality
* x

## Outputs
` + "```yaml" + `
- name: page
  type: html
  action: write
` + "```" + `
`
	_, lerr := ParseDocument("writer.md", []byte(doc))
	if lerr == nil || !strings.Contains(lerr.Reason, "write_to_file") {
		t.Errorf("expected write_to_file error, got %v", lerr)
	}
}
