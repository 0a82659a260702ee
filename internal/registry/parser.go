// Package registry loads pattern documents and serves the immutable
// pattern catalog.
//
// A pattern document is markdown with YAML blocks, the wire contract
// between pattern authors and the engine:
//
//	# Pattern: shell_command
//	Name: Shell Command Helper
//	Tags: devops, generation
//
//	## Purpose
//	Generate a safe shell command for the user's task.
//
//	## Functionality
//	* Produce exactly one command
//	* Explain what the command does
//
//	## Inputs
//	```yaml
//	- name: task
//	  type: text
//	  required: true
//	```
//
//	## Input Groups
//	```yaml
//	- name: source
//	  required_inputs: 1
//	```
//
//	## Outputs
//	```yaml
//	- name: command
//	  type: text
//	  required: true
//	  action: execute
//	```
//
//	## Model Configuration
//	```yaml
//	provider: openrouter
//	model_name: anthropic/claude-3.5-sonnet
//	temperature: 0.2
//	```
//
// Purpose, Functionality, and Outputs are required sections; the rest are
// optional. Parsing failures are reported as *LoadError and isolated per
// pattern: one malformed document never blocks the rest of the catalog.
package registry

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/patternforge/patternforge/pkg/models"
)

// LoadError describes a malformed pattern document. It is fatal for that
// pattern only and is surfaced when the pattern is requested.
type LoadError struct {
	PatternID string
	Path      string
	Reason    string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("pattern %q: %s", e.PatternID, e.Reason)
}

// NotFoundError is returned when a requested pattern id is unknown.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return "pattern not found: " + e.ID
}

const (
	titlePrefix = "# Pattern:"
	namePrefix  = "Name:"
	tagsPrefix  = "Tags:"
)

// section names as they appear in document headings (lowercased for match).
const (
	sectionPurpose       = "purpose"
	sectionFunctionality = "functionality"
	sectionInputs        = "inputs"
	sectionInputGroups   = "input groups"
	sectionOutputs       = "outputs"
	sectionModelConfig   = "model configuration"
)

var validInputTypes = map[models.InputType]bool{
	models.InputText:      true,
	models.InputNumber:    true,
	models.InputSelect:    true,
	models.InputJSON:      true,
	models.InputImageFile: true,
	models.InputPDFFile:   true,
	models.InputImageURL:  true,
	models.InputPDFURL:    true,
}

var validOutputTypes = map[models.OutputType]bool{
	models.OutputText:     true,
	models.OutputMarkdown: true,
	models.OutputJSON:     true,
	models.OutputHTML:     true,
}

// validSchemaTypes is the property-type vocabulary of output schemas,
// matching what classification checks against.
var validSchemaTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"boolean": true,
	"array":   true,
	"object":  true,
}

// ParseDocument parses one pattern document. path is used only for error
// reporting and as an id fallback when the title line is unreadable.
func ParseDocument(path string, raw []byte) (*models.PatternDefinition, *LoadError) {
	lines := strings.Split(string(raw), "\n")

	def := &models.PatternDefinition{}
	fail := func(reason string) (*models.PatternDefinition, *LoadError) {
		id := def.ID
		if id == "" {
			id = path
		}
		return nil, &LoadError{PatternID: id, Path: path, Reason: reason}
	}

	// Header: title line, then optional Name:/Tags: lines before the
	// first section heading.
	i := 0
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, titlePrefix) {
			return fail("missing title line (expected \"# Pattern: <id>\")")
		}
		def.ID = strings.TrimSpace(strings.TrimPrefix(line, titlePrefix))
		i++
		break
	}
	if def.ID == "" {
		return fail("missing title line (expected \"# Pattern: <id>\")")
	}

	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, namePrefix):
			def.Name = strings.TrimSpace(strings.TrimPrefix(line, namePrefix))
			continue
		case strings.HasPrefix(line, tagsPrefix):
			for _, t := range strings.Split(strings.TrimPrefix(line, tagsPrefix), ",") {
				if tag := strings.ToLower(strings.TrimSpace(t)); tag != "" {
					def.Tags = append(def.Tags, tag)
				}
			}
			continue
		}
		break
	}
	if def.Name == "" {
		def.Name = def.ID
	}

	sections, perr := splitSections(lines[i:])
	if perr != "" {
		return fail(perr)
	}

	// Purpose
	purpose, ok := sections[sectionPurpose]
	if !ok || strings.TrimSpace(purpose) == "" {
		return fail("missing required section: Purpose")
	}
	def.Purpose = strings.TrimSpace(purpose)

	// Functionality: ordered bullet directives
	funcBody, ok := sections[sectionFunctionality]
	if !ok {
		return fail("missing required section: Functionality")
	}
	def.Functionality = parseBullets(funcBody)
	if len(def.Functionality) == 0 {
		return fail("Functionality section has no directives")
	}

	// Inputs (optional)
	if body, ok := sections[sectionInputs]; ok {
		if err := unmarshalBlock(body, &def.Inputs); err != nil {
			return fail("invalid Inputs block: " + err.Error())
		}
	}

	// Input Groups (optional)
	if body, ok := sections[sectionInputGroups]; ok {
		if err := unmarshalBlock(body, &def.InputGroups); err != nil {
			return fail("invalid Input Groups block: " + err.Error())
		}
	}

	// Outputs (required)
	outBody, ok := sections[sectionOutputs]
	if !ok {
		return fail("missing required section: Outputs")
	}
	if err := unmarshalBlock(outBody, &def.Outputs); err != nil {
		return fail("invalid Outputs block: " + err.Error())
	}
	if len(def.Outputs) == 0 {
		return fail("Outputs section declares no outputs")
	}

	// Model Configuration (optional)
	if body, ok := sections[sectionModelConfig]; ok {
		if err := unmarshalBlock(body, &def.Model); err != nil {
			return fail("invalid Model Configuration block: " + err.Error())
		}
	}

	if reason := validateDefinition(def); reason != "" {
		return fail(reason)
	}
	return def, nil
}

// splitSections walks the remaining lines collecting "## Heading" bodies.
// Returns a non-empty error string on structural problems.
func splitSections(lines []string) (map[string]string, string) {
	sections := make(map[string]string)
	var current string
	var body []string

	flush := func() {
		if current != "" {
			sections[current] = strings.Join(body, "\n")
		}
		body = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			flush()
			current = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, "## ")))
			if _, dup := sections[current]; dup {
				return nil, "duplicate section: " + current
			}
			continue
		}
		if current != "" {
			body = append(body, line)
		}
	}
	flush()
	return sections, ""
}

// parseBullets extracts "*" and "-" bullet lines in order.
func parseBullets(body string) []string {
	var items []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "* ") || strings.HasPrefix(trimmed, "- ") {
			items = append(items, strings.TrimSpace(trimmed[2:]))
		}
	}
	return items
}

// unmarshalBlock decodes a section body into out. The body may be a fenced
// ```yaml block or bare YAML.
func unmarshalBlock(body string, out any) error {
	content := body
	if idx := strings.Index(body, "```"); idx >= 0 {
		rest := body[idx+3:]
		// Skip the info string (yaml, yml or empty)
		if nl := strings.Index(rest, "\n"); nl >= 0 {
			rest = rest[nl+1:]
		}
		end := strings.Index(rest, "```")
		if end < 0 {
			return fmt.Errorf("unterminated code fence")
		}
		content = rest[:end]
	}
	if strings.TrimSpace(content) == "" {
		return nil
	}
	return yaml.Unmarshal([]byte(content), out)
}

// validateDefinition enforces the structural invariants of a parsed
// pattern. Returns an empty string when the definition is sound.
func validateDefinition(def *models.PatternDefinition) string {
	groups := make(map[string]*models.InputGroup, len(def.InputGroups))
	for i := range def.InputGroups {
		g := &def.InputGroups[i]
		if g.Name == "" {
			return "input group without a name"
		}
		if _, dup := groups[g.Name]; dup {
			return fmt.Sprintf("duplicate input group %q", g.Name)
		}
		if g.RequiredInputs < 0 {
			return fmt.Sprintf("input group %q: required_inputs must not be negative", g.Name)
		}
		groups[g.Name] = g
	}

	seenInputs := make(map[string]bool, len(def.Inputs))
	members := make(map[string]int)
	for _, in := range def.Inputs {
		if in.Name == "" {
			return "input without a name"
		}
		if seenInputs[in.Name] {
			return fmt.Sprintf("duplicate input name %q", in.Name)
		}
		seenInputs[in.Name] = true

		if !validInputTypes[in.Type] {
			return fmt.Sprintf("input %q: unknown type %q", in.Name, in.Type)
		}
		if in.Group != "" {
			if _, ok := groups[in.Group]; !ok {
				return fmt.Sprintf("input %q references undeclared group %q", in.Name, in.Group)
			}
			members[in.Group]++
		}
		if in.Type == models.InputSelect {
			if len(in.Options) == 0 {
				return fmt.Sprintf("select input %q declares no options", in.Name)
			}
			if in.Default != nil {
				dflt := fmt.Sprintf("%v", in.Default)
				if !containsString(in.Options, dflt) {
					return fmt.Sprintf("select input %q: default %q not in options", in.Name, dflt)
				}
			}
		}
		if in.Min != nil && in.Max != nil && *in.Min > *in.Max {
			return fmt.Sprintf("input %q: min exceeds max", in.Name)
		}
	}

	// A group constraint that can never be satisfied is an authoring
	// error, not something to clamp at resolve time.
	for name, g := range groups {
		if g.RequiredInputs > members[name] {
			return fmt.Sprintf("input group %q requires %d inputs but has %d members",
				name, g.RequiredInputs, members[name])
		}
	}

	seenOutputs := make(map[string]bool, len(def.Outputs))
	for _, out := range def.Outputs {
		if out.Name == "" {
			return "output without a name"
		}
		if seenOutputs[out.Name] {
			return fmt.Sprintf("duplicate output name %q", out.Name)
		}
		seenOutputs[out.Name] = true
		if !validOutputTypes[out.Type] {
			return fmt.Sprintf("output %q: unknown type %q", out.Name, out.Type)
		}
		switch out.Action {
		case "", models.ActionDisplay, models.ActionExecute, models.ActionWrite, models.ActionNone:
		default:
			return fmt.Sprintf("output %q: unknown action %q", out.Name, out.Action)
		}
		if out.Action == models.ActionWrite && out.WriteToFile == "" {
			return fmt.Sprintf("output %q: action=write requires write_to_file", out.Name)
		}
		// A mistyped schema property would make the output contract
		// unsatisfiable, so reject it here rather than at classify time.
		for prop, want := range out.Schema {
			if !validSchemaTypes[strings.ToLower(want)] {
				return fmt.Sprintf("output %q: schema property %q has unknown type %q", out.Name, prop, want)
			}
		}
	}

	return ""
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
