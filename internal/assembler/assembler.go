// Package assembler turns a pattern definition plus resolved inputs into
// the provider-neutral payload handed to a model invoker.
package assembler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/patternforge/patternforge/pkg/models"
)

// AttachmentResolver materializes attachment references into payload
// attachments. File refs are read and carried as bytes; URL refs may be
// passed through for the provider to fetch.
type AttachmentResolver interface {
	Materialize(ctx context.Context, ref models.AttachmentRef) (models.Attachment, error)
}

// Assembler builds payloads. It holds no per-request state and is safe
// for concurrent use.
type Assembler struct {
	attachments AttachmentResolver
}

// New returns an assembler. resolver may be nil when no pattern in the
// deployment declares attachment inputs.
func New(resolver AttachmentResolver) *Assembler {
	return &Assembler{attachments: resolver}
}

// Assemble produces the payload for one invocation. Inputs must already
// be resolved; history holds the session's prior turns in chronological
// order and is trimmed to the effective max_context_length. The override
// config, when non-nil, wins field-by-field over the pattern's own.
func (a *Assembler) Assemble(
	ctx context.Context,
	pattern *models.PatternDefinition,
	resolved *models.ResolvedInputs,
	history []models.Turn,
	override *models.ModelConfig,
) (*models.Payload, error) {
	cfg := pattern.Model.Merged(override)

	payload := &models.Payload{
		PatternID:   pattern.ID,
		Variables:   make(map[string]any),
		History:     trimHistory(history, cfg.MaxContextLength),
		ModelConfig: cfg,
	}

	for _, spec := range pattern.Inputs {
		value, ok := resolved.Values[spec.Name]
		if !ok {
			continue
		}
		if !spec.Type.IsAttachment() {
			payload.Variables[spec.Name] = value
			continue
		}

		ref := models.AttachmentRef{
			Name: spec.Name,
			Kind: mediaKind(spec.Type),
			Ref:  fmt.Sprintf("%v", value),
		}
		if a.attachments == nil {
			return nil, fmt.Errorf("pattern %s declares attachment input %q but no attachment resolver is configured",
				pattern.ID, spec.Name)
		}
		att, err := a.attachments.Materialize(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("materialize attachment %q: %w", spec.Name, err)
		}
		payload.Attachments = append(payload.Attachments, att)
	}

	payload.Instructions = buildInstructions(pattern, payload.Variables, cfg)
	return payload, nil
}

// buildInstructions renders the ordered system blocks: purpose and
// functionality, then the supplied inputs, then the output contract.
func buildInstructions(pattern *models.PatternDefinition, variables map[string]any, cfg models.ModelConfig) []string {
	instructions := []string{pattern.Purpose}

	if len(pattern.Functionality) > 0 {
		var b strings.Builder
		b.WriteString("Follow these directives:")
		for _, directive := range pattern.Functionality {
			b.WriteString("\n- ")
			b.WriteString(directive)
		}
		instructions = append(instructions, b.String())
	}

	if len(variables) > 0 {
		names := make([]string, 0, len(variables))
		for name := range variables {
			names = append(names, name)
		}
		sort.Strings(names)

		var b strings.Builder
		b.WriteString("Inputs:")
		for _, name := range names {
			fmt.Fprintf(&b, "\n%s: %v", name, variables[name])
		}
		instructions = append(instructions, b.String())
	}

	if format := formatContract(pattern, cfg); format != "" {
		instructions = append(instructions, format)
	}
	return instructions
}

// formatContract returns the output-format instruction block. A pattern
// level format_instructions override replaces the generated contract.
func formatContract(pattern *models.PatternDefinition, cfg models.ModelConfig) string {
	if cfg.FormatInstructions != "" {
		return cfg.FormatInstructions
	}
	return GeneratedFormatInstructions(pattern.Outputs)
}

// GeneratedFormatInstructions derives the response contract from the
// declared outputs.
//
// A single json output demands a bare JSON response: no code fences, no
// prose around it. Everything else is asked for as a JSON object keyed
// by the declared output names, which is what the output classifier
// parses back.
func GeneratedFormatInstructions(outputs []models.OutputSpec) string {
	if len(outputs) == 0 {
		return ""
	}

	if len(outputs) == 1 && outputs[0].Type != models.OutputJSON {
		out := outputs[0]
		switch out.Type {
		case models.OutputMarkdown:
			return "Respond with Markdown formatted text only. Do not wrap the response in code fences."
		case models.OutputHTML:
			return "Respond with valid HTML only. Do not wrap the response in code fences."
		default:
			return "Respond with plain text only. No code fences, no surrounding commentary."
		}
	}

	if len(outputs) == 1 {
		out := outputs[0]
		var b strings.Builder
		b.WriteString("Respond with a single valid JSON document and nothing else.\n")
		b.WriteString("Do not wrap it in code fences. Do not add text before or after it.")
		if len(out.Schema) > 0 {
			b.WriteString("\nThe document must contain these properties:")
			for _, name := range sortedKeys(out.Schema) {
				fmt.Fprintf(&b, "\n- %q: %s", name, out.Schema[name])
			}
		}
		return b.String()
	}

	var b strings.Builder
	b.WriteString("Respond with a single JSON object and nothing else. Do not wrap it in code fences.\n")
	b.WriteString("The object must have exactly these keys:\n{")
	for i, out := range outputs {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "\n  %q: %s", out.Name, typeHint(out.Type))
	}
	b.WriteString("\n}\nField requirements:")
	for _, out := range outputs {
		fmt.Fprintf(&b, "\n- %s: %s", out.Name, fieldRequirement(out))
	}
	return b.String()
}

func typeHint(t models.OutputType) string {
	switch t {
	case models.OutputJSON:
		return "{ ... }"
	case models.OutputMarkdown:
		return `"markdown string"`
	case models.OutputHTML:
		return `"HTML string"`
	default:
		return `"plain text string"`
	}
}

func fieldRequirement(out models.OutputSpec) string {
	switch out.Type {
	case models.OutputJSON:
		return "a valid JSON object or array, not a string"
	case models.OutputMarkdown:
		return "Markdown formatted text"
	case models.OutputHTML:
		return "valid HTML without code block wrappers"
	}
	if out.Description != "" {
		return out.Description
	}
	return "plain text content"
}

// trimHistory drops oldest turns until the total rune size fits the cap.
// A zero cap keeps everything; the session budget is enforced separately
// by the session manager.
func trimHistory(history []models.Turn, maxRunes int) []models.Turn {
	if maxRunes <= 0 || len(history) == 0 {
		return history
	}
	total := 0
	for _, t := range history {
		total += t.Size()
	}
	start := 0
	for start < len(history) && total > maxRunes {
		total -= history[start].Size()
		start++
	}
	return history[start:]
}

func mediaKind(t models.InputType) models.MediaKind {
	switch t {
	case models.InputPDFFile, models.InputPDFURL:
		return models.MediaPDF
	default:
		return models.MediaImage
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
