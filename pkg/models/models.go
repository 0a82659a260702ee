// Package models defines the domain types shared across the patternforge
// engine: pattern definitions, typed input/output specifications, chat
// sessions, and the payload handed to model providers.
package models

import (
	"strings"
	"time"
)

// ── Tags ─────────────────────────────────────────────────────

// TagCategory groups tags into the three catalog dimensions.
type TagCategory string

const (
	TagCategoryDomain  TagCategory = "domain"
	TagCategoryType    TagCategory = "type"
	TagCategoryUseCase TagCategory = "use_case"
)

// TagDefinition is one categorized label used to filter the pattern catalog.
type TagDefinition struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Category    TagCategory `json:"category" yaml:"category"`
}

// ── Input Specifications ─────────────────────────────────────

// InputType enumerates the supported pattern input kinds.
type InputType string

const (
	InputText      InputType = "text"
	InputNumber    InputType = "number"
	InputSelect    InputType = "select"
	InputJSON      InputType = "json"
	InputImageFile InputType = "image_file"
	InputPDFFile   InputType = "pdf_file"
	InputImageURL  InputType = "image_url"
	InputPDFURL    InputType = "pdf_url"
)

// IsAttachment reports whether values of this type are materialized as
// payload attachments instead of prompt variables.
func (t InputType) IsAttachment() bool {
	switch t {
	case InputImageFile, InputPDFFile, InputImageURL, InputPDFURL:
		return true
	}
	return false
}

// InputSpec declares one typed input slot of a pattern.
type InputSpec struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Type        InputType `json:"type" yaml:"type"`
	Required    bool      `json:"required" yaml:"required"`

	// Group names the InputGroup this input belongs to, if any.
	Group string `json:"group,omitempty" yaml:"group,omitempty"`

	// Default fills the slot when the caller omits the input.
	Default any `json:"default,omitempty" yaml:"default,omitempty"`

	// Options constrains select inputs to a fixed value set.
	Options []string `json:"options,omitempty" yaml:"options,omitempty"`

	// Min/Max bound number inputs (inclusive). Nil means unbounded.
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`

	// IgnoreUndefined marks omission as acceptable even without a default;
	// the resolved map records the slot with an explicit absence marker.
	IgnoreUndefined bool `json:"ignore_undefined,omitempty" yaml:"ignore_undefined,omitempty"`
}

// InputGroup constrains how many of its member inputs may be supplied per
// invocation. RequiredInputs is exact, not a minimum: a group of
// {url, file} with RequiredInputs=1 accepts either but never both.
type InputGroup struct {
	Name           string `json:"name" yaml:"name"`
	Description    string `json:"description,omitempty" yaml:"description,omitempty"`
	RequiredInputs int    `json:"required_inputs" yaml:"required_inputs"`
}

// ── Output Specifications ────────────────────────────────────

// OutputType enumerates the supported pattern output kinds.
type OutputType string

const (
	OutputText     OutputType = "text"
	OutputMarkdown OutputType = "markdown"
	OutputJSON     OutputType = "json"
	OutputHTML     OutputType = "html"
)

// OutputAction tells the presentation layer what to do with an output
// value. The engine passes it through uninterpreted.
type OutputAction string

const (
	ActionDisplay OutputAction = "display"
	ActionExecute OutputAction = "execute"
	ActionWrite   OutputAction = "write"
	ActionNone    OutputAction = "none"
)

// OutputSpec declares one named output slot the model response must fill.
type OutputSpec struct {
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Type        OutputType   `json:"type" yaml:"type"`
	Required    bool         `json:"required" yaml:"required"`
	Action      OutputAction `json:"action,omitempty" yaml:"action,omitempty"`

	// Schema holds structural constraints for json outputs: a map of
	// property name → expected type ("string", "number", "boolean",
	// "array", "object"). Empty means any well-formed JSON is accepted.
	Schema map[string]string `json:"schema,omitempty" yaml:"schema,omitempty"`

	// WriteToFile names the target file for action=write outputs.
	WriteToFile string `json:"write_to_file,omitempty" yaml:"write_to_file,omitempty"`
}

// ── Model Configuration ──────────────────────────────────────

// ModelConfig is the model section of a pattern document. Scalar fields
// are pointers so overrides can distinguish "unset" from zero.
type ModelConfig struct {
	Provider         string         `json:"provider,omitempty" yaml:"provider,omitempty"`
	ModelName        string         `json:"model_name,omitempty" yaml:"model_name,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens        *int           `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	StopSequences    []string       `json:"stop_sequences,omitempty" yaml:"stop_sequences,omitempty"`
	CustomParameters map[string]any `json:"custom_parameters,omitempty" yaml:"custom_parameters,omitempty"`

	// FormatInstructions overrides the generated output-format contract.
	FormatInstructions string `json:"format_instructions,omitempty" yaml:"format_instructions,omitempty"`

	// MaxContextLength caps the session history (in runes) folded into a
	// payload for this pattern. Zero means the session manager's default.
	MaxContextLength int `json:"max_context_length,omitempty" yaml:"max_context_length,omitempty"`
}

// Merged returns a copy of c with every set field of override applied on
// top. Unset override fields keep the pattern's value.
func (c ModelConfig) Merged(override *ModelConfig) ModelConfig {
	if override == nil {
		return c
	}
	out := c
	if override.Provider != "" {
		out.Provider = override.Provider
	}
	if override.ModelName != "" {
		out.ModelName = override.ModelName
	}
	if override.Temperature != nil {
		out.Temperature = override.Temperature
	}
	if override.MaxTokens != nil {
		out.MaxTokens = override.MaxTokens
	}
	if len(override.StopSequences) > 0 {
		out.StopSequences = override.StopSequences
	}
	if len(override.CustomParameters) > 0 {
		merged := make(map[string]any, len(c.CustomParameters)+len(override.CustomParameters))
		for k, v := range c.CustomParameters {
			merged[k] = v
		}
		for k, v := range override.CustomParameters {
			merged[k] = v
		}
		out.CustomParameters = merged
	}
	if override.FormatInstructions != "" {
		out.FormatInstructions = override.FormatInstructions
	}
	if override.MaxContextLength > 0 {
		out.MaxContextLength = override.MaxContextLength
	}
	return out
}

// ── Pattern Definition ───────────────────────────────────────

// PatternSource records which directory tier a definition came from.
type PatternSource string

const (
	SourceBuiltin PatternSource = "builtin"
	SourcePrivate PatternSource = "private"
)

// PatternDefinition is one fully parsed pattern document. Immutable once
// loaded; identity is ID.
type PatternDefinition struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Tags          []string      `json:"tags,omitempty"`
	Purpose       string        `json:"purpose"`
	Functionality []string      `json:"functionality,omitempty"`
	Inputs        []InputSpec   `json:"inputs,omitempty"`
	InputGroups   []InputGroup  `json:"input_groups,omitempty"`
	Outputs       []OutputSpec  `json:"outputs,omitempty"`
	Model         ModelConfig   `json:"model"`
	Source        PatternSource `json:"source,omitempty"`
}

// HasTag reports whether the pattern carries the given tag id.
func (p *PatternDefinition) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Input returns the InputSpec with the given name, or nil.
func (p *PatternDefinition) Input(name string) *InputSpec {
	for i := range p.Inputs {
		if p.Inputs[i].Name == name {
			return &p.Inputs[i]
		}
	}
	return nil
}

// GroupMembers returns the inputs belonging to the named group, in
// declaration order.
func (p *PatternDefinition) GroupMembers(group string) []InputSpec {
	var members []InputSpec
	for _, in := range p.Inputs {
		if in.Group == group {
			members = append(members, in)
		}
	}
	return members
}

// PatternSummary is the listing shape returned by the catalog endpoints.
type PatternSummary struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Tags []string `json:"tags,omitempty"`
}

// ── Resolved Inputs ──────────────────────────────────────────

// ResolvedInputs is the frozen result of input validation. Values covers
// every declared input that ended up with a value (supplied or default);
// Omitted lists ignore_undefined inputs that were legitimately absent.
type ResolvedInputs struct {
	Values  map[string]any `json:"values"`
	Omitted []string       `json:"omitted,omitempty"`
}

// IsOmitted reports whether the named input was recorded as absent.
func (r *ResolvedInputs) IsOmitted(name string) bool {
	for _, n := range r.Omitted {
		if n == name {
			return true
		}
	}
	return false
}

// ── Sessions & Turns ─────────────────────────────────────────

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MediaKind declares how attachment bytes should be presented to the model.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaPDF   MediaKind = "pdf"
)

// AttachmentRef points at attachment content by reference; the bytes are
// materialized by an AttachmentResolver at assembly time.
type AttachmentRef struct {
	Name string    `json:"name"`
	Kind MediaKind `json:"kind"`
	Ref  string    `json:"ref"` // file path or URL
}

// Turn is one message within a chat session's ordered history.
type Turn struct {
	Role        Role            `json:"role"`
	Content     string          `json:"content"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Size returns the budget cost of a turn in runes.
func (t Turn) Size() int {
	return len([]rune(t.Content))
}

// ChatSession holds the ordered turn history for one conversation.
type ChatSession struct {
	ID        string    `json:"id"`
	PatternID string    `json:"pattern_id,omitempty"`
	Turns     []Turn    `json:"turns"`
	Closed    bool      `json:"closed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ModelOverride, when set, takes precedence over the pattern's model
	// configuration for every invocation in this session.
	ModelOverride *ModelConfig `json:"model_override,omitempty"`
}

// ── Payload ──────────────────────────────────────────────────

// Attachment is materialized attachment content ready for a provider.
type Attachment struct {
	Name     string    `json:"name"`
	Kind     MediaKind `json:"kind"`
	MIMEType string    `json:"mime_type,omitempty"`
	Data     []byte    `json:"data,omitempty"`
	URL      string    `json:"url,omitempty"` // set instead of Data for URL refs
}

// Payload is the fully assembled request handed to the model invoker.
// It carries no provider wire format; invokers translate it.
type Payload struct {
	PatternID string `json:"pattern_id"`

	// Instructions are ordered system blocks: pattern purpose and
	// functionality first, then structured inputs, then the output
	// format contract.
	Instructions []string `json:"instructions"`

	// Variables are the resolved non-attachment input values.
	Variables map[string]any `json:"variables,omitempty"`

	// History holds prior session turns in chronological order.
	History []Turn `json:"history,omitempty"`

	Attachments []Attachment `json:"attachments,omitempty"`
	ModelConfig ModelConfig  `json:"model_config"`
}

// ── Resolved Outputs ─────────────────────────────────────────

// OutputValue is one classified output slot with its action metadata
// passed through for the presentation layer.
type OutputValue struct {
	Name   string       `json:"name"`
	Type   OutputType   `json:"type"`
	Action OutputAction `json:"action,omitempty"`
	Value  any          `json:"value"`

	// Raw preserves the exact textual form of the slot content.
	Raw string `json:"raw,omitempty"`
}

// ResolvedOutputs maps declared output names to their classified values.
type ResolvedOutputs struct {
	PatternID string                 `json:"pattern_id"`
	Fields    map[string]OutputValue `json:"fields"`
}

// Get returns the value for a named output slot.
func (r *ResolvedOutputs) Get(name string) (OutputValue, bool) {
	v, ok := r.Fields[name]
	return v, ok
}
