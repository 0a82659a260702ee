// Package classifier parses raw model responses back into the typed
// output slots a pattern declares.
//
// The classifier enforces the same contract the assembler asked the model
// for: a lone json output must arrive as a bare JSON document, and a
// multi-output pattern must arrive as a JSON object keyed by the declared
// output names. Everything the presentation layer needs, including each
// slot's action, rides along on the classified values.
package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/patternforge/patternforge/pkg/models"
)

// SchemaViolation reports one property whose value does not match the
// declared schema type.
type SchemaViolation struct {
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// ClassificationError describes a response that does not satisfy the
// pattern's output contract. Missing fields and schema violations are
// collected rather than reported one at a time.
type ClassificationError struct {
	PatternID string            `json:"pattern_id"`
	Reason    string            `json:"reason,omitempty"`
	Missing   []string          `json:"missing,omitempty"`
	Schema    []SchemaViolation `json:"schema,omitempty"`
}

func (e *ClassificationError) Error() string {
	var parts []string
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	for _, m := range e.Missing {
		parts = append(parts, fmt.Sprintf("missing required output %q", m))
	}
	for _, s := range e.Schema {
		parts = append(parts, fmt.Sprintf("%s: expected %s, got %s", s.Path, s.Expected, s.Actual))
	}
	return fmt.Sprintf("response does not match outputs of %s: %s",
		e.PatternID, strings.Join(parts, "; "))
}

func (e *ClassificationError) failed() bool {
	return e.Reason != "" || len(e.Missing) > 0 || len(e.Schema) > 0
}

// Classify maps a raw model response onto the pattern's declared outputs.
func Classify(pattern *models.PatternDefinition, response string) (*models.ResolvedOutputs, error) {
	cerr := &ClassificationError{PatternID: pattern.ID}
	out := &models.ResolvedOutputs{
		PatternID: pattern.ID,
		Fields:    make(map[string]models.OutputValue, len(pattern.Outputs)),
	}

	if len(pattern.Outputs) == 1 {
		spec := pattern.Outputs[0]
		if spec.Type == models.OutputJSON {
			value, reason := parseBareJSON(response)
			if reason != "" {
				cerr.Reason = reason
				return nil, cerr
			}
			checkSchema(spec.Name, spec.Schema, value, cerr)
			if cerr.failed() {
				return nil, cerr
			}
			out.Fields[spec.Name] = models.OutputValue{
				Name: spec.Name, Type: spec.Type, Action: spec.Action,
				Value: value, Raw: strings.TrimSpace(response),
			}
			return out, nil
		}

		// A single textual output takes the whole response verbatim.
		out.Fields[spec.Name] = models.OutputValue{
			Name: spec.Name, Type: spec.Type, Action: spec.Action,
			Value: response, Raw: response,
		}
		return out, nil
	}

	doc, reason := parseBareJSON(response)
	if reason != "" {
		cerr.Reason = reason
		return nil, cerr
	}
	object, ok := doc.(map[string]any)
	if !ok {
		cerr.Reason = fmt.Sprintf("expected a JSON object keyed by output names, got %s", jsonTypeName(doc))
		return nil, cerr
	}

	for _, spec := range pattern.Outputs {
		value, present := object[spec.Name]
		if !present {
			if spec.Required {
				cerr.Missing = append(cerr.Missing, spec.Name)
			}
			continue
		}

		slot, reason := coerceSlot(spec, value)
		if reason != "" {
			cerr.Schema = append(cerr.Schema, SchemaViolation{
				Path:     spec.Name,
				Expected: expectedForType(spec.Type),
				Actual:   jsonTypeName(value),
			})
			continue
		}
		checkSchema(spec.Name, spec.Schema, value, cerr)
		out.Fields[spec.Name] = slot
	}
	// Keys the pattern never declared are ignored.

	if cerr.failed() {
		return nil, cerr
	}
	return out, nil
}

// parseBareJSON decodes a response that must be exactly one JSON document
// with nothing around it. Code fences and prose prefixes are contract
// violations, not something to strip.
func parseBareJSON(response string) (any, string) {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return nil, "empty response"
	}
	if strings.HasPrefix(trimmed, "```") {
		return nil, "response is wrapped in a code fence"
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, "response is not valid JSON: " + err.Error()
	}
	if dec.More() {
		return nil, "response contains trailing content after the JSON document"
	}
	return normalizeNumbers(value), ""
}

// coerceSlot validates one declared output against its JSON value.
func coerceSlot(spec models.OutputSpec, value any) (models.OutputValue, string) {
	slot := models.OutputValue{Name: spec.Name, Type: spec.Type, Action: spec.Action, Value: value}

	switch spec.Type {
	case models.OutputJSON:
		switch value.(type) {
		case map[string]any, []any:
			raw, _ := json.Marshal(value)
			slot.Raw = string(raw)
			return slot, ""
		default:
			return slot, "not a structured value"
		}
	default:
		s, ok := value.(string)
		if !ok {
			return slot, "not a string"
		}
		slot.Value = s
		slot.Raw = s
		return slot, ""
	}
}

// checkSchema verifies declared property types on a json output's value.
// Properties the schema does not mention are unconstrained.
func checkSchema(path string, schema map[string]string, value any, cerr *ClassificationError) {
	if len(schema) == 0 {
		return
	}
	object, ok := value.(map[string]any)
	if !ok {
		cerr.Schema = append(cerr.Schema, SchemaViolation{
			Path: path, Expected: "object", Actual: jsonTypeName(value),
		})
		return
	}
	for prop, want := range schema {
		got, present := object[prop]
		if !present {
			cerr.Schema = append(cerr.Schema, SchemaViolation{
				Path: path + "." + prop, Expected: want, Actual: "absent",
			})
			continue
		}
		if actual := jsonTypeName(got); actual != strings.ToLower(want) {
			cerr.Schema = append(cerr.Schema, SchemaViolation{
				Path: path + "." + prop, Expected: want, Actual: actual,
			})
		}
	}
}

func expectedForType(t models.OutputType) string {
	if t == models.OutputJSON {
		return "object or array"
	}
	return "string"
}

func jsonTypeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}

// normalizeNumbers rewrites json.Number leaves to float64 so classified
// values compare and re-marshal the way callers expect.
func normalizeNumbers(value any) any {
	switch v := value.(type) {
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case []any:
		for i := range v {
			v[i] = normalizeNumbers(v[i])
		}
		return v
	case map[string]any:
		for k := range v {
			v[k] = normalizeNumbers(v[k])
		}
		return v
	default:
		return v
	}
}
