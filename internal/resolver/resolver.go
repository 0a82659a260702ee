// Package resolver validates and normalizes caller-supplied inputs
// against a pattern's input schema before prompt assembly.
//
// Validation runs in a single pass and collects every violation: field
// problems and group-count problems are reported distinctly in one
// *ValidationError so the caller can render a complete message instead
// of fixing inputs one error at a time.
package resolver

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/patternforge/patternforge/pkg/models"
)

// ViolationKind classifies a single field violation.
type ViolationKind string

const (
	MissingRequired ViolationKind = "missing_required"
	InvalidType     ViolationKind = "invalid_type"
	OutOfRange      ViolationKind = "out_of_range"
	InvalidOption   ViolationKind = "invalid_option"
	InvalidJSON     ViolationKind = "invalid_json"
	InvalidRef      ViolationKind = "invalid_ref"
	UnknownInput    ViolationKind = "unknown_input"
)

// FieldViolation is one per-field validation failure.
type FieldViolation struct {
	Field   string        `json:"field"`
	Kind    ViolationKind `json:"kind"`
	Message string        `json:"message"`
}

// GroupViolation reports a wrong count of supplied members in an input
// group: Expected is the group's required_inputs, Actual what was supplied.
type GroupViolation struct {
	Group    string `json:"group"`
	Expected int    `json:"expected"`
	Actual   int    `json:"actual"`
}

// ValidationError carries every violation found in one resolution pass.
type ValidationError struct {
	PatternID string           `json:"pattern_id"`
	Fields    []FieldViolation `json:"fields,omitempty"`
	Groups    []GroupViolation `json:"groups,omitempty"`
}

func (e *ValidationError) Error() string {
	var parts []string
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	for _, g := range e.Groups {
		parts = append(parts, fmt.Sprintf("group %s: expected %d supplied input(s), got %d",
			g.Group, g.Expected, g.Actual))
	}
	return fmt.Sprintf("input validation failed for %s:\n  - %s",
		e.PatternID, strings.Join(parts, "\n  - "))
}

// Resolve validates raw against the pattern's input schema and returns a
// frozen value map covering every declared input: a supplied value, an
// explicit default, or an entry in Omitted for legitimately absent slots.
func Resolve(pattern *models.PatternDefinition, raw map[string]any) (*models.ResolvedInputs, error) {
	verr := &ValidationError{PatternID: pattern.ID}
	resolved := &models.ResolvedInputs{Values: make(map[string]any, len(pattern.Inputs))}

	// Callers supplying inputs the pattern never declared almost always
	// typoed a name; reject rather than silently drop.
	for key := range raw {
		if pattern.Input(key) == nil {
			verr.Fields = append(verr.Fields, FieldViolation{
				Field:   key,
				Kind:    UnknownInput,
				Message: fmt.Sprintf("input %q is not declared by pattern %s", key, pattern.ID),
			})
		}
	}

	for _, spec := range pattern.Inputs {
		value, supplied := raw[spec.Name]
		if supplied && isEmpty(value) {
			supplied = false
		}

		if !supplied {
			// Group membership presence is governed by the group count,
			// not per-field required flags, and defaults never fill group
			// slots (that would defeat the count constraint).
			if spec.Group != "" {
				resolved.Omitted = append(resolved.Omitted, spec.Name)
				continue
			}
			if spec.Default != nil {
				resolved.Values[spec.Name] = spec.Default
				continue
			}
			if spec.Required && !spec.IgnoreUndefined {
				verr.Fields = append(verr.Fields, FieldViolation{
					Field:   spec.Name,
					Kind:    MissingRequired,
					Message: fmt.Sprintf("required input %q was not supplied", spec.Name),
				})
				continue
			}
			resolved.Omitted = append(resolved.Omitted, spec.Name)
			continue
		}

		coerced, fv := checkValue(spec, value)
		if fv != nil {
			verr.Fields = append(verr.Fields, *fv)
			continue
		}
		resolved.Values[spec.Name] = coerced
	}

	for _, group := range pattern.InputGroups {
		actual := 0
		for _, member := range pattern.GroupMembers(group.Name) {
			if v, ok := raw[member.Name]; ok && !isEmpty(v) {
				actual++
			}
		}
		if actual != group.RequiredInputs {
			verr.Groups = append(verr.Groups, GroupViolation{
				Group:    group.Name,
				Expected: group.RequiredInputs,
				Actual:   actual,
			})
		}
	}

	if len(verr.Fields) > 0 || len(verr.Groups) > 0 {
		return nil, verr
	}
	return resolved, nil
}

// checkValue type-checks and coerces one supplied value.
func checkValue(spec models.InputSpec, value any) (any, *FieldViolation) {
	fail := func(kind ViolationKind, format string, args ...any) (any, *FieldViolation) {
		return nil, &FieldViolation{Field: spec.Name, Kind: kind, Message: fmt.Sprintf(format, args...)}
	}

	switch spec.Type {
	case models.InputText:
		switch v := value.(type) {
		case string:
			return v, nil
		case float64, int, int64, bool:
			return fmt.Sprintf("%v", v), nil
		default:
			return fail(InvalidType, "input %q must be text", spec.Name)
		}

	case models.InputNumber:
		n, ok := toNumber(value)
		if !ok {
			return fail(InvalidType, "input %q must be a number", spec.Name)
		}
		if spec.Min != nil && n < *spec.Min {
			return fail(OutOfRange, "input %q = %v is below minimum %v", spec.Name, n, *spec.Min)
		}
		if spec.Max != nil && n > *spec.Max {
			return fail(OutOfRange, "input %q = %v is above maximum %v", spec.Name, n, *spec.Max)
		}
		return n, nil

	case models.InputSelect:
		s, ok := value.(string)
		if !ok {
			return fail(InvalidType, "input %q must be one of its options", spec.Name)
		}
		for _, opt := range spec.Options {
			if opt == s {
				return s, nil
			}
		}
		return fail(InvalidOption, "input %q = %q is not one of %v", spec.Name, s, spec.Options)

	case models.InputJSON:
		switch v := value.(type) {
		case string:
			var parsed any
			if err := json.Unmarshal([]byte(v), &parsed); err != nil {
				return fail(InvalidJSON, "input %q is not well-formed JSON: %v", spec.Name, err)
			}
			return parsed, nil
		case map[string]any, []any:
			return v, nil
		default:
			return fail(InvalidJSON, "input %q must be a JSON document", spec.Name)
		}

	case models.InputImageFile, models.InputPDFFile:
		// Well-formedness only; existence is the attachment resolver's
		// concern at assembly time.
		s, ok := value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return fail(InvalidRef, "input %q must be a file path", spec.Name)
		}
		return s, nil

	case models.InputImageURL, models.InputPDFURL:
		s, ok := value.(string)
		if !ok {
			return fail(InvalidRef, "input %q must be a URL", spec.Name)
		}
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fail(InvalidRef, "input %q must be an http(s) URL", spec.Name)
		}
		return s, nil

	default:
		// Unknown types are rejected at load time; reaching here means a
		// definition bypassed the registry.
		return fail(InvalidType, "input %q has unsupported type %q", spec.Name, spec.Type)
	}
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// isEmpty reports whether a supplied value counts as absent: nil or a
// blank string. Zero numbers and false booleans are real values.
func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
