// Package decision models operator decision requests: the
// machine-readable schema a stage publishes for a pending operation and
// the validation of the value map an operator submits against it.
// Schemas are a tagged union of field specs rather than untyped maps so
// rendering and validation are exhaustive.
package decision

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldKind tags the variant held by a FieldSpec.
type FieldKind string

const (
	KindChoice     FieldKind = "choice"
	KindFloatRange FieldKind = "float"
)

// FieldSpec describes one operator input. Exactly one variant is
// populated, selected by Kind.
type FieldSpec struct {
	Kind        FieldKind `json:"kind"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required"`

	Choice *ChoiceSpec     `json:"choice,omitempty"`
	Float  *FloatRangeSpec `json:"float,omitempty"`
}

// ChoiceSpec restricts a field to one of a fixed set of options.
type ChoiceSpec struct {
	Options []string `json:"options"`
	Default string   `json:"default,omitempty"`
}

// FloatRangeSpec restricts a field to a numeric range.
type FloatRangeSpec struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
}

// Choice builds a required choice field.
func Choice(description string, options []string, def string) FieldSpec {
	return FieldSpec{
		Kind:        KindChoice,
		Description: description,
		Required:    true,
		Choice:      &ChoiceSpec{Options: options, Default: def},
	}
}

// OptionalChoice builds a choice field that may be omitted; the default
// is applied when absent.
func OptionalChoice(description string, options []string, def string) FieldSpec {
	f := Choice(description, options, def)
	f.Required = false
	return f
}

// FloatRange builds a required numeric field.
func FloatRange(description string, min, max, def float64) FieldSpec {
	return FieldSpec{
		Kind:        KindFloatRange,
		Description: description,
		Required:    true,
		Float:       &FloatRangeSpec{Min: min, Max: max, Default: def},
	}
}

// Schema maps field name to its spec.
type Schema map[string]FieldSpec

// Values is a flat decision payload keyed by field name. Choice fields
// carry string values, float fields carry float64 (or a numeric type
// convertible to it).
type Values map[string]any

// Status of a pending request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Request is one solicited operator decision. Material progression at a
// stage suspends until a matching response is processed.
type Request struct {
	ID        string  `json:"id"`
	TraceID   string  `json:"trace_id"`
	AgentID   string  `json:"agent_id"`
	Stage     string  `json:"stage"`
	Operation string  `json:"operation"`
	Material  string  `json:"material"`
	Quantity  float64 `json:"quantity"`
	Schema    Schema  `json:"schema"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRequest creates a pending request with a generated ID.
func NewRequest(now time.Time, traceID, agentID, stage, operation, material string, quantity float64, schema Schema) *Request {
	return &Request{
		ID:        uuid.NewString(),
		TraceID:   traceID,
		AgentID:   agentID,
		Stage:     stage,
		Operation: operation,
		Material:  material,
		Quantity:  quantity,
		Schema:    schema,
		Status:    StatusPending,
		CreatedAt: now,
	}
}

// ValidationError reports every field problem found in a submitted
// payload. Validation happens before any mutation, so a failed payload
// can simply be corrected and resubmitted.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid decision: %s", strings.Join(e.Problems, "; "))
}

// Validate checks values against the schema and returns a normalized
// copy: defaults filled in for omitted optional fields, numerics
// coerced to float64. A *ValidationError is returned when any field is
// missing, out of range, or not among the allowed options.
func Validate(schema Schema, values Values) (Values, error) {
	var problems []string
	out := make(Values, len(schema))

	// Deterministic field order keeps error lists stable.
	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := schema[name]
		raw, present := values[name]
		if !present {
			if spec.Required {
				problems = append(problems, fmt.Sprintf("missing required input %s", name))
				continue
			}
			out[name] = specDefault(spec)
			continue
		}

		switch spec.Kind {
		case KindChoice:
			s, ok := raw.(string)
			if !ok {
				problems = append(problems, fmt.Sprintf("%s: expected a choice, got %T", name, raw))
				continue
			}
			if !contains(spec.Choice.Options, s) {
				problems = append(problems, fmt.Sprintf("invalid choice for %s: %q", name, s))
				continue
			}
			out[name] = s
		case KindFloatRange:
			f, ok := toFloat(raw)
			if !ok {
				problems = append(problems, fmt.Sprintf("invalid numeric value for %s: %v", name, raw))
				continue
			}
			if f < spec.Float.Min {
				problems = append(problems, fmt.Sprintf("%s below minimum: %.2f < %.2f", name, f, spec.Float.Min))
				continue
			}
			if f > spec.Float.Max {
				problems = append(problems, fmt.Sprintf("%s above maximum: %.2f > %.2f", name, f, spec.Float.Max))
				continue
			}
			out[name] = f
		}
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return out, nil
}

func specDefault(spec FieldSpec) any {
	switch spec.Kind {
	case KindChoice:
		return spec.Choice.Default
	case KindFloatRange:
		return spec.Float.Default
	}
	return nil
}

// Defaults returns a fully-populated payload built from the schema's
// defaults. Used by unattended runs standing in for an operator.
func Defaults(schema Schema) Values {
	out := make(Values, len(schema))
	for name, spec := range schema {
		out[name] = specDefault(spec)
	}
	return out
}

func contains(options []string, s string) bool {
	for _, o := range options {
		if o == s {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// String returns a choice value from a validated payload.
func (v Values) String(name string) string {
	s, _ := v[name].(string)
	return s
}

// Float returns a numeric value from a validated payload.
func (v Values) Float(name string) float64 {
	f, _ := toFloat(v[name])
	return f
}
