// internal/common/validation/schema.go

package validation

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// JSONSchema is the subset of JSON Schema the job envelopes need.
type JSONSchema struct {
	Type                 string              `json:"type"`
	Properties           map[string]Property `json:"properties,omitempty"`
	Required             []string            `json:"required,omitempty"`
	AdditionalProperties *bool               `json:"additionalProperties,omitempty"`
}

// Property leaves Type empty to accept any JSON value, null included.
type Property struct {
	Type        string   `json:"type,omitempty"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	MinLength   *int     `json:"minLength,omitempty"`
	MaxLength   *int     `json:"maxLength,omitempty"`
}

type Result struct {
	Valid  bool
	Errors []FieldError
}

type FieldError struct {
	Field   string
	Message string
	Kind    string
}

func (r *Result) Messages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Field+": "+e.Message)
	}
	return out
}

// ValidateDocument checks a decoded payload against schema and collects every violation.
func ValidateDocument(doc interface{}, schema JSONSchema) (*Result, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(raw), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	out := &Result{Valid: res.Valid()}
	for _, d := range res.Errors() {
		field := d.Field()
		// gojsonschema reports missing required keys against the parent.
		if d.Type() == "required" {
			if name, ok := d.Details()["property"].(string); ok {
				field = name
			}
		}
		out.Errors = append(out.Errors, FieldError{Field: field, Message: d.Description(), Kind: d.Type()})
	}
	return out, nil
}
