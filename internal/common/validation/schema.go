// internal/common/validation/schema.go
package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error joins the individual problems into one message.
func (r *ValidationResult) Error() string {
	parts := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		parts[i] = e.Field + ": " + e.Message
	}
	return strings.Join(parts, "; ")
}

// Validator is a compiled JSON schema. Safe for concurrent use.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles a schema given as a JSON string or a decoded Go value
// such as map[string]interface{}.
func NewValidator(schema interface{}) (*Validator, error) {
	var loader gojsonschema.JSONLoader
	switch s := schema.(type) {
	case string:
		loader = gojsonschema.NewStringLoader(s)
	case []byte:
		loader = gojsonschema.NewBytesLoader(s)
	default:
		loader = gojsonschema.NewGoLoader(s)
	}

	compiled, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// MustValidator panics when schema does not compile. For package-level
// schemas only.
func MustValidator(schema string) *Validator {
	v, err := NewValidator(schema)
	if err != nil {
		panic(err)
	}
	return v
}

// ValidateJSON checks raw JSON bytes.
func (v *Validator) ValidateJSON(data []byte) (*ValidationResult, error) {
	return v.validate(gojsonschema.NewBytesLoader(data))
}

// ValidateValue checks a decoded Go value.
func (v *Validator) ValidateValue(doc interface{}) (*ValidationResult, error) {
	return v.validate(gojsonschema.NewGoLoader(doc))
}

func (v *Validator) validate(doc gojsonschema.JSONLoader) (*ValidationResult, error) {
	result, err := v.schema.Validate(doc)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, re := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   re.Field(),
			Message: re.Description(),
			Code:    strings.ToUpper(re.Type()),
		})
	}
	sort.SliceStable(out.Errors, func(i, j int) bool {
		return out.Errors[i].Field < out.Errors[j].Field
	})
	return out, nil
}
