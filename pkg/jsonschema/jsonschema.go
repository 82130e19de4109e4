package jsonschema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Validator validates JSON documents against a compiled schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// Compile parses and compiles a JSON schema document.
func Compile(schema string) (*Validator, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return &Validator{schema: s}, nil
}

// MustCompile is like Compile but panics on error. Intended for package-level schemas.
func MustCompile(schema string) *Validator {
	v, err := Compile(schema)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks doc against the schema and returns a descriptive error on failure.
func (v *Validator) Validate(doc []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(doc))
	return FormatErrors(result, err)
}

// FormatErrors turns a gojsonschema result into a single error, or nil when valid.
func FormatErrors(result *gojsonschema.Result, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaValidationSystem, err)
	}
	if result == nil || result.Valid() {
		return nil
	}
	var b strings.Builder
	for _, desc := range result.Errors() {
		fmt.Fprintf(&b, "- %s; ", desc)
	}
	return fmt.Errorf("%w: %s", ErrSchemaValidationFailed, b.String())
}
