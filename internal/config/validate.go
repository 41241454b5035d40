package config

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return schema, schemaErr
}

// ValidateSnapshot checks a snapshot against the built-in schema. Every problem
// is returned; a nil result means the snapshot is valid.
func ValidateSnapshot(s *Snapshot) []error {
	compiled, err := compiledSchema()
	if err != nil {
		return []error{fmt.Errorf("%w: schema: %v", ErrValidation, err)}
	}
	result, err := compiled.Validate(gojsonschema.NewGoLoader(s.ToMap()))
	if err != nil {
		return []error{fmt.Errorf("%w: %v", ErrValidation, err)}
	}
	if result.Valid() {
		return nil
	}
	errs := make([]error, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, fmt.Errorf("%w: %s", ErrValidation, desc.String()))
	}
	return errs
}
