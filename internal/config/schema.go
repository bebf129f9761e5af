package config

import (
	_ "embed" // Required for //go:embed directive
	"fmt"
	"sync"

	margoerrors "github.com/margo-labs/margo/pkg/margo/v1/errors"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Embed the schema file content directly into the compiled binary.
//
//go:embed margo_schema_v1.0.0.json
var schemaV1Bytes []byte

var (
	// schemaV1 holds the compiled schema object for efficient validation.
	schemaV1 *gojsonschema.Schema
	// schemaOnce ensures the schema is loaded and compiled only once.
	schemaOnce sync.Once
	// schemaErr stores any error encountered during the one-time load.
	schemaErr error
)

// loadSchema compiles the embedded schema thread-safely, only once.
func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		if len(schemaV1Bytes) == 0 {
			schemaErr = margoerrors.NewConfigError("embedded schema 'margo_schema_v1.0.0.json' is empty or not found (ensure file exists in internal/config/)", nil)
			return
		}
		schemaV1, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaV1Bytes))
		if schemaErr != nil {
			schemaErr = margoerrors.NewConfigError("failed to compile embedded schema 'margo_schema_v1.0.0.json'", schemaErr)
		}
	})
	return schemaV1, schemaErr
}

// ValidateWithSchema validates the given YAML document bytes against the
// embedded margo v1.0.0 schema, converting YAML to the JSON-like structures
// the validator works with.
func ValidateWithSchema(documentYAML []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}

	// gojsonschema works with JSON-like data (map[string]interface{}, ...),
	// so parse the YAML into a generic structure first. Non-strict decoding
	// is fine here: only the shape matters at this stage.
	var jsonData interface{}
	if err := yaml.Unmarshal(documentYAML, &jsonData); err != nil {
		return margoerrors.NewConfigError("failed to parse model YAML for schema validation", err)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(jsonData))
	if err != nil {
		return margoerrors.NewConfigError("schema validation process failed", err)
	}

	if !result.Valid() {
		errMsg := "Model failed JSON schema validation:"
		for _, desc := range result.Errors() {
			field := desc.Field()
			if field == "(root)" || field == "" {
				field = desc.Context().String()
			}
			errMsg += fmt.Sprintf("\n  - Field '%s': %s", field, desc.Description())
		}
		return margoerrors.NewValidationError(errMsg, nil)
	}
	return nil
}
