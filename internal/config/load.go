package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	margoerrors "github.com/margo-labs/margo/pkg/margo/v1/errors"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// SupportedSchemaVersionConstraint defines the SemVer constraint that loaded
// model documents must satisfy. For a v1 engine, we only accept v1 models.
const SupportedSchemaVersionConstraint = "v1"

// LoadModel reads the specified YAML document bytes, validates against the
// embedded JSON schema, unmarshals into a Model struct with strict decoding,
// checks schema version compatibility, and performs logical validation.
func LoadModel(modelYAML []byte, filePathHint string) (*Model, error) {
	if len(modelYAML) == 0 {
		return nil, margoerrors.NewConfigError("model content cannot be empty", nil)
	}

	// Step 1: Validate against the JSON Schema for basic structure and types.
	if err := ValidateWithSchema(modelYAML); err != nil {
		return nil, margoerrors.NewConfigError(fmt.Sprintf("model '%s' failed schema validation", filePathHint), err)
	}

	// Step 2: Unmarshal into the Go struct using strict decoding to catch
	// unknown fields.
	var model Model
	if err := yamlUnmarshalStrict(modelYAML, &model); err != nil {
		return nil, margoerrors.NewConfigError(fmt.Sprintf("failed to parse model YAML '%s'", filePathHint), err)
	}
	model.FilePath = filePathHint

	// Step 3: Check schema version compatibility.
	if model.SchemaVersion == "" {
		return nil, margoerrors.NewValidationError(fmt.Sprintf("model '%s' is missing required 'schemaVersion' field", filePathHint), nil)
	}
	modelSemVer := model.SchemaVersion
	if !strings.HasPrefix(modelSemVer, "v") {
		modelSemVer = "v" + modelSemVer
	}
	if !semver.IsValid(modelSemVer) {
		return nil, margoerrors.NewValidationError(fmt.Sprintf("model '%s' has invalid 'schemaVersion' format: '%s'", filePathHint, model.SchemaVersion), nil)
	}
	if semver.Major(modelSemVer) != SupportedSchemaVersionConstraint {
		return nil, margoerrors.NewValidationError(
			fmt.Sprintf("model '%s' schemaVersion '%s' is not compatible with engine requirement '%s'",
				filePathHint, model.SchemaVersion, SupportedSchemaVersionConstraint),
			nil,
		)
	}

	// Step 4: Perform detailed logical validation on the Go struct.
	validationErrs := ValidateModelStructure(&model)
	if len(validationErrs) > 0 {
		var errorMessages []string
		for _, vErr := range validationErrs {
			errorMessages = append(errorMessages, vErr.Error())
		}
		combinedMessage := fmt.Sprintf("model '%s' has %d validation error(s):\n- %s",
			filePathHint, len(errorMessages), strings.Join(errorMessages, "\n- "))
		return nil, margoerrors.NewValidationError(combinedMessage, validationErrs[0])
	}

	return &model, nil
}

// LoadModelFromFile is a convenience function to read a model from disk.
func LoadModelFromFile(filePath string) (*Model, error) {
	if filePath == "" {
		return nil, margoerrors.NewConfigError("model file path cannot be empty", nil)
	}
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, margoerrors.NewConfigError(fmt.Sprintf("failed to get absolute path for '%s'", filePath), err)
	}
	yamlFile, err := os.ReadFile(absPath)
	if err != nil {
		return nil, margoerrors.NewConfigError(fmt.Sprintf("failed to read model file '%s'", absPath), err)
	}
	return LoadModel(yamlFile, absPath)
}

// yamlUnmarshalStrict provides stricter YAML unmarshalling by disallowing
// unknown fields, catching typos in model documents early.
func yamlUnmarshalStrict(in []byte, out interface{}) error {
	decoder := yaml.NewDecoder(strings.NewReader(string(in)))
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("YAML parsing error: %w", err)
	}
	return nil
}
