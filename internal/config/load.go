package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	rxerrors "github.com/gxo-labs/rxstore/pkg/rxstore/v1/errors"
)

// SupportedSchemaVersionConstraint is the schema major version this release
// reads.
const SupportedSchemaVersionConstraint = "v1"

// Load parses settings YAML, validates it against the embedded JSON schema,
// checks the schema version and applies the logical checks.
func Load(settingsYAML []byte, filePathHint string) (*Settings, error) {
	if len(settingsYAML) == 0 {
		return nil, rxerrors.NewConfigError("settings content cannot be empty", nil)
	}

	if err := ValidateWithSchema(settingsYAML); err != nil {
		return nil, rxerrors.NewConfigError(fmt.Sprintf("settings '%s' failed schema validation", filePathHint), err)
	}

	var settings Settings
	if err := yamlUnmarshalStrict(settingsYAML, &settings); err != nil {
		return nil, rxerrors.NewConfigError(fmt.Sprintf("failed to parse settings YAML '%s'", filePathHint), err)
	}
	settings.FilePath = filePathHint

	if err := checkSchemaVersion(settings.SchemaVersion, filePathHint); err != nil {
		return nil, err
	}

	if errs := ValidateSettings(&settings); len(errs) > 0 {
		messages := make([]string, 0, len(errs))
		for _, vErr := range errs {
			messages = append(messages, vErr.Error())
		}
		combined := fmt.Sprintf("settings '%s' has %d validation error(s):\n- %s",
			filePathHint, len(messages), strings.Join(messages, "\n- "))
		return nil, rxerrors.NewValidationError(combined, errs[0])
	}

	return &settings, nil
}

// LoadFromFile reads settings from disk and loads them.
func LoadFromFile(filePath string) (*Settings, error) {
	if filePath == "" {
		return nil, rxerrors.NewConfigError("settings file path cannot be empty", nil)
	}
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, rxerrors.NewConfigError(fmt.Sprintf("failed to get absolute path for '%s'", filePath), err)
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, rxerrors.NewConfigError(fmt.Sprintf("failed to read settings file '%s'", absPath), err)
	}
	return Load(content, absPath)
}

func checkSchemaVersion(version, filePathHint string) error {
	if version == "" {
		return rxerrors.NewValidationError(fmt.Sprintf("settings '%s' is missing required 'schemaVersion' field", filePathHint), nil)
	}
	v := version
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return rxerrors.NewValidationError(fmt.Sprintf("settings '%s' has invalid 'schemaVersion' format: '%s'", filePathHint, version), nil)
	}
	if semver.Major(v) != SupportedSchemaVersionConstraint {
		return rxerrors.NewValidationError(
			fmt.Sprintf("settings '%s' schemaVersion '%s' is not compatible with requirement '%s'",
				filePathHint, version, SupportedSchemaVersionConstraint),
			nil,
		)
	}
	return nil
}

// yamlUnmarshalStrict rejects fields the target struct does not declare.
func yamlUnmarshalStrict(in []byte, out interface{}) error {
	decoder := yaml.NewDecoder(bytes.NewReader(in))
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("YAML parsing error: %w", err)
	}
	return nil
}
