package features

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"os"

	"gopkg.in/yaml.v3"

	"airquality/pkg/errors"
)

//go:embed default_schema.yaml
var defaultSchemaYAML []byte

// DefaultSchema returns the schema shipped with the binary
func DefaultSchema() (*Schema, error) {
	return ParseSchema(defaultSchemaYAML)
}

// LoadSchemaFile reads and validates a YAML schema. An empty path yields the default schema.
func LoadSchemaFile(path string) (*Schema, error) {
	if path == "" {
		return DefaultSchema()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read schema %s", path), errors.ErrConfig)
	}

	schema, err := ParseSchema(data)
	if err != nil {
		return nil, errors.Wrapf(err, "schema %s", path)
	}
	return schema, nil
}

// ParseSchema decodes YAML (JSON is accepted too). Unknown keys are rejected
// so a typo never silently drops a statistic.
func ParseSchema(data []byte) (*Schema, error) {
	var spec SchemaSpec

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode schema"), errors.ErrConfig)
	}

	return NewSchema(spec)
}

// DecodeSchemaJSON decodes the JSON form stored by a Store with the same
// strictness as ParseSchema: unknown keys are rejected.
func DecodeSchemaJSON(data []byte) (*Schema, error) {
	var spec SchemaSpec

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode schema"), errors.ErrConfig)
	}

	return NewSchema(spec)
}

// MarshalYAML renders the schema in the same layout LoadSchemaFile reads
func (s *Schema) MarshalYAML() (interface{}, error) {
	return s.Spec(), nil
}
