package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/semblocks/errors"
)

//go:embed meta-schema.json
var metaSchemaJSON string

var metaSchemaLoader = gojsonschema.NewStringLoader(metaSchemaJSON)

// SchemaFromJSON decodes a persisted schema document. The document is checked
// against the schema meta-schema first. Empty input yields an empty schema.
func SchemaFromJSON(data []byte) (ConfigSchema, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return ConfigSchema{Properties: map[string]PropertySchema{}}, nil
	}

	result, err := gojsonschema.Validate(metaSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return ConfigSchema{}, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "schema", "SchemaFromJSON", "meta-schema validation")
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return ConfigSchema{}, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidData, strings.Join(problems, "; ")),
			"schema", "SchemaFromJSON", "meta-schema validation")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var s ConfigSchema
	if err := dec.Decode(&s); err != nil {
		return ConfigSchema{}, errors.WrapInvalid(err, "schema", "SchemaFromJSON", "decode")
	}
	if s.Properties == nil {
		s.Properties = map[string]PropertySchema{}
	}
	s.Properties = normalizeProperties(s.Properties)
	return s, nil
}

// normalizeProperties fills names from map keys and converts decoded defaults
// to the declared field types.
func normalizeProperties(props map[string]PropertySchema) map[string]PropertySchema {
	out := make(map[string]PropertySchema, len(props))
	for name, p := range props {
		p.Name = name
		if p.Properties != nil {
			p.Properties = normalizeProperties(p.Properties)
		}
		if p.Items != nil {
			items := *p.Items
			if items.Properties != nil {
				items.Properties = normalizeProperties(items.Properties)
			}
			p.Items = &items
		}
		if p.Default != nil {
			p.Default = coerceValue(p.Default, p)
		}
		out[name] = p
	}
	return out
}
