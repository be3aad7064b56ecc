// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package seed

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the seed file schema.
const SchemaID = "https://natours.dev/schemas/seed.schema.json"

var compiledSchema = sync.OnceValues(compileSchema)

// GenerateSchema generates the JSON Schema of a seed file.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(&File{})

	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "Natours Seed File"
	schema.Description = "Development users imported by natours seed import"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SEED_SCHEMA_FAILED").Wrapf(err, "marshal schema")
	}
	return data, nil
}

// ValidateSchema validates YAML or JSON data against the seed file schema.
func ValidateSchema(data []byte) error {
	if len(data) == 0 {
		return oops.Code("SEED_INVALID").Errorf("seed data is empty")
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Code("SEED_INVALID").Wrapf(err, "invalid YAML")
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}

	if err := sch.Validate(toJSONTypes(doc)); err != nil {
		return oops.Code("SEED_SCHEMA_VIOLATION").Wrapf(err, "schema validation failed")
	}
	return nil
}

func compileSchema() (*jschema.Schema, error) {
	schemaBytes, err := GenerateSchema()
	if err != nil {
		return nil, err
	}

	var schemaData any
	if err := json.Unmarshal(schemaBytes, &schemaData); err != nil {
		return nil, oops.Code("SEED_SCHEMA_FAILED").Wrapf(err, "parse schema JSON")
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("seed.schema.json", schemaData); err != nil {
		return nil, oops.Code("SEED_SCHEMA_FAILED").Wrapf(err, "add schema resource")
	}
	sch, err := c.Compile("seed.schema.json")
	if err != nil {
		return nil, oops.Code("SEED_SCHEMA_FAILED").Wrapf(err, "compile schema")
	}
	return sch, nil
}

// toJSONTypes converts yaml.v3 output to the types the validator expects.
// Values of other types, such as timestamps, go through a JSON round trip.
func toJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = toJSONTypes(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = toJSONTypes(v)
		}
		return out
	case string, int, int64, float64, bool, nil:
		return val
	default:
		if b, err := json.Marshal(val); err == nil {
			var out any
			if err := json.Unmarshal(b, &out); err == nil {
				return out
			}
		}
		return val
	}
}

// FormatSchemaError returns the validator's message without the wrapping
// prefix, for display on a terminal.
func FormatSchemaError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	_, rest, found := strings.Cut(msg, "schema validation failed: ")
	if found {
		return rest
	}
	return msg
}
