package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateSchema generates the JSON Schema for the core tdm configuration.
// Top-level keys outside Config are allowed so extensions such as logging
// can live in the same file.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
		ExpandedStruct:             true,
		FieldNameTag:               "yaml",
	}

	schema := r.Reflect(&Config{})
	schema.Title = "tdm Configuration"
	schema.Description = "Schema for tdm.yml"
	schema.AdditionalProperties = nil

	return json.MarshalIndent(schema, "", "  ")
}
