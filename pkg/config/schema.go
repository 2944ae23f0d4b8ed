package config

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON schema of the configuration file, for editor
// completion and external validation.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "yaml",
	}

	schema := reflector.Reflect(&Config{})
	schema.Version = "https://json-schema.org/draft/2020-12/schema"
	schema.Title = "eradb Configuration"
	schema.Description = "Configuration schema for the eradb command line"
	return schema
}

// SchemaJSON returns Schema indented as JSON.
func SchemaJSON() ([]byte, error) {
	data, err := json.MarshalIndent(Schema(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema: %w", err)
	}
	return data, nil
}
