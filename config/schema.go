package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON schema for the configuration file shape.
func Schema() *jsonschema.Schema {
	r := new(jsonschema.Reflector)
	schema := r.Reflect(&FileConfig{})
	schema.ID = "https://github.com/bnema/prefstore/config.schema.json"
	schema.Title = "Settings Store Configuration"
	schema.Description = "Configuration schema for the prefstore settings file"
	return schema
}

// WriteSchemaFile generates the JSON schema next to the configuration so
// editors can validate and complete it.
func WriteSchemaFile(path string) error {
	data, err := json.MarshalIndent(Schema(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write schema file: %w", err)
	}
	return nil
}
