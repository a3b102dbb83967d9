package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// JSONSchema renders the JSON schema of the configuration file, for editor
// completion and the `newswatch schema` subcommand.
func JSONSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: false,
	}
	schema := r.Reflect(&Config{})
	schema.Title = "newswatch configuration"
	return json.MarshalIndent(schema, "", "  ")
}
