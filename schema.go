package persist

import (
	"github.com/invopop/jsonschema"
)

// Schema returns the JSON schema of SaveData. In the blob every space
// snapshot is additionally wrapped as {"checksum": ..., "data": <snapshot>}.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
	}
	s := r.Reflect(&SaveData{})
	s.Title = "persist save data"
	return s
}

// JSONSchema describes Token as a uuid string.
func (Token) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Format: "uuid"}
}

// JSONSchema describes SpaceID as a uuid string.
func (SpaceID) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Format:      "uuid",
		Description: "the nil uuid is the main world",
	}
}

// JSONSchema describes BaselineSet as a sorted list of tokens.
func (BaselineSet) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "array",
		Items:       &jsonschema.Schema{Type: "string", Format: "uuid"},
		UniqueItems: true,
	}
}

// JSONSchema describes PayloadKind as its textual enum.
func (PayloadKind) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "string",
		Enum: []any{"none", "storage", "item"},
	}
}
