package types

// JSONSchema is a minimal JSON Schema representation used to describe tool
// parameters. It is advisory: schemas are rendered into prompts, not
// enforced at runtime beyond "arguments must parse as JSON".
type JSONSchema struct {
	Type        string                `json:"type,omitempty"`
	Description string                `json:"description,omitempty"`
	Properties  map[string]JSONSchema `json:"properties,omitempty"`
	Items       *JSONSchema           `json:"items,omitempty"`
	Required    []string              `json:"required,omitempty"`
	Enum        []string              `json:"enum,omitempty"`
}
