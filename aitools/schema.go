package aitools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PropertyType represents a JSON Schema type
type PropertyType string

const (
	TypeString  PropertyType = "string"
	TypeNumber  PropertyType = "number"
	TypeInteger PropertyType = "integer"
	TypeBoolean PropertyType = "boolean"
	TypeArray   PropertyType = "array"
	TypeObject  PropertyType = "object"
)

// Property defines a single property in a JSON Schema
type Property struct {
	Type        PropertyType `json:"type"`
	Description string       `json:"description,omitempty"`
	Items       *Property    `json:"items,omitempty"`
	Properties  PropertyMap  `json:"properties,omitempty"`
	Required    []string     `json:"required,omitempty"`
	MaxItems    int          `json:"maxItems,omitempty"`
}

type PropertyMap map[string]Property

// Schema is the JSON Schema of a tool payload, always an object
type Schema struct {
	Type       PropertyType `json:"type"`
	Properties PropertyMap  `json:"properties"`
	Required   []string     `json:"required,omitempty"`
}

func (s Schema) String() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Decode unmarshals a payload into v after checking that every required
// property is present. A required string must also be non-blank.
func (s Schema) Decode(params string, v any) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(params), &raw); err != nil {
		return fmt.Errorf("invalid parameters - %v", err)
	}
	for _, name := range s.Required {
		value, ok := raw[name]
		if !ok || string(value) == "null" {
			return fmt.Errorf("%s is required", name)
		}
		if s.Properties[name].Type == TypeString {
			var str string
			if json.Unmarshal(value, &str) == nil && strings.TrimSpace(str) == "" {
				return fmt.Errorf("%s is required", name)
			}
		}
	}
	if err := json.Unmarshal([]byte(params), v); err != nil {
		return fmt.Errorf("invalid parameters - %v", err)
	}
	return nil
}
