package core

import "fmt"

// OutputKind is the structural type of an output field.
type OutputKind string

const (
	KindString      OutputKind = "string"
	KindStringArray OutputKind = "string_array"
	KindObject      OutputKind = "object"
)

// OutputField is one named field of an output shape.
type OutputField struct {
	Name        string        `json:"name" yaml:"name"`
	Kind        OutputKind    `json:"kind" yaml:"kind"`
	Optional    bool          `json:"optional,omitempty" yaml:"optional,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Fields      []OutputField `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Shape is the ordered set of fields a completion must contain.
type Shape []OutputField

// Text declares a string output field.
func Text(name string) OutputField {
	return OutputField{Name: name, Kind: KindString}
}

// List declares an array-of-strings output field.
func List(name string) OutputField {
	return OutputField{Name: name, Kind: KindStringArray}
}

// Object declares a nested object output field.
func Object(name string, fields ...OutputField) OutputField {
	return OutputField{Name: name, Kind: KindObject, Fields: fields}
}

// Check reports malformed shape declarations.
func (s Shape) Check() error {
	if len(s) == 0 {
		return fmt.Errorf("empty shape")
	}
	seen := make(map[string]bool, len(s))
	for _, f := range s {
		if f.Name == "" {
			return fmt.Errorf("field without name")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		switch f.Kind {
		case KindString, KindStringArray:
		case KindObject:
			if err := Shape(f.Fields).Check(); err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
		default:
			return fmt.Errorf("%s: unknown kind %q", f.Name, f.Kind)
		}
	}
	return nil
}

// Copy returns a deep copy of the shape.
func (s Shape) Copy() Shape {
	if s == nil {
		return nil
	}
	out := make(Shape, len(s))
	for i, f := range s {
		f.Fields = []OutputField(Shape(f.Fields).Copy())
		out[i] = f
	}
	return out
}

// JSONSchema describes the shape as a JSON Schema object. Providers pass it to
// the completion service as a structured-output hint.
func (s Shape) JSONSchema() map[string]interface{} {
	props := make(map[string]interface{}, len(s))
	required := make([]string, 0, len(s))
	for _, f := range s {
		props[f.Name] = f.jsonSchema()
		if !f.Optional {
			required = append(required, f.Name)
		}
	}
	return map[string]interface{}{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func (f OutputField) jsonSchema() map[string]interface{} {
	var m map[string]interface{}
	switch f.Kind {
	case KindStringArray:
		m = map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		}
	case KindObject:
		m = Shape(f.Fields).JSONSchema()
	default:
		m = map[string]interface{}{"type": "string"}
	}
	if f.Description != "" {
		m["description"] = f.Description
	}
	return m
}
