package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// FieldType is the primitive type of an input field.
type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeNumber FieldType = "number"
	FieldTypeBool   FieldType = "bool"
	FieldTypeEnum   FieldType = "enum"
)

// Field defines one named input of a flow together with its constraints.
type Field struct {
	Name        string      `json:"name" yaml:"name"`
	Type        FieldType   `json:"type" yaml:"type"`
	Optional    bool        `json:"optional,omitempty" yaml:"optional,omitempty"`
	Default     interface{} `json:"default,omitempty" yaml:"default,omitempty"`
	MinLength   int         `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength   int         `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	Min         *float64    `json:"min,omitempty" yaml:"min,omitempty"`
	Max         *float64    `json:"max,omitempty" yaml:"max,omitempty"`
	Choices     []string    `json:"choices,omitempty" yaml:"choices,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
}

// FieldOption configures a Field (functional option).
type FieldOption func(*Field)

// Optional marks the field as not required.
func Optional() FieldOption {
	return func(f *Field) {
		f.Optional = true
	}
}

// Default sets the value used when the field is absent. It implies Optional.
func Default(val interface{}) FieldOption {
	return func(f *Field) {
		f.Default = val
		f.Optional = true
	}
}

// MinLength sets the minimum string length in characters.
func MinLength(n int) FieldOption {
	return func(f *Field) {
		f.MinLength = n
	}
}

// MaxLength sets the maximum string length in characters.
func MaxLength(n int) FieldOption {
	return func(f *Field) {
		f.MaxLength = n
	}
}

// Min sets the inclusive lower bound of a number field.
func Min(x float64) FieldOption {
	return func(f *Field) {
		f.Min = &x
	}
}

// Max sets the inclusive upper bound of a number field.
func Max(x float64) FieldOption {
	return func(f *Field) {
		f.Max = &x
	}
}

// Describe sets the field description.
func Describe(desc string) FieldOption {
	return func(f *Field) {
		f.Description = desc
	}
}

// String returns a string Field.
func String(name string, opts ...FieldOption) Field {
	return newField(name, FieldTypeString, opts)
}

// Number returns a numeric Field.
func Number(name string, opts ...FieldOption) Field {
	return newField(name, FieldTypeNumber, opts)
}

// Bool returns a boolean Field.
func Bool(name string, opts ...FieldOption) Field {
	return newField(name, FieldTypeBool, opts)
}

// Enum returns a Field whose value must be one of choices.
func Enum(name string, choices []string, opts ...FieldOption) Field {
	f := newField(name, FieldTypeEnum, opts)
	f.Choices = append([]string(nil), choices...)
	return f
}

func newField(name string, t FieldType, opts []FieldOption) Field {
	f := Field{Name: name, Type: t}
	for _, o := range opts {
		o(&f)
	}
	return f
}

// check validates a present value and returns it in its accepted form.
// Go numeric values are kept as given; numeric strings and json.Number are
// converted to float64, and boolean strings to bool, since HTML forms submit
// everything as text.
func (f *Field) check(value interface{}) (interface{}, string) {
	switch f.Type {
	case FieldTypeString:
		s, ok := value.(string)
		if !ok {
			return nil, "expected string"
		}
		return s, f.checkLength(s)
	case FieldTypeEnum:
		s, ok := value.(string)
		if !ok {
			return nil, "expected one of " + strings.Join(f.Choices, ", ")
		}
		for _, c := range f.Choices {
			if c == s {
				return s, ""
			}
		}
		return nil, fmt.Sprintf("must be one of %s", strings.Join(f.Choices, ", "))
	case FieldTypeNumber:
		accepted, n, ok := toNumber(value)
		if !ok {
			return nil, "expected number"
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, "expected a finite number"
		}
		if f.Min != nil && n < *f.Min {
			return nil, fmt.Sprintf("must be at least %s", formatNumber(*f.Min))
		}
		if f.Max != nil && n > *f.Max {
			return nil, fmt.Sprintf("must be at most %s", formatNumber(*f.Max))
		}
		return accepted, ""
	case FieldTypeBool:
		switch v := value.(type) {
		case bool:
			return v, ""
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return b, ""
			}
		}
		return nil, "expected bool"
	default:
		return nil, fmt.Sprintf("unsupported field type %q", f.Type)
	}
}

func (f *Field) checkLength(s string) string {
	n := utf8.RuneCountInString(s)
	if f.MinLength > 0 && n < f.MinLength {
		return fmt.Sprintf("must be at least %d characters (minimum length %d)", f.MinLength, f.MinLength)
	}
	if f.MaxLength > 0 && n > f.MaxLength {
		return fmt.Sprintf("must be at most %d characters (maximum length %d)", f.MaxLength, f.MaxLength)
	}
	return ""
}

// isEmpty reports whether value counts as "not supplied".
// isEmpty treats nil and blank strings as absent, so a whitespace-only value
// neither satisfies a required field nor triggers an optional fragment.
func isEmpty(value interface{}) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func toNumber(value interface{}) (interface{}, float64, bool) {
	switch v := value.(type) {
	case int:
		return v, float64(v), true
	case int8:
		return v, float64(v), true
	case int16:
		return v, float64(v), true
	case int32:
		return v, float64(v), true
	case int64:
		return v, float64(v), true
	case uint:
		return v, float64(v), true
	case uint8:
		return v, float64(v), true
	case uint16:
		return v, float64(v), true
	case uint32:
		return v, float64(v), true
	case uint64:
		return v, float64(v), true
	case float32:
		return v, float64(v), true
	case float64:
		return v, v, true
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return nil, 0, false
		}
		return n, n, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, 0, false
		}
		return n, n, true
	default:
		return nil, 0, false
	}
}

func formatNumber(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}

// CoerceToString renders a value for template output.
func CoerceToString(value interface{}) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return formatNumber(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
