package core

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var fencePattern = regexp.MustCompile("(?s)^```[A-Za-z0-9_-]*[ \t]*\r?\n(.*?)\r?\n?```$")

// ValidatedOutput is a completion that conforms to a flow's output shape. Only
// ParseOutput constructs populated values.
type ValidatedOutput struct {
	values map[string]interface{}
}

// String returns the string field name.
func (o ValidatedOutput) String(name string) string {
	s, _ := o.values[name].(string)
	return s
}

// Strings returns the array-of-strings field name.
func (o ValidatedOutput) Strings(name string) []string {
	ss, _ := o.values[name].([]string)
	return append([]string(nil), ss...)
}

// Object returns the nested object field name.
func (o ValidatedOutput) Object(name string) ValidatedOutput {
	m, _ := o.values[name].(map[string]interface{})
	return ValidatedOutput{values: m}
}

// Has reports whether the field is present.
func (o ValidatedOutput) Has(name string) bool {
	_, ok := o.values[name]
	return ok
}

// Map returns a deep copy of the output as plain maps and slices.
func (o ValidatedOutput) Map() map[string]interface{} {
	return copyValues(o.values)
}

// MarshalJSON encodes the output fields.
func (o ValidatedOutput) MarshalJSON() ([]byte, error) {
	if o.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(o.values)
}

func copyValues(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case []string:
			out[k] = append([]string(nil), t...)
		case map[string]interface{}:
			out[k] = copyValues(t)
		default:
			out[k] = v
		}
	}
	return out
}

// ParseOutput validates a completion against shape. Surrounding whitespace and
// a single Markdown code fence are stripped first. Fields not declared in shape
// are ignored and dropped. Content is not judged, only structure.
func ParseOutput(shape Shape, raw RawCompletion) (ValidatedOutput, error) {
	body := StripFence(raw.Text)
	if !gjson.Valid(body) {
		return ValidatedOutput{}, &SchemaMismatchError{Problems: []string{"response is not valid JSON"}}
	}
	doc := gjson.Parse(body)
	if !doc.IsObject() {
		return ValidatedOutput{}, &SchemaMismatchError{Problems: []string{"response is not a JSON object"}}
	}
	var problems []string
	values := parseObject(shape, doc, "", &problems)
	if len(problems) > 0 {
		return ValidatedOutput{}, &SchemaMismatchError{Problems: problems}
	}
	return ValidatedOutput{values: values}, nil
}

func parseObject(shape Shape, obj gjson.Result, prefix string, problems *[]string) map[string]interface{} {
	values := make(map[string]interface{}, len(shape))
	for _, f := range shape {
		path := prefix + f.Name
		v := obj.Get(gjson.Escape(f.Name))
		if !v.Exists() || v.Type == gjson.Null {
			if !f.Optional {
				*problems = append(*problems, fmt.Sprintf("%s: required field is missing", path))
			}
			continue
		}
		switch f.Kind {
		case KindString:
			if v.Type != gjson.String {
				*problems = append(*problems, fmt.Sprintf("%s: expected string, got %s", path, describe(v)))
				continue
			}
			values[f.Name] = v.String()
		case KindStringArray:
			if !v.IsArray() {
				*problems = append(*problems, fmt.Sprintf("%s: expected array of strings, got %s", path, describe(v)))
				continue
			}
			items := v.Array()
			ss := make([]string, 0, len(items))
			ok := true
			for i, item := range items {
				if item.Type != gjson.String {
					*problems = append(*problems, fmt.Sprintf("%s[%d]: expected string, got %s", path, i, describe(item)))
					ok = false
					continue
				}
				ss = append(ss, item.String())
			}
			if ok {
				values[f.Name] = ss
			}
		case KindObject:
			if !v.IsObject() {
				*problems = append(*problems, fmt.Sprintf("%s: expected object, got %s", path, describe(v)))
				continue
			}
			before := len(*problems)
			nested := parseObject(Shape(f.Fields), v, path+".", problems)
			if len(*problems) == before {
				values[f.Name] = nested
			}
		}
	}
	return values
}

func describe(v gjson.Result) string {
	switch {
	case v.IsArray():
		return "array"
	case v.IsObject():
		return "object"
	case v.Type == gjson.Number:
		return "number"
	case v.Type == gjson.True, v.Type == gjson.False:
		return "bool"
	case v.Type == gjson.String:
		return "string"
	default:
		return "null"
	}
}

// StripFence trims whitespace and removes one surrounding Markdown code fence.
func StripFence(text string) string {
	text = strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}
