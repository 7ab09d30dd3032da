package core

import "sort"

// RawInput is an untyped form submission.
type RawInput map[string]interface{}

// ValidatedInput is a value that conforms to a flow's input shape. The zero
// value is empty; only ValidateInput produces populated values.
type ValidatedInput struct {
	values map[string]interface{}
}

// Get returns the value for name and whether it is present.
func (v ValidatedInput) Get(name string) (interface{}, bool) {
	val, ok := v.values[name]
	return val, ok
}

// String returns the value for name rendered as text ("" when absent).
func (v ValidatedInput) String(name string) string {
	return CoerceToString(v.values[name])
}

// Has reports whether name is present with a non-empty value.
func (v ValidatedInput) Has(name string) bool {
	val, ok := v.values[name]
	return ok && !isEmpty(val)
}

// Names returns the present field names, sorted.
func (v ValidatedInput) Names() []string {
	names := make([]string, 0, len(v.values))
	for k := range v.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Fields returns a copy of the validated values.
func (v ValidatedInput) Fields() map[string]interface{} {
	m := make(map[string]interface{}, len(v.values))
	for k, val := range v.values {
		m[k] = val
	}
	return m
}

// ValidateInput checks raw against the flow's input fields. All violations are
// collected and returned together as a *ValidationError, in field order. Keys
// not declared by the flow are dropped.
func ValidateInput(flow *Flow, raw RawInput) (ValidatedInput, error) {
	values := make(map[string]interface{}, len(flow.Input))
	var problems []FieldError
	for i := range flow.Input {
		f := &flow.Input[i]
		val, ok := raw[f.Name]
		if !ok || isEmpty(val) {
			switch {
			case f.Default != nil:
				values[f.Name] = f.Default
			case f.Optional:
			default:
				problems = append(problems, FieldError{Field: f.Name, Value: val, Message: "required field is missing"})
			}
			continue
		}
		accepted, msg := f.check(val)
		if msg != "" {
			problems = append(problems, FieldError{Field: f.Name, Value: val, Message: msg})
			continue
		}
		values[f.Name] = accepted
	}
	if len(problems) > 0 {
		return ValidatedInput{}, &ValidationError{Flow: flow.Name, Fields: problems}
	}
	return ValidatedInput{values: values}, nil
}
