package core

import (
	"fmt"
	"regexp"
)

var flowNamePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Fragment is an instruction appended to the user prompt only when Field is
// present and non-empty. Text is template source rendered with the same data
// as the main template.
type Fragment struct {
	Field string `json:"field" yaml:"field"`
	Text  string `json:"text" yaml:"text"`
}

// Flow is one content-generation capability: an input shape, a prompt template
// and an output shape.
type Flow struct {
	Name        string            `json:"name" yaml:"name"`
	Title       string            `json:"title,omitempty" yaml:"title,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string            `json:"category,omitempty" yaml:"category,omitempty"`
	System      string            `json:"system,omitempty" yaml:"system,omitempty"`
	Template    string            `json:"template" yaml:"template"`
	Fragments   []Fragment        `json:"fragments,omitempty" yaml:"fragments,omitempty"`
	Input       []Field           `json:"input" yaml:"input"`
	Output      Shape             `json:"output" yaml:"output"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// RenderedPrompt is the result of applying a flow's template to a ValidatedInput.
type RenderedPrompt struct {
	Flow   string `json:"flow"`
	System string `json:"system,omitempty"`
	User   string `json:"user"`
}

// RawCompletion is the untrusted text returned by a completion service.
type RawCompletion struct {
	Text         string
	Model        string
	Usage        Usage
	FinishReason string
}

// Field returns the input field with the given name.
func (f *Flow) Field(name string) (Field, bool) {
	for _, fd := range f.Input {
		if fd.Name == name {
			return fd, true
		}
	}
	return Field{}, false
}

// Check reports problems with the flow declaration itself. It does not compile
// templates; the template engine does that.
func (f *Flow) Check() error {
	if f.Name == "" {
		return fmt.Errorf("flow has no name")
	}
	if !flowNamePattern.MatchString(f.Name) {
		return fmt.Errorf("flow %q: name must be lowercase kebab-case", f.Name)
	}
	if f.Template == "" {
		return fmt.Errorf("flow %q: empty template", f.Name)
	}
	seen := make(map[string]bool, len(f.Input))
	for i, fd := range f.Input {
		if fd.Name == "" {
			return fmt.Errorf("flow %q: input field %d has no name", f.Name, i)
		}
		if seen[fd.Name] {
			return fmt.Errorf("flow %q: duplicate input field %q", f.Name, fd.Name)
		}
		seen[fd.Name] = true
		if err := fd.checkDecl(); err != nil {
			return fmt.Errorf("flow %q: input %q: %w", f.Name, fd.Name, err)
		}
	}
	for _, fr := range f.Fragments {
		fd, ok := f.Field(fr.Field)
		if !ok {
			return fmt.Errorf("flow %q: fragment references unknown field %q", f.Name, fr.Field)
		}
		if !fd.Optional {
			return fmt.Errorf("flow %q: fragment field %q must be optional", f.Name, fr.Field)
		}
	}
	if err := f.Output.Check(); err != nil {
		return fmt.Errorf("flow %q: output: %w", f.Name, err)
	}
	return nil
}

func (fd *Field) checkDecl() error {
	switch fd.Type {
	case FieldTypeString, FieldTypeNumber, FieldTypeBool:
	case FieldTypeEnum:
		if len(fd.Choices) == 0 {
			return fmt.Errorf("enum without choices")
		}
	default:
		return fmt.Errorf("unknown type %q", fd.Type)
	}
	if fd.MinLength < 0 || fd.MaxLength < 0 {
		return fmt.Errorf("negative length bound")
	}
	if fd.MaxLength > 0 && fd.MinLength > fd.MaxLength {
		return fmt.Errorf("min_length %d exceeds max_length %d", fd.MinLength, fd.MaxLength)
	}
	if fd.Min != nil && fd.Max != nil && *fd.Min > *fd.Max {
		return fmt.Errorf("min %s exceeds max %s", formatNumber(*fd.Min), formatNumber(*fd.Max))
	}
	if fd.Default != nil {
		if _, msg := fd.check(fd.Default); msg != "" {
			return fmt.Errorf("default %v: %s", fd.Default, msg)
		}
	}
	return nil
}

// Copy returns a deep copy of the flow.
func (f *Flow) Copy() *Flow {
	q := *f
	q.Fragments = append([]Fragment(nil), f.Fragments...)
	q.Input = make([]Field, len(f.Input))
	for i, fd := range f.Input {
		fd.Choices = append([]string(nil), fd.Choices...)
		if fd.Min != nil {
			m := *fd.Min
			fd.Min = &m
		}
		if fd.Max != nil {
			m := *fd.Max
			fd.Max = &m
		}
		q.Input[i] = fd
	}
	q.Output = f.Output.Copy()
	if f.Metadata != nil {
		q.Metadata = make(map[string]string, len(f.Metadata))
		for k, v := range f.Metadata {
			q.Metadata[k] = v
		}
	}
	return &q
}
