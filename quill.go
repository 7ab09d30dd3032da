// Package quill turns typed content-generation flows into validated LLM
// completions: input is checked against the flow's fields, rendered into a
// prompt, sent to a completion provider once, and the reply is checked
// against the flow's output shape.
//
// Quick start:
//
//	flow, err := quill.New("topic-hashtags").
//		WithSystem("You are a social media strategist.").
//		WithTemplate("Suggest hashtags for: {{.description}}").
//		WithField(quill.String("description", quill.MinLength(3))).
//		WithOutput(quill.List("hashtags")).
//		Build()
//
//	catalog, err := registry.New(flow)
//	p, err := provider.NewOpenAI(provider.OpenAIConfig{APIKey: os.Getenv("OPENAI_API_KEY")})
//	exec := executor.New(catalog, p)
//	res, err := exec.Run(ctx, "topic-hashtags", quill.Input{"description": "latte art"})
package quill

import (
	"github.com/klejdi94/quill/core"
	"github.com/klejdi94/quill/template"
)

var defaultEngine = template.NewEngine()

// DefaultEngine returns the shared default template engine (used by Build).
func DefaultEngine() *template.Engine {
	return defaultEngine
}

// Builder constructs a Flow via a fluent API.
type Builder struct {
	flow core.Flow
}

// New starts a new flow builder with the given name.
func New(name string) *Builder {
	return &Builder{flow: core.Flow{Name: name}}
}

// WithTitle sets the human-readable title.
func (b *Builder) WithTitle(title string) *Builder {
	b.flow.Title = title
	return b
}

// WithDescription sets the description.
func (b *Builder) WithDescription(desc string) *Builder {
	b.flow.Description = desc
	return b
}

// WithCategory sets the catalog category.
func (b *Builder) WithCategory(category string) *Builder {
	b.flow.Category = category
	return b
}

// WithSystem sets the system message template.
func (b *Builder) WithSystem(system string) *Builder {
	b.flow.System = system
	return b
}

// WithTemplate sets the user message template (supports Go text/template syntax).
func (b *Builder) WithTemplate(tpl string) *Builder {
	b.flow.Template = tpl
	return b
}

// WithField adds an input field. Use String(), Number(), etc. with options.
func (b *Builder) WithField(f Field) *Builder {
	b.flow.Input = append(b.flow.Input, f)
	return b
}

// WithFragment appends text to the prompt only when the optional field is supplied.
func (b *Builder) WithFragment(field, text string) *Builder {
	b.flow.Fragments = append(b.flow.Fragments, core.Fragment{Field: field, Text: text})
	return b
}

// WithOutput adds fields to the output shape.
func (b *Builder) WithOutput(fields ...OutputField) *Builder {
	b.flow.Output = append(b.flow.Output, fields...)
	return b
}

// WithMetadata sets or merges metadata key-value pairs.
func (b *Builder) WithMetadata(m map[string]string) *Builder {
	if b.flow.Metadata == nil {
		b.flow.Metadata = make(map[string]string, len(m))
	}
	for k, v := range m {
		b.flow.Metadata[k] = v
	}
	return b
}

// Build checks the declaration, compiles its templates and returns a copy of the flow.
func (b *Builder) Build() (*core.Flow, error) {
	f := b.flow.Copy()
	if err := f.Check(); err != nil {
		return nil, err
	}
	if err := defaultEngine.Compile(f); err != nil {
		return nil, err
	}
	return f, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *core.Flow {
	f, err := b.Build()
	if err != nil {
		panic(err)
	}
	return f
}

// Re-export core types for convenience.
type (
	// Flow is a content-generation capability.
	Flow = core.Flow
	// Input is the raw, untrusted input of a run.
	Input = core.RawInput
	// Field is an input field declaration.
	Field = core.Field
	// OutputField is one field of an output shape.
	OutputField = core.OutputField
	// Output is a completion that matched its flow's output shape.
	Output = core.ValidatedOutput
)

// Field and shape constructors (re-export from core).
var (
	String    = core.String
	Number    = core.Number
	Bool      = core.Bool
	Enum      = core.Enum
	Optional  = core.Optional
	Default   = core.Default
	MinLength = core.MinLength
	MaxLength = core.MaxLength
	Min       = core.Min
	Max       = core.Max
	Describe  = core.Describe
	Text      = core.Text
	List      = core.List
	Object    = core.Object
)

// UserMessage converts any run error to a message suitable for end users.
func UserMessage(err error) string { return core.UserMessage(err) }
