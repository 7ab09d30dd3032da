// Package template renders flow prompts from validated input.
package template

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/klejdi94/quill/core"
)

// DefaultCacheSize is the number of compiled templates kept by NewEngine.
const DefaultCacheSize = 256

// Engine renders flow templates using Go text/template with custom functions.
//
// Input values are passed to templates as data and are never parsed as
// template source, so delimiters typed by a user are printed literally. String
// values are sanitized first: control characters other than newline and tab are
// removed and CRLF line endings become LF.
type Engine struct {
	leftDelim  string
	rightDelim string
	funcMap    template.FuncMap
	cacheSize  int
	cache      *lru.Cache[string, *template.Template]
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithDelims sets custom delimiters (default "{{" and "}}").
func WithDelims(left, right string) EngineOption {
	return func(e *Engine) {
		e.leftDelim = left
		e.rightDelim = right
	}
}

// WithFuncMap adds custom template functions.
func WithFuncMap(fm template.FuncMap) EngineOption {
	return func(e *Engine) {
		for k, v := range fm {
			e.funcMap[k] = v
		}
	}
}

// WithCacheSize sets how many compiled templates are kept.
func WithCacheSize(n int) EngineOption {
	return func(e *Engine) {
		e.cacheSize = n
	}
}

// NewEngine creates a new template engine with default or custom options.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		leftDelim:  "{{",
		rightDelim: "}}",
		funcMap:    defaultFuncMap(),
		cacheSize:  DefaultCacheSize,
	}
	for _, o := range opts {
		o(e)
	}
	if e.cacheSize <= 0 {
		e.cacheSize = DefaultCacheSize
	}
	// only fails for a non-positive size
	e.cache, _ = lru.New[string, *template.Template](e.cacheSize)
	return e
}

func defaultFuncMap() template.FuncMap {
	return template.FuncMap{
		"join":    strings.Join,
		"upper":   strings.ToUpper,
		"lower":   strings.ToLower,
		"trim":    strings.TrimSpace,
		"default": defaultFunc,
		"json":    jsonFunc,
		"quote":   strconv.Quote,
		"list":    listFunc,
	}
}

func defaultFunc(def, val interface{}) interface{} {
	if val == nil || val == "" {
		return def
	}
	return val
}

func jsonFunc(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// listFunc turns a comma separated value into a bulleted list.
func listFunc(v interface{}) string {
	var b strings.Builder
	for _, item := range strings.Split(core.CoerceToString(v), ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(item)
	}
	return b.String()
}

// Render applies the flow's system prompt, template and conditional fragments
// to input. The result depends only on the flow and the input.
func (e *Engine) Render(ctx context.Context, flow *core.Flow, input core.ValidatedInput) (*core.RenderedPrompt, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	data := templateData(flow, input)
	system, err := e.execute(flow.Name, "system", flow.System, data)
	if err != nil {
		return nil, fmt.Errorf("%w: system: %w", core.ErrRenderFailed, err)
	}
	user, err := e.execute(flow.Name, "template", flow.Template, data)
	if err != nil {
		return nil, fmt.Errorf("%w: template: %w", core.ErrRenderFailed, err)
	}
	for i, fr := range flow.Fragments {
		if !input.Has(fr.Field) {
			continue
		}
		text, err := e.execute(flow.Name, "fragment:"+fr.Field, fr.Text, data)
		if err != nil {
			return nil, fmt.Errorf("%w: fragment %d: %w", core.ErrRenderFailed, i, err)
		}
		user = strings.TrimRight(user, "\n") + "\n" + text
	}
	return &core.RenderedPrompt{
		Flow:   flow.Name,
		System: strings.TrimSpace(system),
		User:   strings.TrimSpace(user),
	}, nil
}

// Compile parses every template of the flow so errors surface at load time.
func (e *Engine) Compile(flow *core.Flow) error {
	if _, err := e.compile(flow.Name, "system", flow.System); err != nil {
		return fmt.Errorf("%w: %s system: %w", core.ErrRenderFailed, flow.Name, err)
	}
	if _, err := e.compile(flow.Name, "template", flow.Template); err != nil {
		return fmt.Errorf("%w: %s template: %w", core.ErrRenderFailed, flow.Name, err)
	}
	for _, fr := range flow.Fragments {
		if _, err := e.compile(flow.Name, "fragment:"+fr.Field, fr.Text); err != nil {
			return fmt.Errorf("%w: %s fragment %s: %w", core.ErrRenderFailed, flow.Name, fr.Field, err)
		}
	}
	return nil
}

// templateData exposes every declared input field; absent ones are "" so that
// {{if .field}} is false and {{.field}} prints nothing.
func templateData(flow *core.Flow, input core.ValidatedInput) map[string]interface{} {
	data := make(map[string]interface{}, len(flow.Input))
	for _, f := range flow.Input {
		v, ok := input.Get(f.Name)
		if !ok {
			data[f.Name] = ""
			continue
		}
		if s, ok := v.(string); ok {
			v = Sanitize(s)
		}
		data[f.Name] = v
	}
	return data
}

// Sanitize removes control characters other than newline and tab and
// normalizes line endings.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f || (r >= 0x80 && r < 0xa0) {
			return -1
		}
		return r
	}, s)
}

// execute runs a single cached template with data.
func (e *Engine) execute(flow, part, src string, data map[string]interface{}) (string, error) {
	if src == "" {
		return "", nil
	}
	t, err := e.compile(flow, part, src)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (e *Engine) compile(flow, part, src string) (*template.Template, error) {
	if src == "" {
		return nil, nil
	}
	sum := sha256.Sum256([]byte(src))
	key := flow + "\x00" + part + "\x00" + hex.EncodeToString(sum[:])
	if t, ok := e.cache.Get(key); ok {
		return t, nil
	}
	t, err := template.New(flow).
		Delims(e.leftDelim, e.rightDelim).
		Funcs(e.funcMap).
		Option("missingkey=error").
		Parse(src)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, t)
	return t, nil
}
