// Package executor runs flows end to end: validate input, render the prompt,
// call the provider once and validate the output.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/klejdi94/quill/analytics"
	"github.com/klejdi94/quill/core"
	"github.com/klejdi94/quill/provider"
	"github.com/klejdi94/quill/template"
)

// Catalog resolves flow names. *registry.Catalog implements it.
type Catalog interface {
	Get(name string) (*core.Flow, bool)
}

// Executor runs flows from a catalog against a provider. It is safe for
// concurrent use and holds no per-request state.
type Executor struct {
	catalog  Catalog
	provider provider.Provider
	engine   *template.Engine
	logger   *zap.Logger
	recorder analytics.Recorder
	timeout  time.Duration
	defaults callOptions
	newID    func() string
}

// ExecutorOption configures the executor.
type ExecutorOption func(*Executor)

// WithLogger sets the logger (default: no-op).
func WithLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTimeout bounds each provider call. There is no timeout by default.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = d
	}
}

// WithRecorder records every run, successful or not.
func WithRecorder(r analytics.Recorder) ExecutorOption {
	return func(e *Executor) {
		e.recorder = r
	}
}

// WithEngine sets the template engine (default: template.NewEngine()).
func WithEngine(eng *template.Engine) ExecutorOption {
	return func(e *Executor) {
		if eng != nil {
			e.engine = eng
		}
	}
}

// WithDefaults sets call options applied before per-call options.
func WithDefaults(opts ...RunOption) ExecutorOption {
	return func(e *Executor) {
		for _, o := range opts {
			o(&e.defaults)
		}
	}
}

// New creates an executor over catalog and p.
func New(catalog Catalog, p provider.Provider, opts ...ExecutorOption) *Executor {
	e := &Executor{
		catalog:  catalog,
		provider: p,
		engine:   template.NewEngine(),
		logger:   zap.NewNop(),
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type callOptions struct {
	model       string
	temperature float64
	maxTokens   int
	topP        float64
	stop        []string
	requestID   string
}

// RunOption configures a single run.
type RunOption func(*callOptions)

// WithModel overrides the provider's default model.
func WithModel(model string) RunOption {
	return func(o *callOptions) {
		o.model = model
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) RunOption {
	return func(o *callOptions) {
		o.temperature = t
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) RunOption {
	return func(o *callOptions) {
		o.maxTokens = n
	}
}

// WithTopP sets nucleus sampling.
func WithTopP(p float64) RunOption {
	return func(o *callOptions) {
		o.topP = p
	}
}

// WithStop sets sequences that end the completion.
func WithStop(seqs ...string) RunOption {
	return func(o *callOptions) {
		o.stop = append([]string(nil), seqs...)
	}
}

// WithRequestID uses id instead of a generated request ID.
func WithRequestID(id string) RunOption {
	return func(o *callOptions) {
		o.requestID = id
	}
}

// Result is the outcome of a successful run.
type Result struct {
	RequestID string               `json:"request_id"`
	Flow      string               `json:"flow"`
	Output    core.ValidatedOutput `json:"output"`
	Prompt    *core.RenderedPrompt `json:"-"`
	Model     string               `json:"model"`
	Usage     core.Usage           `json:"usage"`
	Latency   time.Duration        `json:"latency"`
}

// run carries the state of one request through the stages.
type run struct {
	id     string
	flow   string
	stage  core.Stage
	start  time.Time
	logger *zap.Logger
}

func (r *run) enter(s core.Stage) {
	r.stage = s
	r.logger.Debug("stage", zap.String("stage", string(s)))
}

func (r *run) fail(err error) error {
	return &core.RequestError{RequestID: r.id, Flow: r.flow, Stage: r.stage, Err: err}
}

// Run executes the named flow against raw input. The provider is called at
// most once. On success the result carries a validated output; otherwise the
// error is a *core.RequestError wrapping one of the core error types.
func (e *Executor) Run(ctx context.Context, flowName string, raw core.RawInput, opts ...RunOption) (*Result, error) {
	co := e.defaults
	for _, o := range opts {
		o(&co)
	}
	r := e.begin(flowName, co)

	flow, rendered, err := e.prepare(ctx, r, raw)
	if err != nil {
		e.finish(ctx, r, nil, err)
		return nil, err
	}

	r.enter(core.StageCallingProvider)
	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	resp, err := e.provider.Complete(callCtx, provider.CompletionRequest{
		Prompt:      rendered.User,
		System:      rendered.System,
		Model:       co.model,
		Temperature: co.temperature,
		MaxTokens:   co.maxTokens,
		TopP:        co.topP,
		StopTokens:  co.stop,
		Shape:       flow.Output,
		SchemaName:  schemaName(flow.Name),
		Metadata:    map[string]interface{}{"flow": flow.Name, "request_id": r.id},
	})
	if err != nil {
		err = r.fail(provider.Classify("", err))
		r.logger.Warn("provider call failed", zap.Error(err))
		e.finish(ctx, r, nil, err)
		return nil, err
	}

	r.enter(core.StageValidatingOutput)
	completion := provider.ToRaw(resp)
	out, err := core.ParseOutput(flow.Output, completion)
	if err != nil {
		var mismatch *core.SchemaMismatchError
		if errors.As(err, &mismatch) {
			mismatch.Flow = flow.Name
		}
		r.logger.Warn("completion does not match output shape",
			zap.Error(err),
			zap.String("model", completion.Model),
			zap.String("body", truncate(completion.Text, 512)))
		err = r.fail(err)
		e.finish(ctx, r, &completion, err)
		return nil, err
	}

	r.enter(core.StageDone)
	res := &Result{
		RequestID: r.id,
		Flow:      flow.Name,
		Output:    out,
		Prompt:    rendered,
		Model:     completion.Model,
		Usage:     completion.Usage,
		Latency:   time.Since(r.start),
	}
	e.finish(ctx, r, &completion, nil)
	return res, nil
}

// Render validates raw and renders the flow's prompt without calling the
// provider.
func (e *Executor) Render(ctx context.Context, flowName string, raw core.RawInput) (*core.RenderedPrompt, error) {
	r := e.begin(flowName, e.defaults)
	_, rendered, err := e.prepare(ctx, r, raw)
	if err != nil {
		return nil, err
	}
	return rendered, nil
}

func (e *Executor) begin(flowName string, co callOptions) *run {
	id := co.requestID
	if id == "" {
		id = e.newID()
	}
	r := &run{
		id:     id,
		flow:   flowName,
		stage:  core.StageReceived,
		start:  time.Now(),
		logger: e.logger.With(zap.String("request_id", id), zap.String("flow", flowName)),
	}
	return r
}

// prepare runs the stages before the provider call.
func (e *Executor) prepare(ctx context.Context, r *run, raw core.RawInput) (*core.Flow, *core.RenderedPrompt, error) {
	flow, ok := e.catalog.Get(r.flow)
	if !ok {
		err := r.fail(&core.UnknownFlowError{Name: r.flow})
		r.logger.Info("unknown flow")
		return nil, nil, err
	}

	r.enter(core.StageValidatingInput)
	in, err := core.ValidateInput(flow, raw)
	if err != nil {
		r.logger.Debug("input rejected", zap.Error(err))
		return nil, nil, r.fail(err)
	}

	r.enter(core.StageRendering)
	rendered, err := e.engine.Render(ctx, flow, in)
	if err != nil {
		r.logger.Error("render failed", zap.Error(err))
		return nil, nil, r.fail(renderError(err))
	}
	return flow, rendered, nil
}

// renderError keeps ErrRenderFailed in the chain for cancellation errors too.
func renderError(err error) error {
	if errors.Is(err, core.ErrRenderFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrRenderFailed, err)
}

func (e *Executor) finish(ctx context.Context, r *run, completion *core.RawCompletion, err error) {
	if err == nil {
		r.logger.Info("run complete", zap.Duration("latency", time.Since(r.start)))
	}
	if e.recorder == nil {
		return
	}
	rec := analytics.RunRecord{
		RequestID: r.id,
		Flow:      r.flow,
		Stage:     string(r.stage),
		LatencyMs: time.Since(r.start).Milliseconds(),
		Success:   err == nil,
		At:        r.start,
	}
	if completion != nil {
		rec.Model = completion.Model
		rec.InputTokens = completion.Usage.PromptTokens
		rec.OutputTokens = completion.Usage.CompletionTokens
	}
	if err != nil {
		rec.ErrorKind = ErrorKind(err)
	}
	// record even when the caller's context is already canceled
	if rerr := e.recorder.Record(context.WithoutCancel(ctx), rec); rerr != nil {
		r.logger.Warn("record run", zap.Error(rerr))
	}
}

// ErrorKind names the error category for logs, metrics and analytics.
func ErrorKind(err error) string {
	var perr *core.ProviderError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, core.ErrFlowNotFound):
		return "unknown_flow"
	case errors.Is(err, core.ErrValidationFailed):
		return "validation"
	case errors.Is(err, core.ErrRenderFailed):
		return "render"
	case errors.As(err, &perr):
		return "provider_" + string(perr.Kind)
	case errors.Is(err, core.ErrSchemaMismatch):
		return "schema_mismatch"
	default:
		return "internal"
	}
}

func schemaName(flow string) string {
	b := []byte(flow)
	for i, c := range b {
		if c == '-' {
			b[i] = '_'
		}
	}
	return string(b)
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
