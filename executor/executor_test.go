package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/klejdi94/quill/analytics"
	"github.com/klejdi94/quill/core"
	"github.com/klejdi94/quill/provider"
)

type mapCatalog map[string]*core.Flow

func (m mapCatalog) Get(name string) (*core.Flow, bool) {
	f, ok := m[name]
	return f, ok
}

type fakeProvider struct {
	calls   atomic.Int32
	content string
	err     error
	block   bool

	mu   sync.Mutex
	last provider.CompletionRequest
}

func (f *fakeProvider) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &provider.CompletionResponse{
		Content: f.content,
		Model:   "fake-1",
		Usage:   provider.TokenUsage{PromptTokens: 12, CompletionTokens: 8, TotalTokens: 20},
	}, nil
}

func (f *fakeProvider) GetModelInfo(model string) (*provider.ModelInfo, error) {
	return &provider.ModelInfo{ID: model, Provider: "fake"}, nil
}

func (f *fakeProvider) request() provider.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func testCatalog() mapCatalog {
	return mapCatalog{
		"topic-hashtags": {
			Name:     "topic-hashtags",
			System:   "You are a social media strategist.",
			Template: "Suggest hashtags for: {{.description}}",
			Input:    []core.Field{core.String("description", core.MinLength(3))},
			Output:   core.Shape{core.List("hashtags")},
		},
		"blog-post": {
			Name:     "blog-post",
			Template: "Write a {{.wordCount}}-word {{.tone}} blog post about {{.topic}}.",
			Fragments: []core.Fragment{
				{Field: "keywords", Text: "Include these keywords: {{.keywords}}."},
			},
			Input: []core.Field{
				core.String("topic", core.MinLength(10)),
				core.String("keywords", core.Optional()),
				core.Enum("tone", []string{"professional", "casual", "funny", "informative", "inspirational"}),
				core.Number("wordCount", core.Min(600), core.Max(2500)),
			},
			Output: core.Shape{core.Text("title"), core.Text("content")},
		},
	}
}

func TestRun_TopicHashtags(t *testing.T) {
	p := &fakeProvider{content: `{"hashtags":["#coffee","#latteart","#barista"]}`}
	rec := analytics.NewMemoryStore(0)
	e := New(testCatalog(), p, WithRecorder(rec))

	res, err := e.Run(context.Background(), "topic-hashtags", core.RawInput{"description": "latte art at home"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), p.calls.Load())
	assert.Equal(t, []string{"#coffee", "#latteart", "#barista"}, res.Output.Strings("hashtags"))
	assert.Equal(t, "topic-hashtags", res.Flow)
	assert.Equal(t, "fake-1", res.Model)
	assert.Equal(t, 20, res.Usage.TotalTokens)
	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, "Suggest hashtags for: latte art at home", res.Prompt.User)

	req := p.request()
	assert.Equal(t, "You are a social media strategist.", req.System)
	assert.Equal(t, "topic_hashtags", req.SchemaName)
	assert.Equal(t, core.Shape{core.List("hashtags")}, req.Shape)

	agg, err := rec.Query(context.Background(), analytics.Query{GroupBy: "stage"})
	require.NoError(t, err)
	require.Len(t, agg, 1)
	assert.Equal(t, "done", agg[0].Key)
	assert.Equal(t, int64(1), agg[0].SuccessCount)
}

func TestRun_ValidationFailureSkipsProvider(t *testing.T) {
	p := &fakeProvider{content: `{"hashtags":[]}`}
	e := New(testCatalog(), p)

	_, err := e.Run(context.Background(), "topic-hashtags", core.RawInput{"description": "ab"})
	require.Error(t, err)
	assert.Equal(t, int32(0), p.calls.Load())

	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	msg, ok := verr.Field("description")
	require.True(t, ok)
	assert.Contains(t, msg, "minimum length 3")

	var rerr *core.RequestError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, core.StageValidatingInput, rerr.Stage)
	assert.Equal(t, "validation", ErrorKind(err))
}

func TestRun_BlogPostValidation(t *testing.T) {
	p := &fakeProvider{content: `{"title":"T","content":"C"}`}
	e := New(testCatalog(), p)

	_, err := e.Run(context.Background(), "blog-post", core.RawInput{
		"topic": "short", "tone": "angry", "wordCount": 100,
	})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)
	assert.Equal(t, int32(0), p.calls.Load())

	res, err := e.Run(context.Background(), "blog-post", core.RawInput{
		"topic": "The Ultimate Guide to Remote Work", "tone": "informative", "wordCount": 800,
	})
	require.NoError(t, err)
	assert.Equal(t, "T", res.Output.String("title"))
	assert.NotContains(t, p.request().Prompt, "keywords")

	_, err = e.Run(context.Background(), "blog-post", core.RawInput{
		"topic": "The Ultimate Guide to Remote Work", "tone": "informative", "wordCount": 800,
		"keywords": "productivity, telecommuting",
	})
	require.NoError(t, err)
	assert.Contains(t, p.request().Prompt, "productivity, telecommuting")
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestRun_UnknownFlow(t *testing.T) {
	p := &fakeProvider{content: `{}`}
	rec := analytics.NewMemoryStore(0)
	e := New(testCatalog(), p, WithRecorder(rec))

	_, err := e.Run(context.Background(), "does-not-exist", core.RawInput{"description": "anything"})
	require.Error(t, err)
	assert.Equal(t, int32(0), p.calls.Load())

	var uerr *core.UnknownFlowError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "does-not-exist", uerr.Name)
	assert.ErrorIs(t, err, core.ErrFlowNotFound)

	var rerr *core.RequestError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, core.StageReceived, rerr.Stage)

	agg, err := rec.Query(context.Background(), analytics.Query{GroupBy: "error"})
	require.NoError(t, err)
	require.Len(t, agg, 1)
	assert.Equal(t, "unknown_flow", agg[0].Key)
}

func TestRun_ProviderFailureNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind core.ProviderErrorKind
	}{
		{"rate limited", &core.ProviderError{Kind: core.ProviderRateLimited, Provider: "fake", StatusCode: 429}, core.ProviderRateLimited},
		{"unavailable", &core.ProviderError{Kind: core.ProviderUnavailable, Provider: "fake", StatusCode: 503}, core.ProviderUnavailable},
		{"plain error", errors.New("connection reset"), core.ProviderNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{err: tt.err}
			e := New(testCatalog(), p)

			res, err := e.Run(context.Background(), "topic-hashtags", core.RawInput{"description": "latte art"})
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, int32(1), p.calls.Load())

			var perr *core.ProviderError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.kind, perr.Kind)
			assert.ErrorIs(t, err, core.ErrProvider)

			var rerr *core.RequestError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, core.StageCallingProvider, rerr.Stage)
		})
	}
}

func TestRun_SchemaMismatchLogged(t *testing.T) {
	obs, logs := observer.New(zapcore.WarnLevel)
	p := &fakeProvider{content: `{"hashtags":"#one #two"}`}
	e := New(testCatalog(), p, WithLogger(zap.New(obs)))

	_, err := e.Run(context.Background(), "topic-hashtags", core.RawInput{"description": "latte art"})
	require.Error(t, err)
	assert.Equal(t, int32(1), p.calls.Load())
	assert.Equal(t, "schema_mismatch", ErrorKind(err))
	assert.ErrorIs(t, err, core.ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "hashtags: expected array of strings")

	entries := logs.FilterMessage("completion does not match output shape").All()
	require.Len(t, entries, 1)
	assert.Equal(t, `{"hashtags":"#one #two"}`, entries[0].ContextMap()["body"])
}

func TestRun_SchemaMismatchError(t *testing.T) {
	p := &fakeProvider{content: "Sure! Here are some hashtags: #coffee"}
	e := New(testCatalog(), p)

	_, err := e.Run(context.Background(), "topic-hashtags", core.RawInput{"description": "latte art"})
	var serr *core.SchemaMismatchError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "topic-hashtags", serr.Flow)

	var rerr *core.RequestError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, core.StageValidatingOutput, rerr.Stage)
}

func TestRun_Timeout(t *testing.T) {
	p := &fakeProvider{block: true}
	e := New(testCatalog(), p, WithTimeout(20*time.Millisecond))

	_, err := e.Run(context.Background(), "topic-hashtags", core.RawInput{"description": "latte art"})
	var perr *core.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, core.ProviderTimeout, perr.Kind)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestRun_Options(t *testing.T) {
	p := &fakeProvider{content: `{"hashtags":["#a"]}`}
	e := New(testCatalog(), p, WithDefaults(WithModel("base"), WithTemperature(0.2)))

	res, err := e.Run(context.Background(), "topic-hashtags", core.RawInput{"description": "latte art"},
		WithModel("override"), WithMaxTokens(64), WithTopP(0.9), WithStop("\n\n"), WithRequestID("req-1"))
	require.NoError(t, err)
	assert.Equal(t, "req-1", res.RequestID)

	req := p.request()
	assert.Equal(t, "override", req.Model)
	assert.Equal(t, 0.2, req.Temperature)
	assert.Equal(t, 64, req.MaxTokens)
	assert.Equal(t, 0.9, req.TopP)
	assert.Equal(t, []string{"\n\n"}, req.StopTokens)
	assert.Equal(t, "req-1", req.Metadata["request_id"])
}

func TestRender_NoProviderCall(t *testing.T) {
	p := &fakeProvider{}
	e := New(testCatalog(), p)

	rendered, err := e.Render(context.Background(), "topic-hashtags", core.RawInput{"description": "latte art"})
	require.NoError(t, err)
	assert.Equal(t, "Suggest hashtags for: latte art", rendered.User)
	assert.Equal(t, int32(0), p.calls.Load())

	_, err = e.Render(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, core.ErrFlowNotFound)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
	assert.Equal(t, "é...", truncate("ééé", 3))
	assert.Equal(t, "...", truncate("日本", 2))
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, "render", ErrorKind(core.ErrRenderFailed))
	assert.Equal(t, "provider_timeout", ErrorKind(&core.ProviderError{Kind: core.ProviderTimeout}))
	assert.Equal(t, "internal", ErrorKind(errors.New("boom")))
}
