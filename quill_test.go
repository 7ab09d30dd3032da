package quill

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klejdi94/quill/core"
)

func TestBuilder(t *testing.T) {
	b := New("blog-post").
		WithTitle("Blog Post Generator").
		WithCategory("writing").
		WithTemplate("Write about {{.topic}}.").
		WithField(String("topic", MinLength(10))).
		WithField(String("keywords", Optional())).
		WithFragment("keywords", "Keywords: {{.keywords}}").
		WithOutput(Text("title"), Text("content")).
		WithMetadata(map[string]string{"owner": "content"})
	f, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, "blog-post", f.Name)
	assert.Len(t, f.Input, 2)
	assert.Equal(t, "content", f.Metadata["owner"])

	in, err := core.ValidateInput(f, Input{"topic": "Remote work in practice", "keywords": "async"})
	require.NoError(t, err)
	p, err := DefaultEngine().Render(context.Background(), f, in)
	require.NoError(t, err)
	assert.Equal(t, "Write about Remote work in practice.\nKeywords: async", p.User)

	// later changes to the builder do not leak into built flows
	b.WithTitle("Other")
	assert.Equal(t, "Blog Post Generator", f.Title)
}

func TestBuilder_Errors(t *testing.T) {
	_, err := New("Bad Name").WithTemplate("x").WithOutput(Text("a")).Build()
	assert.Error(t, err)

	_, err = New("broken").WithTemplate("{{.x").WithOutput(Text("a")).Build()
	assert.ErrorIs(t, err, core.ErrRenderFailed)

	assert.Panics(t, func() { New("").MustBuild() })
}
