package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blogPostFlow() *Flow {
	return &Flow{
		Name:     "blog-post",
		Template: "Write about {{.topic}}",
		Input: []Field{
			String("topic", MinLength(10)),
			String("keywords", Optional()),
			Enum("tone", []string{"professional", "casual", "funny", "informative", "inspirational"}),
			Number("wordCount", Min(600), Max(2500)),
		},
		Output: Shape{Text("title"), Text("content")},
	}
}

func TestValidateInput_Identity(t *testing.T) {
	raw := RawInput{
		"topic":     "The Ultimate Guide to Remote Work",
		"tone":      "informative",
		"wordCount": 800,
		"extra":     "dropped",
	}
	in, err := ValidateInput(blogPostFlow(), raw)
	require.NoError(t, err)
	for _, name := range []string{"topic", "tone", "wordCount"} {
		v, ok := in.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, raw[name], v, name)
	}
	assert.False(t, in.Has("keywords"))
	_, ok := in.Get("extra")
	assert.False(t, ok)
	assert.Equal(t, []string{"tone", "topic", "wordCount"}, in.Names())
}

func TestValidateInput_CollectsAllViolations(t *testing.T) {
	_, err := ValidateInput(blogPostFlow(), RawInput{
		"topic":     "short",
		"tone":      "angry",
		"wordCount": 100,
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, ErrValidationFailed)
	require.Len(t, verr.Fields, 3)
	assert.Equal(t, "topic", verr.Fields[0].Field)
	assert.Contains(t, verr.Fields[0].Message, "minimum length 10")
	assert.Equal(t, "tone", verr.Fields[1].Field)
	assert.Equal(t, "wordCount", verr.Fields[2].Field)
	assert.Contains(t, verr.Fields[2].Message, "at least 600")
}

func TestValidateInput_Missing(t *testing.T) {
	tests := []struct {
		name  string
		raw   RawInput
		field string
	}{
		{"absent", RawInput{"tone": "casual", "wordCount": 700}, "topic"},
		{"empty string", RawInput{"topic": "", "tone": "casual", "wordCount": 700}, "topic"},
		{"blank string", RawInput{"topic": " \t\n ", "tone": "casual", "wordCount": 700}, "topic"},
		{"nil", RawInput{"topic": "a long enough topic", "tone": nil, "wordCount": 700}, "tone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateInput(blogPostFlow(), tt.raw)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			msg, ok := verr.Field(tt.field)
			require.True(t, ok)
			assert.Equal(t, "required field is missing", msg)
		})
	}
}

func TestValidateInput_NumberNormalization(t *testing.T) {
	f := blogPostFlow()
	in, err := ValidateInput(f, RawInput{"topic": "a long enough topic", "tone": "funny", "wordCount": "1200"})
	require.NoError(t, err)
	v, _ := in.Get("wordCount")
	assert.Equal(t, 1200.0, v)

	in, err = ValidateInput(f, RawInput{"topic": "a long enough topic", "tone": "funny", "wordCount": json.Number("900")})
	require.NoError(t, err)
	assert.Equal(t, "900", in.String("wordCount"))

	_, err = ValidateInput(f, RawInput{"topic": "a long enough topic", "tone": "funny", "wordCount": "lots"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	msg, _ := verr.Field("wordCount")
	assert.Equal(t, "expected number", msg)
}

func TestValidateInput_Defaults(t *testing.T) {
	f := &Flow{
		Name:     "captions",
		Template: "x",
		Input: []Field{
			Number("count", Default(5)),
			Bool("emoji", Default(true)),
		},
		Output: Shape{List("captions")},
	}
	in, err := ValidateInput(f, RawInput{})
	require.NoError(t, err)
	v, _ := in.Get("count")
	assert.Equal(t, 5, v)
	assert.True(t, in.Has("emoji"))

	_, err = ValidateInput(f, RawInput{"emoji": "yes"})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestValidateInput_LengthCountsRunes(t *testing.T) {
	f := &Flow{
		Name:     "bio",
		Template: "x",
		Input:    []Field{String("name", MinLength(3), MaxLength(4))},
		Output:   Shape{Text("bio")},
	}
	_, err := ValidateInput(f, RawInput{"name": "café"})
	assert.NoError(t, err)
	_, err = ValidateInput(f, RawInput{"name": "cafés"})
	assert.Error(t, err)
}

func TestValidateInput_BlankOptionalAbsent(t *testing.T) {
	in, err := ValidateInput(blogPostFlow(), RawInput{"topic": "a long enough topic", "tone": "funny", "wordCount": 700, "keywords": "   "})
	require.NoError(t, err)
	assert.False(t, in.Has("keywords"))
}
