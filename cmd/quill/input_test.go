package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klejdi94/quill/core"
)

func TestParseAssignments(t *testing.T) {
	raw, err := parseAssignments([]string{"topic=Remote work = freedom", "wordCount=800", "keywords="})
	require.NoError(t, err)
	assert.Equal(t, core.RawInput{
		"topic":     "Remote work = freedom",
		"wordCount": "800",
		"keywords":  "",
	}, raw)

	_, err = parseAssignments([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseAssignments([]string{"=x"})
	assert.Error(t, err)
}

func TestDecodeInput(t *testing.T) {
	raw, err := decodeInput([]byte(`{"topic":"x","wordCount":800}`))
	require.NoError(t, err)
	assert.Equal(t, "x", raw["topic"])
	assert.Equal(t, json.Number("800"), raw["wordCount"])

	_, err = decodeInput([]byte(`[1,2]`))
	assert.Error(t, err)
}
