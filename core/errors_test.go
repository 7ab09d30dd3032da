package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestError_Unwrap(t *testing.T) {
	err := error(&RequestError{Flow: "x", Stage: StageCallingProvider, Err: &ProviderError{Kind: ProviderTimeout, Err: errors.New("deadline")}})
	var prov *ProviderError
	require.ErrorAs(t, err, &prov)
	assert.Equal(t, ProviderTimeout, prov.Kind)
	assert.ErrorIs(t, err, ErrProvider)
	assert.Equal(t, "x: calling_provider: timeout: deadline", err.Error())
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&RequestError{Err: &UnknownFlowError{Name: "nope"}}, `Unknown generator "nope".`},
		{&ValidationError{Fields: []FieldError{{Field: "topic", Message: "required field is missing"}}}, "Please check your input: topic: required field is missing."},
		{&ProviderError{Kind: ProviderRateLimited}, "The generator is busy right now. Please try again in a minute."},
		{fmt.Errorf("wrapped: %w", &ProviderError{Kind: ProviderNetwork}), "Something went wrong while generating content. Please try again."},
		{&SchemaMismatchError{}, "Something went wrong while generating content. Please try again."},
		{errors.New("boom"), "Unexpected error. Please try again."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UserMessage(tt.err))
	}
}
