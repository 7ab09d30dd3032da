// Package core provides the flow, shape and error types shared by every quill package.
package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors; every typed error below matches one of these with errors.Is.
var (
	ErrFlowNotFound     = errors.New("flow not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrRenderFailed     = errors.New("template render failed")
	ErrProvider         = errors.New("provider call failed")
	ErrSchemaMismatch   = errors.New("response does not match output shape")
)

// Stage is a step of the request state machine.
type Stage string

const (
	StageReceived         Stage = "received"
	StageValidatingInput  Stage = "validating_input"
	StageRendering        Stage = "rendering"
	StageCallingProvider  Stage = "calling_provider"
	StageValidatingOutput Stage = "validating_output"
	StageDone             Stage = "done"
	StageFailed           Stage = "failed"
)

// UnknownFlowError is returned when a flow name is not in the catalog.
type UnknownFlowError struct {
	Name string
}

func (e *UnknownFlowError) Error() string {
	return fmt.Sprintf("unknown flow %q", e.Name)
}

func (e *UnknownFlowError) Is(target error) bool { return target == ErrFlowNotFound }

// FieldError carries field-level validation context.
type FieldError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationError lists every input field that violated the flow's input shape,
// in declaration order.
type ValidationError struct {
	Flow   string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("invalid input for %s: %s", e.Flow, strings.Join(msgs, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }

// Field returns the message for the named field, if it failed.
func (e *ValidationError) Field(name string) (string, bool) {
	for _, f := range e.Fields {
		if f.Field == name {
			return f.Message, true
		}
	}
	return "", false
}

// ProviderErrorKind classifies completion-service failures.
type ProviderErrorKind string

const (
	ProviderNetwork     ProviderErrorKind = "network"
	ProviderTimeout     ProviderErrorKind = "timeout"
	ProviderRateLimited ProviderErrorKind = "rate_limited"
	ProviderRejected    ProviderErrorKind = "rejected"
	ProviderUnavailable ProviderErrorKind = "unavailable"
	ProviderMalformed   ProviderErrorKind = "malformed"
	ProviderCanceled    ProviderErrorKind = "canceled"
)

// ProviderError is a failure reported by, or while reaching, the completion service.
type ProviderError struct {
	Kind       ProviderErrorKind
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(" ")
	}
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// SchemaMismatchError is returned when a completion does not conform to the
// flow's output shape.
type SchemaMismatchError struct {
	Flow     string
	Problems []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("output of %s does not match shape: %s", e.Flow, strings.Join(e.Problems, "; "))
}

func (e *SchemaMismatchError) Is(target error) bool { return target == ErrSchemaMismatch }

// RequestError is the envelope for every failure returned by the executor. Err is
// one of UnknownFlowError, ValidationError, ProviderError or SchemaMismatchError,
// or a wrapped ErrRenderFailed.
type RequestError struct {
	RequestID string
	Flow      string
	Stage     Stage
	Err       error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Flow, e.Stage, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// UserMessage converts an error from the executor into a message safe to show to
// end users.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var unknown *UnknownFlowError
	var invalid *ValidationError
	var prov *ProviderError
	switch {
	case errors.As(err, &unknown):
		return fmt.Sprintf("Unknown generator %q.", unknown.Name)
	case errors.As(err, &invalid):
		msgs := make([]string, len(invalid.Fields))
		for i, f := range invalid.Fields {
			msgs[i] = f.Error()
		}
		return "Please check your input: " + strings.Join(msgs, "; ") + "."
	case errors.As(err, &prov) && prov.Kind == ProviderRateLimited:
		return "The generator is busy right now. Please try again in a minute."
	case errors.Is(err, ErrProvider), errors.Is(err, ErrSchemaMismatch):
		return "Something went wrong while generating content. Please try again."
	default:
		return "Unexpected error. Please try again."
	}
}
