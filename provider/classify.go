package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"

	"github.com/klejdi94/quill/core"
)

// ErrMalformedResponse is wrapped when a response envelope carries no usable content.
var ErrMalformedResponse = errors.New("malformed response envelope")

// StatusError is returned by the HTTP-based providers for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Body)
}

// Classify maps an error from a provider call to *core.ProviderError. It
// returns nil for nil and passes through errors that are already classified.
func Classify(name string, err error) error {
	if err == nil {
		return nil
	}
	var perr *core.ProviderError
	if errors.As(err, &perr) {
		return err
	}
	return &core.ProviderError{Kind: kindOf(err), Provider: name, StatusCode: statusOf(err), Err: err}
}

func kindOf(err error) core.ProviderErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return core.ProviderTimeout
	}
	if errors.Is(err, context.Canceled) {
		return core.ProviderCanceled
	}
	if code := statusOf(err); code != 0 {
		return KindForStatus(code)
	}
	if errors.Is(err, ErrMalformedResponse) {
		return core.ProviderMalformed
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return core.ProviderMalformed
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return core.ProviderTimeout
	}
	return core.ProviderNetwork
}

func statusOf(err error) int {
	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return oaErr.StatusCode
	}
	var anErr *anthropic.Error
	if errors.As(err, &anErr) {
		return anErr.StatusCode
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	var gErrPtr *genai.APIError
	if errors.As(err, &gErrPtr) {
		return gErrPtr.Code
	}
	var sErr *StatusError
	if errors.As(err, &sErr) {
		return sErr.StatusCode
	}
	return 0
}

// KindForStatus maps an HTTP status code to a provider error kind.
func KindForStatus(code int) core.ProviderErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return core.ProviderRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return core.ProviderTimeout
	case code >= 500:
		return core.ProviderUnavailable
	case code >= 400:
		return core.ProviderRejected
	default:
		return core.ProviderMalformed
	}
}
