// Package middleware provides observability and cross-cutting wrappers for
// completion providers. None of them are applied by the executor itself; the
// caller composes them around a provider.
package middleware

import (
	"github.com/klejdi94/quill/provider"
)

// Middleware wraps a provider with additional behavior (logging, metrics, cache, etc.).
type Middleware func(provider.Provider) provider.Provider

// Chain wraps p with all middlewares in order (first middleware is outermost).
func Chain(p provider.Provider, mws ...Middleware) provider.Provider {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		p = mws[i](p)
	}
	return p
}

// passthrough forwards GetModelInfo to the wrapped provider.
type passthrough struct {
	next provider.Provider
}

func (p passthrough) GetModelInfo(model string) (*provider.ModelInfo, error) {
	return p.next.GetModelInfo(model)
}
