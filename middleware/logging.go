package middleware

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/klejdi94/quill/core"
	"github.com/klejdi94/quill/provider"
)

type loggingProvider struct {
	passthrough
	logger *zap.Logger
}

// Logging returns a middleware that logs each Complete call.
func Logging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(p provider.Provider) provider.Provider {
		return &loggingProvider{passthrough: passthrough{next: p}, logger: logger.Named("provider")}
	}
}

func (l *loggingProvider) Complete(ctx context.Context, req provider.CompletionRequest) (*provider.CompletionResponse, error) {
	start := time.Now()
	l.logger.Debug("complete",
		zap.String("model", req.Model),
		zap.String("schema", req.SchemaName),
		zap.Int("prompt_len", len(req.Prompt)))
	resp, err := l.next.Complete(ctx, req)
	if err != nil {
		fields := []zap.Field{
			zap.String("model", req.Model),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err),
		}
		var perr *core.ProviderError
		if errors.As(err, &perr) {
			fields = append(fields, zap.String("kind", string(perr.Kind)), zap.Int("status", perr.StatusCode))
		}
		l.logger.Warn("complete failed", fields...)
		return nil, err
	}
	l.logger.Info("complete",
		zap.String("model", resp.Model),
		zap.Duration("latency", time.Since(start)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.String("finish_reason", resp.FinishReason))
	return resp, nil
}
