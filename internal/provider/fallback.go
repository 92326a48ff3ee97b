package provider

import (
	"context"
	"errors"
	"log/slog"

	"github.com/anatolykoptev/huddle/internal/config"
)

// withFallback wraps a primary Provider and retries on any error with a fallback.
type withFallback struct {
	primary  Provider
	fallback Provider
}

// New creates a Provider from configuration. When a fallback endpoint is
// configured it is chained after the primary.
func New(cfg config.LLMConfig) Provider {
	primary := NewOpenAI(Options{
		Name:    "primary",
		BaseURL: cfg.URL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	})
	if !cfg.HasFallback() {
		return primary
	}

	// Inherit primary URL/model/key if not explicitly overridden.
	url, model, key := cfg.FallbackURL, cfg.FallbackModel, cfg.FallbackAPIKey
	if url == "" {
		url = cfg.URL
	}
	if model == "" {
		model = cfg.Model
	}
	if key == "" {
		key = cfg.APIKey
	}

	slog.Info("LLM fallback provider configured",
		slog.String("url", url),
		slog.String("model", model))

	return &withFallback{
		primary: primary,
		fallback: NewOpenAI(Options{
			Name:    "fallback",
			BaseURL: url,
			APIKey:  key,
			Model:   model,
			Timeout: cfg.Timeout,
		}),
	}
}

// Chat tries the primary provider; on any error tries the fallback.
// Deltas already streamed by a failed primary are not retracted.
func (w *withFallback) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, onDelta DeltaFunc) (*Response, error) {
	resp, err := w.primary.Chat(ctx, messages, tools, onDelta)
	if err == nil {
		return resp, nil
	}
	if w.fallback == nil || ctx.Err() != nil {
		return nil, err
	}

	slog.Warn("primary LLM failed, trying fallback",
		slog.String("error", err.Error()),
		slog.Bool("auth_error", isAuthError(err)),
		slog.Bool("transient", isTransient(err)))

	return w.fallback.Chat(ctx, messages, tools, onDelta)
}

// isAuthError reports whether the endpoint rejected the API key.
func isAuthError(err error) bool {
	var ee *EndpointError
	return errors.As(err, &ee) && ee.IsAuth()
}

// isTransient reports a status that may clear on its own.
func isTransient(err error) bool {
	var ee *EndpointError
	return errors.As(err, &ee) && ee.IsTransient()
}
