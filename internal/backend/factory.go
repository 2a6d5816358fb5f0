package backend

import (
	"context"
	"fmt"

	"github.com/MrARwho/project-uvm/internal/config"
)

// PolicyFromConfig returns the retry policy configured for every stage.
func PolicyFromConfig(cfg *config.Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff(),
		MaxBackoff:     cfg.MaxBackoff(),
	}
}

// FromConfig builds the client selected by provider.kind. The credential is
// passed in rather than read here so callers decide where it comes from.
func FromConfig(ctx context.Context, cfg *config.Config, apiKey string, onRetry func(int, error)) (Client, error) {
	policy := PolicyFromConfig(cfg)
	switch cfg.Provider.Kind {
	case "", "http":
		c := NewHTTPClient(cfg.Provider.Endpoint, apiKey, cfg.Timeout(), policy)
		c.OnRetry = onRetry
		return c, nil
	case "genai":
		base := cfg.Provider.Endpoint
		if base == DefaultEndpoint {
			base = ""
		}
		return NewGenAIClient(ctx, GenAIOptions{
			APIKey:  apiKey,
			BaseURL: base,
			Timeout: cfg.Timeout(),
			Retry:   policy,
			OnRetry: onRetry,
		})
	}
	return nil, fmt.Errorf("unknown provider kind %q", cfg.Provider.Kind)
}
