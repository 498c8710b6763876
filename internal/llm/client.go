// Package llm provides a minimal completion client seam for the optional
// LLM-backed goal classifier. The engine works fully without it; the rule
// analyzer remains the default.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Client is a minimal single-turn completion client.
type Client interface {
	// Complete sends a prompt and returns the model's text reply.
	Complete(ctx context.Context, prompt string) (string, error)
	// ModelName returns the configured model identifier.
	ModelName() string
}

// New constructs a client for the named provider.
func New(provider, apiKey, model string) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "anthropic":
		return NewAnthropicClient(apiKey, model)
	case "openai":
		return NewOpenAIClient(apiKey, model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}
