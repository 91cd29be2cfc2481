// Package completion adapts language-model providers behind one Completer interface.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	// ErrEmptyResponse is returned when a provider answers without any text.
	ErrEmptyResponse = errors.New("completion: empty response")
	// ErrNotConfigured is returned when a provider lacks its credentials or endpoint.
	ErrNotConfigured = errors.New("completion: provider not configured")
)

// Role values for Message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the normalized request sent to a provider.
type Request struct {
	System   string    `json:"system"`
	Messages []Message `json:"messages"`
}

// Response is the final text produced by the model.
type Response struct {
	Text string `json:"text"`
}

// Completer produces one assistant reply for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Provider names accepted by NewCompleter.
const (
	ProviderAuto      = "auto"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderHTTP      = "http"
	ProviderMock      = "mock"
	ProviderNone      = "none"
)

// Config controls completer construction.
type Config struct {
	Provider    string
	Temperature float64
	MaxTokens   int64
	MaxRetries  int

	HTTPURL string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	AnthropicAPIKey string
	AnthropicModel  string

	GoogleAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
}

// NewCompleter builds the configured completer and reports the provider name.
// A nil Completer with a nil error means no provider is available; callers use
// direct search in that case.
func NewCompleter(cfg Config, logger *slog.Logger) (Completer, string, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderAuto
	}

	switch provider {
	case ProviderAuto:
		return newAutoCompleter(cfg, logger)
	case ProviderOpenAI:
		c, err := NewOpenAICompleter(cfg)
		return c, provider, err
	case ProviderAnthropic:
		c, err := NewAnthropicCompleter(cfg)
		return c, provider, err
	case ProviderGemini:
		c, err := NewGeminiCompleter(cfg)
		return c, provider, err
	case ProviderHTTP:
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, provider, fmt.Errorf("http provider requires a url: %w", ErrNotConfigured)
		}
		return NewHTTPCompleter(cfg.HTTPURL, cfg.MaxRetries), provider, nil
	case ProviderMock:
		return NewMockCompleter(), provider, nil
	case ProviderNone:
		return nil, provider, nil
	default:
		return nil, "", fmt.Errorf("unsupported completion provider %q", cfg.Provider)
	}
}

// newAutoCompleter picks providers by available credentials: OpenAI, then
// Anthropic, then Gemini. A second available provider becomes the fallback.
func newAutoCompleter(cfg Config, logger *slog.Logger) (Completer, string, error) {
	type candidate struct {
		name  string
		build func(Config) (Completer, error)
		key   string
	}
	candidates := []candidate{
		{ProviderOpenAI, func(c Config) (Completer, error) { return NewOpenAICompleter(c) }, cfg.OpenAIAPIKey},
		{ProviderAnthropic, func(c Config) (Completer, error) { return NewAnthropicCompleter(c) }, cfg.AnthropicAPIKey},
		{ProviderGemini, func(c Config) (Completer, error) { return NewGeminiCompleter(c) }, cfg.GoogleAPIKey},
	}

	var (
		chosen []Completer
		names  []string
	)
	for _, c := range candidates {
		if strings.TrimSpace(c.key) == "" {
			continue
		}
		completer, err := c.build(cfg)
		if err != nil {
			if logger != nil {
				logger.Warn("completion provider unavailable", "provider", c.name, "error", err)
			}
			continue
		}
		chosen = append(chosen, completer)
		names = append(names, c.name)
		if len(chosen) == 2 {
			break
		}
	}

	switch len(chosen) {
	case 0:
		return nil, ProviderNone, nil
	case 1:
		return chosen[0], names[0], nil
	default:
		return NewFallbackCompleter(chosen[0], chosen[1]), names[0] + "+" + names[1], nil
	}
}

// lastUserMessage returns the content of the most recent user message.
func lastUserMessage(req Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}
