// Package llm streams chat completions for already-masked prompts.
package llm

import (
	"context"
	"errors"
	"time"
)

// TimeoutLLMCall bounds a whole streamed completion.
const TimeoutLLMCall = 60 * time.Second

var (
	ErrProviderUnavailable = errors.New("llm provider unavailable")
	ErrUnknownProvider     = errors.New("unknown llm provider")
)

// SystemPrompt tells the model how to treat redacted content.
const SystemPrompt = `You are a helpful AI assistant. The user may have redacted sensitive information in their messages for privacy. ` +
	`The redacted information will be wrapped in [MASKED] tags. When referring to redacted content in your responses, do not use square brackets ` +
	`or phrases like "[redacted]" or "[masked information]". Instead, refer to it naturally - for example, use phrases like "the person you mentioned", ` +
	`"that information", or "the details you provided". Please respond naturally and helpfully while respecting the user's privacy choices.`

// Provider streams a completion, calling onDelta for each content chunk in
// order. An error from onDelta aborts the stream and is returned.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req *Request, onDelta func(string) error) error
}

// Request is a conversation ending in a masked user message.
type Request struct {
	Model       string
	History     []Message
	Masked      string
	Images      []string
	Temperature float64
	MaxTokens   int
}

// Message is a prior turn. Any role other than "user" is sent as the
// assistant.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// New returns the provider named by cfg.Provider: "openai" or "echo".
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		if cfg.APIKey == "" {
			return nil, errors.Join(ErrProviderUnavailable, errors.New("openai api key is not set"))
		}
		return NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Timeout), nil
	case "echo":
		return NewEcho(), nil
	}
	return nil, errors.Join(ErrUnknownProvider, errors.New(cfg.Provider))
}
