// Package provider talks to OpenAI-compatible chat completion endpoints.
//
// Every supplier botchat knows about (DeepSeek, SiliconFlow, OpenAI, Kimi,
// Zhipu, OpenRouter, Volcengine and friends) accepts the same wire format:
//
//	POST {baseURL}/chat/completions
//	Authorization: Bearer <key>
//	{"model": ..., "messages": [...], "temperature": ..., "max_tokens": ..., "top_p": ..., "stream": ...}
//
// The package is split into a few small pieces:
//   - NewRequest turns conversation history into a request payload
//   - Client performs the HTTP exchange, streaming or not
//   - ParseStream reassembles streamed "data:" frames into full text
//   - Handle is what callers hold: either a real client or a degraded
//     placeholder when no credential is configured
//
// # Failure policy
//
// Non-streaming sends are best effort. Provider errors become a labelled
// simulated reply (see SimulatedReply) instead of an error. Streaming sends
// return their errors together with whatever text arrived, so callers can
// mark the message as failed. A blank API key is always an error, checked
// before any network call.
//
// # Usage
//
//	h := provider.NewHandle(provider.Config{
//	    BaseURL: "https://api.deepseek.com",
//	    APIKey:  key,
//	    Model:   "deepseek-chat",
//	}, logger)
//	full, err := h.SendMessageStream(ctx, provider.Input{Text: "hi"}, func(content string) {
//	    // content is the whole reply so far
//	})
package provider

import (
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-3.5-turbo"
	DefaultTimeout = 120 * time.Second

	completionsPath = "/chat/completions"
)

// ProviderType identifies the protocol family of a supplier, detected from
// its name and URL.
type ProviderType string

const (
	ProviderTypeOpenAI    ProviderType = "openai"
	ProviderTypeDeepSeek  ProviderType = "deepseek"
	ProviderTypeAnthropic ProviderType = "anthropic"
)

// DetectType maps a supplier to a protocol family by simple string matching.
func DetectType(supplierName, baseURL string) ProviderType {
	name := strings.ToLower(supplierName)
	url := strings.ToLower(baseURL)
	switch {
	case strings.Contains(url, "deepseek") || name == "deepseek":
		return ProviderTypeDeepSeek
	case strings.Contains(url, "anthropic") || name == "claude" || name == "anthropic":
		return ProviderTypeAnthropic
	default:
		return ProviderTypeOpenAI
	}
}

// Config binds a client to one supplier endpoint and model. It is a
// snapshot: later credential changes need a new Config.
type Config struct {
	Supplier   string
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Type returns the detected protocol family.
func (c Config) Type() ProviderType {
	return DetectType(c.Supplier, c.BaseURL)
}

// HasCredential reports whether the key is non-blank.
func (c Config) HasCredential() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// Endpoint returns the chat completions URL. One trailing slash on the
// base URL is dropped.
func (c Config) Endpoint() string {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	base = strings.TrimSuffix(base, "/")
	return base + completionsPath
}
