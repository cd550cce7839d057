package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	antoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/v3"
	oaoption "github.com/openai/openai-go/v3/option"
)

// PingResult is the outcome of verifying one supplier.
type PingResult struct {
	Supplier string
	Valid    bool
	Err      error
}

// Ping checks that the endpoint accepts the configured key. OpenAI-style
// suppliers are checked with a model listing; Anthropic with a one-token
// message, since it has no listing that every key may call.
func Ping(ctx context.Context, cfg Config) error {
	if !cfg.HasCredential() {
		return ErrEmptyCredential
	}

	switch cfg.Type() {
	case ProviderTypeAnthropic:
		return pingAnthropic(ctx, cfg)
	default:
		return pingOpenAI(ctx, cfg)
	}
}

func pingOpenAI(ctx context.Context, cfg Config) error {
	opts := []oaoption.RequestOption{
		oaoption.WithBaseURL(cfg.withDefaults().BaseURL),
		oaoption.WithAPIKey(cfg.APIKey),
		oaoption.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, oaoption.WithHTTPClient(cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)

	if _, err := client.Models.List(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", cfg.Supplier, err)
	}
	return nil
}

func pingAnthropic(ctx context.Context, cfg Config) error {
	// The SDK appends /v1 itself.
	base := strings.TrimSuffix(strings.TrimSuffix(cfg.BaseURL, "/"), "/v1")
	if base == "" {
		base = "https://api.anthropic.com"
	}
	opts := []antoption.RequestOption{
		antoption.WithBaseURL(base),
		antoption.WithAPIKey(cfg.APIKey),
		antoption.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, antoption.WithHTTPClient(cfg.HTTPClient))
	}
	client := anthropic.NewClient(opts...)

	modelID := anthropic.ModelClaudeSonnet4_5_20250929
	if cfg.Model != "" {
		modelID = anthropic.Model(cfg.Model)
	}

	_, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     modelID,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("%s ping failed: %w", cfg.Supplier, err)
	}
	return nil
}
