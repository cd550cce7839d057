package provider

import (
	"botchat/model"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	QuoteOpen      = "<quoted_message>"
	QuoteClose     = "</quoted_message>"
	QuoteSeparator = "\n\n"

	// DeepSeekSystemPrompt is sent to DeepSeek endpoints when the bot has
	// no prompt of its own.
	DeepSeekSystemPrompt = "You are a helpful assistant."

	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
	defaultTopPStream  = 0.9
	defaultTopP        = 1.0
)

// ChatMessage is one wire-level message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the chat completions payload.
type Request struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	TopP        float64       `json:"top_p"`
	Stream      bool          `json:"stream"`
}

// Params are per-chat generation parameters. Nil means "use the default".
type Params struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
}

// ParamsFromChat copies a chat's generation settings. Zero values come from
// snapshots written before the field existed and fall back to the defaults.
func ParamsFromChat(c model.Chat) Params {
	temperature, maxTokens, topP := c.Temperature, c.MaxTokens, c.TopP
	var p Params
	if temperature > 0 {
		p.Temperature = &temperature
	}
	if maxTokens > 0 {
		p.MaxTokens = &maxTokens
	}
	if topP > 0 {
		p.TopP = &topP
	}
	return p
}

// Input is everything needed for one outgoing turn.
type Input struct {
	SystemPrompt string
	// History holds prior, already persisted messages in order.
	History []model.Message
	Text    string
	// Quote is the message the user quoted for this turn, if any. It is
	// passed explicitly so a concurrent quote action cannot race the send.
	Quote  *model.Message
	Params Params
}

// WrapQuote wraps quoted content in delimiters and appends text.
func WrapQuote(quoted, text string) string {
	return QuoteOpen + "\n" + quoted + "\n" + QuoteClose + QuoteSeparator + text
}

// BuildMessages maps history and the new text onto wire messages.
//
// Historical messages that carried a quote are re-rendered with the quote
// and the current outgoing text; existing conversations depend on that
// exact shape. A leading assistant message (the prologue) is never sent.
func BuildMessages(systemPrompt string, history []model.Message, text string, quote *model.Message) []ChatMessage {
	messages := make([]ChatMessage, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, ChatMessage{Role: RoleSystem, Content: systemPrompt})
	}

	mapped := make([]ChatMessage, 0, len(history))
	for _, m := range history {
		role := RoleAssistant
		if m.Sender == model.SenderUser {
			role = RoleUser
		}
		content := m.Content
		if m.Quoted() {
			content = WrapQuote(m.QuoteContent, text)
		}
		mapped = append(mapped, ChatMessage{Role: role, Content: content})
	}
	if len(mapped) > 0 && mapped[0].Role == RoleAssistant {
		mapped = mapped[1:]
	}
	messages = append(messages, mapped...)

	if quote != nil {
		messages = append(messages, ChatMessage{Role: RoleUser, Content: WrapQuote(quote.Content, text)})
	} else {
		messages = append(messages, ChatMessage{Role: RoleUser, Content: text})
	}
	return messages
}

// NewRequest builds the payload for cfg. It fails with ErrEmptyCredential
// before doing anything else when the key is blank.
func NewRequest(cfg Config, in Input, stream bool) (Request, error) {
	if !cfg.HasCredential() {
		return Request{}, ErrEmptyCredential
	}
	cfg = cfg.withDefaults()

	system := in.SystemPrompt
	if system == "" && cfg.Type() == ProviderTypeDeepSeek {
		system = DeepSeekSystemPrompt
	}

	req := Request{
		Model:       cfg.Model,
		Messages:    BuildMessages(system, in.History, in.Text, in.Quote),
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
		TopP:        defaultTopP,
		Stream:      stream,
	}
	if stream {
		req.TopP = defaultTopPStream
	}
	if in.Params.Temperature != nil {
		req.Temperature = *in.Params.Temperature
	}
	if in.Params.MaxTokens != nil {
		req.MaxTokens = *in.Params.MaxTokens
	}
	if in.Params.TopP != nil {
		req.TopP = *in.Params.TopP
	}
	return req, nil
}
