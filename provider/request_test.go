package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botchat/model"
	"botchat/provider/testutil"
)

func testConfig() Config {
	return Config{Supplier: "openai", BaseURL: "https://api.example.com/v1", APIKey: "sk-test", Model: "gpt-4o"}
}

func TestBuildMessages(t *testing.T) {
	quote := testutil.AssistantMessage("the quoted answer")

	tests := []struct {
		name    string
		system  string
		history []model.Message
		text    string
		quote   *model.Message
		want    []ChatMessage
	}{
		{
			name: "plain text only",
			text: "hi",
			want: []ChatMessage{{Role: RoleUser, Content: "hi"}},
		},
		{
			name:   "system prompt first",
			system: "be brief",
			text:   "hi",
			want: []ChatMessage{
				{Role: RoleSystem, Content: "be brief"},
				{Role: RoleUser, Content: "hi"},
			},
		},
		{
			name: "prologue is dropped and roles are mapped",
			history: []model.Message{
				testutil.Prologue("Hello, I am your bot"),
				testutil.UserMessage("first"),
				testutil.AssistantMessage("reply"),
			},
			text: "second",
			want: []ChatMessage{
				{Role: RoleUser, Content: "first"},
				{Role: RoleAssistant, Content: "reply"},
				{Role: RoleUser, Content: "second"},
			},
		},
		{
			name: "only the leading assistant message is dropped",
			history: []model.Message{
				testutil.AssistantMessage("a"),
				testutil.AssistantMessage("b"),
			},
			text: "q",
			want: []ChatMessage{
				{Role: RoleAssistant, Content: "b"},
				{Role: RoleUser, Content: "q"},
			},
		},
		{
			name: "historical quote is re-rendered with the current text",
			history: []model.Message{
				testutil.QuotedUserMessage("old question", "old quote"),
			},
			text: "new question",
			want: []ChatMessage{
				{Role: RoleUser, Content: WrapQuote("old quote", "new question")},
				{Role: RoleUser, Content: "new question"},
			},
		},
		{
			name:  "explicit quote wraps the outgoing text",
			text:  "explain this",
			quote: &quote,
			want: []ChatMessage{
				{Role: RoleUser, Content: "<quoted_message>\nthe quoted answer\n</quoted_message>\n\nexplain this"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildMessages(tt.system, tt.history, tt.text, tt.quote)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRequestRejectsBlankKey(t *testing.T) {
	for _, key := range []string{"", "   ", "\t\n"} {
		cfg := testConfig()
		cfg.APIKey = key
		_, err := NewRequest(cfg, Input{Text: "hi"}, false)
		assert.ErrorIs(t, err, ErrEmptyCredential)
	}
}

func TestNewRequestDefaults(t *testing.T) {
	tests := []struct {
		name   string
		stream bool
		params Params
		want   Request
	}{
		{
			name:   "non-streaming defaults",
			stream: false,
			want:   Request{Model: "gpt-4o", Temperature: 0.7, MaxTokens: 1000, TopP: 1, Stream: false},
		},
		{
			name:   "streaming defaults",
			stream: true,
			want:   Request{Model: "gpt-4o", Temperature: 0.7, MaxTokens: 1000, TopP: 0.9, Stream: true},
		},
		{
			name:   "explicit zero temperature is kept",
			stream: true,
			params: Params{Temperature: ptr(0.0), MaxTokens: ptr(64), TopP: ptr(0.5)},
			want:   Request{Model: "gpt-4o", Temperature: 0, MaxTokens: 64, TopP: 0.5, Stream: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewRequest(testConfig(), Input{Text: "hi", Params: tt.params}, tt.stream)
			require.NoError(t, err)
			got.Messages = nil
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParamsFromChat(t *testing.T) {
	tests := []struct {
		name string
		chat model.Chat
		want Request
	}{
		{
			name: "settings are forwarded",
			chat: model.Chat{Temperature: 0.3, MaxTokens: 200, TopP: 0.8},
			want: Request{Model: "gpt-4o", Temperature: 0.3, MaxTokens: 200, TopP: 0.8, Stream: true},
		},
		{
			name: "missing settings use defaults",
			chat: model.Chat{},
			want: Request{Model: "gpt-4o", Temperature: 0.7, MaxTokens: 1000, TopP: 0.9, Stream: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewRequest(testConfig(), Input{Text: "hi", Params: ParamsFromChat(tt.chat)}, true)
			require.NoError(t, err)
			got.Messages = nil
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRequestDefaultModel(t *testing.T) {
	cfg := testConfig()
	cfg.Model = ""
	got, err := NewRequest(cfg, Input{Text: "hi"}, false)
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, got.Model)
}

func TestNewRequestIsDeterministic(t *testing.T) {
	in := Input{
		SystemPrompt: "sys",
		History: []model.Message{
			testutil.Prologue("hello"),
			testutil.UserMessage("a"),
			testutil.AssistantMessage("b"),
		},
		Text:   "c",
		Params: ParamsFromChat(model.Chat{Temperature: 0.3, MaxTokens: 200, TopP: 0.8}),
	}

	first, err := NewRequest(testConfig(), in, true)
	require.NoError(t, err)
	second, err := NewRequest(testConfig(), in, true)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestDeepSeekSystemPrompt(t *testing.T) {
	cfg := Config{Supplier: "deepseek", BaseURL: "https://api.deepseek.com", APIKey: "k", Model: "deepseek-chat"}

	req, err := NewRequest(cfg, Input{Text: "hi"}, true)
	require.NoError(t, err)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, ChatMessage{Role: RoleSystem, Content: DeepSeekSystemPrompt}, req.Messages[0])

	req, err = NewRequest(cfg, Input{SystemPrompt: "pirate", Text: "hi"}, true)
	require.NoError(t, err)
	assert.Equal(t, "pirate", req.Messages[0].Content)
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		supplier, url string
		want          ProviderType
	}{
		{"deepseek", "https://api.deepseek.com", ProviderTypeDeepSeek},
		{"proxy", "https://deepseek.example.com", ProviderTypeDeepSeek},
		{"claude", "https://api.anthropic.com", ProviderTypeAnthropic},
		{"openai", "https://api.openai.com/v1", ProviderTypeOpenAI},
		{"kimi", "https://api.moonshot.cn/v1", ProviderTypeOpenAI},
	}

	for _, tt := range tests {
		t.Run(tt.supplier, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectType(tt.supplier, tt.url))
		})
	}
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		base, want string
	}{
		{"https://api.deepseek.com", "https://api.deepseek.com/chat/completions"},
		{"https://api.moonshot.cn/v1/", "https://api.moonshot.cn/v1/chat/completions"},
		{"", "https://api.openai.com/v1/chat/completions"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Config{BaseURL: tt.base}.Endpoint())
	}
}

func ptr[T any](v T) *T { return &v }
