package testutil

import (
	"encoding/json"
	"fmt"

	"botchat/model"
)

// Done is the stream terminator frame.
const Done = "data: [DONE]"

// Frame returns a streaming frame carrying one content delta.
func Frame(content string) string {
	b, _ := json.Marshal(content)
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%s}}]}`, b)
}

// ErrorFrame returns a streaming frame carrying an upstream error.
func ErrorFrame(message string) string {
	b, _ := json.Marshal(message)
	return fmt.Sprintf(`data: {"error":{"message":%s,"code":"server_error"}}`, b)
}

// CompletionBody is a non-streaming success body.
func CompletionBody(content string) string {
	b, _ := json.Marshal(content)
	return fmt.Sprintf(`{"choices":[{"message":{"role":"assistant","content":%s}}]}`, b)
}

// ErrorBody is an OpenAI-style error envelope.
func ErrorBody(message, code string) string {
	return fmt.Sprintf(`{"error":{"message":%q,"type":"invalid_request_error","code":%q}}`, message, code)
}

// Prologue builds the synthetic opening message of a session.
func Prologue(text string) model.Message {
	return model.NewMessage("chat", "session", model.SenderBot, text, model.StatusSent)
}

// UserMessage builds a sent user message.
func UserMessage(text string) model.Message {
	return model.NewMessage("chat", "session", model.SenderUser, text, model.StatusSent)
}

// AssistantMessage builds a sent assistant reply.
func AssistantMessage(text string) model.Message {
	return model.NewMessage("chat", "session", model.SenderAssistant, text, model.StatusSent)
}

// QuotedUserMessage builds a user message sent with a quote.
func QuotedUserMessage(text, quoted string) model.Message {
	m := UserMessage(text)
	m.QuoteContent = quoted
	return m
}
