package model

import (
	"time"

	"github.com/google/uuid"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
	// SenderBot marks the synthetic prologue that opens every session.
	SenderBot Sender = "bot"
)

// Status tracks a message through its delivery lifecycle:
// pending -> streaming -> sent, or pending -> error.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusSent      Status = "sent"
	StatusError     Status = "error"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusError
}

// CanTransition reports whether moving from s to next is a legal step.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusStreaming || next == StatusSent || next == StatusError
	case StatusStreaming:
		return next == StatusStreaming || next == StatusSent || next == StatusError
	default:
		return s == next
	}
}

// Message is a single entry in a session. Values are treated as immutable
// snapshots: writers build a new Message and hand it to the conversation store.
type Message struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sessionId"`
	ChatID       string    `json:"chatId"`
	Content      string    `json:"content"`
	ThinkContent string    `json:"thinkContent,omitempty"`
	QuoteContent string    `json:"quoteContent,omitempty"`
	Sender       Sender    `json:"sender"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewMessage creates a message with a fresh id and matching timestamps.
func NewMessage(chatID, sessionID string, sender Sender, content string, status Status) Message {
	now := time.Now()
	return Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		ChatID:    chatID,
		Content:   content,
		Sender:    sender,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Quoted reports whether the message was sent with quoted content attached.
func (m Message) Quoted() bool {
	return m.QuoteContent != ""
}

// FromUser reports whether the message was typed by the user.
func (m Message) FromUser() bool {
	return m.Sender == SenderUser
}
