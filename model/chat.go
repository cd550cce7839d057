package model

import (
	"time"

	"github.com/google/uuid"
)

// Default generation settings for newly created chats.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1280
	DefaultTopP        = 0.9
	DefaultContextSize = 6

	DefaultSessionTitle = "New conversation"
	DefaultPrologue     = "Start a new conversation"
)

// Session is one conversation thread inside a chat.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSession creates a session whose first message is the bot's prologue.
func NewSession(chatID, title, prologue string) Session {
	if title == "" {
		title = DefaultSessionTitle
	}
	if prologue == "" {
		prologue = DefaultPrologue
	}
	now := time.Now()
	id := uuid.New().String()
	return Session{
		ID:        id,
		Title:     title,
		Messages:  []Message{NewMessage(chatID, id, SenderBot, prologue, StatusSent)},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	return out
}

// MessageIndex returns the position of the message or -1.
func (s Session) MessageIndex(id string) int {
	for i := range s.Messages {
		if s.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Chat binds one bot to a model and its generation settings.
type Chat struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	BotID       string    `json:"botId"`
	Avatar      string    `json:"avatar,omitempty"`
	Sessions    []Session `json:"sessions"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"maxTokens"`
	TopP        float64   `json:"topP"`
	ContextSize int       `json:"contextSize"`
	// ModelID is a fully qualified model reference (see ModelRef); empty
	// means the chat follows its bot's model.
	ModelID   string    `json:"modelId,omitempty"`
	IsDefault bool      `json:"isDefault"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of the chat.
func (c Chat) Clone() Chat {
	out := c
	out.Sessions = make([]Session, len(c.Sessions))
	for i := range c.Sessions {
		out.Sessions[i] = c.Sessions[i].Clone()
	}
	return out
}

// SessionIndex returns the position of the session or -1.
func (c Chat) SessionIndex(id string) int {
	for i := range c.Sessions {
		if c.Sessions[i].ID == id {
			return i
		}
	}
	return -1
}

// ChatSettings is a partial update of a chat's generation parameters.
// Nil fields are left unchanged.
type ChatSettings struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
	ContextSize *int
}
