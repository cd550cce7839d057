package conversation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"botchat/model"
)

func newID() string {
	return uuid.New().String()
}

// AddMessage appends m to its session. A missing id is generated;
// timestamps are always set by the store.
func (s *Store) AddMessage(ctx context.Context, m model.Message) (model.Message, error) {
	if m.ID == "" {
		m.ID = newID()
	}
	now := s.now()
	m.CreatedAt = now
	m.UpdatedAt = now

	s.mu.Lock()
	c, j, err := s.locate(m.ChatID, m.SessionID)
	if err != nil {
		s.mu.Unlock()
		return model.Message{}, err
	}
	session := &s.chats[c].Sessions[j]
	if session.MessageIndex(m.ID) >= 0 {
		s.mu.Unlock()
		return model.Message{}, fmt.Errorf("message %s already exists", m.ID)
	}
	session.Messages = append(session.Messages, m)
	session.UpdatedAt = now
	s.chats[c].UpdatedAt = now
	s.mu.Unlock()

	s.publish(Event{Kind: EventMessageAdded, ChatID: m.ChatID, SessionID: m.SessionID, Message: m})
	if err := s.persist(ctx); err != nil {
		return model.Message{}, err
	}
	return m, nil
}

// Message returns one message by id.
func (s *Store) Message(chatID, sessionID, messageID string) (model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, j, err := s.locate(chatID, sessionID)
	if err != nil {
		return model.Message{}, err
	}
	k := s.chats[c].Sessions[j].MessageIndex(messageID)
	if k < 0 {
		return model.Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	return s.chats[c].Sessions[j].Messages[k], nil
}

// UpdateMessageStatus moves a message along its lifecycle. Messages owned
// by a stream can only be changed through that stream.
func (s *Store) UpdateMessageStatus(ctx context.Context, chatID, sessionID, messageID string, status model.Status) error {
	m, err := s.writeMessage(chatID, sessionID, messageID, "", func(m *model.Message) error {
		if !m.Status.CanTransition(status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.Status, status)
		}
		m.Status = status
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(Event{Kind: EventMessageUpdated, ChatID: chatID, SessionID: sessionID, Message: m})
	return s.persist(ctx)
}

// ReplaceMessage swaps the stored message with m wholesale. m.ID names the
// message to replace.
func (s *Store) ReplaceMessage(ctx context.Context, m model.Message) error {
	return s.replaceMessage(ctx, m, "")
}

func (s *Store) replaceMessage(ctx context.Context, m model.Message, owner string) error {
	stored, err := s.writeMessage(m.ChatID, m.SessionID, m.ID, owner, func(cur *model.Message) error {
		created := cur.CreatedAt
		*cur = m
		if cur.CreatedAt.IsZero() {
			cur.CreatedAt = created
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(Event{Kind: EventMessageReplaced, ChatID: m.ChatID, SessionID: m.SessionID, Message: stored})
	return s.persist(ctx)
}

// writeMessage applies fn to a stored message under the write lock and
// returns the result. owner is the message id the caller's stream owns, or
// "" for callers without a stream.
func (s *Store) writeMessage(chatID, sessionID, messageID, owner string, fn func(m *model.Message) error) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, j, err := s.locate(chatID, sessionID)
	if err != nil {
		return model.Message{}, err
	}
	if held, ok := s.streams[sessionID]; ok && held == messageID && owner != messageID {
		return model.Message{}, fmt.Errorf("%w: %s", ErrMessageOwned, messageID)
	}
	session := &s.chats[c].Sessions[j]
	k := session.MessageIndex(messageID)
	if k < 0 {
		return model.Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}

	next := session.Messages[k]
	if err := fn(&next); err != nil {
		return model.Message{}, err
	}
	now := s.now()
	next.UpdatedAt = now

	session.Messages[k] = next
	session.UpdatedAt = now
	return next, nil
}
