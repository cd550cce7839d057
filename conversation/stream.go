package conversation

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"botchat/model"
)

// Stream is the exclusive writer of one placeholder message while a reply
// is being received. At most one Stream exists per session.
type Stream struct {
	store     *Store
	chatID    string
	sessionID string
	messageID string

	once sync.Once
}

// BeginStream reserves a session for a reply that will be written to
// messageID. The message does not need to exist yet. A second reservation
// on the same session fails with ErrSessionBusy until the first is
// released.
func (s *Store) BeginStream(chatID, sessionID, messageID string) (*Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, err := s.locate(chatID, sessionID); err != nil {
		return nil, err
	}
	if held, ok := s.streams[sessionID]; ok {
		return nil, fmt.Errorf("%w: message %s", ErrSessionBusy, held)
	}
	s.streams[sessionID] = messageID
	return &Stream{store: s, chatID: chatID, sessionID: sessionID, messageID: messageID}, nil
}

// Streaming reports whether the session has a stream in flight.
func (s *Store) Streaming(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.streams[sessionID]
	return ok
}

func (st *Stream) MessageID() string { return st.messageID }

// Update overwrites the placeholder with the cumulative content and marks
// it streaming. Updates are kept in memory only; Finish and Fail persist.
func (st *Stream) Update(content string) error {
	m, err := st.store.writeMessage(st.chatID, st.sessionID, st.messageID, st.messageID, func(m *model.Message) error {
		if m.Status != model.StatusStreaming {
			if !m.Status.CanTransition(model.StatusStreaming) {
				return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.Status, model.StatusStreaming)
			}
			m.Status = model.StatusStreaming
		}
		m.Content = content
		return nil
	})
	if err != nil {
		return err
	}
	st.store.publish(Event{Kind: EventMessageUpdated, ChatID: st.chatID, SessionID: st.sessionID, Message: m})
	return nil
}

// Finish replaces the placeholder with final, forced to sent, and releases
// the session.
func (st *Stream) Finish(ctx context.Context, final model.Message) error {
	defer st.Release()
	final.ID = st.messageID
	final.ChatID = st.chatID
	final.SessionID = st.sessionID
	final.Status = model.StatusSent
	return st.store.replaceMessage(ctx, final, st.messageID)
}

// Fail marks the placeholder as errored, keeping partial as its content,
// and releases the session.
func (st *Stream) Fail(ctx context.Context, partial string) error {
	defer st.Release()
	m, err := st.store.writeMessage(st.chatID, st.sessionID, st.messageID, st.messageID, func(m *model.Message) error {
		m.Status = model.StatusError
		m.Content = partial
		return nil
	})
	if err != nil {
		return err
	}
	st.store.publish(Event{Kind: EventMessageUpdated, ChatID: st.chatID, SessionID: st.sessionID, Message: m})
	return st.store.persist(ctx)
}

// Release gives the session back. It is safe to call more than once.
func (st *Stream) Release() {
	st.once.Do(func() {
		s := st.store
		s.mu.Lock()
		if s.streams[st.sessionID] == st.messageID {
			delete(s.streams, st.sessionID)
		}
		s.mu.Unlock()
		s.logger.Debug("stream released",
			zap.String("session_id", st.sessionID),
			zap.String("message_id", st.messageID))
	})
}
