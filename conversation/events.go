package conversation

import "botchat/model"

type EventKind int

const (
	EventMessageAdded EventKind = iota
	EventMessageUpdated
	// EventMessageReplaced carries the final message of a finished stream.
	EventMessageReplaced
	EventSessionSelected
	EventSessionChanged
	EventSessionDeleted
	EventChatChanged
	EventChatDeleted
	EventQuoteChanged
)

func (k EventKind) String() string {
	switch k {
	case EventMessageAdded:
		return "message_added"
	case EventMessageUpdated:
		return "message_updated"
	case EventMessageReplaced:
		return "message_replaced"
	case EventSessionSelected:
		return "session_selected"
	case EventSessionChanged:
		return "session_changed"
	case EventSessionDeleted:
		return "session_deleted"
	case EventChatChanged:
		return "chat_changed"
	case EventChatDeleted:
		return "chat_deleted"
	case EventQuoteChanged:
		return "quote_changed"
	default:
		return "unknown"
	}
}

// Event describes one change. Message is a value copy taken when the change
// was made; later writes never alter it.
type Event struct {
	Kind      EventKind
	ChatID    string
	SessionID string
	Message   model.Message
}

// Subscribe registers fn for every change and returns a function that
// removes it. fn runs on the goroutine that made the change and must not
// call back into the store's mutating methods.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) publish(e Event) {
	s.subMu.Lock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}
