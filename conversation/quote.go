package conversation

import "botchat/model"

// SetQuote puts m in the quote slot, replacing any earlier quote. Quoting
// never touches message status.
func (s *Store) SetQuote(m model.Message) {
	s.mu.Lock()
	s.quote = &m
	s.mu.Unlock()
	s.publish(Event{Kind: EventQuoteChanged, ChatID: m.ChatID, SessionID: m.SessionID, Message: m})
}

func (s *Store) CancelQuote() {
	s.mu.Lock()
	s.quote = nil
	s.mu.Unlock()
	s.publish(Event{Kind: EventQuoteChanged})
}

// Quote peeks at the slot.
func (s *Store) Quote() (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.quote == nil {
		return model.Message{}, false
	}
	return *s.quote, true
}

// TakeQuote reads and clears the slot in one step, so a quote is consumed
// by exactly one send.
func (s *Store) TakeQuote() (model.Message, bool) {
	s.mu.Lock()
	q := s.quote
	s.quote = nil
	s.mu.Unlock()
	if q == nil {
		return model.Message{}, false
	}
	s.publish(Event{Kind: EventQuoteChanged})
	return *q, true
}

// RestoreQuote puts back a quote taken by a send that never stored its
// message. A quote set in the meantime wins.
func (s *Store) RestoreQuote(m model.Message) {
	s.mu.Lock()
	if s.quote != nil {
		s.mu.Unlock()
		return
	}
	s.quote = &m
	s.mu.Unlock()
	s.publish(Event{Kind: EventQuoteChanged, ChatID: m.ChatID, SessionID: m.SessionID, Message: m})
}
