// Package conversation holds chats, their sessions and messages, and
// arbitrates writes between user actions and in-flight streams.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"botchat/config"
	"botchat/model"
	"botchat/storage"
)

const snapshotKey = "chats"

var (
	ErrChatNotFound    = errors.New("chat not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrBotNotFound     = errors.New("bot not found")

	// ErrSessionBusy is returned when a session already has a stream in
	// flight.
	ErrSessionBusy = errors.New("session already has a reply in progress")

	// ErrMessageOwned is returned when writing to a message that an active
	// stream owns.
	ErrMessageOwned = errors.New("message is owned by an active stream")

	ErrInvalidTransition = errors.New("invalid status transition")
)

// BotSource is the part of the bot registry the store reads.
type BotSource interface {
	Bot(id string) (model.Bot, bool)
	Bots() []model.Bot
}

// Options wires a Store. KV and Bots are required.
type Options struct {
	KV    storage.KV
	Usage storage.Repository[model.UsageRecord]
	Bots  BotSource
	// Defaults seeds the generation settings of new chats.
	Defaults config.GenerationConfig
	Logger   *zap.Logger
}

type snapshot struct {
	Chats          []model.Chat `json:"chats"`
	CurrentChat    string       `json:"currentChatId,omitempty"`
	CurrentSession string       `json:"currentSessionId,omitempty"`
}

// Store is safe for concurrent use. Readers receive deep copies, so a
// snapshot never changes under them.
type Store struct {
	mu        sync.RWMutex
	persistMu sync.Mutex
	opts      Options
	logger    *zap.Logger

	chats          []model.Chat
	currentChat    string
	currentSession string

	quote   *model.Message
	streams map[string]string // session id -> owned message id

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int

	usageMu sync.Mutex
	now     func() time.Time
}

func NewStore(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Usage == nil {
		opts.Usage = storage.NewMemoryRepository(func(r model.UsageRecord) string { return r.ID })
	}
	return &Store{
		opts:    opts,
		logger:  logger.Named("conversation"),
		streams: make(map[string]string),
		subs:    make(map[int]func(Event)),
		now:     time.Now,
	}
}

// Load restores the snapshot and makes sure every bot has a chat. On first
// run the first chat becomes current.
func (s *Store) Load(ctx context.Context) error {
	var snap snapshot
	found, err := storage.GetJSON(ctx, s.opts.KV, snapshotKey, &snap)
	if err != nil {
		return fmt.Errorf("failed to load chats: %w", err)
	}

	s.mu.Lock()
	s.chats = snap.Chats
	s.currentChat = snap.CurrentChat
	s.currentSession = snap.CurrentSession

	have := make(map[string]bool, len(s.chats))
	for i := range s.chats {
		c := &s.chats[i]
		have[c.BotID] = true
		if len(c.Sessions) == 0 {
			c.Sessions = []model.Session{model.NewSession(c.ID, "", s.prologue(c.BotID))}
		}
	}
	added := 0
	for _, b := range s.opts.Bots.Bots() {
		if have[b.ID] {
			continue
		}
		s.chats = append(s.chats, s.newChat(b))
		added++
	}
	if !found && len(s.chats) > 0 {
		s.currentChat = s.chats[0].ID
		s.currentSession = s.chats[0].Sessions[0].ID
	}
	s.mu.Unlock()

	if !found || added > 0 {
		s.logger.Info("created default chats", zap.Int("count", added))
		return s.persist(ctx)
	}
	return nil
}

func (s *Store) newChat(b model.Bot) model.Chat {
	d := s.opts.Defaults
	now := s.now()
	id := newID()
	chat := model.Chat{
		ID:          id,
		Name:        b.Name,
		BotID:       b.ID,
		Avatar:      b.Avatar,
		Temperature: orFloat(d.Temperature, model.DefaultTemperature),
		MaxTokens:   orInt(d.MaxTokens, model.DefaultMaxTokens),
		TopP:        orFloat(d.TopP, model.DefaultTopP),
		ContextSize: orInt(d.ContextSize, model.DefaultContextSize),
		ModelID:     b.ModelRef(),
		IsDefault:   b.IsDefault,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	chat.Sessions = []model.Session{model.NewSession(id, "", b.Prologue)}
	return chat
}

func orFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// Chats returns every chat.
func (s *Store) Chats() []model.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Chat, len(s.chats))
	for i, c := range s.chats {
		out[i] = c.Clone()
	}
	return out
}

func (s *Store) Chat(id string) (model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.chatIndex(id)
	if i < 0 {
		return model.Chat{}, fmt.Errorf("%w: %s", ErrChatNotFound, id)
	}
	return s.chats[i].Clone(), nil
}

func (s *Store) Session(chatID, sessionID string) (model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, j, err := s.locate(chatID, sessionID)
	if err != nil {
		return model.Session{}, err
	}
	return s.chats[c].Sessions[j].Clone(), nil
}

// Current returns the selected chat and session.
func (s *Store) Current() (model.Chat, model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, j, err := s.locate(s.currentChat, s.currentSession)
	if err != nil {
		return model.Chat{}, model.Session{}, false
	}
	chat := s.chats[c].Clone()
	return chat, chat.Sessions[j], true
}

// SelectChat makes a chat current together with its latest session.
func (s *Store) SelectChat(ctx context.Context, chatID string) error {
	s.mu.Lock()
	i := s.chatIndex(chatID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	sessions := s.chats[i].Sessions
	s.currentChat = chatID
	s.currentSession = sessions[len(sessions)-1].ID
	s.mu.Unlock()
	return s.persist(ctx)
}

// SelectSession switches sessions. Messages left pending by an abandoned
// request are settled to sent; messages owned by a live stream are not.
func (s *Store) SelectSession(ctx context.Context, chatID, sessionID string) error {
	s.mu.Lock()
	c, j, err := s.locate(chatID, sessionID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	owned := s.streams[sessionID]
	session := &s.chats[c].Sessions[j]
	var settled []model.Message
	for k := range session.Messages {
		m := &session.Messages[k]
		if m.Status == model.StatusPending && m.ID != owned {
			m.Status = model.StatusSent
			m.UpdatedAt = s.now()
			settled = append(settled, *m)
		}
	}
	s.currentChat = chatID
	s.currentSession = sessionID
	s.mu.Unlock()

	for _, m := range settled {
		s.publish(Event{Kind: EventMessageUpdated, ChatID: chatID, SessionID: sessionID, Message: m})
	}
	s.publish(Event{Kind: EventSessionSelected, ChatID: chatID, SessionID: sessionID})
	return s.persist(ctx)
}

// ChatForBot returns the bot's chat, creating it when missing, and selects
// it.
func (s *Store) ChatForBot(ctx context.Context, botID string) (model.Chat, error) {
	s.mu.RLock()
	existing := ""
	for _, c := range s.chats {
		if c.BotID == botID {
			existing = c.ID
			break
		}
	}
	s.mu.RUnlock()

	if existing == "" {
		b, ok := s.opts.Bots.Bot(botID)
		if !ok {
			return model.Chat{}, fmt.Errorf("%w: %s", ErrBotNotFound, botID)
		}
		chat, err := s.CreateChat(ctx, b)
		if err != nil {
			return model.Chat{}, err
		}
		existing = chat.ID
	}

	if err := s.SelectChat(ctx, existing); err != nil {
		return model.Chat{}, err
	}
	return s.Chat(existing)
}

// CreateChat adds a chat for b with one prologue session.
func (s *Store) CreateChat(ctx context.Context, b model.Bot) (model.Chat, error) {
	chat := s.newChat(b)
	s.mu.Lock()
	s.chats = append(s.chats, chat)
	s.mu.Unlock()

	s.publish(Event{Kind: EventChatChanged, ChatID: chat.ID})
	if err := s.persist(ctx); err != nil {
		return model.Chat{}, err
	}
	return chat.Clone(), nil
}

// NewSession appends a session opened with the bot's prologue and makes it
// current.
func (s *Store) NewSession(ctx context.Context, chatID, title string) (model.Session, error) {
	s.mu.Lock()
	i := s.chatIndex(chatID)
	if i < 0 {
		s.mu.Unlock()
		return model.Session{}, fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	session := model.NewSession(chatID, title, s.prologue(s.chats[i].BotID))
	s.chats[i].Sessions = append(s.chats[i].Sessions, session)
	s.chats[i].UpdatedAt = s.now()
	s.currentChat = chatID
	s.currentSession = session.ID
	s.mu.Unlock()

	s.publish(Event{Kind: EventSessionSelected, ChatID: chatID, SessionID: session.ID})
	if err := s.persist(ctx); err != nil {
		return model.Session{}, err
	}
	return session.Clone(), nil
}

func (s *Store) prologue(botID string) string {
	if b, ok := s.opts.Bots.Bot(botID); ok {
		return b.Prologue
	}
	return ""
}

func (s *Store) RenameSession(ctx context.Context, chatID, sessionID, title string) error {
	s.mu.Lock()
	c, j, err := s.locate(chatID, sessionID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	now := s.now()
	s.chats[c].Sessions[j].Title = title
	s.chats[c].Sessions[j].UpdatedAt = now
	s.chats[c].UpdatedAt = now
	s.mu.Unlock()

	s.publish(Event{Kind: EventSessionChanged, ChatID: chatID, SessionID: sessionID})
	return s.persist(ctx)
}

// DeleteSession removes a session. If it was current, its right-hand
// neighbour (or left-hand, for the last one) becomes current. Deleting the
// only session replaces it with a fresh one, so a chat is never empty.
func (s *Store) DeleteSession(ctx context.Context, chatID, sessionID string) error {
	s.mu.Lock()
	c, j, err := s.locate(chatID, sessionID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	chat := &s.chats[c]

	if s.currentSession == sessionID {
		s.currentSession = ""
		if len(chat.Sessions) > 1 {
			next := j + 1
			if j == len(chat.Sessions)-1 {
				next = j - 1
			}
			s.currentSession = chat.Sessions[next].ID
		}
	}

	chat.Sessions = append(chat.Sessions[:j:j], chat.Sessions[j+1:]...)
	chat.UpdatedAt = s.now()
	if len(chat.Sessions) == 0 {
		fresh := model.NewSession(chat.ID, "", s.prologue(chat.BotID))
		chat.Sessions = []model.Session{fresh}
		s.currentChat = chat.ID
		s.currentSession = fresh.ID
	}
	current := s.currentSession
	s.mu.Unlock()

	s.logger.Debug("session deleted", zap.String("chat_id", chatID), zap.String("session_id", sessionID))
	s.publish(Event{Kind: EventSessionDeleted, ChatID: chatID, SessionID: sessionID})
	if current != "" {
		s.publish(Event{Kind: EventSessionSelected, ChatID: chatID, SessionID: current})
	}
	return s.persist(ctx)
}

// ClearSessionMessages empties a session, prologue included.
func (s *Store) ClearSessionMessages(ctx context.Context, chatID, sessionID string) error {
	s.mu.Lock()
	c, j, err := s.locate(chatID, sessionID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	now := s.now()
	s.chats[c].Sessions[j].Messages = []model.Message{}
	s.chats[c].Sessions[j].UpdatedAt = now
	s.chats[c].UpdatedAt = now
	s.mu.Unlock()

	s.publish(Event{Kind: EventSessionChanged, ChatID: chatID, SessionID: sessionID})
	return s.persist(ctx)
}

// DeleteChatsByBotID removes every chat of a bot and reports how many
// went away. A removed current chat leaves nothing selected.
func (s *Store) DeleteChatsByBotID(ctx context.Context, botID string) (int, error) {
	s.mu.Lock()
	kept := s.chats[:0:0]
	var removed []string
	for _, c := range s.chats {
		if c.BotID == botID {
			removed = append(removed, c.ID)
			if c.ID == s.currentChat {
				s.currentChat = ""
				s.currentSession = ""
			}
			continue
		}
		kept = append(kept, c)
	}
	s.chats = kept
	s.mu.Unlock()

	for _, id := range removed {
		s.publish(Event{Kind: EventChatDeleted, ChatID: id})
	}
	if len(removed) == 0 {
		return 0, nil
	}
	return len(removed), s.persist(ctx)
}

// RenameChatsForBot follows a bot rename.
func (s *Store) RenameChatsForBot(ctx context.Context, botID, name string) error {
	s.mu.Lock()
	changed := false
	for i := range s.chats {
		if s.chats[i].BotID == botID {
			s.chats[i].Name = name
			s.chats[i].UpdatedAt = s.now()
			changed = true
		}
	}
	s.mu.Unlock()

	if !changed {
		return nil
	}
	return s.persist(ctx)
}

// UpdateChatSettings changes the generation parameters that are set in cs.
func (s *Store) UpdateChatSettings(ctx context.Context, chatID string, cs model.ChatSettings) error {
	s.mu.Lock()
	i := s.chatIndex(chatID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	c := &s.chats[i]
	if cs.Temperature != nil {
		c.Temperature = *cs.Temperature
	}
	if cs.MaxTokens != nil {
		c.MaxTokens = *cs.MaxTokens
	}
	if cs.TopP != nil {
		c.TopP = *cs.TopP
	}
	if cs.ContextSize != nil {
		c.ContextSize = *cs.ContextSize
	}
	c.UpdatedAt = s.now()
	s.mu.Unlock()

	s.publish(Event{Kind: EventChatChanged, ChatID: chatID})
	return s.persist(ctx)
}

// UpdateChatModel points a chat at another "supplier/model" reference.
func (s *Store) UpdateChatModel(ctx context.Context, chatID, ref string) error {
	if _, _, err := model.ParseModelRef(ref); err != nil {
		return err
	}
	s.mu.Lock()
	i := s.chatIndex(chatID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	s.chats[i].ModelID = ref
	s.chats[i].UpdatedAt = s.now()
	s.mu.Unlock()

	s.publish(Event{Kind: EventChatChanged, ChatID: chatID})
	return s.persist(ctx)
}

// ExportSession writes a session to dir (or ~/Downloads) and returns the
// file path.
func (s *Store) ExportSession(chatID, sessionID, dir string) (string, error) {
	chat, err := s.Chat(chatID)
	if err != nil {
		return "", err
	}
	i := chat.SessionIndex(sessionID)
	if i < 0 {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	path := storage.GenerateExportPath(dir, chat.Sessions[i].Title)
	if err := storage.ExportSession(chat, sessionID, path); err != nil {
		return "", err
	}
	return path, nil
}

// Search fuzzy-matches every message in every chat.
func (s *Store) Search(query string) []storage.MessageMatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storage.SearchMessages(s.chats, query)
}

func (s *Store) persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	snap := snapshot{
		Chats:          make([]model.Chat, len(s.chats)),
		CurrentChat:    s.currentChat,
		CurrentSession: s.currentSession,
	}
	for i, c := range s.chats {
		snap.Chats[i] = c.Clone()
	}
	s.mu.RUnlock()

	if err := storage.SetJSON(ctx, s.opts.KV, snapshotKey, snap); err != nil {
		return fmt.Errorf("failed to persist chats: %w", err)
	}
	return nil
}

func (s *Store) chatIndex(id string) int {
	for i := range s.chats {
		if s.chats[i].ID == id {
			return i
		}
	}
	return -1
}

// locate must be called with mu held.
func (s *Store) locate(chatID, sessionID string) (int, int, error) {
	c := s.chatIndex(chatID)
	if c < 0 {
		return -1, -1, fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	j := s.chats[c].SessionIndex(sessionID)
	if j < 0 {
		return -1, -1, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return c, j, nil
}
