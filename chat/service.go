// Package chat runs conversational turns: it ties the conversation store,
// the bot registry and the supplier catalog to provider handles.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"botchat/bots"
	"botchat/catalog"
	"botchat/conversation"
	"botchat/model"
	"botchat/provider"
	"botchat/storage"
)

// ErrNoModel is returned when neither the chat nor its bot names a model.
var ErrNoModel = errors.New("no model selected for this chat")

const titlePrompt = "Summarize the user's message as a conversation title of at most ten words. " +
	"Reply with the title only, without quotes or punctuation at the end."

// Service is safe for concurrent use; concurrent submits into one session
// are rejected with conversation.ErrSessionBusy.
type Service struct {
	store   *conversation.Store
	bots    *bots.Registry
	catalog *catalog.Catalog
	cache   *Cache
	logger  *zap.Logger
	now     func() time.Time
}

// NewService wires the collaborators and subscribes the handle cache to
// catalog changes.
func NewService(store *conversation.Store, registry *bots.Registry, cat *catalog.Catalog, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("chat")
	cache := NewCache(cat, logger)
	cat.Subscribe(func(supplier string, gen uint64) {
		cache.ClearSupplier(supplier)
	})
	return &Service{
		store:   store,
		bots:    registry,
		catalog: cat,
		cache:   cache,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Service) Cache() *Cache { return s.cache }

// Submission is one user turn.
type Submission struct {
	ChatID    string
	SessionID string
	Text      string
	// Quote is sent along with Text. When nil the store's quote slot is
	// consumed instead.
	Quote *model.Message
}

// Reply holds the two messages a turn produced.
type Reply struct {
	User      model.Message
	Assistant model.Message
}

// ModelRef returns the model a chat talks to: its own override, else its
// bot's binding.
func (s *Service) ModelRef(chat model.Chat) string {
	if chat.ModelID != "" {
		return chat.ModelID
	}
	if b, ok := s.bots.Bot(chat.BotID); ok {
		return b.ModelRef()
	}
	return ""
}

// Submit stores the user's message, streams the reply into a placeholder
// and settles it. onUpdate receives the cumulative reply text. On failure
// the placeholder is left in the error state with whatever text arrived,
// and the error is returned together with both messages.
func (s *Service) Submit(ctx context.Context, sub Submission, onUpdate func(content string)) (Reply, error) {
	chat, err := s.store.Chat(sub.ChatID)
	if err != nil {
		return Reply{}, err
	}
	ref := s.ModelRef(chat)
	if ref == "" {
		return Reply{}, ErrNoModel
	}
	bot, _ := s.bots.Bot(chat.BotID)

	placeholder := model.NewMessage(chat.ID, sub.SessionID, model.SenderAssistant, "", model.StatusPending)
	st, err := s.store.BeginStream(chat.ID, sub.SessionID, placeholder.ID)
	if err != nil {
		return Reply{}, err
	}
	defer st.Release()

	quote := sub.Quote
	taken := false
	if quote == nil {
		if q, ok := s.store.TakeQuote(); ok {
			quote, taken = &q, true
		}
	}
	giveBack := func() {
		if taken {
			s.store.RestoreQuote(*quote)
		}
	}

	session, err := s.store.Session(chat.ID, sub.SessionID)
	if err != nil {
		giveBack()
		return Reply{}, err
	}
	history := contextWindow(session.Messages, chat.ContextSize)

	user := model.NewMessage(chat.ID, sub.SessionID, model.SenderUser, sub.Text, model.StatusSent)
	if quote != nil {
		user.QuoteContent = quote.Content
	}
	if user, err = s.store.AddMessage(ctx, user); err != nil {
		giveBack()
		return Reply{}, err
	}
	if placeholder, err = s.store.AddMessage(ctx, placeholder); err != nil {
		return Reply{User: user}, err
	}
	if err := s.store.RecordUsage(ctx, chat.BotID, s.now()); err != nil {
		s.logger.Warn("failed to record usage", zap.String("bot_id", chat.BotID), zap.Error(err))
	}

	handle := s.cache.Get(chat.ID, ref)
	in := provider.Input{
		SystemPrompt: bot.Prompt,
		History:      history,
		Text:         sub.Text,
		Quote:        quote,
		Params:       provider.ParamsFromChat(chat),
	}

	full, err := handle.SendMessageStream(ctx, in, func(content string) {
		if content == "" {
			return
		}
		if err := st.Update(content); err != nil {
			s.logger.Debug("dropping stream update", zap.String("message_id", placeholder.ID), zap.Error(err))
			return
		}
		if onUpdate != nil {
			onUpdate(content)
		}
	})

	settle := context.WithoutCancel(ctx)
	if err != nil {
		s.logger.Warn("reply failed",
			zap.String("chat_id", chat.ID),
			zap.String("ref", ref),
			zap.Stringer("handle", handle.Kind()),
			zap.Error(err))
		if ferr := st.Fail(settle, full); ferr != nil {
			s.logger.Debug("could not mark reply as failed", zap.Error(ferr))
		}
		failed, _ := s.store.Message(chat.ID, sub.SessionID, placeholder.ID)
		return Reply{User: user, Assistant: failed}, err
	}

	final := placeholder
	final.Content = full
	if err := st.Finish(settle, final); err != nil {
		return Reply{User: user}, fmt.Errorf("failed to store reply: %w", err)
	}
	done, err := s.store.Message(chat.ID, sub.SessionID, placeholder.ID)
	if err != nil {
		return Reply{User: user}, err
	}
	return Reply{User: user, Assistant: done}, nil
}

// contextWindow keeps the last size settled messages. Replies that failed
// or never finished are not sent back upstream.
func contextWindow(msgs []model.Message, size int) []model.Message {
	if size <= 0 {
		return nil
	}
	settled := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Status == model.StatusSent {
			settled = append(settled, m)
		}
	}
	if len(settled) > size {
		settled = settled[len(settled)-size:]
	}
	return settled
}

// AutoTitle names a session after its first user message using a
// best-effort, non-streaming call. When no real reply is available the
// message itself is shortened into the title.
func (s *Service) AutoTitle(ctx context.Context, chatID, sessionID string) (string, error) {
	chat, err := s.store.Chat(chatID)
	if err != nil {
		return "", err
	}
	session, err := s.store.Session(chatID, sessionID)
	if err != nil {
		return "", err
	}

	first := ""
	for _, m := range session.Messages {
		if m.FromUser() {
			first = m.Content
			break
		}
	}
	if first == "" {
		return session.Title, nil
	}

	title := storage.GenerateSessionName(first)
	if ref := s.ModelRef(chat); ref != "" {
		reply, err := s.cache.Get(chat.ID, ref).SendMessage(ctx, provider.Input{SystemPrompt: titlePrompt, Text: first})
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return "", err
			}
			s.logger.Debug("title request failed", zap.Error(err))
		case !strings.Contains(reply, provider.SimulatedMarker):
			if t := strings.Trim(strings.TrimSpace(reply), `"'“”。.`); t != "" {
				title = storage.GenerateSessionName(t)
			}
		}
	}

	if err := s.store.RenameSession(ctx, chatID, sessionID, title); err != nil {
		return "", err
	}
	return title, nil
}

// SelectBot selects a bot and opens its chat, creating one if needed.
func (s *Service) SelectBot(ctx context.Context, botID string) (model.Chat, error) {
	if err := s.bots.Select(ctx, botID); err != nil {
		return model.Chat{}, err
	}
	return s.store.ChatForBot(ctx, botID)
}

// SetChatModel points a chat at another model and drops its cached handle.
func (s *Service) SetChatModel(ctx context.Context, chatID, ref string) error {
	if _, _, err := s.catalog.Resolve(ref); err != nil {
		return err
	}
	if err := s.store.UpdateChatModel(ctx, chatID, ref); err != nil {
		return err
	}
	s.cache.ClearChat(chatID)
	return nil
}
