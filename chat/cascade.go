package chat

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"botchat/bots"
	"botchat/model"
)

// DeleteBot removes a bot together with all of its chats.
func (s *Service) DeleteBot(ctx context.Context, botID string) error {
	if err := s.bots.DeleteBot(ctx, botID); err != nil {
		return err
	}
	return s.deleteChats(ctx, botID)
}

func (s *Service) deleteChats(ctx context.Context, botID string) error {
	for _, c := range s.store.Chats() {
		if c.BotID == botID {
			s.cache.ClearChat(c.ID)
		}
	}
	n, err := s.store.DeleteChatsByBotID(ctx, botID)
	if err != nil {
		return err
	}
	s.logger.Info("bot removed", zap.String("bot_id", botID), zap.Int("chats", n))
	return nil
}

// removeModelRef drops the built-in bot of a removed model and its chats.
// Models without a bot are fine.
func (s *Service) removeModelRef(ctx context.Context, ref string) error {
	if err := s.bots.DeleteBot(ctx, ref); err != nil && !errors.Is(err, bots.ErrBotNotFound) {
		return err
	}
	return s.deleteChats(ctx, ref)
}

// RemoveModel deletes a model from the catalog, then its bot and chats.
func (s *Service) RemoveModel(ctx context.Context, supplier, modelID string) error {
	ref, err := s.catalog.RemoveModel(ctx, supplier, modelID)
	if err != nil {
		return err
	}
	return s.removeModelRef(ctx, ref)
}

// RemoveModelGroup deletes a group and cascades to every model in it.
func (s *Service) RemoveModelGroup(ctx context.Context, supplier, groupID string) error {
	refs, err := s.catalog.RemoveModelGroup(ctx, supplier, groupID)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if err := s.removeModelRef(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}

// AddModel appends a placeholder model and creates its bot and chat.
func (s *Service) AddModel(ctx context.Context, supplier, groupID string) (model.Bot, model.Chat, error) {
	m, err := s.catalog.AddModel(ctx, supplier, groupID)
	if err != nil {
		return model.Bot{}, model.Chat{}, err
	}
	sup, err := s.catalog.Supplier(supplier)
	if err != nil {
		return model.Bot{}, model.Chat{}, err
	}
	bot, err := s.bots.AddDefaultBot(ctx, sup, m)
	if err != nil {
		return model.Bot{}, model.Chat{}, err
	}
	chat, err := s.store.CreateChat(ctx, bot)
	if err != nil {
		return bot, model.Chat{}, err
	}
	return bot, chat, nil
}

// RenameModel renames a model and follows with its bot and chats.
func (s *Service) RenameModel(ctx context.Context, supplier, modelID, name string) error {
	if err := s.catalog.RenameModel(ctx, supplier, modelID, name); err != nil {
		return err
	}
	ref := model.ModelRef(supplier, modelID)
	if _, ok := s.bots.Bot(ref); !ok {
		return nil
	}
	return s.RenameBot(ctx, ref, name)
}

// RenameBot renames a bot and every chat bound to it.
func (s *Service) RenameBot(ctx context.Context, botID, name string) error {
	if err := s.bots.RenameBot(ctx, botID, name); err != nil {
		return err
	}
	return s.store.RenameChatsForBot(ctx, botID, name)
}

// UpdateSupplierConfig stores a new key and URL. Cached handles of the
// supplier are invalidated through the catalog generation.
func (s *Service) UpdateSupplierConfig(ctx context.Context, supplier, apiKey, apiURL string) error {
	return s.catalog.UpdateSupplierConfig(ctx, supplier, apiKey, apiURL)
}
