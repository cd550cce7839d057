package chat

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"botchat/model"
	"botchat/provider"
)

// ConfigSource resolves model references and reports supplier generations.
type ConfigSource interface {
	ProviderConfig(ref string) (provider.Config, error)
	Generation(supplier string) uint64
}

// CacheKey identifies one cached handle.
type CacheKey struct {
	Supplier string
	ChatID   string
}

type cacheEntry struct {
	handle     *provider.Handle
	generation uint64
	ref        string
}

// Cache keeps one provider handle per (supplier, chat). An entry is reused
// only while the supplier generation and the chat's model reference are
// unchanged, so a key or URL change never serves a stale credential.
type Cache struct {
	mu      sync.Mutex
	entries map[CacheKey]cacheEntry
	group   singleflight.Group
	source  ConfigSource
	logger  *zap.Logger
}

func NewCache(source ConfigSource, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		entries: make(map[CacheKey]cacheEntry),
		source:  source,
		logger:  logger.Named("cache"),
	}
}

// Get returns the handle for chatID talking to ref. References that do not
// resolve yield a Degraded handle that is not cached.
func (c *Cache) Get(chatID, ref string) *provider.Handle {
	supplier, _, err := model.ParseModelRef(ref)
	if err != nil {
		return provider.Degraded(err, c.logger)
	}
	key := CacheKey{Supplier: supplier, ChatID: chatID}
	gen := c.source.Generation(supplier)

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if ok && e.generation == gen && e.ref == ref {
		return e.handle
	}

	flight := fmt.Sprintf("%s\x00%s\x00%d\x00%s", supplier, chatID, gen, ref)
	v, _, _ := c.group.Do(flight, func() (any, error) {
		cfg, err := c.source.ProviderConfig(ref)
		if err != nil {
			c.logger.Warn("model reference does not resolve", zap.String("ref", ref), zap.Error(err))
			return provider.Degraded(err, c.logger), nil
		}
		h := provider.NewHandle(cfg, c.logger)

		c.mu.Lock()
		c.entries[key] = cacheEntry{handle: h, generation: gen, ref: ref}
		c.mu.Unlock()

		c.logger.Debug("built handle",
			zap.String("supplier", supplier),
			zap.String("chat_id", chatID),
			zap.Uint64("generation", gen),
			zap.Stringer("kind", h.Kind()))
		return h, nil
	})
	return v.(*provider.Handle)
}

// Clear drops one entry.
func (c *Cache) Clear(supplier, chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, CacheKey{Supplier: supplier, ChatID: chatID})
}

// ClearSupplier drops every entry of a supplier.
func (c *Cache) ClearSupplier(supplier string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.Supplier == supplier {
			delete(c.entries, k)
		}
	}
}

// ClearChat drops every entry of a chat.
func (c *Cache) ClearChat(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.ChatID == chatID {
			delete(c.entries, k)
		}
	}
}

func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[CacheKey]cacheEntry)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
