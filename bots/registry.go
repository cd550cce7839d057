// Package bots keeps the bot registry: built-in bots generated from the
// supplier catalog plus user-created personas.
package bots

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"

	"botchat/model"
	"botchat/storage"
)

const snapshotKey = "bots"

// DefaultBotName is used when a bot is created without a name.
const DefaultBotName = "New bot"

var (
	ErrBotNotFound = errors.New("bot not found")
	// ErrBuiltinBot is returned when changing the model of a generated bot.
	ErrBuiltinBot = errors.New("built-in bots are bound to their model")
)

// DefaultPrologue is the greeting of a generated bot.
func DefaultPrologue(modelName string) string {
	return fmt.Sprintf("Hello, I am %s. How can I help you?", modelName)
}

// Draft describes a bot created by the user.
type Draft struct {
	Name        string
	Prompt      string
	Prologue    string
	Avatar      string
	Description string
}

// Update lists the fields to change; nil fields are left alone.
type Update struct {
	Name        *string
	Prompt      *string
	Prologue    *string
	Avatar      *string
	Description *string
}

type snapshot struct {
	Bots     []model.Bot `json:"bots"`
	Selected string      `json:"selectedBotId,omitempty"`
}

// Registry is safe for concurrent use. Every mutation is persisted before
// it returns.
type Registry struct {
	mu        sync.RWMutex
	persistMu sync.Mutex
	kv        storage.KV
	logger    *zap.Logger
	bots      []model.Bot
	selected  string
}

func NewRegistry(kv storage.KV, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{kv: kv, logger: logger.Named("bots")}
}

// GenerateDefaults builds one bot per catalog model.
func GenerateDefaults(suppliers []model.Supplier) []model.Bot {
	var out []model.Bot
	for _, s := range suppliers {
		for _, g := range s.ModelGroups {
			for _, m := range g.Models {
				out = append(out, defaultBot(s, m))
			}
		}
	}
	return out
}

func defaultBot(s model.Supplier, m model.Model) model.Bot {
	return model.Bot{
		ID:          model.ModelRef(s.Name, m.ID),
		Name:        m.Name,
		Prologue:    DefaultPrologue(m.Name),
		Avatar:      s.Logo,
		Description: m.Description,
		IsDefault:   true,
		Model:       &model.BotModel{SupplierID: s.Name, ModelID: m.ID},
		CreatedAt:   time.Now(),
	}
}

// Load restores the snapshot or, on first run, generates the built-in bots
// and selects the first one.
func (r *Registry) Load(ctx context.Context, suppliers []model.Supplier) error {
	var snap snapshot
	found, err := storage.GetJSON(ctx, r.kv, snapshotKey, &snap)
	if err != nil {
		return fmt.Errorf("failed to load bots: %w", err)
	}

	r.mu.Lock()
	if found {
		r.bots = snap.Bots
		r.selected = snap.Selected
	} else {
		r.bots = GenerateDefaults(suppliers)
		r.selected = ""
		if sections := group(r.bots); len(sections) > 0 {
			r.selected = sections[0].Bots[0].ID
		}
	}
	r.mu.Unlock()

	if !found {
		r.logger.Info("generated default bots", zap.Int("count", len(r.Bots())))
		return r.persist(ctx)
	}
	return nil
}

func (r *Registry) Bots() []model.Bot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Bot, len(r.bots))
	for i, b := range r.bots {
		out[i] = b.Clone()
	}
	return out
}

func (r *Registry) Bot(id string) (model.Bot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.indexOf(id)
	if i < 0 {
		return model.Bot{}, false
	}
	return r.bots[i].Clone(), true
}

// Sections groups the bots by first letter. Empty sections never appear.
func (r *Registry) Sections() []Section {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return group(r.bots)
}

func (r *Registry) Selected() (model.Bot, bool) {
	r.mu.RLock()
	id := r.selected
	r.mu.RUnlock()
	if id == "" {
		return model.Bot{}, false
	}
	return r.Bot(id)
}

func (r *Registry) Select(ctx context.Context, id string) error {
	r.mu.Lock()
	if r.indexOf(id) < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBotNotFound, id)
	}
	r.selected = id
	r.mu.Unlock()
	return r.persist(ctx)
}

// CreateBot adds a custom bot with no model binding.
func (r *Registry) CreateBot(ctx context.Context, d Draft) (model.Bot, error) {
	name := d.Name
	if name == "" {
		name = DefaultBotName
	}
	bot := model.Bot{
		ID:          uuid.NewString(),
		Name:        name,
		Prompt:      d.Prompt,
		Prologue:    d.Prologue,
		Avatar:      d.Avatar,
		Description: d.Description,
		CreatedAt:   time.Now(),
	}

	r.mu.Lock()
	r.bots = append(r.bots, bot)
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		return model.Bot{}, err
	}
	return bot.Clone(), nil
}

// AddDefaultBot registers the built-in bot for a newly added model. An
// existing bot with the same id is returned unchanged.
func (r *Registry) AddDefaultBot(ctx context.Context, s model.Supplier, m model.Model) (model.Bot, error) {
	bot := defaultBot(s, m)

	r.mu.Lock()
	if i := r.indexOf(bot.ID); i >= 0 {
		existing := r.bots[i].Clone()
		r.mu.Unlock()
		return existing, nil
	}
	r.bots = append(r.bots, bot)
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		return model.Bot{}, err
	}
	return bot.Clone(), nil
}

// UpdateBot applies u. A rename that changes the section letter moves the
// bot to the end of its new section.
func (r *Registry) UpdateBot(ctx context.Context, id string, u Update) (model.Bot, error) {
	r.mu.Lock()
	i := r.indexOf(id)
	if i < 0 {
		r.mu.Unlock()
		return model.Bot{}, fmt.Errorf("%w: %s", ErrBotNotFound, id)
	}

	b := r.bots[i].Clone()
	oldLetter := FirstLetter(b.Name)
	if u.Name != nil {
		b.Name = *u.Name
	}
	if u.Prompt != nil {
		b.Prompt = *u.Prompt
	}
	if u.Prologue != nil {
		b.Prologue = *u.Prologue
	}
	if u.Avatar != nil {
		b.Avatar = *u.Avatar
	}
	if u.Description != nil {
		b.Description = *u.Description
	}

	if FirstLetter(b.Name) != oldLetter {
		r.bots = append(r.bots[:i], r.bots[i+1:]...)
		r.bots = append(r.bots, b)
	} else {
		r.bots[i] = b
	}
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		return model.Bot{}, err
	}
	return b.Clone(), nil
}

func (r *Registry) RenameBot(ctx context.Context, id, name string) error {
	_, err := r.UpdateBot(ctx, id, Update{Name: &name})
	return err
}

// UpdateBotModel binds a custom bot to a supplier model.
func (r *Registry) UpdateBotModel(ctx context.Context, id, supplierID, modelID string) error {
	r.mu.Lock()
	i := r.indexOf(id)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBotNotFound, id)
	}
	if r.bots[i].IsDefault {
		r.mu.Unlock()
		return ErrBuiltinBot
	}
	r.bots[i].Model = &model.BotModel{SupplierID: supplierID, ModelID: modelID}
	r.mu.Unlock()
	return r.persist(ctx)
}

// DeleteBot removes a bot. When it was selected the first bot of the first
// section becomes the selection.
func (r *Registry) DeleteBot(ctx context.Context, id string) error {
	r.mu.Lock()
	i := r.indexOf(id)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBotNotFound, id)
	}
	r.bots = append(r.bots[:i], r.bots[i+1:]...)
	if r.selected == id {
		r.selected = ""
		if sections := group(r.bots); len(sections) > 0 {
			r.selected = sections[0].Bots[0].ID
		}
	}
	r.mu.Unlock()

	r.logger.Debug("bot deleted", zap.String("bot_id", id))
	return r.persist(ctx)
}

type botNames []model.Bot

func (b botNames) String(i int) string { return b[i].Name }
func (b botNames) Len() int            { return len(b) }

// Search fuzzy-matches bot names, best match first. An empty query returns
// every bot.
func (r *Registry) Search(query string) []model.Bot {
	all := r.Bots()
	if query == "" {
		return all
	}
	matches := fuzzy.FindFrom(query, botNames(all))
	out := make([]model.Bot, len(matches))
	for i, m := range matches {
		out[i] = all[m.Index]
	}
	return out
}

func (r *Registry) persist(ctx context.Context) error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	r.mu.RLock()
	snap := snapshot{Bots: make([]model.Bot, len(r.bots)), Selected: r.selected}
	for i, b := range r.bots {
		snap.Bots[i] = b.Clone()
	}
	r.mu.RUnlock()

	if err := storage.SetJSON(ctx, r.kv, snapshotKey, snap); err != nil {
		return fmt.Errorf("failed to persist bots: %w", err)
	}
	return nil
}

func (r *Registry) indexOf(id string) int {
	for i, b := range r.bots {
		if b.ID == id {
			return i
		}
	}
	return -1
}
