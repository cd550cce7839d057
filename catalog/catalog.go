// Package catalog owns the supplier table: endpoints, keys and the model
// groups each supplier offers.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"botchat/config"
	"botchat/model"
	"botchat/provider"
	"botchat/storage"
)

const snapshotKey = "suppliers"

// NewModelName is given to models added from the settings screen.
const NewModelName = "New model"

// NewGroupName is given to freshly added model groups.
const NewGroupName = "New model group"

const verifyConcurrency = 4

var (
	ErrSupplierNotFound = errors.New("supplier not found")
	ErrGroupNotFound    = errors.New("model group not found")
	ErrModelNotFound    = errors.New("model not found")
	ErrDuplicateModel   = errors.New("model id already exists")
)

// Listener is told about every credential or endpoint change.
type Listener func(supplier string, generation uint64)

// Options wires a Catalog to its collaborators. Only KV is required.
type Options struct {
	KV storage.KV
	// Credentials holds the API keys. When set, keys never reach the KV
	// snapshot.
	Credentials *config.CredentialStore
	DataDir     string
	// Endpoints returns a configured base URL override for a supplier.
	Endpoints func(name string) (string, bool)
	// SaveEndpoint records a changed base URL where Endpoints reads it.
	SaveEndpoint func(name, url string) error
	Timeout      time.Duration
	Logger       *zap.Logger
}

// Catalog is safe for concurrent use. Readers always get copies.
type Catalog struct {
	mu          sync.RWMutex
	persistMu   sync.Mutex
	opts        Options
	logger      *zap.Logger
	suppliers   []model.Supplier
	generations map[string]uint64
	listeners   []Listener

	ping func(ctx context.Context, cfg provider.Config) error
}

func New(opts Options) *Catalog {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		opts:        opts,
		logger:      logger.Named("catalog"),
		suppliers:   DefaultSuppliers(),
		generations: make(map[string]uint64),
		ping:        provider.Ping,
	}
}

// Load restores the persisted snapshot, seeding the built-in table on first
// run. Built-in suppliers missing from an older snapshot are appended.
func (c *Catalog) Load(ctx context.Context) error {
	var stored []model.Supplier
	found, err := storage.GetJSON(ctx, c.opts.KV, snapshotKey, &stored)
	if err != nil {
		return fmt.Errorf("failed to load suppliers: %w", err)
	}

	suppliers := stored
	if !found || len(stored) == 0 {
		suppliers = DefaultSuppliers()
	} else {
		known := make(map[string]bool, len(stored))
		for _, s := range stored {
			known[s.Name] = true
		}
		for _, s := range DefaultSuppliers() {
			if !known[s.Name] {
				suppliers = append(suppliers, s)
			}
		}
	}

	for i := range suppliers {
		s := &suppliers[i]
		if c.opts.Credentials != nil {
			s.APIKey = c.opts.Credentials.Get(s.Name)
		}
		if c.opts.Endpoints != nil {
			if url, ok := c.opts.Endpoints(s.Name); ok {
				s.APIURL = url
			}
		}
		if !s.HasKey() {
			c.logger.Debug("supplier has no API key", zap.String("supplier", s.Name))
		}
	}

	c.mu.Lock()
	c.suppliers = suppliers
	c.mu.Unlock()

	if !found {
		return c.persist(ctx)
	}
	return nil
}

// Subscribe registers l for generation changes. Listeners run synchronously
// after the change is persisted.
func (c *Catalog) Subscribe(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Generation is bumped whenever the supplier's key or URL changes.
func (c *Catalog) Generation(name string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generations[name]
}

func (c *Catalog) Suppliers() []model.Supplier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Supplier, len(c.suppliers))
	for i, s := range c.suppliers {
		out[i] = s.Clone()
	}
	return out
}

func (c *Catalog) Supplier(name string) (model.Supplier, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := c.indexOf(name)
	if i < 0 {
		return model.Supplier{}, fmt.Errorf("%w: %s", ErrSupplierNotFound, name)
	}
	return c.suppliers[i].Clone(), nil
}

// AvailableModels flattens the models of every supplier that has a key.
func (c *Catalog) AvailableModels() []model.AvailableModel {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []model.AvailableModel
	for _, s := range c.suppliers {
		if !s.HasKey() {
			continue
		}
		for _, g := range s.ModelGroups {
			for _, m := range g.Models {
				m.Skills = append([]string(nil), m.Skills...)
				out = append(out, model.AvailableModel{
					Ref:           model.ModelRef(s.Name, m.ID),
					SupplierName:  s.Name,
					SupplierLabel: s.Label,
					SupplierLogo:  s.Logo,
					Group:         g.GroupName,
					Model:         m,
				})
			}
		}
	}
	return out
}

// Resolve looks up a "supplier/modelID" reference.
func (c *Catalog) Resolve(ref string) (model.Supplier, model.Model, error) {
	name, modelID, err := model.ParseModelRef(ref)
	if err != nil {
		return model.Supplier{}, model.Model{}, err
	}
	s, err := c.Supplier(name)
	if err != nil {
		return model.Supplier{}, model.Model{}, err
	}
	m, ok := s.FindModel(modelID)
	if !ok {
		return model.Supplier{}, model.Model{}, fmt.Errorf("%w: %s", ErrModelNotFound, ref)
	}
	return s, m, nil
}

// ProviderConfig snapshots what a client needs to talk to ref.
func (c *Catalog) ProviderConfig(ref string) (provider.Config, error) {
	s, m, err := c.Resolve(ref)
	if err != nil {
		return provider.Config{}, err
	}
	return c.configFor(s, m.ID), nil
}

func (c *Catalog) configFor(s model.Supplier, modelID string) provider.Config {
	return provider.Config{
		Supplier: s.Name,
		BaseURL:  s.APIURL,
		APIKey:   s.APIKey,
		Model:    modelID,
		Timeout:  c.opts.Timeout,
	}
}

// UpdateSupplierConfig replaces the key and base URL of a supplier and
// bumps its generation. The key and a changed URL are written to their
// stores first, so a failed write leaves the catalog untouched.
func (c *Catalog) UpdateSupplierConfig(ctx context.Context, name, apiKey, apiURL string) error {
	c.mu.RLock()
	i := c.indexOf(name)
	var prevURL string
	if i >= 0 {
		prevURL = c.suppliers[i].APIURL
	}
	c.mu.RUnlock()
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrSupplierNotFound, name)
	}

	if creds := c.opts.Credentials; creds != nil {
		prev := creds.Get(name)
		creds.Set(name, apiKey)
		if err := creds.Save(c.opts.DataDir); err != nil {
			creds.Set(name, prev)
			return fmt.Errorf("failed to persist credentials: %w", err)
		}
	}
	if apiURL != prevURL && c.opts.SaveEndpoint != nil {
		if err := c.opts.SaveEndpoint(name, apiURL); err != nil {
			return fmt.Errorf("failed to persist endpoint: %w", err)
		}
	}

	c.mu.Lock()
	i = c.indexOf(name)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSupplierNotFound, name)
	}
	c.suppliers[i].APIKey = apiKey
	c.suppliers[i].APIURL = apiURL
	gen := c.bumpLocked(name)
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	if err := c.persist(ctx); err != nil {
		return err
	}

	c.logger.Info("supplier updated", zap.String("supplier", name), zap.Uint64("generation", gen))
	for _, l := range listeners {
		l(name, gen)
	}
	return nil
}

// ReloadCredentials overlays the credential store onto the suppliers again,
// after it was unlocked late. Suppliers whose key changed get a new
// generation.
func (c *Catalog) ReloadCredentials() {
	creds := c.opts.Credentials
	if creds == nil {
		return
	}

	type change struct {
		name string
		gen  uint64
	}
	var changed []change
	c.mu.Lock()
	for i := range c.suppliers {
		s := &c.suppliers[i]
		key := creds.Get(s.Name)
		if key == s.APIKey {
			continue
		}
		s.APIKey = key
		changed = append(changed, change{name: s.Name, gen: c.bumpLocked(s.Name)})
	}
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	for _, ch := range changed {
		c.logger.Info("supplier key reloaded", zap.String("supplier", ch.name), zap.Uint64("generation", ch.gen))
		for _, l := range listeners {
			l(ch.name, ch.gen)
		}
	}
}

// bumpLocked must be called with mu held.
func (c *Catalog) bumpLocked(name string) uint64 {
	c.generations[name]++
	return c.generations[name]
}

// AddModelGroup appends an empty group to a supplier.
func (c *Catalog) AddModelGroup(ctx context.Context, supplier string) (model.ModelGroup, error) {
	group := model.ModelGroup{ID: uuid.NewString(), GroupName: NewGroupName, Models: []model.Model{}}
	err := c.mutate(ctx, supplier, func(s *model.Supplier) error {
		s.ModelGroups = append(s.ModelGroups, group)
		return nil
	})
	return group, err
}

func (c *Catalog) RenameModelGroup(ctx context.Context, supplier, groupID, name string) error {
	return c.mutate(ctx, supplier, func(s *model.Supplier) error {
		g, err := findGroup(s, groupID)
		if err != nil {
			return err
		}
		s.ModelGroups[g].GroupName = name
		return nil
	})
}

// RemoveModelGroup drops a group and returns the references of the models
// it contained, so dependent bots and chats can be removed.
func (c *Catalog) RemoveModelGroup(ctx context.Context, supplier, groupID string) ([]string, error) {
	var refs []string
	err := c.mutate(ctx, supplier, func(s *model.Supplier) error {
		g, err := findGroup(s, groupID)
		if err != nil {
			return err
		}
		for _, m := range s.ModelGroups[g].Models {
			refs = append(refs, model.ModelRef(s.Name, m.ID))
		}
		s.ModelGroups = append(s.ModelGroups[:g], s.ModelGroups[g+1:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// AddModel appends a placeholder model with a generated id.
func (c *Catalog) AddModel(ctx context.Context, supplier, groupID string) (model.Model, error) {
	m := model.Model{ID: "new-" + uuid.NewString()[:8], Name: NewModelName}
	err := c.mutate(ctx, supplier, func(s *model.Supplier) error {
		g, err := findGroup(s, groupID)
		if err != nil {
			return err
		}
		s.ModelGroups[g].Models = append(s.ModelGroups[g].Models, m)
		return nil
	})
	return m, err
}

func (c *Catalog) RenameModel(ctx context.Context, supplier, modelID, name string) error {
	return c.mutate(ctx, supplier, func(s *model.Supplier) error {
		g, j, err := findModel(s, modelID)
		if err != nil {
			return err
		}
		s.ModelGroups[g].Models[j].Name = name
		return nil
	})
}

// UpdateModelID changes the upstream id of a model. Bots bound to the old
// reference keep it and resolve to nothing afterwards.
func (c *Catalog) UpdateModelID(ctx context.Context, supplier, oldID, newID string) error {
	if newID == "" {
		return fmt.Errorf("model id must not be empty")
	}
	return c.mutate(ctx, supplier, func(s *model.Supplier) error {
		if _, ok := s.FindModel(newID); ok && newID != oldID {
			return fmt.Errorf("%w: %s", ErrDuplicateModel, newID)
		}
		g, j, err := findModel(s, oldID)
		if err != nil {
			return err
		}
		s.ModelGroups[g].Models[j].ID = newID
		return nil
	})
}

// RemoveModel deletes one model and returns its reference.
func (c *Catalog) RemoveModel(ctx context.Context, supplier, modelID string) (string, error) {
	var ref string
	err := c.mutate(ctx, supplier, func(s *model.Supplier) error {
		g, j, err := findModel(s, modelID)
		if err != nil {
			return err
		}
		models := s.ModelGroups[g].Models
		s.ModelGroups[g].Models = append(models[:j], models[j+1:]...)
		ref = model.ModelRef(s.Name, modelID)
		return nil
	})
	return ref, err
}

// Verify pings one supplier with its current key.
func (c *Catalog) Verify(ctx context.Context, name string) provider.PingResult {
	s, err := c.Supplier(name)
	if err != nil {
		return provider.PingResult{Supplier: name, Err: err}
	}
	return c.verify(ctx, s)
}

// VerifyAll pings every supplier that has a key. Results follow catalog
// order; a failed ping never cancels the others.
func (c *Catalog) VerifyAll(ctx context.Context) []provider.PingResult {
	var keyed []model.Supplier
	for _, s := range c.Suppliers() {
		if s.HasKey() {
			keyed = append(keyed, s)
		}
	}

	results := make([]provider.PingResult, len(keyed))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(verifyConcurrency)
	for i, s := range keyed {
		g.Go(func() error {
			results[i] = c.verify(gctx, s)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Catalog) verify(ctx context.Context, s model.Supplier) provider.PingResult {
	modelID := ""
	for _, g := range s.ModelGroups {
		if len(g.Models) > 0 {
			modelID = g.Models[0].ID
			break
		}
	}
	cfg := c.configFor(s, modelID)
	if cfg.Type() != provider.ProviderTypeAnthropic {
		cfg.Model = ""
	}
	err := c.ping(ctx, cfg)
	if err != nil {
		c.logger.Warn("supplier verification failed", zap.String("supplier", s.Name), zap.Error(err))
	}
	return provider.PingResult{Supplier: s.Name, Valid: err == nil, Err: err}
}

func (c *Catalog) mutate(ctx context.Context, supplier string, fn func(s *model.Supplier) error) error {
	c.mu.Lock()
	i := c.indexOf(supplier)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSupplierNotFound, supplier)
	}
	s := c.suppliers[i].Clone()
	if err := fn(&s); err != nil {
		c.mu.Unlock()
		return err
	}
	c.suppliers[i] = s
	c.mu.Unlock()
	return c.persist(ctx)
}

func (c *Catalog) persist(ctx context.Context) error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	snapshot := c.Suppliers()
	if c.opts.Credentials != nil {
		for i := range snapshot {
			snapshot[i].APIKey = ""
		}
	}
	if err := storage.SetJSON(ctx, c.opts.KV, snapshotKey, snapshot); err != nil {
		return fmt.Errorf("failed to persist suppliers: %w", err)
	}
	return nil
}

func (c *Catalog) indexOf(name string) int {
	for i, s := range c.suppliers {
		if s.Name == name {
			return i
		}
	}
	return -1
}

func findGroup(s *model.Supplier, groupID string) (int, error) {
	for i, g := range s.ModelGroups {
		if g.ID == groupID {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
}

func findModel(s *model.Supplier, modelID string) (int, int, error) {
	for i, g := range s.ModelGroups {
		for j, m := range g.Models {
			if m.ID == modelID {
				return i, j, nil
			}
		}
	}
	return -1, -1, fmt.Errorf("%w: %s/%s", ErrModelNotFound, s.Name, modelID)
}
