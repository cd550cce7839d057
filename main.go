package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"botchat/bots"
	"botchat/catalog"
	"botchat/chat"
	"botchat/config"
	"botchat/conversation"
	"botchat/model"
	"botchat/storage"
	"botchat/ui"
)

const Version = "v0.01.00"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	dataDir := cfg.DataDir()

	logger, err := config.NewLogger(dataDir)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := storage.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	// An encrypted SSH key leaves the store locked until the view asks for
	// the passphrase.
	creds := cfg.NewCredentialStore()
	if err := creds.Load(dataDir); err != nil && !errors.Is(err, config.ErrPassphraseRequired) {
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	cat := catalog.New(catalog.Options{
		KV:           db.KV(),
		Credentials:  creds,
		DataDir:      dataDir,
		Endpoints:    cfg.SupplierURL,
		SaveEndpoint: cfg.SaveSupplierURL,
		Timeout:      cfg.RequestTimeout,
		Logger:       logger,
	})
	if err := cat.Load(ctx); err != nil {
		return fmt.Errorf("failed to load suppliers: %w", err)
	}

	registry := bots.NewRegistry(db.KV(), logger)
	if err := registry.Load(ctx, cat.Suppliers()); err != nil {
		return fmt.Errorf("failed to load bots: %w", err)
	}

	store := conversation.NewStore(conversation.Options{
		KV:       db.KV(),
		Usage:    storage.NewCollection(db, "usage", func(r model.UsageRecord) string { return r.ID }),
		Bots:     registry,
		Defaults: cfg.Generation,
		Logger:   logger,
	})
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("failed to load conversations: %w", err)
	}

	svc := chat.NewService(store, registry, cat, logger)
	logger.Info("starting",
		zap.String("version", Version),
		zap.String("data_dir", dataDir),
		zap.Int("suppliers", len(cat.Suppliers())),
		zap.Int("bots", len(registry.Bots())))

	view := ui.NewAppView(ui.Options{
		Service:     svc,
		Store:       store,
		Bots:        registry,
		Catalog:     cat,
		Credentials: creds,
		DataDir:     dataDir,
		ExportDir:   filepath.Join(dataDir, "exports"),
		Version:     Version,
		Logger:      logger,
	})
	defer view.Close()

	p := tea.NewProgram(view, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running botchat: %w", err)
	}
	return nil
}
