package ui

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"botchat/bots"
	"botchat/catalog"
	"botchat/chat"
	"botchat/config"
	"botchat/conversation"
	"botchat/storage"
)

const testPassphrase = "hunter2"

func writeProtectedKey(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKeyWithPassphrase(priv, "test", []byte(testPassphrase))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))
	return path
}

func newLockedView(t *testing.T, creds *config.CredentialStore, dataDir string) AppView {
	t.Helper()
	ctx := context.Background()
	kv := storage.NewMemoryKV()

	cat := catalog.New(catalog.Options{KV: kv, Credentials: creds, DataDir: dataDir})
	require.NoError(t, cat.Load(ctx))
	reg := bots.NewRegistry(kv, nil)
	require.NoError(t, reg.Load(ctx, cat.Suppliers()))
	store := conversation.NewStore(conversation.Options{KV: kv, Bots: reg})
	require.NoError(t, store.Load(ctx))

	a := NewAppView(Options{
		Service:     chat.NewService(store, reg, cat, nil),
		Store:       store,
		Bots:        reg,
		Catalog:     cat,
		Credentials: creds,
		DataDir:     dataDir,
		ExportDir:   t.TempDir(),
		Version:     "test",
	})
	t.Cleanup(a.Close)

	m, _ := a.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return m.(AppView)
}

func typed(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestUnlockAtStartup(t *testing.T) {
	dataDir := t.TempDir()
	keyPath := writeProtectedKey(t)

	seed := config.NewCredentialStore(config.SecuritySSHKey, keyPath)
	seed.SetPassphrase(testPassphrase)
	seed.Set("openai", "sk-saved")
	require.NoError(t, seed.Save(dataDir))

	creds := config.NewCredentialStore(config.SecuritySSHKey, keyPath)
	require.ErrorIs(t, creds.Load(dataDir), config.ErrPassphraseRequired)

	a := newLockedView(t, creds, dataDir)
	require.Equal(t, modePassphrase, a.mode)
	assert.Contains(t, a.View(), "SSH Key Passphrase Required")

	a = press(t, a, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, emptyPassphraseText, a.passErr)

	a = press(t, a, typed("wrong"), tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, modePassphrase, a.mode)
	assert.Equal(t, incorrectPassphraseText, a.passErr)

	a = press(t, a, typed(testPassphrase), tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, modeChat, a.mode)

	sup, err := a.catalog.Supplier("openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-saved", sup.APIKey)
	assert.Equal(t, uint64(1), a.catalog.Generation("openai"))
}

func TestKeySaveWaitsForPassphrase(t *testing.T) {
	dataDir := t.TempDir()
	creds := config.NewCredentialStore(config.SecuritySSHKey, writeProtectedKey(t))

	a := newLockedView(t, creds, dataDir)
	require.Equal(t, modePassphrase, a.mode)
	a = press(t, a, tea.KeyMsg{Type: tea.KeyEsc})
	require.Equal(t, modeChat, a.mode)

	supplier := a.currentSupplier()
	require.NotEmpty(t, supplier)

	a = press(t, a, tea.KeyMsg{Type: tea.KeyCtrlK}, typed("sk-new"), tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, modePassphrase, a.mode)
	require.NotNil(t, a.pending)
	assert.Empty(t, creds.Get(supplier))

	a = press(t, a, typed(testPassphrase), tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, modeChat, a.mode)
	assert.Nil(t, a.pending)
	assert.False(t, a.statusIsError)

	assert.Equal(t, "sk-new", creds.Get(supplier))
	sup, err := a.catalog.Supplier(supplier)
	require.NoError(t, err)
	assert.Equal(t, "sk-new", sup.APIKey)

	reloaded := config.NewCredentialStore(config.SecuritySSHKey, creds.KeyPath())
	require.NoError(t, reloaded.Unlock(dataDir, testPassphrase))
	assert.Equal(t, "sk-new", reloaded.Get(supplier))
}
