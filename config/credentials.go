package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
)

// SecurityMethod defines the credential storage method
type SecurityMethod string

const (
	SecurityPlainText SecurityMethod = "plaintext"
	SecuritySSHKey    SecurityMethod = "ssh_key"
)

// CredentialStore keeps supplier API keys, either in a 0600 TOML file or
// AES-GCM encrypted with a key derived from an SSH private key.
type CredentialStore struct {
	mu          sync.RWMutex
	method      SecurityMethod
	credentials map[string]string // supplier name -> API key
	sshKeyPath  string
	passphrase  string
	encManager  *EncryptionManager
}

func NewCredentialStore(method SecurityMethod, sshKeyPath string) *CredentialStore {
	return &CredentialStore{
		method:      method,
		credentials: make(map[string]string),
		sshKeyPath:  sshKeyPath,
	}
}

// SetPassphrase sets the passphrase for decrypting the SSH key
func (c *CredentialStore) SetPassphrase(passphrase string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.passphrase = passphrase
	if c.encManager != nil {
		c.encManager.SetPassphrase(passphrase)
	}
}

// Unlock sets the passphrase and reloads the credentials with it. It is the
// retry path after Load or Save reported ErrPassphraseRequired.
func (c *CredentialStore) Unlock(dataDir, passphrase string) error {
	c.SetPassphrase(passphrase)
	return c.Load(dataDir)
}

// NeedsPassphrase reports whether the configured SSH key is encrypted and no
// passphrase has been given yet.
func (c *CredentialStore) NeedsPassphrase() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.method != SecuritySSHKey || c.passphrase != "" {
		return false
	}
	encrypted, err := IsSSHKeyEncrypted(c.sshKeyPath)
	return err == nil && encrypted
}

// KeyPath is the SSH private key used for encryption.
func (c *CredentialStore) KeyPath() string {
	return c.sshKeyPath
}

// Load reads credentials from disk using the configured method
func (c *CredentialStore) Load(dataDir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		creds map[string]string
		err   error
	)
	switch c.method {
	case SecurityPlainText:
		creds, err = loadPlainText(dataDir)
	case SecuritySSHKey:
		creds, err = c.loadSSHEncrypted(dataDir)
	default:
		return fmt.Errorf("unknown security method: %s", c.method)
	}
	if err != nil {
		return err
	}
	if creds == nil {
		creds = make(map[string]string)
	}
	c.credentials = creds
	return nil
}

// Save writes credentials to disk using the configured method
func (c *CredentialStore) Save(dataDir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.method {
	case SecurityPlainText:
		return savePlainText(dataDir, c.credentials)
	case SecuritySSHKey:
		return c.saveSSHEncrypted(dataDir)
	default:
		return fmt.Errorf("unknown security method: %s", c.method)
	}
}

// Get retrieves the API key for a supplier
func (c *CredentialStore) Get(supplier string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credentials[supplier]
}

// Set stores the API key for a supplier; an empty key removes it
func (c *CredentialStore) Set(supplier, apiKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if apiKey == "" {
		delete(c.credentials, supplier)
		return
	}
	c.credentials[supplier] = apiKey
}

// Delete removes the API key for a supplier
func (c *CredentialStore) Delete(supplier string) {
	c.Set(supplier, "")
}

// Suppliers lists the suppliers holding a key, sorted by name
func (c *CredentialStore) Suppliers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.credentials))
	for name := range c.credentials {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *CredentialStore) Method() SecurityMethod {
	return c.method
}

func credentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.toml")
}

func encryptedCredentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.enc")
}

type credentialsFile struct {
	Credentials map[string]string `toml:"credentials"`
}

func loadPlainText(dataDir string) (map[string]string, error) {
	path := credentialsPath(dataDir)
	if !FileExists(path) {
		return make(map[string]string), nil
	}

	var cf credentialsFile
	if _, err := toml.DecodeFile(path, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	return cf.Credentials, nil
}

func savePlainText(dataDir string, creds map[string]string) error {
	f, err := os.OpenFile(credentialsPath(dataDir), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create credentials file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(credentialsFile{Credentials: creds}); err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	return nil
}

func (c *CredentialStore) ensureEncryption() error {
	if c.encManager != nil && c.passphrase == "" {
		return nil
	}
	manager := NewEncryptionManager(EncryptionSSHKey, c.sshKeyPath)
	manager.SetPassphrase(c.passphrase)
	if err := manager.Initialize(); err != nil {
		c.encManager = nil
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}
	c.encManager = manager
	return nil
}

func (c *CredentialStore) loadSSHEncrypted(dataDir string) (map[string]string, error) {
	path := encryptedCredentialsPath(dataDir)
	if !FileExists(path) {
		return make(map[string]string), nil
	}

	if err := c.ensureEncryption(); err != nil {
		return nil, err
	}

	encryptedData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read encrypted credentials: %w", err)
	}

	decryptedData, err := c.encManager.Decrypt(encryptedData)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	var creds map[string]string
	if err := json.Unmarshal(decryptedData, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse decrypted credentials: %w", err)
	}

	return creds, nil
}

func (c *CredentialStore) saveSSHEncrypted(dataDir string) error {
	if err := c.ensureEncryption(); err != nil {
		return err
	}

	jsonData, err := json.Marshal(c.credentials)
	if err != nil {
		return fmt.Errorf("failed to serialize credentials: %w", err)
	}

	encryptedData, err := c.encManager.Encrypt(jsonData)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	if err := os.WriteFile(encryptedCredentialsPath(dataDir), encryptedData, 0600); err != nil {
		return fmt.Errorf("failed to write encrypted credentials: %w", err)
	}

	return nil
}
