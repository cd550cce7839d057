package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

// GenerationConfig holds the generation defaults applied to new chats.
type GenerationConfig struct {
	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
	TopP        float64 `toml:"top_p"`
	ContextSize int     `toml:"context_size"`
}

// SupplierConfig overrides the endpoint of a built-in supplier.
type SupplierConfig struct {
	Name    string `toml:"name"`
	BaseURL string `toml:"base_url"`
}

type UserConfig struct {
	DefaultSupplier       string           `toml:"default_supplier"`
	RequestTimeoutSeconds int              `toml:"request_timeout_seconds"`
	SecurityMethod        SecurityMethod   `toml:"security_method"`
	SSHKeyPath            string           `toml:"ssh_key_path,omitempty"`
	Generation            GenerationConfig `toml:"generation"`
	Suppliers             []SupplierConfig `toml:"suppliers,omitempty"`
}

type Config struct {
	DataDirectory   string
	DefaultSupplier string
	RequestTimeout  time.Duration
	SecurityMethod  SecurityMethod
	SSHKeyPath      string
	Generation      GenerationConfig
	Suppliers       []SupplierConfig
}

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// DatabasePath is the SQLite file holding snapshots and usage records.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir(), "botchat.db")
}

// SupplierURL returns the configured endpoint override for a supplier.
func (c *Config) SupplierURL(name string) (string, bool) {
	for _, s := range c.Suppliers {
		if s.Name == name && s.BaseURL != "" {
			return s.BaseURL, true
		}
	}
	return "", false
}

// SaveSupplierURL records an endpoint override in config.toml and applies it
// to c, so the next Load sees the same URL.
func (c *Config) SaveSupplierURL(name, url string) error {
	if err := SetSupplierURL(c.DataDir(), name, url); err != nil {
		return err
	}
	kept := c.Suppliers[:0:0]
	for _, s := range c.Suppliers {
		if s.Name != name {
			kept = append(kept, s)
		}
	}
	if url != "" {
		kept = append(kept, SupplierConfig{Name: name, BaseURL: url})
	}
	c.Suppliers = kept
	return nil
}

// NewCredentialStore builds the credential store selected in config.toml.
// With ssh_key and no ssh_key_path, the first key found in ~/.ssh is used.
func (c *Config) NewCredentialStore() *CredentialStore {
	method := c.SecurityMethod
	if method == "" {
		method = SecurityPlainText
	}
	keyPath := ExpandPath(c.SSHKeyPath)
	if method == SecuritySSHKey && keyPath == "" {
		if found, err := FindSSHKeys(); err == nil && len(found) > 0 {
			keyPath = found[0]
		}
	}
	return NewCredentialStore(method, keyPath)
}

func (c *Config) applyEnvOverrides() {
	if dataDir := os.Getenv("BOTCHAT_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if supplier := os.Getenv("BOTCHAT_DEFAULT_SUPPLIER"); supplier != "" {
		c.DefaultSupplier = supplier
	}
}

func CheckDebug() bool {
	debug := os.Getenv("BOTCHAT_DEBUG")
	return debug == "true" || debug == "1"
}

func (c *Config) applyUserConfig(u *UserConfig) {
	c.DefaultSupplier = u.DefaultSupplier
	if u.RequestTimeoutSeconds > 0 {
		c.RequestTimeout = time.Duration(u.RequestTimeoutSeconds) * time.Second
	}
	if u.SecurityMethod != "" {
		c.SecurityMethod = u.SecurityMethod
	}
	c.SSHKeyPath = u.SSHKeyPath
	c.Generation = u.Generation.withDefaults()
	c.Suppliers = u.Suppliers
}

func Load() (*Config, error) {
	cfg := &Config{
		DataDirectory:  GetDefaultDataDir(),
		RequestTimeout: DefaultRequestTimeout,
		SecurityMethod: SecurityPlainText,
		Generation:     DefaultUserConfig().Generation,
	}

	systemCfg, err := LoadSystemConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load system config: %w", err)
	}
	cfg.DataDirectory = systemCfg.DataDirectory
	cfg.applyEnvOverrides()

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	cfg.applyUserConfig(userCfg)
	// Environment wins over the file for the default supplier too.
	cfg.applyEnvOverrides()

	return cfg, nil
}
