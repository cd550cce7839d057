package config

import "time"

const DefaultRequestTimeout = 120 * time.Second

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/botchat",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		DefaultSupplier:       "deepseek",
		RequestTimeoutSeconds: int(DefaultRequestTimeout / time.Second),
		SecurityMethod:        SecurityPlainText,
		Generation: GenerationConfig{
			Temperature: 0.7,
			MaxTokens:   1280,
			TopP:        0.9,
			ContextSize: 6,
		},
	}
}

// withDefaults fills zero values that would make a chat unusable.
func (g GenerationConfig) withDefaults() GenerationConfig {
	def := DefaultUserConfig().Generation
	if g.Temperature == 0 && g.MaxTokens == 0 && g.TopP == 0 && g.ContextSize == 0 {
		return def
	}
	if g.MaxTokens <= 0 {
		g.MaxTokens = def.MaxTokens
	}
	if g.TopP <= 0 {
		g.TopP = def.TopP
	}
	if g.ContextSize < 0 {
		g.ContextSize = def.ContextSize
	}
	return g
}

func GenerateSystemConfigTemplate() string {
	return `# botchat System Configuration
# Location: ~/.config/botchat/settings.toml
# This file uses TOML format: https://toml.io

# Directory where the database, credentials and user config are stored
data_directory = "~/.local/share/botchat"
`
}

func GenerateUserConfigTemplate() string {
	return `# botchat User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

# Supplier selected when the app starts
default_supplier = "deepseek"

# Upper bound for a single request, streaming included
request_timeout_seconds = 120

# How supplier API keys are stored: "plaintext" or "ssh_key"
security_method = "plaintext"

# Private key used to derive the encryption key when security_method = "ssh_key"
# ssh_key_path = "~/.ssh/botchat_ed25519"

# Defaults for newly created chats
[generation]
temperature = 0.7
max_tokens = 1280
top_p = 0.9
context_size = 6

# Endpoint overrides for built-in suppliers
# [[suppliers]]
# name = "openai"
# base_url = "https://my-proxy.example.com/v1"
`
}
