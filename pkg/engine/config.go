package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level relay configuration.
type Config struct {
	Listen    string           `yaml:"listen"`    // Gateway listen address (default ":8080").
	Secret    string           `yaml:"secret"`    // Shared secret a room must present to start.
	ChatsDir  string           `yaml:"chats_dir"` // Directory for per-chat history files (default "chats").
	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig describes one AI provider instance.
type ProviderConfig struct {
	Name    string            `yaml:"name"`     // Agent name, unique across providers.
	Kind    string            `yaml:"kind"`     // Wire shape tag: "openai" or "anthropic".
	BaseURL string            `yaml:"base_url"` // API base URL (no trailing slash).
	APIKey  string            `yaml:"api_key"`  //nolint:gosec // configuration field, not a hardcoded secret
	Model   string            `yaml:"model"`
	Headers map[string]string `yaml:"headers"` // Optional extra static headers.
}

// LoadConfig reads a YAML file and returns a Config.
// Environment variables referenced as ${VAR} or $VAR in the YAML are
// expanded before parsing, so API keys can live in the environment (e.g.
// loaded from a .env file) rather than in the config itself. A provider
// whose api_key expands to an empty string is treated as not credentialed
// and is skipped at build time.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("engine: load config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w", err)
	}

	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.ChatsDir == "" {
		cfg.ChatsDir = "chats"
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent. It does
// not verify that wire-shape tags are known; that happens when responders
// are built, and is equally fatal at startup.
func (c Config) Validate() error {
	if c.Secret == "" {
		return fmt.Errorf("engine: config: secret is required")
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("engine: config: at least one provider is required")
	}

	names := make(map[string]struct{}, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("engine: config: provider name is required")
		}
		if p.Kind == "" {
			return fmt.Errorf("engine: config: provider %q: kind is required", p.Name)
		}
		if p.Model == "" {
			return fmt.Errorf("engine: config: provider %q: model is required", p.Name)
		}
		if _, dup := names[p.Name]; dup {
			return fmt.Errorf("engine: config: duplicate provider name %q", p.Name)
		}
		names[p.Name] = struct{}{}
	}

	return nil
}
