package engine

import (
	"fmt"
	"sync"

	"github.com/germanamz/parley/pkg/providers/anthropic"
	"github.com/germanamz/parley/pkg/providers/openai"
	"github.com/germanamz/parley/pkg/providers/provider"
)

// ProviderFactory creates a Responder from a ProviderConfig.
type ProviderFactory func(cfg ProviderConfig) (provider.Responder, error)

var (
	factoryMu   sync.RWMutex
	factories   = map[string]ProviderFactory{}
	defaultsReg sync.Once
)

func ensureDefaults() {
	defaultsReg.Do(func() {
		factories["openai"] = newOpenAI
		factories["anthropic"] = newAnthropic
	})
}

// RegisterProvider registers a custom provider factory under the given
// kind. It can be called before New to extend the relay with additional
// wire shapes.
func RegisterProvider(kind string, factory ProviderFactory) {
	ensureDefaults()

	factoryMu.Lock()
	defer factoryMu.Unlock()

	factories[kind] = factory
}

// getFactory returns the factory for the given kind.
func getFactory(kind string) (ProviderFactory, bool) {
	ensureDefaults()

	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factories[kind]
	return f, ok
}

func newOpenAI(cfg ProviderConfig) (provider.Responder, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	a := openai.New(cfg.Name, baseURL, cfg.APIKey, cfg.Model)
	if len(cfg.Headers) > 0 {
		a.Headers = cfg.Headers
	}

	return a, nil
}

func newAnthropic(cfg ProviderConfig) (provider.Responder, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	a := anthropic.New(cfg.Name, baseURL, cfg.APIKey, cfg.Model)
	for k, v := range cfg.Headers {
		a.Headers[k] = v
	}

	return a, nil
}

// buildResponder creates a Responder from a ProviderConfig using the
// registered factory for its Kind. An unknown kind is a configuration
// error, fatal at startup.
func buildResponder(cfg ProviderConfig) (provider.Responder, error) {
	factory, ok := getFactory(cfg.Kind)
	if !ok {
		return nil, fmt.Errorf("engine: unknown provider kind %q", cfg.Kind)
	}

	return factory(cfg)
}
