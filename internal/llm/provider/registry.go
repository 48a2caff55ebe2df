package provider

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Settings configures a provider instance.
type Settings struct {
	// APIKey authenticates API-key based backends (gemini, openai).
	APIKey string `yaml:"api_key"`
	// Model is the default model for requests that do not name one.
	Model string `yaml:"model"`
	// BaseURL overrides the backend endpoint.
	BaseURL string `yaml:"base_url"`
	// Project and Location select the Vertex AI deployment.
	Project  string `yaml:"project"`
	Location string `yaml:"location"`
	// Region selects the AWS region for Bedrock.
	Region string `yaml:"region"`
	// Timeout bounds a single Generate call. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`
	// MaxRetries is the number of retries after a retryable failure.
	MaxRetries int `yaml:"max_retries"`
}

// Factory builds a provider from settings.
type Factory func(settings Settings) (Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// RegisterFactory makes a provider constructor available under name.
func RegisterFactory(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// New creates a provider by name. Retry and timeout settings are applied
// around the backend by wrapping it.
func New(name string, settings Settings) (Provider, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider '%s' not found (available: %v)", name, Available())
	}

	p, err := factory(settings)
	if err != nil {
		return nil, err
	}
	if settings.MaxRetries > 0 || settings.Timeout > 0 {
		p = WithRetry(p, settings.MaxRetries, settings.Timeout)
	}
	return p, nil
}

// Available returns the registered provider names, sorted.
func Available() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a factory is registered under name.
func Has(name string) bool {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	_, ok := factories[name]
	return ok
}
