package session

import (
	"context"
	"fmt"
)

// Config selects and configures the stats backend.
type Config struct {
	// Store specifies the storage backend type.
	// Options: "memory", "file", "redis", "firestore"
	// Default: "memory"
	Store string `yaml:"store"`

	// BaseDir is the directory for file-based storage.
	// Default: ~/.pixelctx/stats
	BaseDir string `yaml:"base_dir"`

	Redis     RedisConfig     `yaml:"redis"`
	Firestore FirestoreConfig `yaml:"firestore"`
}

// DefaultConfig returns the default stats configuration.
func DefaultConfig() Config {
	return Config{Store: "memory"}
}

// NewBackend builds the backend named by cfg.Store.
func NewBackend(ctx context.Context, cfg Config) (StatsBackend, error) {
	switch cfg.Store {
	case "", "memory":
		return NewMemoryBackend(), nil
	case "file":
		return NewFileBackend(cfg.BaseDir)
	case "redis":
		return NewRedisBackend(cfg.Redis)
	case "firestore":
		return NewFirestoreBackend(ctx, cfg.Firestore)
	default:
		return nil, fmt.Errorf("unknown stats store: %s", cfg.Store)
	}
}
