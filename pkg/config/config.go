// Package config loads the pixelctx configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aixgo-dev/pixelctx/internal/llm/provider"
	"github.com/aixgo-dev/pixelctx/internal/observability"
	"github.com/aixgo-dev/pixelctx/pkg/render"
	"github.com/aixgo-dev/pixelctx/pkg/session"
)

// MaxFileSize bounds the configuration file.
const MaxFileSize = 1 << 20

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Provider      ProviderConfig      `yaml:"provider"`
	Render        render.Options      `yaml:"render"`
	Stats         session.Config      `yaml:"stats"`
	Artifacts     ArtifactsConfig     `yaml:"artifacts"`
	Export        ExportConfig        `yaml:"export"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
	// RateLimit is requests per second per client. Zero disables limiting.
	RateLimit    float64       `yaml:"rate_limit"`
	RateBurst    int           `yaml:"rate_burst"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// MaxBodyBytes bounds request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// ProviderConfig selects the hosted model.
type ProviderConfig struct {
	Name              string `yaml:"name"`
	provider.Settings `yaml:",inline"`
	// PricingModel names the model used for USD savings. Defaults to Model.
	PricingModel string `yaml:"pricing_model"`
}

// ArtifactsConfig controls the debug image sink.
type ArtifactsConfig struct {
	Dir string `yaml:"dir"`
	// Retention enables the sweeper when positive.
	Retention     time.Duration `yaml:"retention"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

// ExportConfig toggles export formats.
type ExportConfig struct {
	PDFEnabled bool `yaml:"pdf_enabled"`
}

// ObservabilityConfig holds tracing and the standalone metrics listener.
type ObservabilityConfig struct {
	Tracing observability.Config `yaml:"tracing"`
	// MetricsPort serves /metrics and probes on a separate port when non-zero.
	MetricsPort int `yaml:"metrics_port"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8000",
			CORSOrigins:  []string{"http://localhost:5173", "http://localhost:3000"},
			RateBurst:    10,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			MaxBodyBytes: 8 << 20,
		},
		Provider: ProviderConfig{
			Name:     "gemini",
			Settings: provider.Settings{Model: "gemini-2.0-flash"},
		},
		Render: render.DefaultOptions(),
		Stats:  session.DefaultConfig(),
		Artifacts: ArtifactsConfig{
			Dir:           "debug_images",
			SweepSchedule: "@hourly",
		},
		Export: ExportConfig{PDFEnabled: true},
	}
}

// LoadConfig loads configuration from a YAML file over the defaults and
// applies environment overrides. An empty path yields defaults plus env.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if info.Size() > MaxFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxFileSize)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := safeUnmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.Observability.Tracing.ApplyEnv()

	if cfg.Provider.PricingModel == "" {
		cfg.Provider.PricingModel = cfg.Provider.Model
	}
	return cfg, nil
}

// ApplyEnv overrides fields from PIXELCTX_* variables.
func (c *Config) ApplyEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("PIXELCTX_ADDR", &c.Server.Addr)
	str("PIXELCTX_PROVIDER", &c.Provider.Name)
	str("PIXELCTX_MODEL", &c.Provider.Model)
	str("PIXELCTX_BASE_URL", &c.Provider.BaseURL)
	str("PIXELCTX_STATS_STORE", &c.Stats.Store)
	str("PIXELCTX_STATS_DIR", &c.Stats.BaseDir)
	str("PIXELCTX_REDIS_ADDR", &c.Stats.Redis.Addr)
	str("PIXELCTX_FIRESTORE_PROJECT", &c.Stats.Firestore.ProjectID)
	str("PIXELCTX_ARTIFACTS_DIR", &c.Artifacts.Dir)

	if v := os.Getenv("PIXELCTX_CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.CORSOrigins = origins
	}
	if v := os.Getenv("PIXELCTX_RATE_LIMIT"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PIXELCTX_RATE_LIMIT: %w", err)
		}
		c.Server.RateLimit = rps
	}
	if v := os.Getenv("PIXELCTX_PDF_EXPORT"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PIXELCTX_PDF_EXPORT: %w", err)
		}
		c.Export.PDFEnabled = enabled
	}
	return nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid. Credentials are not
// checked here; a missing key surfaces on the first chat request.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit must not be negative"))
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst <= 0 {
		errs = append(errs, errors.New("server.rate_burst must be positive when rate limiting"))
	}
	if c.Provider.Name == "" {
		errs = append(errs, errors.New("provider.name is required"))
	} else if !provider.Has(c.Provider.Name) {
		errs = append(errs, fmt.Errorf("provider.name %q is not registered (available: %s)",
			c.Provider.Name, strings.Join(provider.Available(), ", ")))
	}
	if c.Provider.MaxRetries < 0 {
		errs = append(errs, errors.New("provider.max_retries must not be negative"))
	}
	switch c.Stats.Store {
	case "", "memory", "file":
	case "redis":
		if c.Stats.Redis.Addr == "" {
			errs = append(errs, errors.New("stats.redis.addr is required for the redis store"))
		}
	case "firestore":
		if c.Stats.Firestore.ProjectID == "" {
			errs = append(errs, errors.New("stats.firestore.project_id is required for the firestore store"))
		}
	default:
		errs = append(errs, fmt.Errorf("stats.store %q is not one of memory, file, redis, firestore", c.Stats.Store))
	}
	if c.Artifacts.Dir == "" {
		errs = append(errs, errors.New("artifacts.dir is required"))
	}
	if c.Artifacts.Retention < 0 {
		errs = append(errs, errors.New("artifacts.retention must not be negative"))
	}
	return errors.Join(errs...)
}

// APIKeySet reports whether the configured provider has a credential, from
// the file or the environment.
func (c *Config) APIKeySet() bool {
	switch c.Provider.Name {
	case "gemini":
		return c.Provider.APIKey != "" || os.Getenv("GEMINI_API_KEY") != "" || os.Getenv("GOOGLE_API_KEY") != ""
	case "openai":
		return c.Provider.APIKey != "" || os.Getenv("OPENAI_API_KEY") != ""
	case "vertexai":
		return c.Provider.Project != "" || os.Getenv("GOOGLE_CLOUD_PROJECT") != ""
	case "bedrock":
		return c.Provider.Region != "" || os.Getenv("AWS_REGION") != ""
	case "mock", "ollama":
		return true
	}
	return false
}
