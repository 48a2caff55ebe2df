package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pixelctx.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadConfig_FileSizeLimit(t *testing.T) {
	data := strings.Repeat("x: value\n", 200000) // ~1.6MB
	_, err := LoadConfig(writeConfig(t, data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  rate_limit: 5
provider:
  name: openai
  model: gpt-4o
  timeout: 30s
  max_retries: 2
render:
  width: 1024
stats:
  store: redis
  redis:
    addr: localhost:6379
    ttl: 1h
artifacts:
  dir: /tmp/pixelctx
  retention: 24h
export:
  pdf_enabled: false
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5.0, cfg.Server.RateLimit)
	assert.Equal(t, 10, cfg.Server.RateBurst)
	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.Equal(t, "gpt-4o", cfg.Provider.Model)
	assert.Equal(t, "gpt-4o", cfg.Provider.PricingModel)
	assert.Equal(t, 30*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, 2, cfg.Provider.MaxRetries)
	assert.Equal(t, 1024, cfg.Render.Width)
	assert.Equal(t, 8, cfg.Render.FontSize, "unset render fields keep defaults")
	assert.Equal(t, "redis", cfg.Stats.Store)
	assert.Equal(t, "localhost:6379", cfg.Stats.Redis.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Artifacts.Retention)
	assert.False(t, cfg.Export.PDFEnabled)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_Empty(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
	assert.Equal(t, "gemini-2.0-flash", cfg.Provider.PricingModel)
}

func TestLoadConfig_NoPath(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Provider.Name)
	assert.True(t, cfg.Export.PDFEnabled)
}

func TestLoadConfig_NonexistentFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "server:\n  addr: [[[\n"))
	assert.Error(t, err)
}

func TestLoadConfig_TooDeep(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString(strings.Repeat("  ", i))
		b.WriteString("k:\n")
	}
	_, err := LoadConfig(writeConfig(t, b.String()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nesting depth")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PIXELCTX_ADDR", ":7000")
	t.Setenv("PIXELCTX_PROVIDER", "mock")
	t.Setenv("PIXELCTX_STATS_STORE", "file")
	t.Setenv("PIXELCTX_CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("PIXELCTX_RATE_LIMIT", "2.5")
	t.Setenv("PIXELCTX_PDF_EXPORT", "false")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "mock", cfg.Provider.Name)
	assert.Equal(t, "file", cfg.Stats.Store)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 2.5, cfg.Server.RateLimit)
	assert.False(t, cfg.Export.PDFEnabled)
}

func TestApplyEnv_Invalid(t *testing.T) {
	t.Setenv("PIXELCTX_RATE_LIMIT", "fast")
	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "PIXELCTX_RATE_LIMIT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown provider", func(c *Config) { c.Provider.Name = "nope" }, "not registered"},
		{"redis without addr", func(c *Config) { c.Stats.Store = "redis" }, "stats.redis.addr"},
		{"firestore without project", func(c *Config) { c.Stats.Store = "firestore" }, "project_id"},
		{"unknown store", func(c *Config) { c.Stats.Store = "sqlite" }, "stats.store"},
		{"negative rate", func(c *Config) { c.Server.RateLimit = -1 }, "rate_limit"},
		{"no burst", func(c *Config) { c.Server.RateLimit = 1; c.Server.RateBurst = 0 }, "rate_burst"},
		{"no artifacts dir", func(c *Config) { c.Artifacts.Dir = "" }, "artifacts.dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestAPIKeySet(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	cfg := Default()
	assert.False(t, cfg.APIKeySet())

	t.Setenv("GOOGLE_API_KEY", "k")
	assert.True(t, cfg.APIKeySet())

	cfg.Provider.Name = "mock"
	assert.True(t, cfg.APIKeySet())
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Server.Addr = ":1234"
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":1234", loaded.Server.Addr)
}
