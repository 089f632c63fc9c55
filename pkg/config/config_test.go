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

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv(PathEnvVar, filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("SOLAR_API_KEY", "up-key")
	t.Setenv("DATABASE_URL", "postgres://festa@localhost/festa?sslmode=disable")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "up-key", cfg.Solar.APIKey)
	assert.Equal(t, "https://api.upstage.ai/v1", cfg.Solar.BaseURL)
	assert.Equal(t, "solar-pro", cfg.Solar.ChatModel)
	assert.Equal(t, "solar-embedding-1-large-query", cfg.Solar.QueryModel)
	assert.InDelta(t, 0.3, cfg.Solar.Temperature, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.Solar.EmbedTimeout)
	assert.Equal(t, 3, cfg.Solar.EmbedRetries)
	assert.Equal(t, 3, cfg.RAG.TopK)
	assert.Equal(t, "postgres", cfg.Catalog.Backend)
	assert.Equal(t, "postgres://festa@localhost/festa?sslmode=disable", cfg.Catalog.DatabaseURL)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, 110*time.Second, cfg.Server.HandlerTimeout())
}

func TestLoad_FileThenEnv(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
  write_timeout: 45s
rag:
  top_k: 5
catalog:
  backend: qdrant
  qdrant_addr: qdrant:6334
solar:
  temperature: 0.1
`), 0o600))
	t.Setenv(PathEnvVar, path)
	t.Setenv("FESTA_RAG__TOP_K", "7")
	t.Setenv("FESTA_SOLAR__CHAT_MODEL", "solar-mini")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr, "file overrides default")
	assert.Equal(t, 45*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 7, cfg.RAG.TopK, "env overrides file")
	assert.Equal(t, "qdrant", cfg.Catalog.Backend)
	assert.Equal(t, "qdrant:6334", cfg.Catalog.QdrantAddr)
	assert.InDelta(t, 0.1, cfg.Solar.Temperature, 1e-9)
	assert.Equal(t, "solar-mini", cfg.Solar.ChatModel)
	assert.Equal(t, "redis://cache:6379/0", cfg.Cache.RedisURL)
}

func TestLoad_MissingAPIKey(t *testing.T) {
	setRequired(t)
	t.Setenv("SOLAR_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "solar.api_key")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Solar.APIKey = "k"
		c.Catalog.DatabaseURL = "postgres://x"
		return c
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"backend", func(c *Config) { c.Catalog.Backend = "sqlite" }, "catalog.backend"},
		{"postgres dsn", func(c *Config) { c.Catalog.DatabaseURL = "" }, "catalog.database_url"},
		{"qdrant addr", func(c *Config) { c.Catalog.Backend = "qdrant"; c.Catalog.QdrantAddr = "" }, "catalog.qdrant_addr"},
		{"top_k", func(c *Config) { c.RAG.TopK = 0 }, "rag.top_k"},
		{"temperature", func(c *Config) { c.Solar.Temperature = 2.5 }, "solar.temperature"},
		{"retries", func(c *Config) { c.Solar.EmbedRetries = 0 }, "solar.embed_retries"},
		{"concurrency", func(c *Config) { c.Ingest.Concurrency = 0 }, "ingest.concurrency"},
		{"embedding url", func(c *Config) { c.Solar.EmbeddingURL = "" }, "solar.embedding_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestServerConfig_HandlerTimeout(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want time.Duration
	}{
		{"request below write", ServerConfig{RequestTimeout: 100 * time.Second, WriteTimeout: 120 * time.Second}, 100 * time.Second},
		{"request above write", ServerConfig{RequestTimeout: 110 * time.Second, WriteTimeout: 45 * time.Second}, 40500 * time.Millisecond},
		{"request unset", ServerConfig{WriteTimeout: 60 * time.Second}, 54 * time.Second},
		{"no write timeout", ServerConfig{RequestTimeout: 30 * time.Second}, 30 * time.Second},
		{"neither", ServerConfig{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.HandlerTimeout()
			assert.Equal(t, tt.want, got)
			if tt.cfg.WriteTimeout > 0 {
				assert.Less(t, got, tt.cfg.WriteTimeout)
			}
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "solar.api_key", envKey("FESTA_SOLAR__API_KEY"))
	assert.Equal(t, "server.addr", envKey("FESTA_SERVER__ADDR"))
	assert.Equal(t, "nats.url", envKey("NATS_URL"))
	assert.Equal(t, "", envKey("HOME"))
}

func TestLoggingConfig_Logger(t *testing.T) {
	var buf strings.Builder
	log := LoggingConfig{Level: "warn", Format: "json"}.Logger(&buf)
	log.Info("hidden")
	log.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)

	buf.Reset()
	LoggingConfig{Level: "debug", Format: "text"}.Logger(&buf).Debug("dbg")
	assert.Contains(t, buf.String(), "msg=dbg")
}
