// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar overrides the config file location.
const PathEnvVar = "CONFIG_PATH"

// EnvPrefix marks variables that map onto config keys. A double underscore
// separates sections: FESTA_SOLAR__API_KEY sets solar.api_key.
const EnvPrefix = "FESTA_"

// DefaultPaths are searched in order when CONFIG_PATH is unset.
var DefaultPaths = []string{"config.yaml", "config.yml", "/etc/festa/config.yaml"}

// envAliases maps conventional unprefixed variables onto config keys.
var envAliases = map[string]string{
	"SOLAR_API_KEY":           "solar.api_key",
	"SOLAR_EMBEDDING_API_URL": "solar.embedding_url",
	"SOLAR_EMBEDDING_PASSAGE": "solar.passage_model",
	"DATABASE_URL":            "catalog.database_url",
	"QDRANT_ADDR":             "catalog.qdrant_addr",
	"REDIS_URL":               "cache.redis_url",
	"NATS_URL":                "nats.url",
	"LOG_LEVEL":               "logging.level",
}

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Solar   SolarConfig   `koanf:"solar"`
	RAG     RAGConfig     `koanf:"rag"`
	Catalog CatalogConfig `koanf:"catalog"`
	Cache   CacheConfig   `koanf:"cache"`
	NATS    NATSConfig    `koanf:"nats"`
	Ingest  IngestConfig  `koanf:"ingest"`
	Logging LoggingConfig `koanf:"logging"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// RequestTimeout bounds the chat pipeline for one request.
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	CORSOrigin      string        `koanf:"cors_origin"`
}

// HandlerTimeout is the deadline put on a chat request's context. It stays
// below WriteTimeout so a reply can still be written when it fires.
func (s ServerConfig) HandlerTimeout() time.Duration {
	if s.RequestTimeout > 0 && (s.WriteTimeout <= 0 || s.RequestTimeout < s.WriteTimeout) {
		return s.RequestTimeout
	}
	if s.WriteTimeout <= 0 {
		return 0
	}
	return s.WriteTimeout * 9 / 10
}

type SolarConfig struct {
	APIKey       string  `koanf:"api_key"`
	BaseURL      string  `koanf:"base_url"`
	EmbeddingURL string  `koanf:"embedding_url"`
	QueryModel   string  `koanf:"query_model"`
	PassageModel string  `koanf:"passage_model"`
	ChatModel    string  `koanf:"chat_model"`
	Temperature  float64 `koanf:"temperature"`

	EmbedTimeout time.Duration `koanf:"embed_timeout"`
	EmbedRetries int           `koanf:"embed_retries"`
	EmbedBackoff time.Duration `koanf:"embed_backoff"`
	ChatTimeout  time.Duration `koanf:"chat_timeout"`

	// RateLimit is requests per second across both APIs; 0 disables pacing.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	BreakerFailures int           `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

type RAGConfig struct {
	TopK           int           `koanf:"top_k"`
	CatalogTimeout time.Duration `koanf:"catalog_timeout"`
}

type CatalogConfig struct {
	// Backend is "postgres" or "qdrant".
	Backend      string        `koanf:"backend"`
	DatabaseURL  string        `koanf:"database_url"`
	Table        string        `koanf:"table"`
	MaxOpenConns int           `koanf:"max_open_conns"`
	MaxIdleConns int           `koanf:"max_idle_conns"`
	ConnLifetime time.Duration `koanf:"conn_lifetime"`
	QdrantAddr   string        `koanf:"qdrant_addr"`
	Collection   string        `koanf:"collection"`
}

type CacheConfig struct {
	// RedisURL enables the catalog snapshot cache when set.
	RedisURL string        `koanf:"redis_url"`
	Key      string        `koanf:"key"`
	TTL      time.Duration `koanf:"ttl"`
}

type NATSConfig struct {
	// URL enables chat analytics when set.
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

type IngestConfig struct {
	Concurrency int `koanf:"concurrency"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  110 * time.Second,
			CORSOrigin:      "*",
		},
		Solar: SolarConfig{
			BaseURL:         "https://api.upstage.ai/v1",
			EmbeddingURL:    "https://api.upstage.ai/v1/embeddings",
			QueryModel:      "solar-embedding-1-large-query",
			PassageModel:    "solar-embedding-1-large-passage",
			ChatModel:       "solar-pro",
			Temperature:     0.3,
			EmbedTimeout:    30 * time.Second,
			EmbedRetries:    3,
			EmbedBackoff:    3 * time.Second,
			ChatTimeout:     60 * time.Second,
			RateBurst:       1,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		RAG: RAGConfig{
			TopK:           3,
			CatalogTimeout: 10 * time.Second,
		},
		Catalog: CatalogConfig{
			Backend:      "postgres",
			Table:        "events",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			ConnLifetime: 5 * time.Minute,
			QdrantAddr:   "localhost:6334",
			Collection:   "festivals",
		},
		Cache: CacheConfig{
			Key: "festa:catalog:embedded",
			TTL: 5 * time.Minute,
		},
		NATS: NATSConfig{
			Subject: "festa.chat.completed",
		},
		Ingest: IngestConfig{
			Concurrency: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load layers Default, the config file and the environment, then validates.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envKey maps an environment variable to a config key, or "" to skip it.
func envKey(name string) string {
	if key, ok := envAliases[name]; ok {
		return key
	}
	if !strings.HasPrefix(name, EnvPrefix) {
		return ""
	}
	name = strings.TrimPrefix(name, EnvPrefix)
	return strings.ToLower(strings.ReplaceAll(name, "__", "."))
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Solar.APIKey == "" {
		errs = append(errs, errors.New("solar.api_key is required"))
	}
	if c.Solar.EmbeddingURL == "" {
		errs = append(errs, errors.New("solar.embedding_url is required"))
	}
	if c.Solar.Temperature < 0 || c.Solar.Temperature > 2 {
		errs = append(errs, fmt.Errorf("solar.temperature %v out of range [0, 2]", c.Solar.Temperature))
	}
	if c.Solar.EmbedRetries < 1 {
		errs = append(errs, errors.New("solar.embed_retries must be at least 1"))
	}
	if c.RAG.TopK <= 0 {
		errs = append(errs, fmt.Errorf("rag.top_k must be positive, got %d", c.RAG.TopK))
	}
	switch c.Catalog.Backend {
	case "postgres":
		if c.Catalog.DatabaseURL == "" {
			errs = append(errs, errors.New("catalog.database_url is required for the postgres backend"))
		}
	case "qdrant":
		if c.Catalog.QdrantAddr == "" {
			errs = append(errs, errors.New("catalog.qdrant_addr is required for the qdrant backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("catalog.backend %q must be postgres or qdrant", c.Catalog.Backend))
	}
	if c.Ingest.Concurrency < 1 {
		errs = append(errs, errors.New("ingest.concurrency must be at least 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: invalid: %w", errors.Join(errs...))
	}
	return nil
}
