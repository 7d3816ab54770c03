// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads leasecore configuration.
//
// # Description
//
// Values come from, in increasing precedence: built-in defaults, a
// leasecore.yaml file, a .env file, and LEASECORE_* environment variables.
// Nested keys map to environment variables with dots replaced by
// underscores, e.g. llm.backend -> LEASECORE_LLM_BACKEND.
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    return err
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "LEASECORE"

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Weaviate   WeaviateConfig   `mapstructure:"weaviate"`
	Reranker   RerankerConfig   `mapstructure:"reranker"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	EmbedCache EmbedCacheConfig `mapstructure:"embed_cache"`
	Sessions   SessionsConfig   `mapstructure:"sessions"`
	Legal      LegalConfig      `mapstructure:"legal"`
	Export     ExportConfig     `mapstructure:"export"`
	Auth       AuthConfig       `mapstructure:"auth"`
}

// ServerConfig configures the HTTP host.
type ServerConfig struct {
	Port    int    `mapstructure:"port"`
	GinMode string `mapstructure:"gin_mode"`

	// RateLimit is requests per second per client. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Dir    string `mapstructure:"dir"`
}

// TelemetryConfig configures OpenTelemetry tracing and metrics.
type TelemetryConfig struct {
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	OTelEndpoint   string `mapstructure:"otel_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
}

// LLMConfig selects the classification/generation backend and the embedder.
type LLMConfig struct {
	// Backend is "openai" or "anthropic".
	Backend string `mapstructure:"backend"`
	Model   string `mapstructure:"model"`

	// APIKey may be empty; clients then read OPENAI_API_KEY or
	// ANTHROPIC_API_KEY (or the matching Docker secret).
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`

	EmbeddingModel      string `mapstructure:"embedding_model"`
	EmbeddingDimensions int    `mapstructure:"embedding_dimensions"`
	EmbeddingAPIKey     string `mapstructure:"embedding_api_key"`
	EmbeddingBaseURL    string `mapstructure:"embedding_base_url"`

	ClassifyTimeout time.Duration `mapstructure:"classify_timeout"`
	GenerateTimeout time.Duration `mapstructure:"generate_timeout"`
}

// WeaviateConfig configures the vector store. An empty URL disables
// retrieval; turns then run unverified.
type WeaviateConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// RerankerConfig configures the Cohere-compatible rerank endpoint. An empty
// URL disables reranking; retrieval results are then degraded.
type RerankerConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// RetrievalConfig tunes the retrieval engine.
type RetrievalConfig struct {
	TopK                int           `mapstructure:"top_k"`
	CandidatesPerCorpus int           `mapstructure:"candidates_per_corpus"`
	SearchTimeout       time.Duration `mapstructure:"search_timeout"`
	SearchRetries       int           `mapstructure:"search_retries"`
}

// EmbedCacheConfig configures the BadgerDB embedding cache.
type EmbedCacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Path    string        `mapstructure:"path"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// SessionsConfig configures the session store and its snapshots.
type SessionsConfig struct {
	// DBPath is the SQLite snapshot database. Empty keeps sessions in memory
	// only.
	DBPath          string        `mapstructure:"db_path"`
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
}

// LegalConfig tunes legal reasoning behavior.
type LegalConfig struct {
	AutoApplyReviewRewrites bool `mapstructure:"auto_apply_review_rewrites"`
	MinDurationDays         int  `mapstructure:"min_duration_days"`
	MaxDurationDays         int  `mapstructure:"max_duration_days"`
}

// ExportConfig configures PDF rendering and the archive bucket.
type ExportConfig struct {
	PDFEnabled bool          `mapstructure:"pdf_enabled"`
	ChromePath string        `mapstructure:"chrome_path"`
	PDFTimeout time.Duration `mapstructure:"pdf_timeout"`

	ArchiveEnabled bool          `mapstructure:"archive_enabled"`
	Endpoint       string        `mapstructure:"endpoint"`
	AccessKey      string        `mapstructure:"access_key"`
	SecretKey      string        `mapstructure:"secret_key"`
	Bucket         string        `mapstructure:"bucket"`
	UseSSL         bool          `mapstructure:"use_ssl"`
	URLExpiry      time.Duration `mapstructure:"url_expiry"`
}

// AuthConfig configures bearer authentication. An empty JWTSecret
// disables authentication.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// Load reads configuration.
//
// # Inputs
//
//   - path: Explicit config file. Empty searches "leasecore.yaml" in the
//     working directory and $HOME/.leasecore.
//
// # Outputs
//
//   - *Config: Populated configuration. A missing config file is not an
//     error; an unreadable or malformed one is.
func Load(path string) (*Config, error) {
	// .env is optional.
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("leasecore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.leasecore")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		slog.Debug("No config file found, using defaults and environment")
	} else {
		slog.Debug("Loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so that AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 12210)
	v.SetDefault("server.gin_mode", "release")
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "auto")
	v.SetDefault("logging.dir", "")

	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otel_endpoint", "localhost:4317")
	v.SetDefault("telemetry.service_name", "leasecore")
	v.SetDefault("telemetry.metrics_enabled", true)

	v.SetDefault("llm.backend", "openai")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.embedding_dimensions", 0)
	v.SetDefault("llm.embedding_api_key", "")
	v.SetDefault("llm.embedding_base_url", "")
	v.SetDefault("llm.classify_timeout", 20*time.Second)
	v.SetDefault("llm.generate_timeout", 60*time.Second)

	v.SetDefault("weaviate.url", "")
	v.SetDefault("weaviate.api_key", "")

	v.SetDefault("reranker.url", "")
	v.SetDefault("reranker.api_key", "")
	v.SetDefault("reranker.model", "rerank-multilingual-v3.0")

	v.SetDefault("retrieval.top_k", 8)
	v.SetDefault("retrieval.candidates_per_corpus", 20)
	v.SetDefault("retrieval.search_timeout", 5*time.Second)
	v.SetDefault("retrieval.search_retries", 2)

	v.SetDefault("embed_cache.enabled", true)
	v.SetDefault("embed_cache.path", "./data/embedcache")
	v.SetDefault("embed_cache.ttl", 7*24*time.Hour)

	v.SetDefault("sessions.db_path", "./data/leasecore.db")
	v.SetDefault("sessions.idle_ttl", 30*time.Minute)
	v.SetDefault("sessions.janitor_interval", time.Minute)

	v.SetDefault("legal.auto_apply_review_rewrites", true)
	v.SetDefault("legal.min_duration_days", 1)
	v.SetDefault("legal.max_duration_days", 36500)

	v.SetDefault("export.pdf_enabled", true)
	v.SetDefault("export.chrome_path", "")
	v.SetDefault("export.pdf_timeout", 30*time.Second)
	v.SetDefault("export.archive_enabled", false)
	v.SetDefault("export.endpoint", "localhost:9000")
	v.SetDefault("export.access_key", "")
	v.SetDefault("export.secret_key", "")
	v.SetDefault("export.bucket", "leasecore-exports")
	v.SetDefault("export.use_ssl", false)
	v.SetDefault("export.url_expiry", 24*time.Hour)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "leasecore")
}
