// Package config is the composition root: it reads environment variables and
// an embedded defaults file and produces the Config value every other
// package is wired from.
package config

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML embed.FS

// ErrConfigMissing is returned when a required setting has no environment
// variable and no default.
var ErrConfigMissing = errors.New("required configuration value missing")

type defaults struct {
	VectorIndexRoot          string  `yaml:"vector_index_root"`
	EmbedRateLimitRPM        int     `yaml:"embed_rate_limit_rpm"`
	LLMRateLimitRPM          int     `yaml:"llm_rate_limit_rpm"`
	FetchTimeoutSeconds      int     `yaml:"fetch_timeout_seconds"`
	FetchMaxChars            int     `yaml:"fetch_max_chars"`
	IngestWorkerConcurrency  int     `yaml:"ingest_worker_concurrency"`
	TopK                     int     `yaml:"top_k"`
	MinScore                 float64 `yaml:"min_score"`
	ConfidenceFloor          float64 `yaml:"confidence_floor"`
	ConfidenceCeiling        float64 `yaml:"confidence_ceiling"`
	ConfidenceExponent       float64 `yaml:"confidence_exponent"`
	EnableLLMDeadlineRescue  bool    `yaml:"enable_llm_deadline_rescue"`
	EvictionIntervalHours    int     `yaml:"eviction_interval_hours"`
}

// Config is the fully resolved runtime configuration.
type Config struct {
	DatabaseURL      string
	EmbedBaseURL     string
	EmbedModel       string
	LLMBaseURL       string
	LLMModel         string
	IntakeDir        string
	ArchiveDir       string
	RegistryPath     string
	UnprocessedPath  string

	VectorIndexRoot         string
	EmbedRateLimitRPM       int
	LLMRateLimitRPM         int
	FetchTimeout            time.Duration
	FetchMaxChars           int
	IngestWorkerConcurrency int
	TopK                    int
	MinScore                float64
	ConfidenceFloor         float64
	ConfidenceCeiling       float64
	ConfidenceExponent      float64
	EnableLLMDeadlineRescue bool
	EvictionInterval        time.Duration
}

// Load resolves the process configuration from environment variables,
// falling back to the embedded defaults.yaml for tunables. DATABASE_URL is
// the only setting with no usable default; its absence is a boot-time fatal
// error.
func Load() (*Config, error) {
	var d defaults
	raw, err := defaultsYAML.ReadFile("defaults.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded defaults: %w", err)
	}
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL", ErrConfigMissing)
	}

	cfg := &Config{
		DatabaseURL:     dbURL,
		EmbedBaseURL:    envOr("EMBED_BASE_URL", "http://localhost:11434"),
		EmbedModel:      envOr("EMBED_MODEL", "nomic-embed-text"),
		LLMBaseURL:      envOr("LLM_BASE_URL", "http://localhost:11434"),
		LLMModel:        envOr("LLM_MODEL", "llama3.2:latest"),
		IntakeDir:       envOr("INTAKE_DIR", "./intake"),
		ArchiveDir:      envOr("ARCHIVE_DIR", "./intake/Ingested"),
		RegistryPath:    envOr("REGISTRY_PATH", "./state/processed_opportunities.json"),
		UnprocessedPath: envOr("UNPROCESSED_TRACKER_PATH", "./state/unprocessed_tracking.json"),

		VectorIndexRoot:         envOr("VECTOR_INDEX_ROOT", d.VectorIndexRoot),
		EmbedRateLimitRPM:       envIntOr("EMBED_RATE_LIMIT_RPM", d.EmbedRateLimitRPM),
		LLMRateLimitRPM:         envIntOr("LLM_RATE_LIMIT_RPM", d.LLMRateLimitRPM),
		FetchTimeout:            time.Duration(envIntOr("FETCH_TIMEOUT_SECONDS", d.FetchTimeoutSeconds)) * time.Second,
		FetchMaxChars:           envIntOr("FETCH_MAX_CHARS", d.FetchMaxChars),
		IngestWorkerConcurrency: envIntOr("INGEST_WORKER_CONCURRENCY", d.IngestWorkerConcurrency),
		TopK:                    envIntOr("TOP_K", d.TopK),
		MinScore:                d.MinScore,
		ConfidenceFloor:         d.ConfidenceFloor,
		ConfidenceCeiling:       d.ConfidenceCeiling,
		ConfidenceExponent:      d.ConfidenceExponent,
		EnableLLMDeadlineRescue: envBoolOr("ENABLE_LLM_DEADLINE_RESCUE", d.EnableLLMDeadlineRescue),
		EvictionInterval:        time.Duration(envIntOr("EVICTION_INTERVAL_HOURS", d.EvictionIntervalHours)) * time.Hour,
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
