package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/katakuxiko/docchat/internal/model"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerAddr    string        `yaml:"server_addr"`
	BodyLimitMB   int           `yaml:"body_limit_mb"`
	LogLevel      string        `yaml:"log_level"`
	LogFormat     string        `yaml:"log_format"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	SweepSchedule string        `yaml:"sweep_schedule"`

	PDF       PDFConfig       `yaml:"pdf"`
	Chunk     ChunkConfig     `yaml:"chunk"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Index     IndexConfig     `yaml:"index"`
}

type PDFConfig struct {
	PageSeparator string `yaml:"page_separator"`
}

type ChunkConfig struct {
	Size      int    `yaml:"size"`
	Overlap   int    `yaml:"overlap"`
	Separator string `yaml:"separator"`
}

type RetrievalConfig struct {
	TopK         int    `yaml:"top_k"`
	SystemPrompt string `yaml:"system_prompt"`
}

// EmbeddingConfig selects the embedding model. Provider is one of openai,
// ollama or tfidf.
type EmbeddingConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Dimension   int           `yaml:"dimension"`
	BatchSize   int           `yaml:"batch_size"`
	Concurrency int           `yaml:"concurrency"`
	RateLimit   float64       `yaml:"rate_limit"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LLMConfig selects the chat model. Provider is one of openai or ollama.
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Temperature float32       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// IndexConfig selects the similarity backend: memory or pgvector.
type IndexConfig struct {
	Backend string `yaml:"backend"`
	PgConn  string `yaml:"pg_conn"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServerAddr:    ":8080",
		BodyLimitMB:   50,
		LogLevel:      "info",
		LogFormat:     "text",
		SessionTTL:    2 * time.Hour,
		SweepSchedule: "@every 5m",
		Chunk: ChunkConfig{
			Size:      1000,
			Overlap:   200,
			Separator: "\n",
		},
		Retrieval: RetrievalConfig{
			TopK: 4,
		},
		Embedding: EmbeddingConfig{
			Provider:    "openai",
			Model:       "text-embedding-nomic-embed-text-v1.5",
			BaseURL:     "http://localhost:1234/v1",
			APIKey:      "not-needed",
			BatchSize:   32,
			Concurrency: 1,
			Timeout:     30 * time.Second,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "google/gemma-3n-e4b",
			BaseURL:     "http://localhost:1234/v1",
			APIKey:      "not-needed",
			Temperature: 0.2,
			Timeout:     2 * time.Minute,
		},
		Index: IndexConfig{
			Backend: "memory",
			PgConn:  "host=localhost port=5432 user=postgres password=123123 dbname=pdf_ai sslmode=disable",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env", "error", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ServerAddr = getenv("SERVER_ADDR", c.ServerAddr)
	c.BodyLimitMB = getenvInt("BODY_LIMIT_MB", c.BodyLimitMB)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getenv("LOG_FORMAT", c.LogFormat)
	c.SessionTTL = getenvDuration("SESSION_TTL", c.SessionTTL)
	c.SweepSchedule = getenv("SWEEP_SCHEDULE", c.SweepSchedule)

	c.PDF.PageSeparator = lookupEscaped("PDF_PAGE_SEPARATOR", c.PDF.PageSeparator)

	c.Chunk.Size = getenvInt("CHUNK_SIZE", c.Chunk.Size)
	c.Chunk.Overlap = getenvInt("CHUNK_OVERLAP", c.Chunk.Overlap)
	c.Chunk.Separator = lookupEscaped("CHUNK_SEPARATOR", c.Chunk.Separator)

	c.Retrieval.TopK = getenvInt("RETRIEVAL_K", c.Retrieval.TopK)
	c.Retrieval.SystemPrompt = getenv("SYSTEM_PROMPT", c.Retrieval.SystemPrompt)

	// LMSTUDIO_BASE_URL and OPENAI_API_KEY feed both models unless the
	// model-specific variables are set.
	c.Embedding.Provider = getenv("EMBED_PROVIDER", c.Embedding.Provider)
	c.Embedding.Model = getenv("EMBED_MODEL", c.Embedding.Model)
	c.Embedding.BaseURL = getenv("EMBED_BASE_URL", getenv("LMSTUDIO_BASE_URL", c.Embedding.BaseURL))
	c.Embedding.APIKey = getenv("EMBED_API_KEY", getenv("OPENAI_API_KEY", c.Embedding.APIKey))
	c.Embedding.Dimension = getenvInt("EMBED_DIMENSION", c.Embedding.Dimension)
	c.Embedding.BatchSize = getenvInt("EMBED_BATCH_SIZE", c.Embedding.BatchSize)
	c.Embedding.Concurrency = getenvInt("EMBED_CONCURRENCY", c.Embedding.Concurrency)
	c.Embedding.RateLimit = getenvFloat("EMBED_RATE_LIMIT", c.Embedding.RateLimit)
	c.Embedding.Timeout = getenvDuration("EMBED_TIMEOUT", c.Embedding.Timeout)

	c.LLM.Provider = getenv("LLM_PROVIDER", c.LLM.Provider)
	c.LLM.Model = getenv("LLM_MODEL", c.LLM.Model)
	c.LLM.BaseURL = getenv("LLM_BASE_URL", getenv("LMSTUDIO_BASE_URL", c.LLM.BaseURL))
	c.LLM.APIKey = getenv("LLM_API_KEY", getenv("OPENAI_API_KEY", c.LLM.APIKey))
	c.LLM.Temperature = float32(getenvFloat("LLM_TEMPERATURE", float64(c.LLM.Temperature)))
	c.LLM.Timeout = getenvDuration("LLM_TIMEOUT", c.LLM.Timeout)

	c.Index.Backend = getenv("INDEX_BACKEND", c.Index.Backend)
	c.Index.PgConn = getenv("PG_CONN", c.Index.PgConn)
}

// Validate rejects configurations that would fail later in the pipeline.
func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return &model.ConfigError{Field: "server_addr", Msg: "is required"}
	}
	if c.Chunk.Size <= 0 {
		return &model.ConfigError{Field: "chunk_size", Msg: "must be greater than zero"}
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		return &model.ConfigError{Field: "chunk_overlap", Msg: "must satisfy 0 <= overlap < chunk_size"}
	}
	if c.Retrieval.TopK <= 0 {
		return &model.ConfigError{Field: "retrieval_k", Msg: "must be greater than zero"}
	}
	switch c.Embedding.Provider {
	case "openai", "ollama", "tfidf":
	default:
		return &model.ConfigError{Field: "embed_provider", Msg: fmt.Sprintf("unknown provider %q", c.Embedding.Provider)}
	}
	switch c.LLM.Provider {
	case "openai", "ollama":
	default:
		return &model.ConfigError{Field: "llm_provider", Msg: fmt.Sprintf("unknown provider %q", c.LLM.Provider)}
	}
	if c.Embedding.BatchSize <= 0 {
		return &model.ConfigError{Field: "embed_batch_size", Msg: "must be greater than zero"}
	}
	if c.Embedding.Concurrency <= 0 {
		return &model.ConfigError{Field: "embed_concurrency", Msg: "must be greater than zero"}
	}
	if c.Embedding.RateLimit < 0 {
		return &model.ConfigError{Field: "embed_rate_limit", Msg: "must not be negative"}
	}
	switch c.Index.Backend {
	case "memory":
	case "pgvector":
		if c.Index.PgConn == "" {
			return &model.ConfigError{Field: "pg_conn", Msg: "is required for the pgvector backend"}
		}
	default:
		return &model.ConfigError{Field: "index_backend", Msg: fmt.Sprintf("unknown backend %q", c.Index.Backend)}
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", k, "default", def)
		return def
	}
	return n
}

func getenvFloat(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("invalid number in environment, using default", "key", k, "default", def)
		return def
	}
	return f
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", k, "default", def)
		return def
	}
	return d
}

var escapes = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r")

// lookupEscaped reads separators, where an explicitly empty value is
// meaningful and \n style escapes are expanded.
func lookupEscaped(k, def string) string {
	v, ok := os.LookupEnv(k)
	if !ok {
		return def
	}
	return escapes.Replace(v)
}
