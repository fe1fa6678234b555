package config

import (
	"os"
	"strconv"
	"time"

	"github.com/billbuster/billpoints/internal/point"
)

type Config struct {
	Port string

	// Service auth
	APIKey string

	// Model service
	AnthropicAPIKey   string
	ModelName         string
	RequestTimeout    time.Duration
	RequestsPerSecond float64

	// Bill repository (optional sink)
	BillstoreURL    string
	BillstoreAPIKey string

	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// Memory
	MemoryWindow int

	// Retry / delivery
	MaxRetries      int
	SinkMaxAttempts int

	// Finalize
	GenerateSummary bool

	// Worker pool
	WorkerCount  int
	MaxQueueSize int
	JobTTL       time.Duration
}

func Load() Config {
	return Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("BILLPOINTS_API_KEY"),

		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		ModelName:         envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		RequestTimeout:    envDuration("REQUEST_TIMEOUT", 120*time.Second),
		RequestsPerSecond: envFloat("REQUESTS_PER_SECOND", 1.0),

		BillstoreURL:    os.Getenv("BILLSTORE_URL"),
		BillstoreAPIKey: os.Getenv("BILLSTORE_API_KEY"),

		ChunkSize:    envInt("CHUNK_SIZE", 4000),
		ChunkOverlap: envInt("CHUNK_OVERLAP", 500),

		MemoryWindow: envInt("MEMORY_WINDOW", 5),

		MaxRetries:      envInt("MAX_RETRIES", 3),
		SinkMaxAttempts: envInt("SINK_MAX_ATTEMPTS", 3),

		GenerateSummary: envBool("GENERATE_SUMMARY", true),

		WorkerCount:  envInt("WORKER_COUNT", 2),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),
		JobTTL:       envDuration("JOB_TTL", 1*time.Hour),
	}
}

// Validate reports a *point.ConfigError for settings that would make the
// pipeline abort at run time.
func (c Config) Validate() error {
	if c.AnthropicAPIKey == "" {
		return &point.ConfigError{Field: "ANTHROPIC_API_KEY", Reason: "required"}
	}
	if c.ModelName == "" {
		return &point.ConfigError{Field: "ANTHROPIC_MODEL", Reason: "required"}
	}
	if c.ChunkSize <= 0 {
		return &point.ConfigError{Field: "CHUNK_SIZE", Reason: "must be positive"}
	}
	if c.ChunkOverlap <= 0 || c.ChunkOverlap >= c.ChunkSize {
		return &point.ConfigError{Field: "CHUNK_OVERLAP", Reason: "must satisfy 0 < overlap < chunkSize"}
	}
	if c.BillstoreURL != "" && c.BillstoreAPIKey == "" {
		return &point.ConfigError{Field: "BILLSTORE_API_KEY", Reason: "required when BILLSTORE_URL is set"}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
