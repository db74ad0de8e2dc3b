package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	DatabaseURL      string
	ServerPort       string
	RedisURL         string
	RabbitMQURL      string
	RabbitMQPrefetch int
	AllowedOrigins   []string
	JWKSURL          string
	RateLimit        string // ulule/limiter formatted rate, e.g. "10-S"
	OpenAIKey        string
	AIModel          string
	AIBaseURL        string
	EnableHSTS       bool
	ServerDebugMode  bool
	WorkerDebugMode  bool
	OTELEnabled      bool
	OTELEndpoint     string

	// Aggregation tuning
	CacheTTL         time.Duration
	StepTimeout      time.Duration
	StepDelay        time.Duration
	CountRetryDelay  time.Duration
	RefreshDebounce  time.Duration
	FallbackRowLimit int
}

// fileConfig is the optional YAML overlay loaded from CONFIG_FILE.
// Env vars always win over file values.
type fileConfig struct {
	DatabaseURL      string   `yaml:"database_url"`
	ServerPort       string   `yaml:"server_port"`
	RedisURL         string   `yaml:"redis_url"`
	RabbitMQURL      string   `yaml:"rabbitmq_url"`
	RabbitMQPrefetch int      `yaml:"rabbitmq_prefetch"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	JWKSURL          string   `yaml:"jwks_url"`
	RateLimit        string   `yaml:"rate_limit"`
	OpenAIKey        string   `yaml:"openai_api_key"`
	AIModel          string   `yaml:"ai_model"`
	AIBaseURL        string   `yaml:"ai_base_url"`
	CacheTTL         string   `yaml:"cache_ttl"`
	StepTimeout      string   `yaml:"step_timeout"`
	StepDelay        string   `yaml:"step_delay"`
	RefreshDebounce  string   `yaml:"refresh_debounce"`
}

// Load loads configuration from the optional CONFIG_FILE YAML overlay and
// environment variables; env vars take precedence
func Load() (*Config, error) {
	var file fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", file.DatabaseURL),
		ServerPort:       getEnv("SERVER_PORT", firstNonEmpty(file.ServerPort, "8080")),
		RedisURL:         getEnv("REDIS_URL", firstNonEmpty(file.RedisURL, "redis://localhost:6379/0")),
		RabbitMQURL:      getEnv("RABBITMQ_URL", file.RabbitMQURL),
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", firstPositive(file.RabbitMQPrefetch, 1)),
		AllowedOrigins:   getEnvList("ALLOWED_ORIGINS", file.AllowedOrigins),
		JWKSURL:          getEnv("JWKS_URL", file.JWKSURL),
		RateLimit:        getEnv("RATE_LIMIT", firstNonEmpty(file.RateLimit, "10-S")),
		OpenAIKey:        getEnv("OPENAI_API_KEY", file.OpenAIKey),
		AIModel:          getEnv("AI_MODEL", file.AIModel),
		AIBaseURL:        getEnv("AI_BASE_URL", file.AIBaseURL),
		EnableHSTS:       getEnvBool("ENABLE_HSTS", false),
		ServerDebugMode:  getEnvBool("SERVER_DEBUG_MODE", false),
		WorkerDebugMode:  getEnvBool("WORKER_DEBUG_MODE", false),
		OTELEnabled:      getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		CacheTTL:         getEnvDuration("CACHE_TTL", fileDuration(file.CacheTTL, 24*time.Hour)),
		StepTimeout:      getEnvDuration("AGGREGATE_STEP_TIMEOUT", fileDuration(file.StepTimeout, 5*time.Second)),
		StepDelay:        getEnvDuration("AGGREGATE_STEP_DELAY", fileDuration(file.StepDelay, 100*time.Millisecond)),
		CountRetryDelay:  getEnvDuration("COUNT_RETRY_DELAY", 250*time.Millisecond),
		RefreshDebounce:  getEnvDuration("REFRESH_DEBOUNCE", fileDuration(file.RefreshDebounce, 800*time.Millisecond)),
		FallbackRowLimit: getEnvInt("FALLBACK_ROW_LIMIT", 5000),
	}

	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:3000"}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.RabbitMQURL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required for the change feed")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func fileDuration(value string, defaultValue time.Duration) time.Duration {
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
