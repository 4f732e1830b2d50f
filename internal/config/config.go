package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	LLMNone      = "none"
	LLMAnthropic = "anthropic"
	LLMGemini    = "gemini"
)

type Config struct {
	Addr      string
	PolicyDir string

	DBDriver string
	DBDSN    string

	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	OTLPEndpoint string

	LLMProvider     string
	AnthropicAPIKey string
	GeminiAPIKey    string
	GeminiModel     string
	LLMThreshold    float64

	BatchConcurrency int
	LogLevel         slog.Level
}

func Defaults() Config {
	return Config{
		Addr:             ":8080",
		PolicyDir:        "./policies",
		DBDriver:         "sqlite",
		DBDSN:            "./data/results.db",
		CacheTTL:         24 * time.Hour,
		KafkaTopic:       "document-validation",
		LLMProvider:      LLMNone,
		GeminiModel:      "gemini-1.5-flash",
		LLMThreshold:     0.5,
		BatchConcurrency: 4,
		LogLevel:         slog.LevelInfo,
	}
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv over the defaults and validates it.
// All invalid values are reported together.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Defaults()
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	str("ADDR", &cfg.Addr)
	if port := strings.TrimSpace(getenv("PORT")); port != "" && getenv("ADDR") == "" {
		cfg.Addr = ":" + port
	}
	str("POLICY_DIR", &cfg.PolicyDir)
	str("DB_DRIVER", &cfg.DBDriver)
	str("DB_DSN", &cfg.DBDSN)
	str("REDIS_ADDR", &cfg.RedisAddr)
	cfg.RedisPassword = getenv("REDIS_PASSWORD")
	str("KAFKA_TOPIC", &cfg.KafkaTopic)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.OTLPEndpoint)
	str("LLM_PROVIDER", &cfg.LLMProvider)
	cfg.LLMProvider = strings.ToLower(cfg.LLMProvider)
	str("ANTHROPIC_API_KEY", &cfg.AnthropicAPIKey)
	str("GEMINI_API_KEY", &cfg.GeminiAPIKey)
	str("GEMINI_MODEL", &cfg.GeminiModel)

	for _, b := range strings.Split(getenv("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}

	if v := strings.TrimSpace(getenv("CLASSIFICATION_CACHE_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("CLASSIFICATION_CACHE_TTL: %w", err))
		case d <= 0:
			errs = append(errs, errors.New("CLASSIFICATION_CACHE_TTL must be positive"))
		default:
			cfg.CacheTTL = d
		}
	}
	if v := strings.TrimSpace(getenv("CLASSIFIER_LLM_THRESHOLD")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("CLASSIFIER_LLM_THRESHOLD: %w", err))
		case f < 0 || f > 1:
			errs = append(errs, errors.New("CLASSIFIER_LLM_THRESHOLD must be between 0 and 1"))
		default:
			cfg.LLMThreshold = f
		}
	}
	if v := strings.TrimSpace(getenv("BATCH_CONCURRENCY")); v != "" {
		n, err := strconv.Atoi(v)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("BATCH_CONCURRENCY: %w", err))
		case n < 1:
			errs = append(errs, errors.New("BATCH_CONCURRENCY must be at least 1"))
		default:
			cfg.BatchConcurrency = n
		}
	}
	if v := strings.TrimSpace(getenv("LOG_LEVEL")); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
		}
	}

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	return cfg, errors.Join(errs...)
}

func (c Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case "sqlite", "pgx":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or pgx, got %q", c.DBDriver))
	}
	if c.DBDriver == "pgx" && c.DBDSN == Defaults().DBDSN {
		errs = append(errs, errors.New("DB_DSN is required for the pgx driver"))
	}
	switch c.LLMProvider {
	case LLMNone:
	case LLMAnthropic:
		if c.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic"))
		}
	case LLMGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when LLM_PROVIDER=gemini"))
		}
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER must be anthropic, gemini or none, got %q", c.LLMProvider))
	}
	if strings.TrimSpace(c.PolicyDir) == "" {
		errs = append(errs, errors.New("POLICY_DIR is required"))
	}
	return errors.Join(errs...)
}
