package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// HTTP server
	Host string
	Port string

	// Persistence. Empty DatabaseURL falls back to the in-memory store,
	// which is only meant for local runs and tests.
	DatabaseURL string

	// Upstream sources (locale, base URLs), loaded from a YAML file.
	SourcesPath string
	Sources     Sources

	// Scan settings
	FetchTimeout    time.Duration
	ScanMaxItems    int // per-keyword cap inside a scan cycle
	DefaultMaxItems int // per-keyword cap for ad hoc feed reads

	// Result cache TTLs
	InterestCacheTTL time.Duration
	RelatedCacheTTL  time.Duration
	DigestCacheTTL   time.Duration

	// Gemini digest
	GeminiAPIKey      string
	MaxGeminiRequests int // per day, 0 = unlimited

	// Telegram alerts
	TelegramToken  string
	TelegramChatID string
	AlertMinScore  int
	RetryAttempts  int
	RetryDelay     time.Duration

	Debug bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Host:              getEnvOrDefault("HOST", "0.0.0.0"),
		Port:              getEnvOrDefault("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		SourcesPath:       getEnvOrDefault("SOURCES_CONFIG_PATH", "configs/sources.yaml"),
		FetchTimeout:      12 * time.Second,
		ScanMaxItems:      25,
		DefaultMaxItems:   30,
		InterestCacheTTL:  240 * time.Second,
		RelatedCacheTTL:   300 * time.Second,
		DigestCacheTTL:    30 * time.Minute,
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		MaxGeminiRequests: getEnvIntOrDefault("MAX_GEMINI_REQUESTS", 50),
		TelegramToken:     os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID:    os.Getenv("TELEGRAM_CHAT_ID"),
		AlertMinScore:     getEnvIntOrDefault("ALERT_MIN_SCORE", 75),
		RetryAttempts:     getEnvIntOrDefault("RETRY_ATTEMPTS", 3),
		RetryDelay:        2 * time.Second,
	}

	if v := os.Getenv("FETCH_TIMEOUT_SECONDS"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			cfg.FetchTimeout = time.Duration(val) * time.Second
		}
	}
	if v := os.Getenv("INTEREST_CACHE_TTL_SECONDS"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			cfg.InterestCacheTTL = time.Duration(val) * time.Second
		}
	}
	if v := os.Getenv("RELATED_CACHE_TTL_SECONDS"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			cfg.RelatedCacheTTL = time.Duration(val) * time.Second
		}
	}
	if os.Getenv("DEBUG") == "true" {
		cfg.Debug = true
	}

	sources, err := LoadSources(cfg.SourcesPath)
	if err != nil {
		return nil, fmt.Errorf("load sources config: %w", err)
	}
	cfg.Sources = sources

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Sources.NewsFeedURL == "" {
		return fmt.Errorf("sources config: news_feed_url is required")
	}
	if c.Sources.TrendingFeedURL == "" {
		return fmt.Errorf("sources config: trending_feed_url is required")
	}
	if c.Sources.TrendsAPIURL == "" {
		return fmt.Errorf("sources config: trends_api_url is required")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
