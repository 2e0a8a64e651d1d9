package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultFeedURL is the Environment Agency real-time flood warning feed.
const DefaultFeedURL = "http://environment.data.gov.uk/flood-monitoring/id/floods"

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	FeedURL      string
	FeedTimeout  time.Duration
	PollInterval time.Duration

	DatabaseURL string
	FallbackDir string

	StoreRetryAttempts int
	StoreRetryDelay    time.Duration
	StoreProbeInterval time.Duration

	// Kafka snapshot publishing configuration.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	feedTimeout, err := parseDuration("FEED_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parseDuration("POLL_INTERVAL", "15m")
	if err != nil {
		return nil, err
	}
	retryDelay, err := parseDuration("STORE_RETRY_DELAY", "500ms")
	if err != nil {
		return nil, err
	}
	probeInterval, err := parseDuration("STORE_PROBE_INTERVAL", "1m")
	if err != nil {
		return nil, err
	}
	retryAttempts, err := parseRetryAttempts()
	if err != nil {
		return nil, err
	}

	kafkaBrokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(kafkaBrokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		FeedURL:      envOrDefault("FEED_URL", DefaultFeedURL),
		FeedTimeout:  feedTimeout,
		PollInterval: pollInterval,

		DatabaseURL: os.Getenv("DATABASE_URL"),
		FallbackDir: envOrDefault("FALLBACK_DIR", "data_cache"),

		StoreRetryAttempts: retryAttempts,
		StoreRetryDelay:    retryDelay,
		StoreProbeInterval: probeInterval,

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: kafkaBrokers,
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "flood-count-snapshots"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.FallbackDir == "" {
		return nil, errors.New("FALLBACK_DIR is required")
	}
	if cfg.PollInterval < time.Minute {
		return nil, errors.New("POLL_INTERVAL must be at least 1m")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	raw := envOrDefault(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func parseRetryAttempts() (int, error) {
	raw := envOrDefault("STORE_RETRY_ATTEMPTS", "3")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 10 {
		return 0, errors.New("invalid STORE_RETRY_ATTEMPTS")
	}
	return n, nil
}

func parseBrokers(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
