// Package app holds process-level setup shared by the binaries: environment
// loading, logging and configuration.
package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"clanwatch/internal/feed"
	"clanwatch/internal/ingestion"
)

// Config holds application configuration.
type Config struct {
	// Storage. Backend selects which one the binaries use.
	Backend       string // "memory", "postgres" or "clickhouse"
	PostgresDSN   string
	ClickhouseDSN string

	// Feed endpoints.
	LeaderboardURL string
	TimingURL      string

	// Ingestion.
	SentinelClan string
	PollInterval time.Duration
	CycleTimeout time.Duration

	// Servers.
	ListenAddr  string
	MetricsAddr string
}

// SetupEnvironment loads .env file and configures zerolog output and log level.
func SetupEnvironment() {
	err := godotenv.Load()

	if os.Getenv("ENV") == "production" {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = log.Output(os.Stderr)
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	levelStr := strings.ToLower(os.Getenv("LOGLEVEL"))
	switch levelStr {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "disabled":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	case "":
		if os.Getenv("ENV") == "production" {
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log.Warn().Msgf("Unknown LOGLEVEL '%s', defaulting to info.", levelStr)
	}

	// wait until now to report on the .env file so logging is configured first
	if err == nil {
		log.Debug().Msg("Loaded environment variables from .env file.")
	} else {
		log.Debug().Msg("No .env file found; proceeding with existing environment variables.")
	}
}

// LoadConfig loads configuration from environment variables. Only the DSN of
// the selected backend is required.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Backend:        GetEnv("STORAGE_BACKEND", "postgres"),
		PostgresDSN:    os.Getenv("POSTGRES_DSN"),
		ClickhouseDSN:  os.Getenv("CLICKHOUSE_DSN"),
		LeaderboardURL: GetEnv("LEADERBOARD_URL", feed.DefaultLeaderboardURL),
		TimingURL:      GetEnv("TIMING_URL", feed.DefaultTimingURL),
		SentinelClan:   GetEnv("SENTINEL_CLAN", "NONG"),
		ListenAddr:     GetEnv("LISTEN_ADDR", ":8080"),
		MetricsAddr:    GetEnv("METRICS_ADDR", ":9091"),
	}

	var err error
	if cfg.PollInterval, err = durationEnv("POLL_INTERVAL", ingestion.DefaultInterval); err != nil {
		return nil, err
	}
	if cfg.CycleTimeout, err = durationEnv("CYCLE_TIMEOUT", ingestion.DefaultCycleTimeout); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case "memory":
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("POSTGRES_DSN environment variable is required for the postgres backend")
		}
	case "clickhouse":
		if cfg.ClickhouseDSN == "" {
			return nil, fmt.Errorf("CLICKHOUSE_DSN environment variable is required for the clickhouse backend")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.Backend)
	}

	if cfg.SentinelClan == "" {
		return nil, fmt.Errorf("SENTINEL_CLAN must not be empty")
	}

	return cfg, nil
}

// GetEnv gets an environment variable with a fallback.
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// GetIntEnv gets an integer environment variable with a fallback.
func GetIntEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("Ignoring non-integer environment variable")
		return fallback
	}
	return v
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
