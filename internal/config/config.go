package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const defaultLocale = "en_US"

// Config struct for environment variables.
type Config struct {
	CandidateDirs      []string `envconfig:"CANDIDATE_DIRS"`
	DefaultDir         string   `envconfig:"DEFAULT_DIR" required:"true"`
	LegacyDir          string   `envconfig:"LEGACY_DIR"`
	MarkerFile         string   `envconfig:"MARKER_FILE" default:"diablo.ini"`
	Locale             string   `envconfig:"LOCALE"`
	RequireFullArchive bool     `envconfig:"REQUIRE_FULL_ARCHIVE" default:"false"`
	CatalogPath        string   `envconfig:"CATALOG_PATH"`

	DBPath             string `envconfig:"DB_PATH" default:"fetches.db"`
	MaxParallel        int    `envconfig:"MAX_PARALLEL" default:"3"`
	SourceToken        string `envconfig:"SOURCE_TOKEN"`
	GCSCredentialsFile string `envconfig:"GCS_CREDENTIALS_FILE"`

	PartialRetention time.Duration `envconfig:"PARTIAL_RETENTION" default:"72h"`
	CleanupInterval  time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1h"`
	Watch            bool          `envconfig:"WATCH" default:"true"`
	WatchRate        time.Duration `envconfig:"WATCH_RATE" default:"2s"`
	ExitWhenReady    bool          `envconfig:"EXIT_WHEN_READY" default:"false"`

	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`
	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`
	LogFile           string `envconfig:"LOG_FILE"`

	TelemetryEnabled bool   `envconfig:"TELEMETRY_ENABLED" default:"true"`
	OTLPEndpoint     string `envconfig:"OTLP_ENDPOINT"`

	Web struct {
		BindAddress     string        `split_words:"true" default:"127.0.0.1:9092"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if strings.TrimSpace(cfg.DefaultDir) == "" {
		return nil, fmt.Errorf("DEFAULT_DIR must not be empty")
	}

	if cfg.Locale == "" {
		cfg.Locale = localeFromEnv()
	}

	if cfg.MaxParallel < 1 {
		return nil, fmt.Errorf("MAX_PARALLEL must be at least 1, got %d", cfg.MaxParallel)
	}

	if cfg.WatchRate <= 0 || cfg.CleanupInterval <= 0 {
		return nil, fmt.Errorf("WATCH_RATE and CLEANUP_INTERVAL must be positive")
	}

	return &cfg, nil
}

// Candidates returns the candidate directories in priority order, without blanks.
func (c *Config) Candidates() []string {
	out := make([]string, 0, len(c.CandidateDirs))

	for _, dir := range c.CandidateDirs {
		if dir = strings.TrimSpace(dir); dir != "" {
			out = append(out, dir)
		}
	}

	return out
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// localeFromEnv follows the POSIX precedence LC_ALL, LC_MESSAGES, LANG.
func localeFromEnv() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" && v != "C" && v != "POSIX" {
			return v
		}
	}

	return defaultLocale
}
