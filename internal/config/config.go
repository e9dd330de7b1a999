package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Filesystem roots
	ExportsDir string
	UploadsDir string
	StudiesDir string

	// Validation rule overrides; empty means the embedded defaults.
	RulesFile string

	// Submission numbering
	SequenceNumber string

	// HTTP server
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port: envOr("PORT", "8080"),

		APIKey: os.Getenv("ECTDPACK_API_KEY"),

		ExportsDir: envOr("ECTDPACK_EXPORTS_DIR", "./exports"),
		UploadsDir: envOr("ECTDPACK_UPLOADS_DIR", "./uploads"),
		StudiesDir: envOr("ECTDPACK_STUDIES_DIR", "./studies"),

		RulesFile: os.Getenv("ECTDPACK_RULES_FILE"),

		SequenceNumber: envOr("ECTDPACK_SEQUENCE", "0000"),

		RequestTimeout:  envDuration("ECTDPACK_REQUEST_TIMEOUT", 5*time.Minute),
		ShutdownTimeout: envDuration("ECTDPACK_SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	return cfg
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("ECTDPACK_API_KEY is required")
	}
	if c.ExportsDir == "" {
		return fmt.Errorf("ECTDPACK_EXPORTS_DIR must not be empty")
	}
	if c.UploadsDir == "" {
		return fmt.Errorf("ECTDPACK_UPLOADS_DIR must not be empty")
	}
	if _, err := strconv.Atoi(c.SequenceNumber); err != nil {
		return fmt.Errorf("ECTDPACK_SEQUENCE must be numeric, got %q", c.SequenceNumber)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
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
