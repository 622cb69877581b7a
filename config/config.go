// Package config loads service settings from the environment (and an optional .env file).
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             string
	DatabaseURL      string
	GameServiceToken string
	AllowedOrigins   []string

	NatsURL           string
	NatsSubjectPrefix string

	R2AccountID       string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2Bucket          string
	CDNBaseURL        string

	ResultRetryInterval time.Duration
	RematchIdleTimeout  time.Duration
}

// ArchiveEnabled is true when an R2 bucket is configured.
func (c *Config) ArchiveEnabled() bool {
	return c.R2Bucket != ""
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:              orDefault(getenv("PORT"), "5200"),
		DatabaseURL:       getenv("DATABASE_URL"),
		GameServiceToken:  getenv("GAME_SERVICE_TOKEN"),
		NatsURL:           getenv("NATS_URL"),
		NatsSubjectPrefix: orDefault(getenv("NATS_SUBJECT_PREFIX"), "pong"),
		R2AccountID:       getenv("CLOUDFLARE_ACCOUNT_ID"),
		R2AccessKeyID:     getenv("R2_ACCESS_KEY_ID"),
		R2AccessKeySecret: getenv("R2_ACCESS_KEY_SECRET"),
		R2Bucket:          getenv("R2_BUCKET_NAME"),
		CDNBaseURL:        getenv("CDN_BASE_URL"),
	}

	var errs []error
	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL environment variable not set"))
	}
	if cfg.GameServiceToken == "" {
		errs = append(errs, errors.New("GAME_SERVICE_TOKEN environment variable not set"))
	}

	origins := orDefault(getenv("ALLOWED_ORIGINS"), "http://localhost:3000")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	var err error
	if cfg.ResultRetryInterval, err = durationOr(getenv("RESULT_RETRY_INTERVAL"), 15*time.Second); err != nil {
		errs = append(errs, fmt.Errorf("RESULT_RETRY_INTERVAL: %w", err))
	}
	if cfg.RematchIdleTimeout, err = durationOr(getenv("REMATCH_IDLE_TIMEOUT"), 10*time.Minute); err != nil {
		errs = append(errs, fmt.Errorf("REMATCH_IDLE_TIMEOUT: %w", err))
	}

	if cfg.R2Bucket != "" && (cfg.R2AccountID == "" || cfg.R2AccessKeyID == "" || cfg.R2AccessKeySecret == "") {
		errs = append(errs, errors.New("R2_BUCKET_NAME set without CLOUDFLARE_ACCOUNT_ID, R2_ACCESS_KEY_ID and R2_ACCESS_KEY_SECRET"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func durationOr(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", v)
	}
	return d, nil
}
