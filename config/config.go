// Package config loads process settings from the environment and match
// rules from a YAML file.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process settings read from the environment.
type Config struct {
	DatabaseURL      string
	ServiceToken     string
	LedgerServiceURL string
	Port             string
	AllowedOrigins   []string
	RulesFile        string

	ArchiveEnabled bool
	ArchiveDir     string
	R2             R2Settings

	PayoutDispatchInterval time.Duration
	TransferSyncInterval   time.Duration
	LedgerRatePerSec       float64
}

type R2Settings struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
}

// Configured reports whether every R2 credential is present.
func (r R2Settings) Configured() bool {
	return r.AccountID != "" && r.AccessKeyID != "" && r.AccessKeySecret != "" && r.Bucket != ""
}

// FromEnv reads Config from the process environment.
func FromEnv() (*Config, error) {
	return Load(os.Getenv)
}

// Load reads Config through getenv so tests can supply their own lookup.
func Load(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DatabaseURL:      getenv("DATABASE_URL"),
		ServiceToken:     getenv("GAME_SERVICE_TOKEN"),
		LedgerServiceURL: strings.TrimRight(getenv("LEDGER_SERVICE_URL"), "/"),
		Port:             orDefault(getenv("PORT"), "5200"),
		RulesFile:        orDefault(getenv("RULES_FILE"), "config/rules.yaml"),
		ArchiveDir:       orDefault(getenv("ARCHIVE_DIR"), "./archive"),
		R2: R2Settings{
			AccountID:       getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          getenv("R2_BUCKET_NAME"),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if cfg.ServiceToken == "" {
		return nil, fmt.Errorf("GAME_SERVICE_TOKEN environment variable not set")
	}
	if cfg.LedgerServiceURL == "" {
		return nil, fmt.Errorf("LEDGER_SERVICE_URL environment variable not set")
	}

	origins := getenv("ALLOWED_ORIGINS")
	if origins == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		origins = "http://localhost:3000"
	}
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	var err error
	if cfg.ArchiveEnabled, err = parseBool(getenv("ARCHIVE_ENABLED"), true); err != nil {
		return nil, fmt.Errorf("ARCHIVE_ENABLED: %w", err)
	}
	if cfg.PayoutDispatchInterval, err = parseDuration(getenv("PAYOUT_DISPATCH_INTERVAL"), 5*time.Second); err != nil {
		return nil, fmt.Errorf("PAYOUT_DISPATCH_INTERVAL: %w", err)
	}
	if cfg.TransferSyncInterval, err = parseDuration(getenv("TRANSFER_SYNC_INTERVAL"), 10*time.Second); err != nil {
		return nil, fmt.Errorf("TRANSFER_SYNC_INTERVAL: %w", err)
	}
	if cfg.LedgerRatePerSec, err = parseFloat(getenv("LEDGER_RATE_PER_SEC"), 20); err != nil {
		return nil, fmt.Errorf("LEDGER_RATE_PER_SEC: %w", err)
	}
	return cfg, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseBool(v string, def bool) (bool, error) {
	if v == "" {
		return def, nil
	}
	return strconv.ParseBool(v)
}

func parseDuration(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}

func parseFloat(v string, def float64) (float64, error) {
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, fmt.Errorf("must be positive, got %v", f)
	}
	return f, nil
}
