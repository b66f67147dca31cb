// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Storage   StorageConfig
	Server    ServerConfig
	Pipeline  PipelineConfig
	Reconcile ReconcileConfig
	Seed      SeedConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// StorageConfig holds on-disk locations.
// The SQLite database, the search indexes and the desync ledger all live under DataPath.
type StorageConfig struct {
	DataPath string
}

// DatabasePath is the SQLite file.
func (s StorageConfig) DatabasePath() string {
	return filepath.Join(s.DataPath, "inkwell.db")
}

// IndexPath is the directory holding one bleve index per kind.
func (s StorageConfig) IndexPath() string {
	return filepath.Join(s.DataPath, "index")
}

// LedgerPath is the badger directory for the desync ledger.
func (s StorageConfig) LedgerPath() string {
	return filepath.Join(s.DataPath, "ledger")
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
	CORSOrigins  []string      // Allowed origins (default: *)
	RateLimit    float64       // Write requests per second per client (default: 5)
	RateBurst    int           // Burst allowance (default: 20)
}

// PipelineConfig tunes slug allocation, store and index deadlines.
type PipelineConfig struct {
	SlugMaxAttempts int
	SlugMaxProbes   int
	StoreTimeout    time.Duration
	IndexTimeout    time.Duration
	SearchLimit     int
}

// ReconcileConfig holds cron schedules for index repair jobs.
// An empty schedule disables the job.
type ReconcileConfig struct {
	RepairSchedule string
	SweepSchedule  string
}

// SeedConfig holds the bootstrap admin account created by cmd/seed.
type SeedConfig struct {
	AdminUsername string
	AdminEmail    string
	AdminPassword string
}

// LoadConfig loads configuration from the process arguments.
// See Load for precedence rules.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("inkwell", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Directory for the database, search indexes and ledger")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	// Server flags
	serverPort := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := fs.String("cors-origins", "", "Comma separated allowed origins (default: *)")

	// Pipeline flags
	slugAttempts := fs.String("slug-max-attempts", "", "Commit attempts before slug allocation gives up (default: 3)")
	storeTimeout := fs.String("store-timeout", "", "Deadline for one store commit (default: 5s)")
	indexTimeout := fs.String("index-timeout", "", "Deadline for one index mutation (default: 5s)")

	// Reconcile flags
	repairSchedule := fs.String("repair-schedule", "", "Cron schedule for flagged index repair")
	sweepSchedule := fs.String("sweep-schedule", "", "Cron schedule for the full index sweep")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// godotenv never overrides variables already present in the environment.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", *envFile, err)
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Storage: StorageConfig{
			DataPath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Server: ServerConfig{
			Port:        getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			CORSOrigins: splitList(getConfigValue(*corsOrigins, "CORS_ORIGINS", "*")),
			RateBurst:   getIntConfigValue("", "RATE_LIMIT_BURST", 20),
		},
		Pipeline: PipelineConfig{
			SlugMaxAttempts: getIntConfigValue(*slugAttempts, "SLUG_MAX_ATTEMPTS", 3),
			SlugMaxProbes:   getIntConfigValue("", "SLUG_MAX_PROBES", 1000),
			SearchLimit:     getIntConfigValue("", "SEARCH_LIMIT", 50),
		},
		Reconcile: ReconcileConfig{
			RepairSchedule: getConfigValue(*repairSchedule, "REPAIR_SCHEDULE", "@every 5m"),
			SweepSchedule:  getConfigValue(*sweepSchedule, "SWEEP_SCHEDULE", "0 3 * * *"),
		},
		Seed: SeedConfig{
			AdminUsername: getConfigValue("", "ADMIN_USERNAME", "admin"),
			AdminEmail:    getConfigValue("", "ADMIN_EMAIL", "admin@example.com"),
			AdminPassword: getConfigValue("", "ADMIN_PASSWORD", ""),
		},
	}

	rate, err := strconv.ParseFloat(getConfigValue("", "RATE_LIMIT", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit: %w", err)
	}
	cfg.Server.RateLimit = rate

	durations := []struct {
		flagValue, envKey, def string
		dst                    *time.Duration
	}{
		{*readTimeout, "SERVER_READ_TIMEOUT", "15s", &cfg.Server.ReadTimeout},
		{*writeTimeout, "SERVER_WRITE_TIMEOUT", "15s", &cfg.Server.WriteTimeout},
		{*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", &cfg.Server.IdleTimeout},
		{*storeTimeout, "STORE_TIMEOUT", "5s", &cfg.Pipeline.StoreTimeout},
		{*indexTimeout, "INDEX_TIMEOUT", "5s", &cfg.Pipeline.IndexTimeout},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.def)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", strings.ToLower(d.envKey), raw, err)
		}
		*d.dst = parsed
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Storage.DataPath == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	if c.Pipeline.SlugMaxAttempts < 1 {
		return fmt.Errorf("slug max attempts must be at least 1, got %d", c.Pipeline.SlugMaxAttempts)
	}
	if c.Pipeline.SlugMaxProbes < 1 {
		return fmt.Errorf("slug max probes must be at least 1, got %d", c.Pipeline.SlugMaxProbes)
	}
	if c.Pipeline.StoreTimeout <= 0 || c.Pipeline.IndexTimeout <= 0 {
		return errors.New("store and index timeouts must be positive")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath defaults to ~/Inkwell/data.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "Inkwell", "data")

	expanded, err := expandPath(c.Storage.DataPath, defaultPath)
	if err != nil {
		return err
	}
	c.Storage.DataPath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}

	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
// Unparseable values fall back to the default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strings.TrimSpace(strValue))
	if err != nil {
		return defaultValue
	}
	return result
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
