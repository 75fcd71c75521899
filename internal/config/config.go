package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds application configuration.
type Config struct {
	// DBDriver selects the persistence backend: "sqlite" (default) or "postgres".
	DBDriver string `json:"db_driver,omitempty" env:"HEARTH_DB_DRIVER"`

	// DBDSN is the connection string for postgres. Ignored for sqlite,
	// which always lives at <baseDir>/hearth.db.
	DBDSN string `json:"db_dsn,omitempty" env:"HEARTH_DB_DSN"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" env:"HEARTH_DB_MAX_OPEN_CONNS"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" env:"HEARTH_DB_MAX_IDLE_CONNS"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty" env:"HEARTH_LOG_LEVEL"`

	// LogFormat is "console" or "json". Logs always go to stderr.
	LogFormat string `json:"log_format,omitempty" env:"HEARTH_LOG_FORMAT"`

	// StatusTTLMillis is how long a transient status message stays up.
	StatusTTLMillis int `json:"status_ttl_ms,omitempty" env:"HEARTH_STATUS_TTL_MS"`

	// DiceSeed makes dice deterministic when non-zero (useful for replays and demos).
	DiceSeed uint64 `json:"dice_seed,omitempty" env:"HEARTH_DICE_SEED"`

	// DefaultUser is the user ID used when a command does not pass --user.
	DefaultUser string `json:"default_user,omitempty" env:"HEARTH_USER"`

	// WebBind and WebPort configure the HTTP API started by "hearth serve".
	WebBind string `json:"web_bind,omitempty" env:"HEARTH_WEB_BIND"`
	WebPort int    `json:"web_port,omitempty" env:"HEARTH_WEB_PORT"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty" env:"HEARTH_DISABLED_TOOLS"`

	// DisabledTypes is a list of type names to disable entirely.
	// All tools belonging to disabled types are excluded from registration.
	// Known types: "character", "encounter", "catalog". Unknown type names are logged as warnings.
	DisabledTypes []string `json:"disabled_types,omitempty" env:"HEARTH_DISABLED_TYPES"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DBDriver:        DriverSQLite,
		LogLevel:        "info",
		LogFormat:       "console",
		StatusTTLMillis: 3000,
		WebBind:         "127.0.0.1",
		WebPort:         8420,
	}
}

// StatusTTL returns the status message lifetime as a duration.
func (c *Config) StatusTTL() time.Duration {
	return time.Duration(c.StatusTTLMillis) * time.Millisecond
}

// Validate checks values that cannot be fixed by defaults.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
	case DriverPostgres:
		if strings.TrimSpace(c.DBDSN) == "" {
			return fmt.Errorf("db_dsn is required when db_driver is %q", DriverPostgres)
		}
	default:
		return fmt.Errorf("db_driver must be one of: %s, %s (got %q)", DriverSQLite, DriverPostgres, c.DBDriver)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be one of: console, json (got %q)", c.LogFormat)
	}
	if c.StatusTTLMillis < 0 {
		return fmt.Errorf("status_ttl_ms must be non-negative")
	}
	return nil
}

// Load loads configuration from baseDir/config.json, then applies HEARTH_* environment overrides.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.hearth.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithRepo loads configuration from both global (~/.hearth) and repo (.hearth) directories.
// Repo config is found by walking upward from startDir to find the nearest .hearth/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Environment overrides are applied last. Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays HEARTH_* environment variables onto cfg.
// Variables that are not set leave the corresponding field unchanged.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// FindRepoConfig walks upward from startDir to find the nearest .hearth/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".hearth", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	return &Config{
		DBDriver:        pick(overlay.DBDriver, base.DBDriver),
		DBDSN:           pick(overlay.DBDSN, base.DBDSN),
		DBMaxOpenConns:  pick(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:  pick(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
		LogLevel:        pick(overlay.LogLevel, base.LogLevel),
		LogFormat:       pick(overlay.LogFormat, base.LogFormat),
		StatusTTLMillis: pick(overlay.StatusTTLMillis, base.StatusTTLMillis),
		DiceSeed:        pick(overlay.DiceSeed, base.DiceSeed),
		DefaultUser:     pick(overlay.DefaultUser, base.DefaultUser),
		WebBind:         pick(overlay.WebBind, base.WebBind),
		WebPort:         pick(overlay.WebPort, base.WebPort),
		DisabledTools:   mergeStringSlice(base.DisabledTools, overlay.DisabledTools),
		DisabledTypes:   mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes),
	}
}

// pick returns overlay if it is non-zero, else base.
func pick[T comparable](overlay, base T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string(nil), a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
