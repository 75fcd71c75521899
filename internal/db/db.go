package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/hpungsan/hearth/internal/config"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Dialect identifies the SQL backend behind a *sql.DB.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return config.DriverPostgres
	}
	return config.DriverSQLite
}

// placeholder returns the bind-parameter style for the dialect.
func (d Dialect) placeholder() squirrel.PlaceholderFormat {
	if d == Postgres {
		return squirrel.Dollar
	}
	return squirrel.Question
}

// Init initializes the SQLite database at baseDir/hearth.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.hearth.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, "hearth.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db, SQLite); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// Open opens the database selected by cfg.DBDriver and applies migrations and pool settings.
// SQLite lives under baseDir; PostgreSQL is reached through cfg.DBDSN using the pgx driver.
func Open(ctx context.Context, cfg *config.Config, baseDir string) (*sql.DB, Dialect, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	switch cfg.DBDriver {
	case "", config.DriverSQLite:
		db, err := Init(baseDir)
		if err != nil {
			return nil, SQLite, err
		}
		ConfigurePool(db, cfg)
		return db, SQLite, nil

	case config.DriverPostgres:
		db, err := sql.Open("pgx", cfg.DBDSN)
		if err != nil {
			return nil, Postgres, fmt.Errorf("failed to open database: %w", err)
		}
		ConfigurePool(db, cfg)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, Postgres, fmt.Errorf("failed to reach postgres: %w", err)
		}
		if err := migrate(db, Postgres); err != nil {
			db.Close()
			return nil, Postgres, err
		}
		return db, Postgres, nil

	default:
		return nil, SQLite, fmt.Errorf("unsupported db_driver %q", cfg.DBDriver)
	}
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// schemaV1 is written in the subset of SQL both SQLite and PostgreSQL accept.
// JSON-valued columns are stored as TEXT; timestamps are Unix seconds.
var schemaV1 = []string{
	`CREATE TABLE IF NOT EXISTS characters (
	  id                    TEXT PRIMARY KEY,
	  user_id               TEXT NOT NULL,
	  party_id              TEXT,
	  name                  TEXT NOT NULL,
	  current_hp            INTEGER NOT NULL DEFAULT 0,
	  max_hp                INTEGER NOT NULL DEFAULT 0,
	  current_wp            INTEGER NOT NULL DEFAULT 0,
	  max_wp                INTEGER NOT NULL DEFAULT 0,
	  attributes_json       TEXT NOT NULL DEFAULT '{}',
	  conditions_json       TEXT NOT NULL DEFAULT '{}',
	  skill_levels_json     TEXT NOT NULL DEFAULT '{}',
	  heroic_abilities_json TEXT NOT NULL DEFAULT '[]',
	  spells_json           TEXT NOT NULL DEFAULT '{}',
	  death_rolls_passed    INTEGER NOT NULL DEFAULT 0,
	  death_rolls_failed    INTEGER NOT NULL DEFAULT 0,
	  is_rallied            BOOLEAN NOT NULL DEFAULT FALSE,
	  teacher               TEXT,
	  equipment_json        TEXT NOT NULL DEFAULT '{}',
	  notes                 TEXT NOT NULL DEFAULT '',
	  appearance            TEXT NOT NULL DEFAULT '',
	  memento               TEXT NOT NULL DEFAULT '',
	  flaw                  TEXT NOT NULL DEFAULT '',
	  created_at            BIGINT NOT NULL,
	  updated_at            BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_characters_user ON characters(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_characters_party ON characters(party_id)`,

	`CREATE TABLE IF NOT EXISTS encounters (
	  id         TEXT PRIMARY KEY,
	  party_id   TEXT NOT NULL,
	  name       TEXT NOT NULL,
	  status     TEXT NOT NULL,
	  created_at BIGINT NOT NULL,
	  updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_encounters_party_created ON encounters(party_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS combatants (
	  id              TEXT PRIMARY KEY,
	  encounter_id    TEXT NOT NULL REFERENCES encounters(id) ON DELETE CASCADE,
	  character_id    TEXT,
	  name            TEXT NOT NULL,
	  initiative_roll INTEGER,
	  current_hp      INTEGER NOT NULL DEFAULT 0,
	  current_wp      INTEGER NOT NULL DEFAULT 0,
	  created_at      BIGINT NOT NULL,
	  updated_at      BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_combatants_encounter ON combatants(encounter_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_combatants_encounter_character
	 ON combatants(encounter_id, character_id)`,

	`CREATE TABLE IF NOT EXISTS items (
	  id          TEXT PRIMARY KEY,
	  name        TEXT NOT NULL,
	  category    TEXT NOT NULL DEFAULT '',
	  weight      INTEGER NOT NULL DEFAULT 0,
	  cost        TEXT NOT NULL DEFAULT '',
	  description TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS heroic_abilities (
	  id             TEXT PRIMARY KEY,
	  name           TEXT NOT NULL,
	  willpower_cost INTEGER NOT NULL DEFAULT 0,
	  requirement    TEXT NOT NULL DEFAULT '',
	  description    TEXT NOT NULL DEFAULT ''
	)`,
}

// migrate applies schema migrations based on the stored schema version.
func migrate(db *sql.DB, d Dialect) error {
	version, err := schemaVersion(db, d)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		for _, stmt := range schemaV1 {
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("migration 1 failed: %w", err)
			}
		}
		if err := setSchemaVersion(db, d, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// schemaVersion reads user_version on SQLite, or the schema_version table on PostgreSQL.
func schemaVersion(db *sql.DB, d Dialect) (int, error) {
	if d == SQLite {
		return GetUserVersion(db)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("failed to create schema_version: %w", err)
	}
	var version int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

func setSchemaVersion(db *sql.DB, d Dialect, version int) error {
	if d == SQLite {
		return SetUserVersion(db, version)
	}
	if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, version); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
