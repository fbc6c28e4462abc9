package database

import (
	"crypto/md5"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
)

// migrationManager implements the MigrationManager interface
type migrationManager struct {
	db         *sql.DB
	migrations map[int]*migrationScript
	logger     pipeline.Logger
}

// migrationScript represents a single database migration
type migrationScript struct {
	Version     int
	Name        string
	Description string
	UpSQL       string
	Checksum    string
}

// NewMigrationManager creates a migration manager and its tracking table
func NewMigrationManager(db *sql.DB, logger pipeline.Logger) (MigrationManager, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if logger == nil {
		logger = pipeline.NullLogger()
	}

	mm := &migrationManager{
		db:         db,
		migrations: make(map[int]*migrationScript),
		logger:     logger,
	}

	if err := mm.initializeMigrationTable(); err != nil {
		return nil, fmt.Errorf("failed to initialize migration table: %w", err)
	}
	mm.loadMigrations()

	return mm, nil
}

// initializeMigrationTable creates the migration tracking table
func (mm *migrationManager) initializeMigrationTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		checksum TEXT NOT NULL,
		applied_at DATETIME NOT NULL
	)
	`

	if _, err := mm.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// loadMigrations registers every migration script
func (mm *migrationManager) loadMigrations() {
	mm.add(1, "cold_queues", "Store queue snapshots of guilds without a voice session", `
		CREATE TABLE IF NOT EXISTS cold_queues (
			guild_id TEXT PRIMARY KEY,
			snapshot BLOB NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_cold_queues_updated ON cold_queues(updated_at);
	`)

	mm.add(2, "play_log", "Append-only log of started tracks", `
		CREATE TABLE IF NOT EXISTS plays (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			uri TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			artist TEXT NOT NULL DEFAULT '',
			seed_id TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_plays_guild_started ON plays(guild_id, started_at);
	`)
}

func (mm *migrationManager) add(version int, name, description, up string) {
	mm.migrations[version] = &migrationScript{
		Version:     version,
		Name:        name,
		Description: description,
		UpSQL:       up,
		Checksum:    mm.calculateChecksum(up),
	}
}

// GetCurrentVersion returns the highest applied version
func (mm *migrationManager) GetCurrentVersion() (int, error) {
	query := "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"

	var version int
	if err := mm.db.QueryRow(query).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// GetLatestVersion returns the highest known version
func (mm *migrationManager) GetLatestVersion() int {
	latest := 0
	for version := range mm.migrations {
		if version > latest {
			latest = version
		}
	}
	return latest
}

// Migrate applies every pending migration in order
func (mm *migrationManager) Migrate() error {
	currentVersion, err := mm.GetCurrentVersion()
	if err != nil {
		return err
	}

	latestVersion := mm.GetLatestVersion()
	if currentVersion >= latestVersion {
		mm.logger.Debug("database is up to date", pipeline.Int("version", currentVersion))
		return nil
	}

	mm.logger.Info("migrating database",
		pipeline.Int("from", currentVersion),
		pipeline.Int("to", latestVersion))

	var versionsToMigrate []int
	for version := range mm.migrations {
		if version > currentVersion {
			versionsToMigrate = append(versionsToMigrate, version)
		}
	}
	sort.Ints(versionsToMigrate)

	for _, version := range versionsToMigrate {
		if err := mm.runMigration(version); err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, version, err)
		}
		mm.logger.Info("applied migration",
			pipeline.Int("version", version),
			pipeline.String("name", mm.migrations[version].Name))
	}

	return nil
}

// runMigration applies one migration and records it in a single transaction
func (mm *migrationManager) runMigration(version int) error {
	script := mm.migrations[version]

	tx, err := mm.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(script.UpSQL); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO schema_migrations (version, name, description, checksum, applied_at) VALUES (?, ?, ?, ?, ?)`,
		script.Version, script.Name, script.Description, script.Checksum, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// GetMigrationHistory returns applied migrations, oldest first
func (mm *migrationManager) GetMigrationHistory() ([]*Migration, error) {
	rows, err := mm.db.Query(`SELECT version, name, COALESCE(description, ''), checksum, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query migration history: %w", err)
	}
	defer rows.Close()

	var history []*Migration
	for rows.Next() {
		m := &Migration{}
		if err := rows.Scan(&m.Version, &m.Name, &m.Description, &m.Checksum, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		if script, ok := mm.migrations[m.Version]; ok && script.Checksum != m.Checksum {
			mm.logger.Warn("migration checksum mismatch", pipeline.Int("version", m.Version))
		}
		history = append(history, m)
	}
	return history, rows.Err()
}

func (mm *migrationManager) calculateChecksum(sql string) string {
	hash := md5.Sum([]byte(sql))
	return fmt.Sprintf("%x", hash)
}
