// Package database persists cold queues and the play log in sqlite.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	_ "github.com/mattn/go-sqlite3"
)

// databaseManager implements the DatabaseManager interface
type databaseManager struct {
	config           *DatabaseConfig
	db               *sql.DB
	migrationManager MigrationManager
	queues           QueueRepository
	plays            PlayRepository
	logger           pipeline.Logger

	// State management
	connected bool
	mutex     sync.RWMutex

	// Background tasks
	cleanupTicker *time.Ticker
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

// NewDatabaseManager creates a database manager; call Connect before use
func NewDatabaseManager(config *DatabaseConfig, logger pipeline.Logger) (DatabaseManager, error) {
	if config == nil {
		return nil, ErrInvalidDatabasePath
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}
	if logger == nil {
		logger = pipeline.NullLogger()
	}

	return &databaseManager{
		config:   config,
		logger:   logger.With(pipeline.Component("database")),
		stopChan: make(chan struct{}),
	}, nil
}

// Connect opens the database, runs migrations and starts the cleanup task
func (dm *databaseManager) Connect() error {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if dm.connected {
		return nil
	}

	if dir := filepath.Dir(dm.config.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dm.buildConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(dm.config.MaxConnections)
	db.SetMaxIdleConns(dm.config.MaxConnections / 2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), dm.config.ConnectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager, err := NewMigrationManager(db, dm.logger)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create migration manager: %w", err)
	}
	if err := migrationManager.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	dm.db = db
	dm.migrationManager = migrationManager
	dm.queues = NewQueueRepository(db, dm.config.QueueRetention)
	dm.plays = NewPlayRepository(db, dm.config.PlayLogLimit)
	dm.connected = true

	dm.startBackgroundTasks()

	dm.logger.Info("database connected", pipeline.String("path", dm.config.DatabasePath))
	return nil
}

// Close stops background tasks and closes the connection
func (dm *databaseManager) Close() error {
	dm.mutex.Lock()
	if !dm.connected {
		dm.mutex.Unlock()
		return nil
	}

	select {
	case <-dm.stopChan:
	default:
		close(dm.stopChan)
	}
	if dm.cleanupTicker != nil {
		dm.cleanupTicker.Stop()
	}
	dm.connected = false
	dm.mutex.Unlock()

	// cleanup takes the read lock
	dm.wg.Wait()

	if err := dm.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	dm.logger.Info("database closed")
	return nil
}

// Ping tests the database connection
func (dm *databaseManager) Ping(ctx context.Context) error {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	if !dm.connected || dm.db == nil {
		return ErrDatabaseNotConnected
	}
	return dm.db.PingContext(ctx)
}

// Queues returns the cold queue repository
func (dm *databaseManager) Queues() QueueRepository {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()
	return dm.queues
}

// Plays returns the play log repository
func (dm *databaseManager) Plays() PlayRepository {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()
	return dm.plays
}

// Migrate runs database migrations
func (dm *databaseManager) Migrate() error {
	if dm.migrationManager == nil {
		return ErrDatabaseNotConnected
	}
	return dm.migrationManager.Migrate()
}

// GetSchemaVersion returns the current schema version
func (dm *databaseManager) GetSchemaVersion() (int, error) {
	if dm.migrationManager == nil {
		return 0, ErrDatabaseNotConnected
	}
	return dm.migrationManager.GetCurrentVersion()
}

// CleanExpiredData drops cold queues past their retention
func (dm *databaseManager) CleanExpiredData(ctx context.Context) error {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	if !dm.connected {
		return ErrDatabaseNotConnected
	}

	n, err := dm.queues.CleanExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		dm.logger.Info("expired cold queues removed", pipeline.Int64("count", n))
	}
	return nil
}

// GetStats returns database statistics
func (dm *databaseManager) GetStats(ctx context.Context) (*DatabaseStats, error) {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	if !dm.connected {
		return nil, ErrDatabaseNotConnected
	}

	stats := &DatabaseStats{}
	var err error
	if stats.StoredQueues, err = dm.queues.Count(ctx); err != nil {
		return nil, err
	}
	if stats.PlayLogRows, err = dm.plays.Count(ctx); err != nil {
		return nil, err
	}
	if stats.SchemaVersion, err = dm.migrationManager.GetCurrentVersion(); err != nil {
		return nil, err
	}
	if fileInfo, err := os.Stat(dm.config.DatabasePath); err == nil {
		stats.FileSize = fileInfo.Size()
	}

	return stats, nil
}

// Backup writes a consistent copy of the database to path
func (dm *databaseManager) Backup(path string) error {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	if !dm.connected {
		return ErrDatabaseNotConnected
	}

	backupQuery := fmt.Sprintf("VACUUM INTO '%s'", strings.ReplaceAll(path, "'", "''"))
	if _, err := dm.db.Exec(backupQuery); err != nil {
		return fmt.Errorf("%w: %v", ErrBackupFailed, err)
	}

	dm.logger.Info("database backup created", pipeline.String("path", path))
	return nil
}

// buildConnectionString builds the SQLite connection string with options
func (dm *databaseManager) buildConnectionString() string {
	connStr := "file:" + dm.config.DatabasePath + "?"

	if dm.config.WALMode {
		connStr += "_journal_mode=WAL&"
	}

	connStr += fmt.Sprintf("_synchronous=%s&", dm.config.SynchronousMode)
	connStr += fmt.Sprintf("_cache_size=%d&", dm.config.CacheSize)
	connStr += "_busy_timeout=5000"

	return connStr
}

// startBackgroundTasks starts the periodic cleanup
func (dm *databaseManager) startBackgroundTasks() {
	dm.stopChan = make(chan struct{})
	dm.cleanupTicker = time.NewTicker(dm.config.CleanupInterval)

	dm.wg.Add(1)
	go dm.runCleanupTask(dm.cleanupTicker, dm.stopChan)
}

// runCleanupTask runs the periodic cleanup task
func (dm *databaseManager) runCleanupTask(ticker *time.Ticker, stop <-chan struct{}) {
	defer dm.wg.Done()

	for {
		select {
		case <-ticker.C:
			if err := dm.CleanExpiredData(context.Background()); err != nil {
				dm.logger.Warn("cleanup failed", pipeline.Error(err))
			}
		case <-stop:
			return
		}
	}
}
