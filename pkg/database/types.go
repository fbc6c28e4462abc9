package database

import "time"

// DatabaseConfig holds configuration for the database manager
type DatabaseConfig struct {
	// Connection settings
	DatabasePath      string        `json:"database_path"`
	MaxConnections    int           `json:"max_connections"`
	ConnectionTimeout time.Duration `json:"connection_timeout"`

	// Cold queues older than this are dropped by the cleanup task
	QueueRetention  time.Duration `json:"queue_retention"`
	CleanupInterval time.Duration `json:"cleanup_interval"`

	// Play log rows kept per guild
	PlayLogLimit int `json:"play_log_limit"`

	// Performance settings
	WALMode         bool   `json:"wal_mode"`
	SynchronousMode string `json:"synchronous_mode"`
	CacheSize       int    `json:"cache_size"`
}

// DefaultDatabaseConfig returns a configuration with sensible defaults
func DefaultDatabaseConfig(path string) *DatabaseConfig {
	return &DatabaseConfig{
		DatabasePath:      path,
		MaxConnections:    4,
		ConnectionTimeout: 10 * time.Second,

		QueueRetention:  7 * 24 * time.Hour,
		CleanupInterval: time.Hour,
		PlayLogLimit:    200,

		WALMode:         true,
		SynchronousMode: "NORMAL",
		CacheSize:       -8000, // 8MB
	}
}

// Validate validates the database configuration
func (c *DatabaseConfig) Validate() error {
	if c.DatabasePath == "" {
		return ErrInvalidDatabasePath
	}
	if c.MaxConnections <= 0 {
		return ErrInvalidMaxConnections
	}
	if c.ConnectionTimeout <= 0 {
		return ErrInvalidConnectionTimeout
	}
	if c.QueueRetention <= 0 {
		return ErrInvalidQueueRetention
	}
	if c.CleanupInterval <= 0 {
		return ErrInvalidCleanupInterval
	}
	if c.SynchronousMode != "OFF" && c.SynchronousMode != "NORMAL" && c.SynchronousMode != "FULL" {
		return ErrInvalidSynchronousMode
	}
	return nil
}

// DatabaseStats holds statistics about the database
type DatabaseStats struct {
	StoredQueues  int   `json:"stored_queues"`
	PlayLogRows   int64 `json:"play_log_rows"`
	SchemaVersion int   `json:"schema_version"`
	FileSize      int64 `json:"file_size"`
}

// Play is one row of the play log
type Play struct {
	GuildID   string    `json:"guild_id"`
	URI       string    `json:"uri"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	SeedID    string    `json:"seed_id,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Migration represents an applied database migration
type Migration struct {
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	AppliedAt   time.Time `json:"applied_at"`
	Checksum    string    `json:"checksum"`
}
