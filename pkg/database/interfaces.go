package database

import (
	"context"

	"github.com/latoulicious/TarumaeRadio/pkg/queue"
)

// DatabaseManager owns the sqlite connection and its repositories
type DatabaseManager interface {
	// Connection management
	Connect() error
	Close() error
	Ping(ctx context.Context) error

	// Repository access
	Queues() QueueRepository
	Plays() PlayRepository

	// Migration management
	Migrate() error
	GetSchemaVersion() (int, error)

	// Health and maintenance
	CleanExpiredData(ctx context.Context) error
	GetStats(ctx context.Context) (*DatabaseStats, error)
	Backup(path string) error
}

// QueueRepository stores the cold queue of guilds without a voice session
type QueueRepository interface {
	Save(ctx context.Context, guildID string, snapshot *queue.Snapshot) error
	Load(ctx context.Context, guildID string) (*queue.Snapshot, error)
	Delete(ctx context.Context, guildID string) error
	Count(ctx context.Context) (int, error)
	CleanExpired(ctx context.Context) (int64, error)
}

// PlayRepository is the append-only log of started tracks
type PlayRepository interface {
	Record(ctx context.Context, play *Play) error
	Recent(ctx context.Context, guildID string, limit int) ([]*Play, error)
	Count(ctx context.Context) (int64, error)
}

// MigrationManager applies schema migrations in version order
type MigrationManager interface {
	Migrate() error
	GetCurrentVersion() (int, error)
	GetLatestVersion() int
	GetMigrationHistory() ([]*Migration, error)
}
