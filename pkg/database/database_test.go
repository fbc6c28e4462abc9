package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/latoulicious/TarumaeRadio/pkg/queue"
	"github.com/latoulicious/TarumaeRadio/pkg/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T) DatabaseManager {
	t.Helper()
	config := DefaultDatabaseConfig(filepath.Join(t.TempDir(), "nested", "queues.db"))
	dm, err := NewDatabaseManager(config, nil)
	require.NoError(t, err)
	require.NoError(t, dm.Connect())
	t.Cleanup(func() { dm.Close() })
	return dm
}

func TestNewDatabaseManager(t *testing.T) {
	tests := []struct {
		name        string
		config      *DatabaseConfig
		expectError error
	}{
		{name: "valid config", config: DefaultDatabaseConfig("queues.db")},
		{name: "nil config", config: nil, expectError: ErrInvalidDatabasePath},
		{name: "empty path", config: DefaultDatabaseConfig(""), expectError: ErrInvalidDatabasePath},
		{
			name: "zero max connections",
			config: func() *DatabaseConfig {
				c := DefaultDatabaseConfig("queues.db")
				c.MaxConnections = 0
				return c
			}(),
			expectError: ErrInvalidMaxConnections,
		},
		{
			name: "bad synchronous mode",
			config: func() *DatabaseConfig {
				c := DefaultDatabaseConfig("queues.db")
				c.SynchronousMode = "SOMETIMES"
				return c
			}(),
			expectError: ErrInvalidSynchronousMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dm, err := NewDatabaseManager(tt.config, nil)
			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				assert.Nil(t, dm)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, dm)
		})
	}
}

func TestNotConnected(t *testing.T) {
	dm, err := NewDatabaseManager(DefaultDatabaseConfig(filepath.Join(t.TempDir(), "q.db")), nil)
	require.NoError(t, err)

	assert.ErrorIs(t, dm.Ping(context.Background()), ErrDatabaseNotConnected)
	_, err = dm.GetStats(context.Background())
	assert.ErrorIs(t, err, ErrDatabaseNotConnected)
	assert.NoError(t, dm.Close())
}

func TestMigrations(t *testing.T) {
	dm := connect(t)

	version, err := dm.GetSchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	// idempotent
	require.NoError(t, dm.Migrate())
	version, err = dm.GetSchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestColdQueueRoundTrip(t *testing.T) {
	dm := connect(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	snapshot := &queue.Snapshot{
		Pending:    []string{"https://youtube.com/a", "/music/b.mp3"},
		RadioQueue: []string{"https://youtube.com/r"},
		History: []track.Record{{
			Metadata:  track.Standard("a", "artist", "abc123", 3*time.Minute),
			EndReason: track.Skipped,
			Start:     start,
			End:       start.Add(time.Minute),
		}},
		Radio:     true,
		Crossfade: true,
	}

	_, err := dm.Queues().Load(ctx, "g1")
	assert.ErrorIs(t, err, ErrQueueNotFound)

	require.NoError(t, dm.Queues().Save(ctx, "g1", snapshot))
	require.NoError(t, dm.Queues().Save(ctx, "g1", snapshot))

	loaded, err := dm.Queues().Load(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, snapshot.Pending, loaded.Pending)
	assert.Equal(t, snapshot.RadioQueue, loaded.RadioQueue)
	require.Len(t, loaded.History, 1)
	assert.Equal(t, "abc123", loaded.History[0].Metadata.SeedID())
	assert.Equal(t, track.Skipped, loaded.History[0].EndReason)
	assert.True(t, loaded.History[0].Start.Equal(start))
	assert.True(t, loaded.Radio)

	stats, err := dm.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.StoredQueues)
	assert.Equal(t, 2, stats.SchemaVersion)

	// empty snapshots clear the row
	require.NoError(t, dm.Queues().Save(ctx, "g1", &queue.Snapshot{}))
	_, err = dm.Queues().Load(ctx, "g1")
	assert.ErrorIs(t, err, ErrQueueNotFound)
}

func TestCleanExpiredQueues(t *testing.T) {
	config := DefaultDatabaseConfig(filepath.Join(t.TempDir(), "q.db"))
	config.QueueRetention = time.Nanosecond
	dm, err := NewDatabaseManager(config, nil)
	require.NoError(t, err)
	require.NoError(t, dm.Connect())
	defer dm.Close()

	ctx := context.Background()
	require.NoError(t, dm.Queues().Save(ctx, "g1", &queue.Snapshot{Pending: []string{"x"}}))
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, dm.CleanExpiredData(ctx))
	n, err := dm.Queues().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPlayLog(t *testing.T) {
	config := DefaultDatabaseConfig(filepath.Join(t.TempDir(), "q.db"))
	config.PlayLogLimit = 3
	dm, err := NewDatabaseManager(config, nil)
	require.NoError(t, err)
	require.NoError(t, dm.Connect())
	defer dm.Close()

	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i, title := range []string{"one", "two", "three", "four"} {
		require.NoError(t, dm.Plays().Record(ctx, &Play{
			GuildID:   "g1",
			URI:       "https://youtube.com/" + title,
			Title:     title,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, dm.Plays().Record(ctx, &Play{GuildID: "g2", URI: "x", StartedAt: base}))

	recent, err := dm.Plays().Recent(ctx, "g1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "four", recent[0].Title)
	assert.Equal(t, "two", recent[2].Title)

	n, err := dm.Plays().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestBackup(t *testing.T) {
	dm := connect(t)
	require.NoError(t, dm.Queues().Save(context.Background(), "g1", &queue.Snapshot{Pending: []string{"x"}}))

	path := filepath.Join(t.TempDir(), "backup.db")
	require.NoError(t, dm.Backup(path))
	assert.FileExists(t, path)
}
