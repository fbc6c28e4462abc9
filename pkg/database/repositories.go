package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/latoulicious/TarumaeRadio/pkg/queue"
	"github.com/vmihailenco/msgpack/v5"
)

// queueRepository stores msgpack-encoded queue snapshots keyed by guild
type queueRepository struct {
	db        *sql.DB
	retention time.Duration
}

// NewQueueRepository creates a cold queue repository over an open database
func NewQueueRepository(db *sql.DB, retention time.Duration) QueueRepository {
	return &queueRepository{db: db, retention: retention}
}

// Save stores the snapshot, replacing any previous one. Empty snapshots
// delete the stored row instead.
func (r *queueRepository) Save(ctx context.Context, guildID string, snapshot *queue.Snapshot) error {
	if snapshot == nil || snapshot.Empty() {
		return r.Delete(ctx, guildID)
	}

	data, err := msgpack.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode queue snapshot: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
	INSERT INTO cold_queues (guild_id, snapshot, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(guild_id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at
	`, guildID, data, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save queue for guild %s: %w", guildID, err)
	}
	return nil
}

// Load returns the stored snapshot or ErrQueueNotFound
func (r *queueRepository) Load(ctx context.Context, guildID string) (*queue.Snapshot, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT snapshot FROM cold_queues WHERE guild_id = ?`, guildID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQueueNotFound
		}
		return nil, fmt.Errorf("failed to load queue for guild %s: %w", guildID, err)
	}

	var snapshot queue.Snapshot
	if err := msgpack.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return &snapshot, nil
}

// Delete removes a guild's stored queue
func (r *queueRepository) Delete(ctx context.Context, guildID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cold_queues WHERE guild_id = ?`, guildID); err != nil {
		return fmt.Errorf("failed to delete queue for guild %s: %w", guildID, err)
	}
	return nil
}

// Count returns the number of stored queues
func (r *queueRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cold_queues`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queues: %w", err)
	}
	return n, nil
}

// CleanExpired drops queues untouched for longer than the retention
func (r *queueRepository) CleanExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cold_queues WHERE updated_at < ?`, time.Now().Add(-r.retention))
	if err != nil {
		return 0, fmt.Errorf("failed to clean expired queues: %w", err)
	}
	return res.RowsAffected()
}

// playRepository is the append-only play log
type playRepository struct {
	db    *sql.DB
	limit int
}

// NewPlayRepository creates a play log keeping at most limit rows per guild
func NewPlayRepository(db *sql.DB, limit int) PlayRepository {
	return &playRepository{db: db, limit: limit}
}

// Record appends a play and trims the guild's log to its limit
func (r *playRepository) Record(ctx context.Context, play *Play) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO plays (guild_id, uri, title, artist, seed_id, started_at) VALUES (?, ?, ?, ?, ?, ?)
	`, play.GuildID, play.URI, play.Title, play.Artist, play.SeedID, play.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}

	if r.limit <= 0 {
		return nil
	}
	_, err = r.db.ExecContext(ctx, `
	DELETE FROM plays WHERE guild_id = ? AND id NOT IN (
		SELECT id FROM plays WHERE guild_id = ? ORDER BY started_at DESC, id DESC LIMIT ?
	)`, play.GuildID, play.GuildID, r.limit)
	if err != nil {
		return fmt.Errorf("failed to trim play log: %w", err)
	}
	return nil
}

// Recent returns the newest plays of a guild, newest first
func (r *playRepository) Recent(ctx context.Context, guildID string, limit int) ([]*Play, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT guild_id, uri, title, artist, seed_id, started_at FROM plays
	WHERE guild_id = ? ORDER BY started_at DESC, id DESC LIMIT ?
	`, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query plays: %w", err)
	}
	defer rows.Close()

	var plays []*Play
	for rows.Next() {
		p := &Play{}
		if err := rows.Scan(&p.GuildID, &p.URI, &p.Title, &p.Artist, &p.SeedID, &p.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan play: %w", err)
		}
		plays = append(plays, p)
	}
	return plays, rows.Err()
}

// Count returns the total number of logged plays
func (r *playRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM plays`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count plays: %w", err)
	}
	return n, nil
}
