package database

import "errors"

// Database configuration errors
var (
	ErrInvalidDatabasePath      = errors.New("invalid database path")
	ErrInvalidMaxConnections    = errors.New("invalid max connections")
	ErrInvalidConnectionTimeout = errors.New("invalid connection timeout")
	ErrInvalidQueueRetention    = errors.New("invalid queue retention")
	ErrInvalidCleanupInterval   = errors.New("invalid cleanup interval")
	ErrInvalidSynchronousMode   = errors.New("invalid synchronous mode")
)

// Database operation errors
var (
	ErrDatabaseNotConnected = errors.New("database not connected")
	ErrMigrationFailed      = errors.New("migration failed")
	ErrBackupFailed         = errors.New("backup failed")
)

// Repository errors
var (
	ErrQueueNotFound   = errors.New("no stored queue for guild")
	ErrInvalidSnapshot = errors.New("invalid queue snapshot")
)
