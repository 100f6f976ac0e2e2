package store

import (
	"context"

	"github.com/eldtechnologies/roomcast/internal/models"
)

// MessageLog is the append-only local log of chat traffic. It is shared by
// the transport's receive goroutine and by caller threads; implementations
// must serialize writes. The log outlives any single session.
//
// SQLiteLog and PostgresLog implement this interface; MemoryLog backs tests
// and the degraded mode used when the configured backend cannot be opened.
type MessageLog interface {
	// Append inserts one row. A zero TS is filled with the current time.
	// Callers treat failures as non-fatal: log and continue.
	Append(ctx context.Context, rec models.MessageRecord) error

	// Recent returns up to limit most-recent rows for a group, oldest first.
	Recent(ctx context.Context, group string, limit int) ([]models.MessageRecord, error)

	// Search returns up to limit most-recent rows for a group whose text
	// contains substring (case-insensitive), oldest first.
	Search(ctx context.Context, group, substring string, limit int) ([]models.MessageRecord, error)

	// Connection management.
	Ping(ctx context.Context) error
	Close()
}

// Open selects the log backend: Postgres when databaseURL is set, otherwise
// embedded SQLite at dbPath.
func Open(ctx context.Context, databaseURL, dbPath string) (MessageLog, error) {
	if databaseURL != "" {
		return NewPostgresLog(ctx, databaseURL)
	}
	return NewSQLiteLog(ctx, dbPath)
}
