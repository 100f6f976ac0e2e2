package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/roomcast/internal/models"
)

// SQLiteLog is the embedded message log. One handle may be shared by the
// transport's receive goroutine and caller threads, so the write path is
// serialized with a mutex; reads rely on SQLite's single-statement
// isolation and run unlocked.
type SQLiteLog struct {
	db *sql.DB

	mu sync.Mutex // guards the write-then-commit sequence
}

// NewSQLiteLog opens (or creates) the log database at dbPath.
// If dbPath is empty, defaults to "./data/roomcast.db"
func NewSQLiteLog(ctx context.Context, dbPath string) (*SQLiteLog, error) {
	if dbPath == "" {
		dbPath = "./data/roomcast.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	log := &SQLiteLog{db: db}

	// Initialize schema
	if err := log.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return log, nil
}

// initSchema creates the messages table and indexes if they don't exist.
func (s *SQLiteLog) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts REAL NOT NULL,
		direction TEXT CHECK(direction IN ('in','out')) NOT NULL,
		from_user TEXT NOT NULL,
		first_name TEXT,
		last_name TEXT,
		grp TEXT NOT NULL,
		text TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_grp_ts ON messages(grp, ts);
	CREATE INDEX IF NOT EXISTS idx_messages_text ON messages(text);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteLog) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteLog) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Append inserts one message row.
func (s *SQLiteLog) Append(ctx context.Context, rec models.MessageRecord) error {
	if rec.TS == 0 {
		rec.TS = nowTS()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (ts, direction, from_user, first_name, last_name, grp, text)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.TS, rec.Direction, rec.FromUser, rec.FirstName, rec.LastName, rec.Group, rec.Text)
	return err
}

// Recent returns the limit most-recent rows for a group, oldest first.
func (s *SQLiteLog) Recent(ctx context.Context, group string, limit int) ([]models.MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, direction, from_user, first_name, last_name, grp, text
		FROM messages
		WHERE grp = ?
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, group, limit)
	if err != nil {
		return nil, err
	}
	return scanChronological(rows)
}

// Search returns the limit most-recent rows whose text contains substring
// (case-insensitive), oldest first. SQLite LIKE is case-insensitive for
// ASCII, matching the store contract.
func (s *SQLiteLog) Search(ctx context.Context, group, substring string, limit int) ([]models.MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, direction, from_user, first_name, last_name, grp, text
		FROM messages
		WHERE grp = ? AND text LIKE ?
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, group, "%"+substring+"%", limit)
	if err != nil {
		return nil, err
	}
	return scanChronological(rows)
}

// scanChronological reads rows queried newest-first and returns them oldest
// first.
func scanChronological(rows *sql.Rows) ([]models.MessageRecord, error) {
	defer rows.Close()

	var recs []models.MessageRecord
	for rows.Next() {
		var rec models.MessageRecord
		var firstName, lastName sql.NullString
		err := rows.Scan(
			&rec.ID,
			&rec.TS,
			&rec.Direction,
			&rec.FromUser,
			&firstName,
			&lastName,
			&rec.Group,
			&rec.Text,
		)
		if err != nil {
			return nil, err
		}
		rec.FirstName = firstName.String
		rec.LastName = lastName.String
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reverse(recs)
	return recs, nil
}

func reverse(recs []models.MessageRecord) {
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
}
