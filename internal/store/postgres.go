package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/roomcast/internal/models"
)

// PostgresLog is an optional log backend for deployments that want the
// node's history in a shared database instead of a local file. Selected by
// DATABASE_URL.
type PostgresLog struct {
	pool *pgxpool.Pool
}

// NewPostgresLog creates a Postgres-backed log with a connection pool.
func NewPostgresLog(ctx context.Context, databaseURL string) (*PostgresLog, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log := &PostgresLog{pool: pool}
	if err := log.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return log, nil
}

// initSchema creates the messages table and indexes if they don't exist.
func (p *PostgresLog) initSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			ts DOUBLE PRECISION NOT NULL,
			direction TEXT NOT NULL CHECK (direction IN ('in','out')),
			from_user TEXT NOT NULL,
			first_name TEXT DEFAULT '',
			last_name TEXT DEFAULT '',
			grp TEXT NOT NULL,
			text TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_grp_ts ON messages(grp, ts);
		CREATE INDEX IF NOT EXISTS idx_messages_text ON messages(text);
	`)
	return err
}

// Close closes the connection pool.
func (p *PostgresLog) Close() {
	p.pool.Close()
}

// Ping checks the database connection.
func (p *PostgresLog) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Append inserts one message row. The pool serializes nothing itself, but
// each insert is a single statement, so no extra locking is needed here.
func (p *PostgresLog) Append(ctx context.Context, rec models.MessageRecord) error {
	if rec.TS == 0 {
		rec.TS = nowTS()
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO messages (ts, direction, from_user, first_name, last_name, grp, text)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.TS, rec.Direction, rec.FromUser, rec.FirstName, rec.LastName, rec.Group, rec.Text)
	return err
}

// Recent returns the limit most-recent rows for a group, oldest first.
func (p *PostgresLog) Recent(ctx context.Context, group string, limit int) ([]models.MessageRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, ts, direction, from_user, first_name, last_name, grp, text
		FROM messages
		WHERE grp = $1
		ORDER BY ts DESC, id DESC
		LIMIT $2
	`, group, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []models.MessageRecord
	for rows.Next() {
		var rec models.MessageRecord
		err := rows.Scan(
			&rec.ID,
			&rec.TS,
			&rec.Direction,
			&rec.FromUser,
			&rec.FirstName,
			&rec.LastName,
			&rec.Group,
			&rec.Text,
		)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reverse(recs)
	return recs, nil
}

// Search returns the limit most-recent rows whose text contains substring
// (case-insensitive), oldest first.
func (p *PostgresLog) Search(ctx context.Context, group, substring string, limit int) ([]models.MessageRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, ts, direction, from_user, first_name, last_name, grp, text
		FROM messages
		WHERE grp = $1 AND text ILIKE $2
		ORDER BY ts DESC, id DESC
		LIMIT $3
	`, group, "%"+substring+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []models.MessageRecord
	for rows.Next() {
		var rec models.MessageRecord
		err := rows.Scan(
			&rec.ID,
			&rec.TS,
			&rec.Direction,
			&rec.FromUser,
			&rec.FirstName,
			&rec.LastName,
			&rec.Group,
			&rec.Text,
		)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reverse(recs)
	return recs, nil
}
