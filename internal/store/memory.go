package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eldtechnologies/roomcast/internal/models"
)

// MemoryLog keeps the message log in process memory. It backs tests and the
// degraded mode entered when the configured backend cannot be opened:
// persistence is best-effort and must never block message flow.
type MemoryLog struct {
	mu     sync.Mutex
	rows   []models.MessageRecord
	nextID int64
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{nextID: 1}
}

// Close is a no-op.
func (m *MemoryLog) Close() {}

// Ping always succeeds.
func (m *MemoryLog) Ping(ctx context.Context) error { return nil }

// Append inserts one message row.
func (m *MemoryLog) Append(ctx context.Context, rec models.MessageRecord) error {
	if rec.TS == 0 {
		rec.TS = nowTS()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec.ID = m.nextID
	m.nextID++
	m.rows = append(m.rows, rec)
	return nil
}

// Recent returns the limit most-recent rows for a group, oldest first.
func (m *MemoryLog) Recent(ctx context.Context, group string, limit int) ([]models.MessageRecord, error) {
	return m.filter(group, limit, func(models.MessageRecord) bool { return true }), nil
}

// Search returns the limit most-recent rows whose text contains substring
// (case-insensitive), oldest first.
func (m *MemoryLog) Search(ctx context.Context, group, substring string, limit int) ([]models.MessageRecord, error) {
	needle := strings.ToLower(substring)
	return m.filter(group, limit, func(rec models.MessageRecord) bool {
		return strings.Contains(strings.ToLower(rec.Text), needle)
	}), nil
}

func (m *MemoryLog) filter(group string, limit int, keep func(models.MessageRecord) bool) []models.MessageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	var recs []models.MessageRecord
	for _, rec := range m.rows {
		if rec.Group == group && keep(rec) {
			recs = append(recs, rec)
		}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].TS != recs[j].TS {
			return recs[i].TS < recs[j].TS
		}
		return recs[i].ID < recs[j].ID
	})

	// Cap at the limit most-recent rows, keeping chronological order.
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return recs
}

// nowTS returns the current time as float unix seconds, the timestamp unit
// of the log schema.
func nowTS() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
