package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/roomcast/internal/models"
	"github.com/eldtechnologies/roomcast/internal/session"
	"github.com/eldtechnologies/roomcast/internal/store"
	"github.com/eldtechnologies/roomcast/internal/wire"
)

type nopTransport struct{}

func (nopTransport) Start() error              { return nil }
func (nopTransport) Publish(text string) error { return nil }
func (nopTransport) Close() error              { return nil }

type nopEvents struct{}

func (nopEvents) UserJoined(user, group, firstName, lastName string) {}
func (nopEvents) UserLeft(user string)                               {}
func (nopEvents) MessageReceived(from, destination, text string)     {}

func newTestHandler(t *testing.T) (*Handler, *store.MemoryLog, *session.Session) {
	t.Helper()
	log := store.NewMemoryLog()
	open := func(room, username string, onMessage func(wire.Envelope)) (session.Transport, error) {
		return nopTransport{}, nil
	}
	sess := session.New(log, open, nopEvents{}, zerolog.Nop(), 200)
	return NewHandler(log, sess), log, sess
}

func seed(t *testing.T, log store.MessageLog, ts float64, from, group, text string) {
	t.Helper()
	err := log.Append(context.Background(), models.MessageRecord{
		TS: ts, Direction: models.DirectionIn, FromUser: from, Group: group, Text: text,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHistoryReturnsChronological(t *testing.T) {
	h, log, _ := newTestHandler(t)
	seed(t, log, 2, "bob", "ops", "second")
	seed(t, log, 1, "alice", "ops", "first")
	seed(t, log, 3, "bob", "other", "elsewhere")

	rec := httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/history?group=ops", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[HistoryResponse](t, rec)
	if resp.Total != 2 || resp.Messages[0].Text != "first" || resp.Messages[1].Text != "second" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHistoryLimitClamped(t *testing.T) {
	h, log, _ := newTestHandler(t)
	seed(t, log, 1, "a", "ops", "one")
	seed(t, log, 2, "a", "ops", "two")
	seed(t, log, 3, "a", "ops", "three")

	rec := httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/history?group=ops&limit=2", nil))

	resp := decode[HistoryResponse](t, rec)
	// Most recent two, chronological.
	if resp.Total != 2 || resp.Messages[0].Text != "two" || resp.Messages[1].Text != "three" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHistoryDefaultsToJoinedGroup(t *testing.T) {
	h, log, sess := newTestHandler(t)
	seed(t, log, 1, "bob", "services", "hi")
	if err := sess.Join("alice", "services", "", ""); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/history", nil))

	resp := decode[HistoryResponse](t, rec)
	if resp.Group != "services" || resp.Total != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHistoryRequiresGroupWhenNotJoined(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/history", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestFindCaseInsensitive(t *testing.T) {
	h, log, _ := newTestHandler(t)
	seed(t, log, 1, "bob", "ops", "HELLO there")
	seed(t, log, 2, "bob", "ops", "unrelated")
	seed(t, log, 3, "bob", "ops", "say Hello")

	rec := httptest.NewRecorder()
	h.Find(rec, httptest.NewRequest(http.MethodGet, "/find?group=ops&q=hello", nil))

	resp := decode[HistoryResponse](t, rec)
	if resp.Total != 2 || resp.Messages[0].Text != "HELLO there" || resp.Messages[1].Text != "say Hello" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestFindRequiresQuery(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Find(rec, httptest.NewRequest(http.MethodGet, "/find?group=ops", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOnlineReflectsSession(t *testing.T) {
	h, _, sess := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Online(rec, httptest.NewRequest(http.MethodGet, "/online", nil))
	if resp := decode[OnlineResponse](t, rec); resp.Total != 0 || resp.Users == nil {
		t.Fatalf("expected empty users array, got %+v", resp)
	}

	if err := sess.Join("alice", "services", "Alice", ""); err != nil {
		t.Fatal(err)
	}
	rec = httptest.NewRecorder()
	h.Online(rec, httptest.NewRequest(http.MethodGet, "/online", nil))
	resp := decode[OnlineResponse](t, rec)
	if resp.Total != 1 || resp.Users[0].User != "alice" {
		t.Fatalf("expected alice online, got %+v", resp)
	}
}

func TestHealthReportsSessionAndStore(t *testing.T) {
	h, _, sess := newTestHandler(t)
	if err := sess.Join("alice", "services", "", ""); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[HealthResponse](t, rec)
	if resp.Status != "healthy" || resp.Session.State != "joined" || resp.Session.Group != "services" {
		t.Fatalf("unexpected health: %+v", resp)
	}
	if resp.Checks["store"].Status != "pass" {
		t.Fatalf("expected store check pass, got %+v", resp.Checks)
	}
}
