package transport

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/roomcast/internal/models"
	"github.com/eldtechnologies/roomcast/internal/store"
	"github.com/eldtechnologies/roomcast/internal/wire"
)

func freeUDPPort(t *testing.T) int {
	t.Helper()
	l, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer l.Close()
	return l.LocalAddr().(*net.UDPAddr).Port
}

// newLoopback starts a transport on a loopback unicast address so the test
// hears its own datagrams without real multicast.
func newLoopback(t *testing.T, room, username string, log store.MessageLog) (*Multicast, chan wire.Envelope) {
	t.Helper()

	got := make(chan wire.Envelope, 16)
	m, err := NewMulticast(Config{
		Addr:     net.JoinHostPort("127.0.0.1", itoa(freeUDPPort(t))),
		Room:     room,
		Username: username,
		Log:      log,
		OnMessage: func(env wire.Envelope) {
			got <- env
		},
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewMulticast: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m, got
}

func itoa(n int) string { return strconv.Itoa(n) }

func waitEnvelope(t *testing.T, got chan wire.Envelope) wire.Envelope {
	t.Helper()
	select {
	case env := <-got:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return wire.Envelope{}
	}
}

// sendRaw pushes an arbitrary datagram at the transport from a second
// socket, standing in for another node.
func sendRaw(t *testing.T, m *Multicast, b []byte) {
	t.Helper()
	c, err := net.DialUDP("udp4", nil, m.addr)
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer c.Close()
	if _, err := c.Write(b); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestPublishLoopsBackAndStoresOutOnly(t *testing.T) {
	log := store.NewMemoryLog()
	m, got := newLoopback(t, "ops", "alice", log)

	if err := m.Publish("hello ops"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	env := waitEnvelope(t, got)
	if env.Room != "ops" || env.Username != "alice" || env.Text != "hello ops" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.TS == 0 {
		t.Fatal("envelope timestamp not set")
	}

	// Exactly one record, direction out: self-echo must not add an "in"
	// copy.
	recs, err := log.Recent(context.Background(), "ops", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Direction != models.DirectionOut || recs[0].FromUser != "alice" {
		t.Fatalf("unexpected record: %+v", recs[0])
	}
}

func TestReceiveStoresInboundFromOthers(t *testing.T) {
	log := store.NewMemoryLog()
	m, got := newLoopback(t, "ops", "alice", log)

	b, _ := wire.Envelope{Room: "ops", Username: "bob", Text: "hi alice", TS: wire.Now()}.Encode()
	sendRaw(t, m, b)

	env := waitEnvelope(t, got)
	if env.Username != "bob" {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	recs, err := log.Recent(context.Background(), "ops", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Direction != models.DirectionIn || recs[0].FromUser != "bob" {
		t.Fatalf("expected one inbound record from bob, got %+v", recs)
	}
}

func TestMalformedAndForeignRoomSkipped(t *testing.T) {
	log := store.NewMemoryLog()
	m, got := newLoopback(t, "ops", "alice", log)

	// Neither a broken packet nor another room's traffic may kill the
	// receive loop or reach the callback.
	sendRaw(t, m, []byte("{truncated"))
	foreign, _ := wire.Envelope{Room: "services", Username: "bob", Text: "elsewhere", TS: wire.Now()}.Encode()
	sendRaw(t, m, foreign)
	ok, _ := wire.Envelope{Room: "ops", Username: "bob", Text: "still alive", TS: wire.Now()}.Encode()
	sendRaw(t, m, ok)

	env := waitEnvelope(t, got)
	if env.Text != "still alive" {
		t.Fatalf("expected the valid envelope, got %+v", env)
	}
	select {
	case extra := <-got:
		t.Fatalf("unexpected extra envelope: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}

	recs, _ := log.Recent(context.Background(), "services", 10)
	if len(recs) != 0 {
		t.Fatalf("foreign room traffic must not be stored: %+v", recs)
	}
}

func TestCloseIdempotentAndStopsPublish(t *testing.T) {
	log := store.NewMemoryLog()
	m, _ := newLoopback(t, "ops", "alice", log)

	if err := m.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close must be a no-op: %v", err)
	}
	if err := m.Publish("too late"); !errors.Is(err, net.ErrClosed) {
		t.Fatalf("expected net.ErrClosed after Close, got %v", err)
	}
}

func TestStartIdempotentWhileOpen(t *testing.T) {
	log := store.NewMemoryLog()
	m, _ := newLoopback(t, "ops", "alice", log)
	if err := m.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
}
