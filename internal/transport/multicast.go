// Package transport implements the shared-address datagram channel every
// node uses in every room. It performs no room isolation at the network
// layer: each node receives all traffic and drops envelopes whose room
// field differs. One receive goroutine runs per live transport; transports
// are 1:1 with sessions and recycled on group change.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"

	"github.com/eldtechnologies/roomcast/internal/metrics"
	"github.com/eldtechnologies/roomcast/internal/models"
	"github.com/eldtechnologies/roomcast/internal/store"
	"github.com/eldtechnologies/roomcast/internal/wire"
)

const maxDatagram = 64 * 1024

// Handler consumes one decoded inbound envelope whose room matches the
// transport's room.
type Handler func(env wire.Envelope)

// Config describes one transport instance.
type Config struct {
	// Addr is the shared broadcast address, normally a multicast
	// group:port. A unicast address is accepted (membership handling is
	// skipped), which tests use for single-process loopback.
	Addr     string
	Room     string
	Username string

	// Log is the dedicated store handle owned by this transport; Close
	// releases it.
	Log store.MessageLog

	OnMessage Handler
	Logger    zerolog.Logger
}

// Multicast is the broadcast transport for one session.
type Multicast struct {
	addr      *net.UDPAddr
	room      string
	username  string
	log       store.MessageLog
	onMessage Handler
	logger    zerolog.Logger

	mu     sync.Mutex
	conn   *net.UDPConn
	pconn  *ipv4.PacketConn
	closed bool
}

// NewMulticast resolves the broadcast address and prepares a transport.
// The socket is not opened until Start.
func NewMulticast(cfg Config) (*Multicast, error) {
	addr, err := net.ResolveUDPAddr("udp4", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("resolve broadcast address %q: %w", cfg.Addr, err)
	}
	return &Multicast{
		addr:      addr,
		room:      cfg.Room,
		username:  cfg.Username,
		log:       cfg.Log,
		onMessage: cfg.OnMessage,
		logger:    cfg.Logger.With().Str("room", cfg.Room).Logger(),
	}, nil
}

// Start binds the receive socket, joins the multicast group and launches
// the receive loop. Membership failure is not fatal: the node continues in
// degraded local-only delivery. Idempotent while open.
func (m *Multicast) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return net.ErrClosed
	}
	if m.conn != nil {
		return nil
	}

	conn, err := listenShared(m.addr.Port)
	if err != nil {
		// Degraded mode: an ephemeral port can still send, it just won't
		// hear the group.
		m.logger.Warn().Err(err).Int("port", m.addr.Port).
			Msg("shared port bind failed, falling back to send-only socket")
		conn, err = listenShared(0)
		if err != nil {
			return err
		}
	}

	if m.addr.IP.IsMulticast() {
		p := ipv4.NewPacketConn(conn)
		if err := p.JoinGroup(nil, &net.UDPAddr{IP: m.addr.IP}); err != nil {
			m.logger.Warn().Err(err).Stringer("group", m.addr.IP).
				Msg("multicast join failed, continuing degraded")
		}
		_ = p.SetMulticastTTL(1)
		_ = p.SetMulticastLoopback(true)
		m.pconn = p
	}

	m.conn = conn
	go m.readLoop(conn)
	return nil
}

// Publish stores a local "out" record and broadcasts one envelope. The
// record is written synchronously before the send, so a publish always has
// an immediate local copy even when the network send fails; store failures
// never block the send.
func (m *Multicast) Publish(text string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return net.ErrClosed
	}
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		if err := m.Start(); err != nil {
			return err
		}
		m.mu.Lock()
		conn = m.conn
		m.mu.Unlock()
	}

	ts := wire.Now()
	err := m.log.Append(context.Background(), models.MessageRecord{
		TS:        ts,
		Direction: models.DirectionOut,
		FromUser:  m.username,
		Group:     m.room,
		Text:      text,
	})
	if err != nil {
		metrics.StoreErrors.Inc()
		m.logger.Warn().Err(err).Msg("failed to store outbound message")
	}

	b, err := wire.Envelope{Room: m.room, Username: m.username, Text: text, TS: ts}.Encode()
	if err != nil {
		return err
	}
	if _, err := conn.WriteToUDP(b, m.addr); err != nil {
		return err
	}
	metrics.EnvelopesPublished.Inc()
	return nil
}

// Close stops the receive loop, leaves the multicast group, releases the
// socket and the dedicated store handle. Safe to call from any thread and
// a no-op on the second call.
func (m *Multicast) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conn, pconn := m.conn, m.pconn
	m.conn, m.pconn = nil, nil
	m.mu.Unlock()

	if pconn != nil {
		_ = pconn.LeaveGroup(nil, &net.UDPAddr{IP: m.addr.IP})
	}
	if conn != nil {
		_ = conn.Close()
	}
	m.log.Close()
	return nil
}

func (m *Multicast) stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// readLoop blocks on the socket until Close. Malformed datagrams and store
// failures never terminate the loop; closing the socket unblocks the read
// and the stop flag ends it deterministically.
func (m *Multicast) readLoop(conn *net.UDPConn) {
	buf := make([]byte, maxDatagram)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if m.stopped() || errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		env, err := wire.DecodeEnvelope(buf[:n])
		if err != nil {
			metrics.EnvelopesDropped.WithLabelValues("decode").Inc()
			m.logger.Debug().Err(err).Msg("dropping malformed datagram")
			continue
		}
		if env.Room != m.room {
			metrics.EnvelopesDropped.WithLabelValues("foreign_room").Inc()
			continue
		}

		// Self-echo suppression: our own traffic was already recorded by
		// Publish.
		if env.Username != "" && env.Username != m.username {
			err := m.log.Append(context.Background(), models.MessageRecord{
				TS:        env.TS,
				Direction: models.DirectionIn,
				FromUser:  env.Username,
				Group:     m.room,
				Text:      env.Text,
			})
			if err != nil {
				metrics.StoreErrors.Inc()
				m.logger.Warn().Err(err).Msg("failed to store inbound message")
			}
		}

		metrics.EnvelopesReceived.Inc()
		if m.onMessage != nil {
			m.onMessage(env)
		}
	}
}
