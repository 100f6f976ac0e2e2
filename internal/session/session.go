// Package session owns the node's identity and current group, replays
// relevant history on (re)join, tracks presence, and routes live envelopes
// to the consumer. Destination filtering happens here, at the application
// layer: the transport only guarantees room matching.
package session

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/roomcast/internal/metrics"
	"github.com/eldtechnologies/roomcast/internal/models"
	"github.com/eldtechnologies/roomcast/internal/store"
	"github.com/eldtechnologies/roomcast/internal/wire"
)

// State is the session lifecycle position. Joining and Leaving are only
// held while the corresponding transition runs under the session lock.
type State int

const (
	NotJoined State = iota
	Joining
	Joined
	Leaving
)

func (s State) String() string {
	switch s {
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case Leaving:
		return "leaving"
	default:
		return "not_joined"
	}
}

// Events receives user-visible chat activity. Calls are synchronous and
// made under the session lock; implementations must not call back into the
// Session.
type Events interface {
	UserJoined(user, group, firstName, lastName string)
	UserLeft(user string)
	MessageReceived(from, destination, text string)
}

// Transport is the broadcast channel a session publishes through. Satisfied
// by transport.Multicast; tests substitute fakes.
type Transport interface {
	Start() error
	Publish(text string) error
	Close() error
}

// OpenTransport creates a transport bound to one room. Each call must
// return a fresh instance owning its own store handle; the session closes
// it on leave or group change.
type OpenTransport func(room, username string, onMessage func(wire.Envelope)) (Transport, error)

// Status is a point-in-time view of the session for the status API.
type Status struct {
	State  string `json:"state"`
	User   string `json:"user,omitempty"`
	Group  string `json:"group,omitempty"`
	Online int    `json:"online"`
}

// replayKey collapses rows that both sender and receiver persisted for the
// same message. Timestamps are truncated to whole seconds on purpose; the
// granularity matches the historical log format.
type replayKey struct {
	author string
	sec    int64
	text   string
}

// Session is the per-node orchestrator. All methods are safe for
// concurrent use; the receive goroutine and caller threads serialize on
// one mutex.
type Session struct {
	log         store.MessageLog
	open        OpenTransport
	events      Events
	logger      zerolog.Logger
	replayLimit int

	mu        sync.Mutex
	state     State
	username  string
	group     string
	firstName string
	lastName  string
	online    map[string]models.OnlineUser
	transport Transport
}

// New creates a session over the process-wide message log. replayLimit
// bounds the history window fetched per join.
func New(log store.MessageLog, open OpenTransport, events Events, logger zerolog.Logger, replayLimit int) *Session {
	if replayLimit <= 0 {
		replayLimit = 200
	}
	return &Session{
		log:         log,
		open:        open,
		events:      events,
		logger:      logger,
		replayLimit: replayLimit,
	}
}

// Join opens a transport for the group, replays recent history, announces
// presence and seeds the online view with the local user. A join while
// already joined is a no-op.
func (s *Session) Join(user, group, firstName, lastName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != NotJoined {
		return nil
	}

	s.username = user
	s.group = group
	s.firstName = firstName
	s.lastName = lastName
	return s.joinLocked()
}

// Leave announces presence-leave, closes the transport and clears the
// online view. A leave while not joined is a no-op.
func (s *Session) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveLocked()
}

// UpdateGroup switches to another group, modeled as leave-old followed by
// join-new so presence and transport lifecycles stay consistent. Switching
// to the current group is a no-op.
func (s *Session) UpdateGroup(newGroup string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Joined || newGroup == s.group {
		return nil
	}

	s.leaveLocked()
	s.group = newGroup
	return s.joinLocked()
}

// Send publishes a chat payload addressed to a group or user. The
// transport stores the outbound record; the session is not a second
// writer. No-op unless joined and text is non-empty.
func (s *Session) Send(destination, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Joined || text == "" {
		return
	}
	if err := s.transport.Publish(wire.NewChatText(s.username, destination, s.group, text)); err != nil {
		s.logger.Warn().Err(err).Str("to", destination).Msg("chat publish failed")
	}
}

// ListOnline returns a snapshot of the users known online in the current
// group, sorted by username.
func (s *Session) ListOnline() []models.OnlineUser {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]models.OnlineUser, 0, len(s.online))
	for _, u := range s.online {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].User < users[j].User })
	return users
}

// Status reports the session state for the status API.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{State: s.state.String(), Online: len(s.online)}
	if s.state == Joined {
		st.User = s.username
		st.Group = s.group
	}
	return st
}

// joinLocked runs the Joining transition: transport up, history replayed,
// presence announced, self seeded. Replay completes before the state
// reaches Joined, so no live event precedes its historical batch.
func (s *Session) joinLocked() error {
	s.state = Joining

	tr, err := s.open(s.group, s.username, s.handleEnvelope)
	if err == nil {
		err = tr.Start()
		if err != nil {
			_ = tr.Close()
		}
	}
	if err != nil {
		s.state = NotJoined
		s.logger.Error().Err(err).Str("group", s.group).Msg("transport open failed")
		return err
	}
	s.transport = tr

	s.replayLocked()

	if err := tr.Publish(wire.NewPresenceText(wire.ActionJoin, s.firstName, s.lastName)); err != nil {
		s.logger.Warn().Err(err).Msg("presence announce failed")
	}

	s.online = map[string]models.OnlineUser{
		s.username: {User: s.username, Group: s.group, FirstName: s.firstName, LastName: s.lastName},
	}
	metrics.OnlineUsers.Set(1)
	s.events.UserJoined(s.username, s.group, s.firstName, s.lastName)

	s.state = Joined
	s.logger.Info().Str("user", s.username).Str("group", s.group).Msg("joined group")
	return nil
}

// leaveLocked runs the Leaving transition. Publish and close failures are
// logged and swallowed: leaving must always succeed locally.
func (s *Session) leaveLocked() {
	if s.state != Joined {
		return
	}
	s.state = Leaving

	if err := s.transport.Publish(wire.NewPresenceText(wire.ActionLeave, s.firstName, s.lastName)); err != nil {
		s.logger.Warn().Err(err).Msg("presence leave failed")
	}
	if err := s.transport.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("transport close failed")
	}
	s.transport = nil

	// Presence is scoped to the group; nothing carries over.
	s.online = nil
	metrics.OnlineUsers.Set(0)

	s.state = NotJoined
	s.logger.Info().Str("group", s.group).Msg("left group")
}

// replayLocked re-delivers the recent history window for the current
// group, oldest to newest. Rows are deduplicated because sender and
// receiver may both have persisted the same content; presence rows are
// never re-announced; chat rows are filtered by destination exactly like
// live traffic.
func (s *Session) replayLocked() {
	rows, err := s.log.Recent(context.Background(), s.group, s.replayLimit)
	if err != nil {
		s.logger.Warn().Err(err).Msg("history replay failed")
		return
	}

	seen := make(map[replayKey]struct{}, len(rows))
	for _, row := range rows {
		author := row.FromUser
		if author == "" {
			author = "?"
		}

		key := replayKey{author: author, sec: int64(row.TS), text: row.Text}
		if _, dup := seen[key]; dup {
			metrics.ReplayDuplicates.Inc()
			continue
		}
		seen[key] = struct{}{}

		p := wire.DecodePayload(row.Text)
		switch p.Kind {
		case wire.KindPresence:
			// History never re-announces past presence.
		case wire.KindChat:
			dest := p.Chat.To
			if dest == "" {
				dest = s.group
			}
			if dest != s.group && dest != s.username {
				continue
			}
			// The payload's from wins over the row author in case the two
			// disagree.
			from := p.Chat.From
			if from == "" {
				from = author
			}
			s.events.MessageReceived(from, dest, p.Chat.Text)
			metrics.HistoryReplayed.Inc()
		default:
			s.events.MessageReceived(author, s.group, row.Text)
			metrics.HistoryReplayed.Inc()
		}
	}
}

// handleEnvelope classifies one live envelope from the transport's receive
// goroutine. Envelopes arriving outside the Joined state are dropped; a
// blocked callback during a transition resumes once the transition ends.
func (s *Session) handleEnvelope(env wire.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Joined {
		return
	}

	p := wire.DecodePayload(env.Text)
	switch p.Kind {
	case wire.KindPresence:
		s.handlePresenceLocked(env.Username, p.Presence)

	case wire.KindChat:
		dest := p.Chat.To
		if dest == "" {
			dest = s.group
		}
		if dest != s.group && dest != s.username {
			// Addressed to neither this group nor this user: dropped
			// without error.
			return
		}
		from := p.Chat.From
		if from == "" {
			from = "?"
		}
		s.events.MessageReceived(from, dest, p.Chat.Text)

	default:
		author := env.Username
		if author == "" {
			author = "?"
		}
		s.events.MessageReceived(author, s.group, env.Text)
	}
}

func (s *Session) handlePresenceLocked(author string, p wire.Presence) {
	switch p.Action {
	case wire.ActionJoin:
		if _, ok := s.online[author]; ok {
			// Duplicate join for an already-online user: dropped.
			return
		}
		s.online[author] = models.OnlineUser{
			User:      author,
			Group:     s.group,
			FirstName: p.FirstName,
			LastName:  p.LastName,
		}
		metrics.OnlineUsers.Set(float64(len(s.online)))
		if author != s.username {
			s.events.UserJoined(author, s.group, p.FirstName, p.LastName)
		}

	case wire.ActionLeave:
		if _, ok := s.online[author]; !ok || author == s.username {
			return
		}
		s.events.UserLeft(author)
		delete(s.online, author)
		metrics.OnlineUsers.Set(float64(len(s.online)))
	}
}
