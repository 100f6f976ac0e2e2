// Package wire defines the datagram envelope shared by every node and the
// application payload nested inside it. The payload is a closed tagged
// union (presence, chat, or opaque plain text) and is decoded exactly once,
// at the point a message enters the routing layer.
package wire

import (
	"encoding/json"
	"time"
)

// Presence actions.
const (
	ActionJoin  = "join"
	ActionLeave = "leave"
)

// Payload type tags as they appear on the wire.
const (
	typePresence = "presence"
	typeChat     = "chat"
)

// Envelope is the wire unit broadcast to all nodes regardless of room.
// Room-level isolation is purely logical: the transport drops envelopes
// whose room differs, the network layer does not filter.
type Envelope struct {
	Room     string  `json:"room"`
	Username string  `json:"username"`
	Text     string  `json:"text"`
	TS       float64 `json:"ts"` // unix seconds
}

// Encode serializes the envelope as one JSON object per datagram.
func (e Envelope) Encode() ([]byte, error) { return json.Marshal(e) }

// DecodeEnvelope parses a received datagram.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(b, &e)
	return e, err
}

// Presence announces that a user joined or left the group.
type Presence struct {
	Type      string `json:"_type"`
	Action    string `json:"action"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Chat carries a user message addressed to a group or to a single user.
type Chat struct {
	Type  string `json:"_type"`
	From  string `json:"from"`
	To    string `json:"to"`
	Group string `json:"group"`
	Text  string `json:"text"`
}

// PayloadKind discriminates the decoded payload union.
type PayloadKind int

const (
	// KindOpaque marks text that is not a recognized payload document.
	// It is routed verbatim as plain chat text.
	KindOpaque PayloadKind = iota
	KindPresence
	KindChat
)

// Payload is the decoded application payload. Exactly one of Presence or
// Chat is meaningful, selected by Kind; Raw always holds the original text.
type Payload struct {
	Kind     PayloadKind
	Presence Presence
	Chat     Chat
	Raw      string
}

// DecodePayload interprets an envelope's text field. Anything that is not
// a JSON object tagged presence or chat falls back to opaque plain text;
// decode failures are a payload variant here, never an error.
func DecodePayload(text string) Payload {
	var probe struct {
		Type string `json:"_type"`
	}
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		return Payload{Kind: KindOpaque, Raw: text}
	}

	switch probe.Type {
	case typePresence:
		var p Presence
		if err := json.Unmarshal([]byte(text), &p); err == nil {
			return Payload{Kind: KindPresence, Presence: p, Raw: text}
		}
	case typeChat:
		var c Chat
		if err := json.Unmarshal([]byte(text), &c); err == nil {
			return Payload{Kind: KindChat, Chat: c, Raw: text}
		}
	}
	return Payload{Kind: KindOpaque, Raw: text}
}

// NewPresenceText builds the wire text for a presence announcement.
func NewPresenceText(action, firstName, lastName string) string {
	b, _ := json.Marshal(Presence{
		Type:      typePresence,
		Action:    action,
		FirstName: firstName,
		LastName:  lastName,
	})
	return string(b)
}

// NewChatText builds the wire text for a chat message.
func NewChatText(from, to, group, text string) string {
	b, _ := json.Marshal(Chat{
		Type:  typeChat,
		From:  from,
		To:    to,
		Group: group,
		Text:  text,
	})
	return string(b)
}

// Now returns the current time as float unix seconds, the timestamp unit
// used on the wire and in the message log.
func Now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
