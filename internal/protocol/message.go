// Package protocol defines the wire messages exchanged between the game
// server and its clients, together with a stream-safe frame codec.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies a message on the wire. The numeric values are part of the
// protocol and must not be reordered.
type Kind int

const (
	// Client -> server.
	KindSetNickname Kind = iota
	KindJoinQueue
	KindPlayerPosition
	KindPlayerDied
	KindRequestRematch

	// Server -> client.
	KindNicknameAccepted
	KindNicknameDuplicate
	KindWaitingForMatch
	KindMatchFound
	KindGameStart
	KindOpponentPosition
	KindOpponentDied
	KindGameResult
	KindConnectionError

	kindCount
)

// String returns the message kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindSetNickname:
		return "SetNickname"
	case KindJoinQueue:
		return "JoinQueue"
	case KindPlayerPosition:
		return "PlayerPosition"
	case KindPlayerDied:
		return "PlayerDied"
	case KindRequestRematch:
		return "RequestRematch"
	case KindNicknameAccepted:
		return "NicknameAccepted"
	case KindNicknameDuplicate:
		return "NicknameDuplicate"
	case KindWaitingForMatch:
		return "WaitingForMatch"
	case KindMatchFound:
		return "MatchFound"
	case KindGameStart:
		return "GameStart"
	case KindOpponentPosition:
		return "OpponentPosition"
	case KindOpponentDied:
		return "OpponentDied"
	case KindGameResult:
		return "GameResult"
	case KindConnectionError:
		return "ConnectionError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Valid reports whether k is a defined message kind.
func (k Kind) Valid() bool {
	return k >= KindSetNickname && k < kindCount
}

// Message is one protocol frame: a kind tag plus an opaque payload whose
// grammar depends on the kind. Messages are immutable values constructed
// per send or receive.
type Message struct {
	Kind    Kind
	Payload string
}

// NewMessage builds a message of the given kind.
//
// Precondition: kind must be a valid Kind.
func NewMessage(kind Kind, payload string) Message {
	return Message{Kind: kind, Payload: payload}
}

// DecodeError reports a malformed frame. Callers should log it, drop the
// frame, and keep the connection open.
type DecodeError struct {
	Reason string
}

// Error returns the decode failure description.
func (e *DecodeError) Error() string {
	return "protocol: " + e.Reason
}

func decodeErrorf(format string, args ...any) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// EncodeBody serializes m into its body form: the kind's ordinal, a pipe
// separator, and the payload verbatim.
//
// Postcondition: DecodeBody(EncodeBody(m)) == m for every valid m.
func EncodeBody(m Message) []byte {
	return []byte(strconv.Itoa(int(m.Kind)) + "|" + m.Payload)
}

// DecodeBody parses a frame body produced by EncodeBody. The payload is
// everything after the first pipe, so payloads may themselves contain pipes.
//
// Postcondition: Returns a valid Message, or a *DecodeError for an empty
// body, a missing separator, or an unknown kind tag.
func DecodeBody(body []byte) (Message, error) {
	if len(body) == 0 {
		return Message{}, decodeErrorf("empty frame body")
	}
	s := string(body)
	tag, payload, found := strings.Cut(s, "|")
	if !found {
		return Message{}, decodeErrorf("missing kind separator in %q", truncateForError(s))
	}
	n, err := strconv.Atoi(tag)
	if err != nil {
		return Message{}, decodeErrorf("non-numeric kind tag %q", truncateForError(tag))
	}
	kind := Kind(n)
	if !kind.Valid() {
		return Message{}, decodeErrorf("unknown kind tag %d", n)
	}
	return Message{Kind: kind, Payload: payload}, nil
}

// truncateForError bounds untrusted input quoted in error messages.
func truncateForError(s string) string {
	const max = 64
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
