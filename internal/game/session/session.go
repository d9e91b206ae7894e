// Package session implements the per-connection state machine that sits
// between a client's framed connection and the matchmaking/game layers.
package session

import (
	"context"
	"errors"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/cory-johannsen/runnerduel/internal/protocol"
)

// Nickname length bounds, in runes.
const (
	NicknameMinLen = 2
	NicknameMaxLen = 10
)

// State is a session's lifecycle position.
type State int

const (
	// StateConnected is the initial state: connection open, no identity.
	StateConnected State = iota
	// StateNamed means the nickname was accepted and an identity resolved.
	StateNamed
	// StateQueued means the session is waiting in the matchmaking queue.
	StateQueued
	// StateInRoom means the session is attached to a game room.
	StateInRoom
	// StateEnded is terminal: the connection is gone.
	StateEnded
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateNamed:
		return "named"
	case StateQueued:
		return "queued"
	case StateInRoom:
		return "in_room"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Queue is the matchmaking surface a session enqueues itself on.
type Queue interface {
	// Enqueue appends the session to the waiting queue. Idempotent by
	// session identity.
	Enqueue(s *Session)
	// Dequeue removes the session if present; no-op otherwise.
	Dequeue(s *Session)
}

// Room is the surface a session dispatches in-match messages to. A session
// never touches its opponent directly; every side effect goes through the
// room that owns both sessions.
type Room interface {
	RelayPosition(from *Session, payload string)
	ReportDeath(from *Session, payload string)
	PlayerDisconnected(from *Session)
}

// PlayerResolver resolves a nickname to a durable player identity.
type PlayerResolver interface {
	UpsertPlayer(ctx context.Context, name string) (int64, error)
}

// NameRegistry tracks nicknames held by currently connected sessions.
type NameRegistry interface {
	// Claim reserves name, reporting false if another session holds it.
	Claim(name string) bool
	// Release frees a previously claimed name.
	Release(name string)
}

// Session represents one connected client. It owns the read loop for its
// connection, translates frames into calls on the queue or the current
// room, and guarantees that queue and room membership never overlap.
type Session struct {
	conn     protocol.FrameConn
	queue    Queue
	resolver PlayerResolver
	names    NameRegistry
	logger   *zap.Logger

	mu           sync.Mutex
	state        State
	room         Room
	playerID     int64
	nickname     string
	disconnected bool
}

// New creates a session wrapping the given connection.
//
// Precondition: all arguments must be non-nil.
func New(conn protocol.FrameConn, queue Queue, resolver PlayerResolver, names NameRegistry, logger *zap.Logger) *Session {
	return &Session{
		conn:     conn,
		queue:    queue,
		resolver: resolver,
		names:    names,
		logger:   logger,
		state:    StateConnected,
		playerID: -1,
	}
}

// Run reads frames until the connection fails or ctx is cancelled, then
// disconnects. Malformed frames are logged and dropped; the connection
// stays open.
//
// Postcondition: the session is disconnected when Run returns.
func (s *Session) Run(ctx context.Context) {
	defer s.Disconnect()

	for {
		msg, err := s.conn.ReadFrame()
		if err != nil {
			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				s.logger.Warn("dropping malformed frame",
					zap.String("remote_addr", s.conn.RemoteAddr()),
					zap.Error(decodeErr),
				)
				continue
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.Receive(ctx, msg)
	}
}

// Receive dispatches one inbound message by kind. Kinds that are invalid
// for the current state are ignored, not fatal.
func (s *Session) Receive(ctx context.Context, msg protocol.Message) {
	switch msg.Kind {
	case protocol.KindSetNickname:
		s.setNickname(ctx, msg.Payload)
	case protocol.KindJoinQueue, protocol.KindRequestRematch:
		s.enqueue()
	case protocol.KindPlayerPosition:
		if room := s.currentRoom(); room != nil {
			room.RelayPosition(s, msg.Payload)
		}
	case protocol.KindPlayerDied:
		if room := s.currentRoom(); room != nil {
			room.ReportDeath(s, msg.Payload)
		}
	default:
		s.logger.Debug("ignoring unexpected message kind",
			zap.Stringer("kind", msg.Kind),
			zap.String("remote_addr", s.conn.RemoteAddr()),
		)
	}
}

// setNickname validates and claims a nickname, resolves the player identity,
// and moves the session to StateNamed. No transition occurs on failure; the
// client may retry.
func (s *Session) setNickname(ctx context.Context, name string) {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		s.logger.Debug("ignoring SetNickname outside connected state",
			zap.Stringer("state", s.state),
		)
		return
	}
	s.mu.Unlock()

	n := utf8.RuneCountInString(name)
	if n < NicknameMinLen || n > NicknameMaxLen {
		s.Send(protocol.NewMessage(protocol.KindConnectionError, "nickname must be 2-10 characters"))
		return
	}

	if !s.names.Claim(name) {
		s.Send(protocol.NewMessage(protocol.KindNicknameDuplicate, ""))
		return
	}

	playerID, err := s.resolver.UpsertPlayer(ctx, name)
	if err != nil {
		s.names.Release(name)
		s.logger.Error("resolving player identity",
			zap.String("nickname", name),
			zap.Error(err),
		)
		s.Send(protocol.NewMessage(protocol.KindConnectionError, "server error, try again"))
		return
	}

	s.mu.Lock()
	if s.state != StateConnected {
		// Disconnected while resolving.
		s.mu.Unlock()
		s.names.Release(name)
		return
	}
	s.playerID = playerID
	s.nickname = name
	s.state = StateNamed
	s.mu.Unlock()

	s.logger.Info("nickname accepted",
		zap.String("nickname", name),
		zap.Int64("player_id", playerID),
	)
	s.Send(protocol.NewMessage(protocol.KindNicknameAccepted, "welcome, "+name))
}

// enqueue moves a named session into the waiting queue. Sessions that are
// already queued, in a room, or unnamed are left alone, which keeps queue
// and room membership mutually exclusive.
func (s *Session) enqueue() {
	s.mu.Lock()
	if s.state != StateNamed {
		state, name := s.state, s.nickname
		s.mu.Unlock()
		s.logger.Debug("ignoring queue request",
			zap.Stringer("state", state),
			zap.String("nickname", name),
		)
		return
	}
	s.state = StateQueued
	s.mu.Unlock()

	s.queue.Enqueue(s)
}

// AttachRoom binds the session to a room, moving it from StateQueued to
// StateInRoom. It reports false if the session has already ended, in which
// case the room must treat the player as disconnected.
func (s *Session) AttachRoom(room Room) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEnded {
		return false
	}
	s.room = room
	s.state = StateInRoom
	return true
}

// DetachRoom releases the session from its room. Live sessions return to
// StateNamed so a RequestRematch can re-enqueue the same identity as a
// fresh match.
func (s *Session) DetachRoom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = nil
	if s.state != StateEnded {
		s.state = StateNamed
	}
}

// currentRoom returns the attached room, or nil.
func (s *Session) currentRoom() Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Send writes one message to the client. A write failure means the
// connection is gone, so the session disconnects.
func (s *Session) Send(msg protocol.Message) {
	if err := s.conn.WriteFrame(msg); err != nil {
		s.logger.Debug("send failed, disconnecting",
			zap.Stringer("kind", msg.Kind),
			zap.String("remote_addr", s.conn.RemoteAddr()),
			zap.Error(err),
		)
		s.Disconnect()
	}
}

// Disconnect tears the session down: it leaves the queue, notifies the
// room if any, releases the nickname claim, and closes the connection.
// Idempotent; only the first call has effect. The queue and room are
// notified before Disconnect returns, so no session outlives its
// connection in either structure.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.disconnected {
		s.mu.Unlock()
		return
	}
	s.disconnected = true
	room := s.room
	name := s.nickname
	s.room = nil
	s.state = StateEnded
	s.mu.Unlock()

	s.queue.Dequeue(s)
	if room != nil {
		room.PlayerDisconnected(s)
	}
	if name != "" {
		s.names.Release(name)
	}
	_ = s.conn.Close()

	s.logger.Info("session disconnected",
		zap.String("nickname", name),
		zap.String("remote_addr", s.conn.RemoteAddr()),
	)
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PlayerID returns the resolved player identity, or -1 before naming.
func (s *Session) PlayerID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerID
}

// Nickname returns the accepted nickname, or "" before naming.
func (s *Session) Nickname() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nickname
}
