// Package match implements FIFO matchmaking and the game room that owns a
// matched pair of sessions for the lifetime of one match.
package match

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/runnerduel/internal/game/session"
	"github.com/cory-johannsen/runnerduel/internal/protocol"
)

// Matchmaker holds the queue of sessions waiting for an opponent. All
// methods are safe for concurrent use; the queue is the only state shared
// between connection goroutines and the matching loop, and one mutex
// serializes every read and mutation.
type Matchmaker struct {
	mu      sync.Mutex
	waiting []*session.Session
	logger  *zap.Logger
}

// NewMatchmaker creates an empty matchmaker.
//
// Precondition: logger must be non-nil.
func NewMatchmaker(logger *zap.Logger) *Matchmaker {
	return &Matchmaker{logger: logger}
}

// Enqueue acknowledges s with a WaitingForMatch message and appends it to
// the waiting queue. The ack is written before s becomes visible to
// TryMatch, so a client always sees WaitingForMatch before MatchFound.
// Idempotent by session identity: a session already waiting is left in
// place and not re-acknowledged.
func (m *Matchmaker) Enqueue(s *session.Session) {
	if m.isWaiting(s) {
		return
	}

	// Acknowledge outside the lock; a slow connection must not stall
	// matchmaking for everyone else. If the write fails the session
	// disconnects and a later TryMatch pop of it aborts the room cleanly.
	s.Send(protocol.NewMessage(protocol.KindWaitingForMatch, "searching for an opponent"))

	m.mu.Lock()
	for _, w := range m.waiting {
		if w == s {
			m.mu.Unlock()
			return
		}
	}
	m.waiting = append(m.waiting, s)
	depth := len(m.waiting)
	m.mu.Unlock()

	m.logger.Info("session queued",
		zap.String("nickname", s.Nickname()),
		zap.Int("queue_depth", depth),
	)
}

// isWaiting reports whether s is already in the queue.
func (m *Matchmaker) isWaiting(s *session.Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.waiting {
		if w == s {
			return true
		}
	}
	return false
}

// Dequeue removes s from the queue if present; no-op otherwise.
func (m *Matchmaker) Dequeue(s *session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.waiting {
		if w == s {
			m.waiting = append(m.waiting[:i], m.waiting[i+1:]...)
			return
		}
	}
}

// TryMatch atomically removes and returns the two oldest waiting sessions.
// Pairing is strict FIFO by enqueue order. It reports false when fewer than
// two sessions are waiting; matchmaking itself never fails.
func (m *Matchmaker) TryMatch() (*session.Session, *session.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.waiting) < 2 {
		return nil, nil, false
	}
	first, second := m.waiting[0], m.waiting[1]
	m.waiting = append([]*session.Session{}, m.waiting[2:]...)
	return first, second, true
}

// Waiting returns the current queue depth.
func (m *Matchmaker) Waiting() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiting)
}
