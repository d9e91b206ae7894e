package testutil

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/cory-johannsen/runnerduel/internal/game/session"
	"github.com/cory-johannsen/runnerduel/internal/protocol"
	"github.com/cory-johannsen/runnerduel/internal/storage/postgres"
)

// FakeConn is an in-memory protocol.FrameConn. Tests queue inbound
// messages and inspect what the code under test sent.
type FakeConn struct {
	mu         sync.Mutex
	sent       []protocol.Message
	failWrites bool

	inbound   chan protocol.Message
	closed    chan struct{}
	closeOnce sync.Once
}

// NewFakeConn returns an open fake connection with room for buffered
// inbound messages.
func NewFakeConn() *FakeConn {
	return &FakeConn{
		inbound: make(chan protocol.Message, 64),
		closed:  make(chan struct{}),
	}
}

// QueueInbound makes msg available to the next ReadFrame call.
func (c *FakeConn) QueueInbound(msg protocol.Message) {
	c.inbound <- msg
}

// ReadFrame returns the next queued inbound message, blocking until one
// is queued or the connection is closed.
func (c *FakeConn) ReadFrame() (protocol.Message, error) {
	select {
	case msg := <-c.inbound:
		return msg, nil
	case <-c.closed:
		return protocol.Message{}, io.EOF
	}
}

// WriteFrame records the outbound message. It fails if the connection
// is closed or FailWrites was called.
func (c *FakeConn) WriteFrame(msg protocol.Message) error {
	select {
	case <-c.closed:
		return errors.New("fakeconn: write on closed connection")
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return errors.New("fakeconn: write failure injected")
	}
	c.sent = append(c.sent, msg)
	return nil
}

// Close unblocks pending reads and rejects further writes. Safe to call
// more than once.
func (c *FakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Closed reports whether Close has been called.
func (c *FakeConn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// RemoteAddr returns a placeholder address.
func (c *FakeConn) RemoteAddr() string {
	return "fake:0"
}

// FailWrites makes all subsequent WriteFrame calls return an error.
func (c *FakeConn) FailWrites() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWrites = true
}

// Sent returns a copy of every message written so far.
func (c *FakeConn) Sent() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Message, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentKinds returns the kinds of every message written so far, in order.
func (c *FakeConn) SentKinds() []protocol.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds := make([]protocol.Kind, len(c.sent))
	for i, msg := range c.sent {
		kinds[i] = msg.Kind
	}
	return kinds
}

// WaitSent polls until at least n messages have been written or the
// timeout elapses. Returns true if the count was reached.
func (c *FakeConn) WaitSent(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		count := len(c.sent)
		c.mu.Unlock()
		if count >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

// SavedResult is one SaveGameResult call captured by FakeStore.
type SavedResult struct {
	Player1ID, Player2ID int64
	Score1, Score2       int
	Duration             time.Duration
}

// FakeStore is an in-memory store implementing the persistence
// operations sessions, rooms and the admin console depend on.
type FakeStore struct {
	mu      sync.Mutex
	nextID  int64
	ids     map[string]int64
	results []SavedResult

	// UpsertErr and SaveErr, when set, are returned by the
	// corresponding methods to simulate storage failures.
	UpsertErr error
	SaveErr   error

	// Stats, Board and Games back the read-side queries.
	Stats map[string]postgres.PlayerStats
	Board []postgres.PlayerStats
	Games []postgres.GameRecord
}

// NewFakeStore returns an empty store.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		ids:   make(map[string]int64),
		Stats: make(map[string]postgres.PlayerStats),
	}
}

// UpsertPlayer assigns a stable id per name.
func (s *FakeStore) UpsertPlayer(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpsertErr != nil {
		return 0, s.UpsertErr
	}
	if id, ok := s.ids[name]; ok {
		return id, nil
	}
	s.nextID++
	s.ids[name] = s.nextID
	return s.nextID, nil
}

// SaveGameResult captures the call for later inspection.
func (s *FakeStore) SaveGameResult(_ context.Context, player1ID, player2ID int64, score1, score2 int, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.results = append(s.results, SavedResult{
		Player1ID: player1ID,
		Player2ID: player2ID,
		Score1:    score1,
		Score2:    score2,
		Duration:  duration,
	})
	return nil
}

// GetStats returns the scripted stats for name, or ErrPlayerNotFound.
func (s *FakeStore) GetStats(_ context.Context, name string) (postgres.PlayerStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.Stats[name]
	if !ok {
		return postgres.PlayerStats{}, postgres.ErrPlayerNotFound
	}
	return stats, nil
}

// Leaderboard returns the scripted board truncated to limit.
func (s *FakeStore) Leaderboard(_ context.Context, limit int) ([]postgres.PlayerStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Board) > limit {
		return s.Board[:limit], nil
	}
	return s.Board, nil
}

// RecentGames returns the scripted games truncated to limit.
func (s *FakeStore) RecentGames(_ context.Context, _ int64, limit int) ([]postgres.GameRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Games) > limit {
		return s.Games[:limit], nil
	}
	return s.Games, nil
}

// Results returns a copy of every captured SaveGameResult call.
func (s *FakeStore) Results() []SavedResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SavedResult, len(s.results))
	copy(out, s.results)
	return out
}

// FakeQueue records enqueue and dequeue calls from sessions.
type FakeQueue struct {
	mu       sync.Mutex
	enqueued []*session.Session
	dequeued []*session.Session
}

// NewFakeQueue returns an empty queue recorder.
func NewFakeQueue() *FakeQueue {
	return &FakeQueue{}
}

// Enqueue records the session.
func (q *FakeQueue) Enqueue(s *session.Session) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, s)
}

// Dequeue records the session.
func (q *FakeQueue) Dequeue(s *session.Session) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dequeued = append(q.dequeued, s)
}

// Enqueued returns a copy of the recorded enqueue calls.
func (q *FakeQueue) Enqueued() []*session.Session {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*session.Session, len(q.enqueued))
	copy(out, q.enqueued)
	return out
}

// Dequeued returns a copy of the recorded dequeue calls.
func (q *FakeQueue) Dequeued() []*session.Session {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*session.Session, len(q.dequeued))
	copy(out, q.dequeued)
	return out
}

// FakeNames is an in-memory nickname registry.
type FakeNames struct {
	mu        sync.Mutex
	taken     map[string]struct{}
	RejectAll bool
}

// NewFakeNames returns an empty registry.
func NewFakeNames() *FakeNames {
	return &FakeNames{taken: make(map[string]struct{})}
}

// Claim reserves the name unless it is held or RejectAll is set.
func (n *FakeNames) Claim(name string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.RejectAll {
		return false
	}
	if _, exists := n.taken[name]; exists {
		return false
	}
	n.taken[name] = struct{}{}
	return true
}

// Release frees the name.
func (n *FakeNames) Release(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.taken, name)
}

// Held reports whether the name is currently claimed.
func (n *FakeNames) Held(name string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, exists := n.taken[name]
	return exists
}
