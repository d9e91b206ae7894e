package match

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/runnerduel/internal/game/session"
	"github.com/cory-johannsen/runnerduel/internal/protocol"
	"github.com/cory-johannsen/runnerduel/internal/testutil"
)

func TestEnqueueAcknowledges(t *testing.T) {
	store := testutil.NewFakeStore()
	m := NewMatchmaker(zaptest.NewLogger(t))

	s, conn := newNamedSession(t, store, "alice")
	m.Enqueue(s)

	assert.Equal(t, 1, m.Waiting())
	msg := lastSent(t, conn)
	assert.Equal(t, protocol.KindWaitingForMatch, msg.Kind)
}

func TestEnqueueIdempotent(t *testing.T) {
	store := testutil.NewFakeStore()
	m := NewMatchmaker(zaptest.NewLogger(t))

	s, conn := newNamedSession(t, store, "alice")
	m.Enqueue(s)
	m.Enqueue(s)
	m.Enqueue(s)

	assert.Equal(t, 1, m.Waiting())

	waiting := 0
	for _, sent := range conn.Sent() {
		if sent.Kind == protocol.KindWaitingForMatch {
			waiting++
		}
	}
	assert.Equal(t, 1, waiting, "re-enqueue must not re-acknowledge")
}

// stallConn blocks its first WaitingForMatch write until released,
// modeling a connection whose ack write is paused mid-enqueue.
type stallConn struct {
	*testutil.FakeConn
	release chan struct{}
	once    sync.Once
}

func (c *stallConn) WriteFrame(msg protocol.Message) error {
	if msg.Kind == protocol.KindWaitingForMatch {
		c.once.Do(func() { <-c.release })
	}
	return c.FakeConn.WriteFrame(msg)
}

func TestEnqueueAcksBeforeMatchable(t *testing.T) {
	store := testutil.NewFakeStore()
	m := NewMatchmaker(zaptest.NewLogger(t))

	conn := &stallConn{FakeConn: testutil.NewFakeConn(), release: make(chan struct{})}
	a := session.New(conn, testutil.NewFakeQueue(), store, testutil.NewFakeNames(), zaptest.NewLogger(t))
	a.Receive(context.Background(), protocol.NewMessage(protocol.KindSetNickname, "alice"))
	require.Equal(t, session.StateNamed, a.State())

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Enqueue(a)
	}()

	// While alice's ack write is stalled she must not be matchable, even
	// with an opponent already waiting.
	b, _ := newNamedSession(t, store, "bob")
	m.Enqueue(b)
	_, _, ok := m.TryMatch()
	require.False(t, ok, "session matchable before its ack was written")

	close(conn.release)
	<-done

	p1, p2, ok := m.TryMatch()
	require.True(t, ok)
	assert.Same(t, b, p1)
	assert.Same(t, a, p2)

	kinds := conn.SentKinds()
	require.Equal(t, []protocol.Kind{protocol.KindNicknameAccepted, protocol.KindWaitingForMatch}, kinds,
		"the queue ack precedes anything a match could send")
}

func TestTryMatchFIFO(t *testing.T) {
	store := testutil.NewFakeStore()
	m := NewMatchmaker(zaptest.NewLogger(t))

	a, _ := newNamedSession(t, store, "aa")
	b, _ := newNamedSession(t, store, "bb")
	c, _ := newNamedSession(t, store, "cc")
	d, _ := newNamedSession(t, store, "dd")
	for _, s := range []*session.Session{a, b, c, d} {
		m.Enqueue(s)
	}

	p1, p2, ok := m.TryMatch()
	require.True(t, ok)
	assert.Same(t, a, p1)
	assert.Same(t, b, p2)

	p1, p2, ok = m.TryMatch()
	require.True(t, ok)
	assert.Same(t, c, p1)
	assert.Same(t, d, p2)

	_, _, ok = m.TryMatch()
	assert.False(t, ok)
	assert.Equal(t, 0, m.Waiting())
}

func TestTryMatchNeedsTwo(t *testing.T) {
	store := testutil.NewFakeStore()
	m := NewMatchmaker(zaptest.NewLogger(t))

	_, _, ok := m.TryMatch()
	assert.False(t, ok)

	s, _ := newNamedSession(t, store, "solo")
	m.Enqueue(s)
	_, _, ok = m.TryMatch()
	assert.False(t, ok)
	assert.Equal(t, 1, m.Waiting(), "a lone session stays queued")
}

func TestDequeueRemoves(t *testing.T) {
	store := testutil.NewFakeStore()
	m := NewMatchmaker(zaptest.NewLogger(t))

	a, _ := newNamedSession(t, store, "aa")
	b, _ := newNamedSession(t, store, "bb")
	m.Enqueue(a)
	m.Enqueue(b)

	m.Dequeue(a)
	assert.Equal(t, 1, m.Waiting())
	_, _, ok := m.TryMatch()
	assert.False(t, ok, "a departed session must never be matched")

	// Dequeue of an absent session is a no-op.
	m.Dequeue(a)
	assert.Equal(t, 1, m.Waiting())
}

func TestConcurrentEnqueue(t *testing.T) {
	store := testutil.NewFakeStore()
	m := NewMatchmaker(zaptest.NewLogger(t))

	const n = 20
	sessions := make([]*session.Session, n)
	for i := range sessions {
		sessions[i], _ = newNamedSession(t, store, "p"+string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			m.Enqueue(s)
		}(s)
	}
	wg.Wait()

	require.Equal(t, n, m.Waiting())

	// Every session comes out exactly once.
	seen := make(map[*session.Session]bool, n)
	for i := 0; i < n/2; i++ {
		p1, p2, ok := m.TryMatch()
		require.True(t, ok)
		require.False(t, seen[p1])
		require.False(t, seen[p2])
		seen[p1], seen[p2] = true, true
	}
	assert.Len(t, seen, n)
}
