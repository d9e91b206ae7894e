package match

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/runnerduel/internal/config"
	"github.com/cory-johannsen/runnerduel/internal/game/session"
	"github.com/cory-johannsen/runnerduel/internal/protocol"
	"github.com/cory-johannsen/runnerduel/internal/testutil"
)

// seqSource replays a fixed sequence of values, for deterministic maps.
type seqSource struct {
	vals []int
	i    int
}

func (s *seqSource) Intn(n int) int {
	v := s.vals[s.i%len(s.vals)] % n
	s.i++
	return v
}

func testGameConfig() config.GameConfig {
	return config.GameConfig{
		ObstacleCount: 3,
		ObstacleStart: 1200,
		OffsetMin:     500,
		OffsetMax:     800,
	}
}

// newNamedSession builds a session that has already completed nickname
// setup against the given store, so it carries a player id.
func newNamedSession(t *testing.T, store *testutil.FakeStore, name string) (*session.Session, *testutil.FakeConn) {
	t.Helper()

	conn := testutil.NewFakeConn()
	s := session.New(conn, testutil.NewFakeQueue(), store, testutil.NewFakeNames(), zaptest.NewLogger(t))
	s.Receive(context.Background(), protocol.NewMessage(protocol.KindSetNickname, name))
	require.Equal(t, session.StateNamed, s.State(), "nickname setup for %q", name)
	return s, conn
}

// startedRoom creates and starts a room for two named sessions, returning
// the room, both fake conns, and a pointer to the close counter.
func startedRoom(t *testing.T, store *testutil.FakeStore) (*Room, *session.Session, *session.Session, *testutil.FakeConn, *testutil.FakeConn, *int) {
	t.Helper()

	p1, conn1 := newNamedSession(t, store, "alice")
	p2, conn2 := newNamedSession(t, store, "bob")

	closes := 0
	gen := NewMapGenerator(testGameConfig(), &seqSource{vals: []int{12, 230, 150}})
	room := NewRoom(p1, p2, gen, store, zaptest.NewLogger(t), func(string) { closes++ })
	room.Start()
	require.Equal(t, session.StateInRoom, p1.State())
	require.Equal(t, session.StateInRoom, p2.State())
	return room, p1, p2, conn1, conn2, &closes
}

// lastSent returns the most recent message written to the conn.
func lastSent(t *testing.T, conn *testutil.FakeConn) protocol.Message {
	t.Helper()
	sent := conn.Sent()
	require.NotEmpty(t, sent)
	return sent[len(sent)-1]
}
