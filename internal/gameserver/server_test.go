package gameserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/runnerduel/internal/config"
	"github.com/cory-johannsen/runnerduel/internal/frontend/tcp"
	"github.com/cory-johannsen/runnerduel/internal/protocol"
	"github.com/cory-johannsen/runnerduel/internal/testutil"
)

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{
			Host:          "127.0.0.1",
			Port:          0,
			ReadTimeout:   5 * time.Second,
			WriteTimeout:  5 * time.Second,
			MatchInterval: 10 * time.Millisecond,
		},
		Game: config.GameConfig{
			ObstacleCount: 3,
			ObstacleStart: 1200,
			OffsetMin:     500,
			OffsetMax:     800,
		},
	}
}

// startTestServer runs a full server on an ephemeral TCP port.
func startTestServer(t *testing.T) (*Server, *testutil.FakeStore, string) {
	t.Helper()

	cfg := testConfig()
	store := testutil.NewFakeStore()
	logger := zaptest.NewLogger(t)

	srv := NewServer(cfg, store, logger)
	acceptor := tcp.NewAcceptor(cfg.Server, srv, logger)

	go func() {
		if err := acceptor.ListenAndServe(); err != nil {
			t.Errorf("acceptor: %v", err)
		}
	}()
	go func() {
		_ = srv.RunMatchLoop()
	}()

	t.Cleanup(func() {
		srv.Stop()
		acceptor.Stop()
	})

	require.Eventually(t, func() bool { return acceptor.Addr() != "" },
		2*time.Second, 10*time.Millisecond, "listener never came up")
	return srv, store, acceptor.Addr()
}

// joinMatch takes a connected client through nickname setup and into the
// queue, asserting each acknowledgement on the way.
func joinMatch(t *testing.T, c *testutil.GameClient, nickname string) {
	t.Helper()
	c.Send(protocol.KindSetNickname, nickname)
	c.ExpectFrame(protocol.KindNicknameAccepted, 2*time.Second)
	c.Send(protocol.KindJoinQueue, "")
	c.ExpectFrame(protocol.KindWaitingForMatch, 2*time.Second)
}

func TestFullMatchOverTCP(t *testing.T) {
	srv, store, addr := startTestServer(t)

	c1 := testutil.NewGameClient(t, addr)
	c2 := testutil.NewGameClient(t, addr)
	joinMatch(t, c1, "alice")
	joinMatch(t, c2, "bob")

	c1.ExpectFrame(protocol.KindMatchFound, 2*time.Second)
	c2.ExpectFrame(protocol.KindMatchFound, 2*time.Second)

	start1 := c1.ExpectFrame(protocol.KindGameStart, 2*time.Second)
	start2 := c2.ExpectFrame(protocol.KindGameStart, 2*time.Second)
	assert.Equal(t, start1.Payload, start2.Payload, "both players must get the same map")

	m, err := protocol.ParseObstacleMap(start1.Payload)
	require.NoError(t, err)
	require.Len(t, m, 3)
	for i, o := range m {
		assert.Equal(t, 1200, o.Start)
		assert.Equal(t, i, o.Index)
		assert.GreaterOrEqual(t, o.Offset, 500)
		assert.Less(t, o.Offset, 800)
	}

	// Positions relay verbatim in both directions.
	c1.Send(protocol.KindPlayerPosition, "200,15,false")
	pos := c2.ExpectFrame(protocol.KindOpponentPosition, 2*time.Second)
	assert.Equal(t, "200,15,false", pos.Payload)

	c2.Send(protocol.KindPlayerPosition, "100,40,true")
	pos = c1.ExpectFrame(protocol.KindOpponentPosition, 2*time.Second)
	assert.Equal(t, "100,40,true", pos.Payload)

	// Death ends the match for both players.
	c1.Send(protocol.KindPlayerDied, "17")
	died := c2.ExpectFrame(protocol.KindOpponentDied, 2*time.Second)
	assert.Equal(t, "17", died.Payload)
	result2 := c2.ExpectFrame(protocol.KindGameResult, 2*time.Second)
	assert.Equal(t, "true,40,17", result2.Payload)
	result1 := c1.ExpectFrame(protocol.KindGameResult, 2*time.Second)
	assert.Equal(t, "false,17,40", result1.Payload)

	require.Eventually(t, func() bool { return len(store.Results()) == 1 },
		2*time.Second, 10*time.Millisecond)
	saved := store.Results()[0]
	assert.Equal(t, 17, saved.Score1)
	assert.Equal(t, 40, saved.Score2)

	require.Eventually(t, func() bool { return srv.RoomCount() == 0 },
		2*time.Second, 10*time.Millisecond)

	// Both players can run it back without reconnecting.
	c1.Send(protocol.KindRequestRematch, "")
	c1.ExpectFrame(protocol.KindWaitingForMatch, 2*time.Second)
	c2.Send(protocol.KindRequestRematch, "")
	c2.ExpectFrame(protocol.KindWaitingForMatch, 2*time.Second)

	c1.ExpectFrame(protocol.KindMatchFound, 2*time.Second)
	c2.ExpectFrame(protocol.KindMatchFound, 2*time.Second)
	restart1 := c1.ExpectFrame(protocol.KindGameStart, 2*time.Second)
	restart2 := c2.ExpectFrame(protocol.KindGameStart, 2*time.Second)
	assert.Equal(t, restart1.Payload, restart2.Payload)
}

func TestDuplicateNicknameOverTCP(t *testing.T) {
	_, _, addr := startTestServer(t)

	c1 := testutil.NewGameClient(t, addr)
	c1.Send(protocol.KindSetNickname, "alice")
	c1.ExpectFrame(protocol.KindNicknameAccepted, 2*time.Second)

	c2 := testutil.NewGameClient(t, addr)
	c2.Send(protocol.KindSetNickname, "alice")
	c2.ExpectFrame(protocol.KindNicknameDuplicate, 2*time.Second)

	// The name frees up when its holder leaves; the server tears the old
	// session down asynchronously, so retry until the claim succeeds.
	c1.Close()
	deadline := time.Now().Add(3 * time.Second)
	for {
		c2.Send(protocol.KindSetNickname, "alice")
		msg := c2.ReadFrame(2 * time.Second)
		if msg.Kind == protocol.KindNicknameAccepted {
			break
		}
		require.Equal(t, protocol.KindNicknameDuplicate, msg.Kind)
		require.True(t, time.Now().Before(deadline), "name never released")
		time.Sleep(20 * time.Millisecond)
	}
}

func TestDisconnectMidMatchOverTCP(t *testing.T) {
	srv, store, addr := startTestServer(t)

	c1 := testutil.NewGameClient(t, addr)
	c2 := testutil.NewGameClient(t, addr)
	joinMatch(t, c1, "alice")
	joinMatch(t, c2, "bob")

	c1.ExpectFrame(protocol.KindMatchFound, 2*time.Second)
	c2.ExpectFrame(protocol.KindMatchFound, 2*time.Second)
	c1.ExpectFrame(protocol.KindGameStart, 2*time.Second)
	c2.ExpectFrame(protocol.KindGameStart, 2*time.Second)

	c1.Close()

	errMsg := c2.ExpectFrame(protocol.KindConnectionError, 2*time.Second)
	assert.Equal(t, "opponent disconnected", errMsg.Payload)
	assert.Empty(t, store.Results(), "an abandoned match is not scored")

	require.Eventually(t, func() bool { return srv.RoomCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestMalformedFrameDropped(t *testing.T) {
	_, _, addr := startTestServer(t)

	c := testutil.NewGameClient(t, addr)

	// A well-framed but unparseable body is dropped; the connection must
	// survive and keep serving.
	c.SendRaw([]byte{0, 7, 'g', 'a', 'r', 'b', 'a', 'g', 'e'})
	c.Send(protocol.KindSetNickname, "alice")
	c.ExpectFrame(protocol.KindNicknameAccepted, 2*time.Second)
}

func TestQueueDepthReflectsWaiters(t *testing.T) {
	srv, _, addr := startTestServer(t)

	c := testutil.NewGameClient(t, addr)
	joinMatch(t, c, "solo")

	require.Eventually(t, func() bool { return srv.QueueDepth() == 1 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, srv.RoomCount())
}

func TestNicknameRegistry(t *testing.T) {
	r := newNicknameRegistry()

	assert.True(t, r.Claim("alice"))
	assert.False(t, r.Claim("alice"))
	assert.True(t, r.Claim("bob"))

	r.Release("alice")
	assert.True(t, r.Claim("alice"))

	// Releasing an unclaimed name is harmless.
	r.Release("nobody")
}
