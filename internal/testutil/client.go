package testutil

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/cory-johannsen/runnerduel/internal/protocol"
)

// GameClient is a length-prefix framed TCP test client for integration
// testing against a running game server.
type GameClient struct {
	conn net.Conn
	dec  *protocol.Decoder
	t    *testing.T
}

// NewGameClient dials the given address and returns a test client.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected GameClient or fails the test.
func NewGameClient(t *testing.T, addr string) *GameClient {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	client := &GameClient{
		conn: conn,
		dec:  protocol.NewDecoder(bufio.NewReader(conn)),
		t:    t,
	}

	t.Logf("game client connected to %s [%s]", addr, time.Since(start))
	return client
}

// Send writes one framed message to the server.
//
// Postcondition: The message is written to the connection, or the test fails.
func (c *GameClient) Send(kind protocol.Kind, payload string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	frame, err := protocol.EncodeFrame(protocol.NewMessage(kind, payload))
	if err != nil {
		c.t.Fatalf("encoding %v frame: %v", kind, err)
	}
	if _, err := c.conn.Write(frame); err != nil {
		c.t.Fatalf("sending %v frame: %v", kind, err)
	}
}

// SendRaw writes raw bytes to the connection, bypassing framing. Used
// to exercise the server's handling of malformed input.
func (c *GameClient) SendRaw(raw []byte) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.conn.Write(raw); err != nil {
		c.t.Fatalf("sending raw bytes: %v", err)
	}
}

// ReadFrame reads one framed message within the timeout.
//
// Postcondition: Returns the decoded message, or fails the test.
func (c *GameClient) ReadFrame(timeout time.Duration) protocol.Message {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))

	msg, err := c.dec.Decode()
	if err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	return msg
}

// ExpectFrame reads one frame and fails the test unless it has the
// given kind. Returns the decoded message for payload assertions.
func (c *GameClient) ExpectFrame(kind protocol.Kind, timeout time.Duration) protocol.Message {
	c.t.Helper()
	msg := c.ReadFrame(timeout)
	if msg.Kind != kind {
		c.t.Fatalf("expected %v frame, got %v with payload %q", kind, msg.Kind, msg.Payload)
	}
	return msg
}

// Close closes the underlying connection.
func (c *GameClient) Close() {
	c.conn.Close()
}
