// Package ws provides a WebSocket transport for the game protocol. The
// WebSocket layer already preserves message boundaries, so each WebSocket
// message carries exactly one frame body with no length prefix.
package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cory-johannsen/runnerduel/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	readWait       = 5 * time.Minute
	maxMessageSize = protocol.MaxFrameSize
)

// Conn adapts a gorilla WebSocket connection to protocol.FrameConn.
type Conn struct {
	ws *websocket.Conn

	wmu sync.Mutex
}

// NewConn wraps an upgraded WebSocket connection.
//
// Precondition: ws must be a freshly upgraded, open connection.
func NewConn(wsConn *websocket.Conn) *Conn {
	wsConn.SetReadLimit(maxMessageSize)
	return &Conn{ws: wsConn}
}

// ReadFrame reads the next WebSocket message and parses it as a frame body.
func (c *Conn) ReadFrame() (protocol.Message, error) {
	_ = c.ws.SetReadDeadline(time.Now().Add(readWait))
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return protocol.Message{}, err
	}
	return protocol.DecodeBody(data)
}

// WriteFrame sends one message as a single WebSocket text message. Safe for
// concurrent use.
func (c *Conn) WriteFrame(m protocol.Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, protocol.EncodeBody(m))
}

// Close closes the underlying WebSocket connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}
