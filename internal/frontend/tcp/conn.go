// Package tcp provides the TCP transport for the game protocol: a framed
// connection wrapper and an accept loop.
package tcp

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/cory-johannsen/runnerduel/internal/protocol"
)

// Conn wraps a raw TCP connection with length-prefixed framing, read/write
// deadlines, and a write mutex so room goroutines and the session goroutine
// can send concurrently.
type Conn struct {
	raw net.Conn
	dec *protocol.Decoder

	wmu sync.Mutex
	enc *protocol.Encoder

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewConn wraps raw with the frame codec.
//
// Precondition: raw must be a valid, open network connection.
// Postcondition: Returns a Conn ready for reading and writing.
func NewConn(raw net.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{
		raw:          raw,
		dec:          protocol.NewDecoder(bufio.NewReaderSize(raw, 4096)),
		enc:          protocol.NewEncoder(raw),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// ReadFrame reads the next complete message from the stream.
//
// Postcondition: Returns a message, a *protocol.DecodeError for a malformed
// frame, or a transport error meaning the connection is gone.
func (c *Conn) ReadFrame() (protocol.Message, error) {
	if c.readTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	return c.dec.Decode()
}

// WriteFrame sends one message. Safe for concurrent use.
func (c *Conn) WriteFrame(m protocol.Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.enc.Encode(m)
}

// Close closes the underlying TCP connection.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() string {
	return c.raw.RemoteAddr().String()
}
