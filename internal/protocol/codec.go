package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds the body of a single frame. Frames larger than this
// are rejected before any allocation.
const MaxFrameSize = 4096

// lenPrefixSize is the size of the big-endian length prefix on the stream.
const lenPrefixSize = 2

// ErrFrameTooLarge is returned when a frame body exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum size")

// Encoder writes length-prefixed frames to a byte stream.
//
// The underlying transport is a raw stream with no message boundaries, so
// every frame is preceded by a 2-byte big-endian body length. The prefix is
// what lets a Decoder reassemble a frame split across reads and separate
// frames coalesced into one read.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one frame: length prefix followed by the message body.
//
// Precondition: m.Kind must be valid.
// Postcondition: Exactly one complete frame is written, or an error is
// returned and the stream must be considered broken.
func (e *Encoder) Encode(m Message) error {
	frame, err := EncodeFrame(m)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(frame); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Decoder reads length-prefixed frames from a byte stream.
type Decoder struct {
	r io.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode reads exactly one frame from the stream and parses its body.
//
// Transport failures (io.EOF included) are returned as-is and mean the
// connection is gone. A parseable prefix with a malformed body returns a
// *DecodeError; the stream itself remains positioned at the next frame, so
// callers may drop the frame and keep reading.
func (d *Decoder) Decode() (Message, error) {
	var prefix [lenPrefixSize]byte
	if _, err := io.ReadFull(d.r, prefix[:]); err != nil {
		return Message{}, err
	}
	n := int(binary.BigEndian.Uint16(prefix[:]))
	if n == 0 {
		return Message{}, decodeErrorf("zero-length frame")
	}
	if n > MaxFrameSize {
		// The prefix itself is untrusted; a bogus length would desync the
		// stream, so this is fatal rather than a droppable frame.
		return Message{}, ErrFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return Message{}, fmt.Errorf("reading frame body: %w", err)
	}
	return DecodeBody(body)
}

// EncodeFrame serializes one complete frame, prefix included. It is the
// buffer form of Encoder.Encode, used by message-oriented transports and
// tests.
func EncodeFrame(m Message) ([]byte, error) {
	body := EncodeBody(m)
	if len(body) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	frame := make([]byte, lenPrefixSize+len(body))
	binary.BigEndian.PutUint16(frame, uint16(len(body)))
	copy(frame[lenPrefixSize:], body)
	return frame, nil
}

// FrameConn is a connection that carries whole protocol messages. The TCP
// transport implements it with the length-prefixed codec; the WebSocket
// transport maps one message per WebSocket frame. WriteFrame must be safe
// for concurrent use.
type FrameConn interface {
	// ReadFrame blocks until the next complete message arrives. A
	// *DecodeError means the frame was malformed but the connection is
	// still usable; any other error means the connection is gone.
	ReadFrame() (Message, error)
	// WriteFrame sends one message. An error means the connection is gone.
	WriteFrame(Message) error
	// Close releases the connection. Safe to call more than once.
	Close() error
	// RemoteAddr describes the peer for logging.
	RemoteAddr() string
}
