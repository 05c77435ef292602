// Package transport frames and obfuscates the byte stream between the
// bank server and its terminal clients. Every message is XOR'd with a
// single key byte the client picks at session start; this is an
// obfuscation layer only, never a security boundary.
package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Control markers, always at the start of a server-to-client message.
const (
	// MarkerClear tells the client to clear its viewport; the rest of
	// the message is the next prompt.
	MarkerClear = "@CLEAR"
	// MarkerPass tells the client the next reply is a credential and
	// must be read without echo.
	MarkerPass = "@PASS"
	// MarkerExit is terminal; the client disconnects after displaying
	// the remainder.
	MarkerExit = "@EXIT"
)

// Frames carry a two-byte length prefix, so this is the hard upper
// bound on a single message.
const MaxFrameSize = 0xFFFF

var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// TransportError wraps any framing or socket failure. It is fatal to
// the session that observed it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Session binds one connection to its negotiated cipher key. Owned
// exclusively by a single handler.
type Session struct {
	conn         net.Conn
	reader       *bufio.Reader
	key          byte
	maxFrame     int
	writeTimeout time.Duration
}

// Open performs the server side of the handshake: the client's first
// frame is sent under key 0 and its first byte becomes the session key
// for everything after.
func Open(conn net.Conn, maxFrame int) (*Session, error) {
	s := &Session{
		conn:     conn,
		reader:   bufio.NewReader(conn),
		key:      0,
		maxFrame: boundedMax(maxFrame),
	}

	first, err := s.readFrame()
	if err != nil {
		return nil, err
	}
	if len(first) == 0 {
		return nil, &TransportError{Op: "handshake", Err: errors.New("empty key frame")}
	}

	s.key = first[0]
	return s, nil
}

// OpenClient performs the client side: send the chosen key byte under
// key 0, then switch to it.
func OpenClient(conn net.Conn, key byte, maxFrame int) (*Session, error) {
	s := &Session{
		conn:     conn,
		reader:   bufio.NewReader(conn),
		key:      0,
		maxFrame: boundedMax(maxFrame),
	}

	if err := s.Send(string([]byte{key})); err != nil {
		return nil, err
	}
	s.key = key
	return s, nil
}

func boundedMax(maxFrame int) int {
	if maxFrame <= 0 || maxFrame > MaxFrameSize {
		return MaxFrameSize
	}
	return maxFrame
}

func (s *Session) Key() byte {
	return s.key
}

func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// SetIdleDeadline bounds how long the next Receive may wait. A zero
// duration clears the deadline.
func (s *Session) SetIdleDeadline(idle time.Duration) error {
	if idle <= 0 {
		return s.conn.SetReadDeadline(time.Time{})
	}
	return s.conn.SetReadDeadline(time.Now().Add(idle))
}

// SetWriteTimeout bounds every subsequent Send. A client that stops
// draining its socket fails the session instead of stalling it. A zero
// duration leaves writes unbounded.
func (s *Session) SetWriteTimeout(timeout time.Duration) {
	s.writeTimeout = timeout
}

func (s *Session) Close() error {
	return s.conn.Close()
}

// Send writes one whole-message-encrypted frame.
func (s *Session) Send(text string) error {
	payload := []byte(text)
	if len(payload) > s.maxFrame {
		return &TransportError{Op: "send", Err: ErrFrameTooLarge}
	}

	frame := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(frame[:2], uint16(len(payload)))
	xorBytes(payload, s.key)
	copy(frame[2:], payload)

	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return &TransportError{Op: "send", Err: err}
		}
	}
	if _, err := s.conn.Write(frame); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// Receive reads one frame and returns its decrypted text.
func (s *Session) Receive() (string, error) {
	payload, err := s.readFrame()
	if err != nil {
		return "", err
	}
	xorBytes(payload, s.key)
	return string(payload), nil
}

func (s *Session) readFrame() ([]byte, error) {
	var header [2]byte
	if _, err := io.ReadFull(s.reader, header[:]); err != nil {
		return nil, &TransportError{Op: "receive", Err: err}
	}

	size := int(binary.BigEndian.Uint16(header[:]))
	if size > s.maxFrame {
		return nil, &TransportError{Op: "receive", Err: ErrFrameTooLarge}
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(s.reader, payload); err != nil {
		return nil, &TransportError{Op: "receive", Err: err}
	}
	return payload, nil
}

func xorBytes(data []byte, key byte) {
	for i := range data {
		data[i] ^= key
	}
}
