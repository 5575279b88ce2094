package tlsclient

import (
	"io"

	ncerr "tlscat/internal/errors"
)

// Stream exposes a Connection as a byte stream with one byte of
// lookahead.  It implements io.Reader, io.ByteReader, io.Writer,
// io.ByteWriter and io.Closer.
type Stream struct {
	c *Connection
}

// NewStream wraps c.
func NewStream(c *Connection) *Stream { return &Stream{c: c} }

// Conn returns the underlying Connection.
func (s *Stream) Conn() *Connection { return s.c }

// HasData reports whether a byte can be read without waiting longer
// than the poll interval.  A byte obtained by the check is kept in the
// peek buffer.
func (s *Stream) HasData() bool {
	c := s.c
	if c.peeked {
		return true
	}
	if !c.Connected() {
		return false
	}
	var b [1]byte
	if n, _ := c.poll(b[:]); n == 1 {
		c.peekByte, c.peeked = b[0], true
		return true
	}
	return false
}

// ReadByte consumes the peeked byte, or reads one.  io.EOF means the
// peer closed or the connection is gone.
func (s *Stream) ReadByte() (byte, error) {
	c := s.c
	if c.peeked {
		c.peeked = false
		return c.peekByte, nil
	}
	if !c.Connected() {
		return 0, io.EOF
	}
	var b [1]byte
	n, err := c.Receive(b[:])
	if n == 1 {
		return b[0], nil
	}
	if err == nil {
		err = io.EOF
	}
	return 0, err
}

// Peek returns the next byte without consuming it.
func (s *Stream) Peek() (byte, error) {
	c := s.c
	if c.peeked {
		return c.peekByte, nil
	}
	b, err := s.ReadByte()
	if err != nil {
		return 0, err
	}
	c.peekByte, c.peeked = b, true
	return b, nil
}

// Read fills p starting with the peeked byte, if any.  After a peeked
// byte the remainder is read only if it arrives within the poll
// interval, so the byte already in hand is never held back; a failure
// at that point is left for the next call.
func (s *Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	c := s.c
	if !c.peeked {
		return c.Receive(p)
	}
	p[0] = c.peekByte
	c.peeked = false
	if len(p) == 1 || !c.Connected() {
		return 1, nil
	}
	n, _ := c.poll(p[1:])
	return 1 + n, nil
}

// Write sends p.  An empty p is an error.
func (s *Stream) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, ncerr.WrapTLS(ncerr.KindWrite, s.c.addr, ncerr.ErrEmptyWrite)
	}
	return s.c.Send(p)
}

// WriteByte sends a single byte.
func (s *Stream) WriteByte(b byte) error {
	_, err := s.c.Send([]byte{b})
	return err
}

// Flush discards every byte that is already available.  Writes are
// not buffered, so there is nothing to push out.
func (s *Stream) Flush() {
	for s.HasData() {
		if _, err := s.ReadByte(); err != nil {
			return
		}
	}
}

// Interrupt unblocks a Read or Write running in another goroutine.
func (s *Stream) Interrupt() error { return s.c.Interrupt() }

// Close stops the connection.
func (s *Stream) Close() error {
	s.c.Stop()
	return nil
}
