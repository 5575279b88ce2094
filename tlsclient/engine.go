package tlsclient

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"os"
	"time"

	ncerr "tlscat/internal/errors"
)

// Session is the TLS engine bound to exactly one transport conn.
//
// HandshakeStep, Read and Write may return ErrWantRead or ErrWantWrite
// when the step made no progress and should be retried; any other
// error is terminal for the session.
type Session interface {
	// HandshakeStep advances the handshake.  nil means complete.
	HandshakeStep(ctx context.Context) error

	// Read returns decrypted bytes, waiting at most timeout.  An
	// expired wait is reported as ErrWantRead and leaves the session
	// usable.  A clean close_notify from the peer is io.EOF.
	Read(p []byte, timeout time.Duration) (int, error)

	// Write encrypts and sends p, waiting at most timeout.
	Write(p []byte, timeout time.Duration) (int, error)

	// State describes the negotiated session.
	State() tls.ConnectionState

	// Close sends close_notify best effort and closes the transport.
	Close() error
}

// stdSession runs crypto/tls over the transport conn.  crypto/tls
// performs the whole handshake in one blocking call, so a step either
// completes or fails; it never asks to be retried.
type stdSession struct {
	conn *tls.Conn
}

func newStdSession(conn net.Conn, cfg *tls.Config) Session {
	return &stdSession{conn: tls.Client(conn, cfg)}
}

func (s *stdSession) HandshakeStep(ctx context.Context) error {
	return s.conn.HandshakeContext(ctx)
}

func (s *stdSession) Read(p []byte, timeout time.Duration) (int, error) {
	if timeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(timeout))
	}
	n, err := s.conn.Read(p)
	if n == 0 && errors.Is(err, os.ErrDeadlineExceeded) {
		// crypto/tls treats read deadlines as temporary; the record
		// layer stays intact.
		return 0, ncerr.ErrWantRead
	}
	return n, err
}

func (s *stdSession) Write(p []byte, timeout time.Duration) (int, error) {
	if timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return s.conn.Write(p)
}

func (s *stdSession) State() tls.ConnectionState { return s.conn.ConnectionState() }

func (s *stdSession) Close() error { return s.conn.Close() }

// newTLSConfig builds the client configuration.  Peer verification is
// skipped inside crypto/tls and performed by the Connection once the
// handshake completes, so a failure can be reported rather than abort.
func newTLSConfig(o Options, rand io.Reader, cert *tls.Certificate) *tls.Config {
	cfg := &tls.Config{
		MinVersion:             tls.VersionTLS12,
		ServerName:             o.ServerName,
		InsecureSkipVerify:     true, //nolint:gosec // verified in verifyPeer
		SessionTicketsDisabled: true,
		Renegotiation:          tls.RenegotiateNever,
		Rand:                   rand,
	}
	if cert != nil {
		cfg.Certificates = []tls.Certificate{*cert}
	}
	return cfg
}
