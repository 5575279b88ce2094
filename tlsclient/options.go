package tlsclient

import (
	"crypto/tls"
	"io"
	"net"
	"time"

	"tlscat/internal/metrics"
	"tlscat/internal/transport"
	"tlscat/util"
)

// Defaults applied by [Options] when a field is left zero.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultPollInterval    = 10 * time.Millisecond
	DefaultChunkSize       = 16 * 1024 // TLS maximum plaintext record
	DefaultPersonalization = "tlscat-tls"
)

// SessionFactory binds a new TLS session to an open transport conn.
type SessionFactory func(conn net.Conn, cfg *tls.Config) Session

// Options tunes a [Connection].  The zero value is usable: every zero
// field falls back to the matching Default constant.
type Options struct {
	// Dialer acquires the transport conn.  Defaults to a TCPDialer
	// bounded by ConnectTimeout.
	Dialer transport.Dialer

	Logger  *util.Logger       // optional, silent when nil
	Metrics *metrics.Collector // optional, nil-safe

	// Entropy seeds the DRBG.  Defaults to crypto/rand.Reader.
	Entropy io.Reader
	// Personalization is mixed into the DRBG seed.
	Personalization string

	// ServerName enables SNI and the hostname check during peer
	// verification.  Empty skips both.
	ServerName string

	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration

	// PollInterval is the read window used by Stream.HasData.
	PollInterval time.Duration

	// MaxHandshakeSteps bounds would-block retries during the
	// handshake.  0 leaves only HandshakeTimeout.
	MaxHandshakeSteps int

	// ChunkSize caps the plaintext handed to the session per write.
	ChunkSize int

	// ReportVerifyFailure keeps a connection whose peer certificate
	// failed verification open and reports the failure through
	// Connection.VerifyResult instead of failing Connect.
	ReportVerifyFailure bool

	// AllowPartialClientAuth lets Connect proceed without client
	// authentication when only one of certificate and key is given.
	AllowPartialClientAuth bool

	// NewSession replaces the crypto/tls engine.
	NewSession SessionFactory
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultTimeout
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ChunkSize <= 0 || o.ChunkSize > DefaultChunkSize {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Personalization == "" {
		o.Personalization = DefaultPersonalization
	}
	if o.Logger == nil {
		o.Logger = util.NewLogger(0)
		o.Logger.SetOutput(io.Discard)
	}
	if o.Dialer == nil {
		o.Dialer = &transport.TCPDialer{Timeout: o.ConnectTimeout, Logger: o.Logger}
	}
	if o.NewSession == nil {
		o.NewSession = newStdSession
	}
	return o
}
