// Package tlsclient implements a blocking TLS client: a Connection
// that owns one transport conn, its TLS session and DRBG, and a Stream
// that exposes the decrypted byte stream with a one-byte lookahead.
//
// A Connection is driven by one goroutine.  The only exception is the
// relay pattern where one goroutine reads while another writes and a
// third may Interrupt; crypto/tls permits that split.
package tlsclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"tlscat/internal/drbg"
	ncerr "tlscat/internal/errors"
	"tlscat/util"
)

// Connection is one TLS client connection.  The zero value is not
// usable; create with New.  After Stop a Connection may Connect again.
type Connection struct {
	opts Options
	log  *util.Logger

	id     string
	addr   string
	conn   net.Conn // nil while unconnected
	sess   Session
	rng    *drbg.DRBG
	roots  *x509.CertPool
	client *tls.Certificate
	verify VerifyResult

	connected atomic.Bool // cleared on read/write failure

	peekByte byte
	peeked   bool
}

// New returns an unconnected Connection.
func New(opts Options) *Connection {
	opts = opts.withDefaults()
	return &Connection{opts: opts, log: opts.Logger}
}

// ── Accessors ────────────────────────────────────────────────────────

// ID returns the identifier of the current connection, or "" when
// unconnected.  Log lines of the connection carry its first 8 chars.
func (c *Connection) ID() string { return c.id }

// Connected reports whether the handle is open and no read or write
// has failed since the handshake.
func (c *Connection) Connected() bool { return c.conn != nil && c.connected.Load() }

// VerifyResult reports the peer verification outcome of the current
// connection.
func (c *Connection) VerifyResult() VerifyResult { return c.verify }

// State returns the negotiated TLS parameters.  Zero when unconnected.
func (c *Connection) State() tls.ConnectionState {
	if c.sess == nil {
		return tls.ConnectionState{}
	}
	return c.sess.State()
}

// RemoteAddr returns the peer address of the transport, or nil.
func (c *Connection) RemoteAddr() net.Addr {
	if c.conn == nil {
		return nil
	}
	return c.conn.RemoteAddr()
}

// ── Connect ──────────────────────────────────────────────────────────

// pending holds what Connect has acquired so far.  Nothing is assigned
// to the Connection until every step succeeded.
type pending struct {
	conn net.Conn
	sess Session
	rng  *drbg.DRBG
}

func (p *pending) release() {
	if p.sess != nil {
		_ = p.sess.Close()
	} else if p.conn != nil {
		_ = p.conn.Close()
	}
	p.rng.Free()
}

// Connect dials addr, seeds a fresh DRBG, loads creds and completes a
// TLS handshake.  ctx bounds the dial and the handshake.  A connected
// Connection is stopped first.  On error nothing stays allocated and
// the Connection is unconnected.
func (c *Connection) Connect(ctx context.Context, addr string, creds Credentials) (err error) {
	if c.conn != nil {
		c.Stop()
	}

	id := uuid.NewString()
	log := c.opts.Logger.With("conn " + id[:8])
	m := c.opts.Metrics

	var p pending
	defer func() {
		if err != nil {
			p.release()
			m.RecordError(err.Error())
		}
	}()

	// Socket.
	p.conn, err = c.opts.Dialer.Dial(ctx, "tcp", addr)
	if err != nil {
		log.Debug("dial %s: %v", addr, err)
		return ncerr.WrapTLS(dialErrorKind(err), addr, err)
	}
	log.Debug("socket open %s -> %s", p.conn.LocalAddr(), p.conn.RemoteAddr())

	// Entropy.
	p.rng, err = drbg.New(c.opts.Entropy, c.opts.Personalization)
	if err != nil {
		return ncerr.WrapTLS(ncerr.KindRNGSeed, addr, err)
	}
	log.Debug("drbg seeded (personalization %q)", c.opts.Personalization)

	// Trust anchors.
	mode := VerifyNone
	var roots *x509.CertPool
	if creds.HasCA() {
		cas, perr := parseCertificates(creds.CACert)
		if perr != nil {
			return ncerr.WrapTLS(ncerr.KindCertParse, addr, perr)
		}
		roots = x509.NewCertPool()
		for _, ca := range cas {
			roots.AddCert(ca)
		}
		mode = VerifyRequired
		log.Verbose("loaded %d CA certificate(s)", len(cas))
	} else {
		log.Warn("no CA chain: server certificate will not be verified")
	}

	// Client authentication.
	client, err := c.loadClientCert(log, addr, creds)
	if err != nil {
		return err
	}

	cfg := newTLSConfig(c.opts, p.rng, client)
	p.sess = c.opts.NewSession(p.conn, cfg)

	// Handshake.
	hctx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	defer cancel()
	log.Verbose("handshake with %s", addr)
	start := time.Now()
	steps, err := runHandshake(hctx, p.sess, c.opts.MaxHandshakeSteps, m)
	if err != nil {
		m.HandshakeFailed()
		log.Debug("handshake failed after %d step(s): %v", steps, err)
		return ncerr.WrapTLS(ncerr.KindHandshake, addr, err)
	}
	m.HandshakeCompleted(time.Since(start))
	state := p.sess.State()

	// Peer verification.
	result := VerifyResult{Mode: mode}
	if mode == VerifyRequired {
		result.Err = verifyPeer(state, roots, c.opts.ServerName)
		if result.Err != nil {
			m.VerifyFailed()
			if !c.opts.ReportVerifyFailure {
				log.Error("verification failed: %s", describeVerifyError(result.Err))
				return ncerr.WrapTLS(ncerr.KindVerification, addr, result.Err)
			}
			log.Warn("verification failed: %s (connection kept)", describeVerifyError(result.Err))
		}
	}

	// Publish.
	c.id, c.addr, c.log = id, addr, log
	c.conn, c.sess, c.rng = p.conn, p.sess, p.rng
	c.roots, c.client, c.verify = roots, client, result
	c.peeked = false
	c.connected.Store(true)
	m.ConnectionOpened()

	log.Verbose("connected to %s: %s, %s, peer %s",
		addr, tls.VersionName(state.Version), tls.CipherSuiteName(state.CipherSuite), result)
	return nil
}

// loadClientCert parses the client pair.  Supplying only one half is a
// configuration error unless AllowPartialClientAuth is set.
func (c *Connection) loadClientCert(log *util.Logger, addr string, creds Credentials) (*tls.Certificate, error) {
	hasCert, hasKey := creds.HasClientCert(), creds.HasClientKey()
	switch {
	case !hasCert && !hasKey:
		return nil, nil
	case hasCert != hasKey:
		if c.opts.AllowPartialClientAuth {
			log.Warn("client certificate and key must both be set, skipping client auth")
			return nil, nil
		}
		return nil, ncerr.WrapTLS(ncerr.KindConfig, addr,
			errors.New("client certificate and key must be supplied together"))
	}

	cert, err := clientCertificate(creds.ClientCert, creds.ClientKey)
	if err != nil {
		ce := err.(*credentialError)
		if ce.kind == kindCert {
			return nil, ncerr.WrapTLS(ncerr.KindClientCert, addr, ce.err)
		}
		return nil, ncerr.WrapTLS(ncerr.KindClientKey, addr, ce.err)
	}
	log.Verbose("client certificate loaded: %s", cert.Leaf.Subject)
	return cert, nil
}

// dialErrorKind separates local allocation and addressing failures
// from failures to reach the peer.
func dialErrorKind(err error) ncerr.Kind {
	var (
		addrErr  *net.AddrError
		parseErr *net.ParseError
	)
	switch {
	case errors.As(err, &addrErr), errors.As(err, &parseErr),
		errors.Is(err, syscall.EMFILE), errors.Is(err, syscall.ENFILE),
		errors.Is(err, syscall.ENOBUFS), errors.Is(err, syscall.EAFNOSUPPORT):
		return ncerr.KindSocket
	}
	return ncerr.KindConnect
}

// ── Stop ─────────────────────────────────────────────────────────────

// Stop closes the session and the socket and releases everything
// Connect allocated.  It is idempotent and safe on a Connection that
// never connected.
func (c *Connection) Stop() {
	c.peeked = false
	if c.conn == nil {
		return
	}
	if err := c.sess.Close(); err != nil {
		c.log.Debug("close: %v", err)
	}
	c.rng.Free()
	c.log.Debug("stopped")

	c.conn, c.sess, c.rng = nil, nil, nil
	c.roots, c.client = nil, nil
	c.verify = VerifyResult{}
	c.id, c.addr = "", ""
	c.connected.Store(false)
	c.log = c.opts.Logger
	c.opts.Metrics.ConnectionClosed()
}

// Interrupt closes the transport so that a Send or Receive blocked in
// another goroutine returns.  State is released by a later Stop.
func (c *Connection) Interrupt() error {
	conn := c.conn
	if conn == nil {
		return nil
	}
	c.connected.Store(false)
	return conn.Close()
}

// ── Data path ────────────────────────────────────────────────────────

// Send writes p in chunks of at most Options.ChunkSize bytes.  It
// returns the number of bytes consumed; a short count always comes
// with a KindWrite error.  A failed Send leaves the connection unusable.
func (c *Connection) Send(p []byte) (int, error) {
	if !c.Connected() {
		return 0, ncerr.WrapTLS(ncerr.KindWrite, c.addr, ncerr.ErrNotConnected)
	}
	total := 0
	for total < len(p) {
		end := total + c.opts.ChunkSize
		if end > len(p) {
			end = len(p)
		}
		n, err := c.writeChunk(p[total:end])
		total += n
		if err != nil {
			c.connected.Store(false)
			c.opts.Metrics.BytesSent(int64(total))
			c.log.Debug("write failed after %d byte(s): %v", total, err)
			return total, ncerr.WrapTLS(ncerr.KindWrite, c.addr, err)
		}
	}
	c.opts.Metrics.BytesSent(int64(total))
	return total, nil
}

// writeChunk retries would-block results until the chunk is written or
// the write timeout passes.
func (c *Connection) writeChunk(p []byte) (int, error) {
	deadline := time.Now().Add(c.opts.WriteTimeout)
	written := 0
	for written < len(p) {
		n, err := c.sess.Write(p[written:], time.Until(deadline))
		written += n
		switch {
		case err == nil && n == 0:
			return written, io.ErrShortWrite
		case err == nil:
		case ncerr.IsWouldBlock(err):
			c.opts.Metrics.WouldBlock()
			if !time.Now().Before(deadline) {
				return written, fmt.Errorf("%w: %w", ncerr.ErrTimeout, err)
			}
			time.Sleep(time.Millisecond)
		default:
			return written, err
		}
	}
	return written, nil
}

// Receive reads decrypted bytes into p, waiting at most the read
// timeout.  A clean close by the peer is (0, io.EOF).  Any failure,
// the close included, leaves the connection unusable.
func (c *Connection) Receive(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if !c.Connected() {
		return 0, ncerr.WrapTLS(ncerr.KindRead, c.addr, ncerr.ErrNotConnected)
	}
	n, err := c.sess.Read(p, c.opts.ReadTimeout)
	if n > 0 {
		c.opts.Metrics.BytesReceived(int64(n))
		return n, nil
	}
	if err == nil {
		return 0, nil
	}
	c.connected.Store(false)
	if errors.Is(err, io.EOF) {
		c.log.Debug("peer closed the connection")
		return 0, io.EOF
	}
	if ncerr.IsWouldBlock(err) {
		err = fmt.Errorf("%w: %w", ncerr.ErrTimeout, err)
	}
	c.log.Debug("read failed: %v", err)
	return 0, ncerr.WrapTLS(ncerr.KindRead, c.addr, err)
}

// poll reads into p waiting at most the poll interval.  An empty
// window is ErrWantRead and does not affect the connection.
func (c *Connection) poll(p []byte) (int, error) {
	n, err := c.sess.Read(p, c.opts.PollInterval)
	if n > 0 {
		c.opts.Metrics.BytesReceived(int64(n))
		return n, nil
	}
	if err == nil || ncerr.IsWouldBlock(err) {
		return 0, ncerr.ErrWantRead
	}
	c.connected.Store(false)
	if !errors.Is(err, io.EOF) {
		c.log.Debug("poll failed: %v", err)
	}
	return 0, err
}
