package tlsclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ncerr "tlscat/internal/errors"
)

// fakeSession is a scripted engine.  Handshake steps would-block
// blockSteps times before completing, reads drain in and then return
// readErr (ErrWantRead when nil), writes land in out.
type fakeSession struct {
	conn net.Conn

	blockSteps int
	stepErr    error
	steps      int

	in      []byte
	readErr error
	reads   int

	out         bytes.Buffer
	maxWrite    int // bytes accepted per call, 0 = all
	writeBlocks int // would-block results before the first write lands
	writeErr    error
	writeSizes  []int

	closed bool
}

func (f *fakeSession) HandshakeStep(ctx context.Context) error {
	f.steps++
	if f.stepErr != nil {
		return f.stepErr
	}
	if f.steps <= f.blockSteps {
		if f.steps%2 == 0 {
			return ncerr.ErrWantWrite
		}
		return ncerr.ErrWantRead
	}
	return nil
}

func (f *fakeSession) Read(p []byte, _ time.Duration) (int, error) {
	f.reads++
	if len(f.in) > 0 {
		n := copy(p, f.in)
		f.in = f.in[n:]
		return n, nil
	}
	if f.readErr != nil {
		return 0, f.readErr
	}
	return 0, ncerr.ErrWantRead
}

func (f *fakeSession) Write(p []byte, _ time.Duration) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	if f.writeBlocks > 0 {
		f.writeBlocks--
		return 0, ncerr.ErrWantWrite
	}
	n := len(p)
	if f.maxWrite > 0 && n > f.maxWrite {
		n = f.maxWrite
	}
	f.writeSizes = append(f.writeSizes, n)
	f.out.Write(p[:n])
	return n, nil
}

func (f *fakeSession) State() tls.ConnectionState {
	return tls.ConnectionState{Version: tls.VersionTLS13, HandshakeComplete: f.steps > f.blockSteps}
}

func (f *fakeSession) Close() error {
	f.closed = true
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

// pipeDialer hands out one end of a net.Pipe per Dial and keeps the
// other end so tests can observe the socket being closed.
type pipeDialer struct {
	err   error
	dials int
	peers []net.Conn
}

func (d *pipeDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	a, b := net.Pipe()
	d.peers = append(d.peers, b)
	return a, nil
}

func (d *pipeDialer) Close() error { return nil }

// peerClosed reports whether the client end of the i-th pipe was
// closed.
func (d *pipeDialer) peerClosed(t *testing.T, i int) bool {
	t.Helper()
	peer := d.peers[i]
	_ = peer.SetReadDeadline(time.Now().Add(time.Second))
	_, err := peer.Read(make([]byte, 1))
	return err == io.EOF
}

// fakeRig wires a Connection to a fakeSession over a pipeDialer.
type fakeRig struct {
	conn     *Connection
	dialer   *pipeDialer
	sess     *fakeSession
	sessions int
}

func newFakeRig(t *testing.T, sess *fakeSession, opts Options) *fakeRig {
	t.Helper()
	r := &fakeRig{dialer: &pipeDialer{}, sess: sess}
	opts.Dialer = r.dialer
	opts.NewSession = func(conn net.Conn, _ *tls.Config) Session {
		r.sessions++
		r.sess.conn = conn
		return r.sess
	}
	r.conn = New(opts)
	t.Cleanup(func() {
		r.conn.Stop()
		for _, p := range r.dialer.peers {
			p.Close()
		}
	})
	return r
}

func (r *fakeRig) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, r.conn.Connect(context.Background(), "fake:443", Credentials{}))
}
