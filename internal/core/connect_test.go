package core

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tlscat/internal/capability"
	"tlscat/internal/session"
	ncerr "tlscat/internal/errors"
	"tlscat/internal/metrics"
	"tlscat/internal/transport"
	"tlscat/tlsclient"
	"tlscat/util"
)

// TestConnectMode_TLS verifies end-to-end connect mode with Relay.
func TestConnectMode_TLS(t *testing.T) {
	srv := newTestServer(t, func(conn net.Conn) {
		conn.Write([]byte("hello from server\n")) //nolint:errcheck
	})

	output := &bytes.Buffer{}
	m := metrics.New()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mode := &ConnectMode{
		Dialer:      &transport.TCPDialer{Timeout: 2 * time.Second},
		Capability:  &capability.Relay{},
		Address:     srv.addr,
		Credentials: tlsclient.Credentials{CACert: srv.certPEM},
		Options:     tlsclient.Options{ServerName: "localhost"},
		Metrics:     m,
		Logger:      util.NewLogger(0),
		Stdin:       bytes.NewReader(nil),
		Stdout:      output,
	}

	require.NoError(t, mode.Run(ctx))
	assert.Equal(t, "hello from server\n", output.String())

	assert.Equal(t, int64(1), m.TotalConnections())
	assert.Equal(t, int64(0), m.ActiveConnections())
	assert.Equal(t, int64(1), m.Handshakes())
	assert.Equal(t, int64(len("hello from server\n")), m.TotalBytesIn())
}

// TestConnectMode_SendData verifies data flows from client to server.
func TestConnectMode_SendData(t *testing.T) {
	const payload = "payload from client"
	received := make(chan string, 1)
	srv := newTestServer(t, func(conn net.Conn) {
		buf := make([]byte, len(payload))
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		received <- string(buf)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mode := &ConnectMode{
		Dialer:     &transport.TCPDialer{Timeout: 2 * time.Second},
		Capability: &capability.Relay{},
		Address:    srv.addr,
		Logger:     util.NewLogger(0),
		Stdin:      bytes.NewBufferString(payload),
		Stdout:     io.Discard,
	}

	require.NoError(t, mode.Run(ctx))

	select {
	case got := <-received:
		assert.Equal(t, payload, got)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for data")
	}
}

// TestConnectMode_UntrustedServer verifies that a server outside the
// CA chain is refused before the capability runs.
func TestConnectMode_UntrustedServer(t *testing.T) {
	other := newTestServer(t, func(net.Conn) {})
	srv := newTestServer(t, func(net.Conn) {})

	ran := false
	mode := &ConnectMode{
		Dialer:      &transport.TCPDialer{Timeout: 2 * time.Second},
		Capability:  capabilityFunc(func() { ran = true }),
		Address:     srv.addr,
		Credentials: tlsclient.Credentials{CACert: other.certPEM},
		Options:     tlsclient.Options{ServerName: "localhost"},
		Logger:      util.NewLogger(0),
	}

	err := mode.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, ncerr.KindVerification, ncerr.KindOf(err))
	assert.False(t, ran)
}

// TestConnectMode_MetricsAddrInUse verifies a metrics listen failure
// aborts the run before connecting.
func TestConnectMode_MetricsAddrInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	mode := &ConnectMode{
		Dialer:      &transport.TCPDialer{},
		Capability:  &capability.Relay{},
		Address:     "127.0.0.1:1",
		MetricsAddr: ln.Addr().String(),
		Logger:      util.NewLogger(0),
	}
	err = mode.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics listen")
}

// capabilityFunc adapts a plain function to capability.Capability.
type capabilityFunc func()

func (f capabilityFunc) Handle(context.Context, *session.Session) error {
	f()
	return nil
}
