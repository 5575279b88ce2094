package core

import (
	"context"
	"fmt"
	"io"
	"os"

	"tlscat/internal/capability"
	"tlscat/internal/metrics"
	"tlscat/internal/session"
	"tlscat/internal/transport"
	"tlscat/tlsclient"
	"tlscat/util"
)

// ConnectMode opens a TLS connection to a server and runs a capability
// on the resulting stream.
type ConnectMode struct {
	Dialer      transport.Dialer
	Capability  capability.Capability
	Address     string
	Credentials tlsclient.Credentials
	Options     tlsclient.Options // Dialer, Logger and Metrics are set by Run
	Metrics     *metrics.Collector
	MetricsAddr string // serve /metrics here while running ("" = off)
	Logger      *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *ConnectMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ConnectMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run connects, hands the stream to the capability and stops the
// connection when the capability returns.  The transport is closed
// when Run returns.
func (m *ConnectMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	if m.MetricsAddr != "" {
		srv, err := StartMetricsServer(m.MetricsAddr, m.Metrics, m.Logger)
		if err != nil {
			return err
		}
		defer srv.Shutdown()
	}

	opts := m.Options
	opts.Dialer = m.Dialer
	opts.Logger = m.Logger
	opts.Metrics = m.Metrics

	conn := tlsclient.New(opts)
	defer conn.Stop()

	m.Logger.Verbose("connecting to %s", m.Address)
	if err := conn.Connect(ctx, m.Address, m.Credentials); err != nil {
		return fmt.Errorf("connect to %s: %w", m.Address, err)
	}
	m.Logger.Verbose("connected to %s", conn.RemoteAddr())

	sess := session.New(tlsclient.NewStream(conn), m.stdin(), m.stdout(), m.Logger)
	err := m.Capability.Handle(ctx, sess)

	m.Logger.Debug("stats: %s", m.Metrics.JSON())
	return err
}
