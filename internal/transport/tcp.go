package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"tlscat/util"
)

// DefaultKeepAlive is the keep-alive probe period applied to TCP
// sockets.
const DefaultKeepAlive = 30 * time.Second

// TCPDialer establishes TCP connections, optionally binding to a
// specific source port, and applies the socket options used for TLS
// traffic: Nagle disabled and keep-alive enabled.  Option failures are
// logged and never abort the connection.
type TCPDialer struct {
	Timeout   time.Duration
	LocalPort int           // optional source-port binding (0 = ephemeral)
	KeepAlive time.Duration // keep-alive period (0 = DefaultKeepAlive)
	Logger    *util.Logger  // optional
}

// Dial connects to address over TCP.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout, KeepAlive: -1}

	if d.LocalPort > 0 {
		local := fmt.Sprintf(":%d", d.LocalPort)
		a, err := net.ResolveTCPAddr(network, local)
		if err != nil {
			return nil, fmt.Errorf("resolve local addr: %w", err)
		}
		dialer.LocalAddr = a
	}

	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		for _, optErr := range d.applyOptions(tc) {
			if d.Logger != nil {
				d.Logger.Debug("socket option on %s: %v", address, optErr)
			}
		}
	}
	return conn, nil
}

// applyOptions sets TCP_NODELAY and SO_KEEPALIVE, returning every
// option that could not be applied.
func (d *TCPDialer) applyOptions(tc *net.TCPConn) []error {
	period := d.KeepAlive
	if period <= 0 {
		period = DefaultKeepAlive
	}

	var errs []error
	if err := tc.SetNoDelay(true); err != nil {
		errs = append(errs, fmt.Errorf("TCP_NODELAY: %w", err))
	}
	if err := tc.SetKeepAlive(true); err != nil {
		errs = append(errs, fmt.Errorf("SO_KEEPALIVE: %w", err))
	} else if err := tc.SetKeepAlivePeriod(period); err != nil {
		errs = append(errs, fmt.Errorf("keep-alive period: %w", err))
	}
	return errs
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }
