// Package tunnel reaches TLS servers through an SSH jump host.  The
// jump host forwards each dial as a direct-tcpip channel; the TLS
// session runs end to end over that channel.
package tunnel

import (
	"context"
	"net"
)

// Tunnel is an established path through which TCP connections can be
// opened.
type Tunnel interface {
	// Connect establishes the tunnel to the gateway.
	Connect(ctx context.Context) error

	// Dial opens a connection to address through the tunnel.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close tears down the tunnel and frees resources.
	Close() error

	// IsAlive reports whether the underlying connection is still up.
	IsAlive() bool
}
