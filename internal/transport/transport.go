// Package transport provides abstractions for socket acquisition.
// Transports handle how a byte stream to the remote endpoint is
// obtained (a direct TCP socket or a channel through an SSH jump host),
// independent of the TLS session that runs over it.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound stream connections.  Implementations include a
// plain TCP dialer that tunes socket options and an SSH-tunnelled
// dialer that routes traffic through an encrypted gateway.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}
