package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"tlscat/tunnel"
	"tlscat/util"
)

// JumpDialer reaches the TLS server through an SSH jump host.  The SSH
// connection is made on the first Dial and reused until Close.
type JumpDialer struct {
	jump   tunnel.Tunnel
	config *tunnel.JumpConfig
	logger *util.Logger

	mu        sync.Mutex
	connected bool
}

// NewJumpDialer returns a dialer for the jump host described by cfg.
func NewJumpDialer(cfg *tunnel.JumpConfig, logger *util.Logger) *JumpDialer {
	return &JumpDialer{
		jump:   tunnel.NewJumpHost(cfg, logger),
		config: cfg,
		logger: logger,
	}
}

func (d *JumpDialer) connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected && d.jump.IsAlive() {
		return nil
	}
	d.logger.Verbose("connecting to jump host %s@%s", d.config.User, d.config.Addr())
	if err := d.jump.Connect(ctx); err != nil {
		return fmt.Errorf("jump host: %w", err)
	}
	d.connected = true
	d.logger.Verbose("jump host ready")
	return nil
}

// Dial opens a channel to address through the jump host.  A jump host
// that dropped since the last Dial is reconnected.
func (d *JumpDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.connect(ctx); err != nil {
		return nil, err
	}
	return d.jump.Dial(ctx, network, address)
}

// Close disconnects from the jump host.
func (d *JumpDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}
	d.connected = false
	return d.jump.Close()
}
