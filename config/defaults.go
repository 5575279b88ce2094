package config

import (
	"time"

	"tlscat/tlsclient"
)

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultPort is used when no port argument is given.
	DefaultPort = 443

	// DefaultConnTimeout bounds the TCP dial and the TLS handshake.
	DefaultConnTimeout = tlsclient.DefaultTimeout

	// DefaultIOTimeout bounds each send and receive.
	DefaultIOTimeout = tlsclient.DefaultTimeout

	// DefaultPersonalization is mixed into the DRBG seed.
	DefaultPersonalization = tlsclient.DefaultPersonalization

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultKeepAliveInterval is the jump host keepalive interval in
	// seconds.
	DefaultKeepAliveInterval = 30

	// DefaultJumpAttempts is how many times the jump host is dialed
	// before giving up.
	DefaultJumpAttempts = 3

	// DefaultShutdownGrace is how long the metrics endpoint waits for
	// in-flight scrapes on exit.
	DefaultShutdownGrace = 2 * time.Second
)

// Default returns a Config populated with every default.
func Default() *Config {
	return &Config{
		Port:              DefaultPort,
		Timeout:           DefaultConnTimeout,
		IOTimeout:         DefaultIOTimeout,
		Personalization:   DefaultPersonalization,
		KeepAliveInterval: DefaultKeepAliveInterval,
		JumpAttempts:      DefaultJumpAttempts,
	}
}
