// Package config defines the runtime configuration for tlscat: where
// to connect, which credentials to present, and how to reach the
// server (directly or through an SSH jump host).
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	ncerr "tlscat/internal/errors"
	"tlscat/tunnel"
)

// Config holds every tuneable for a single tlscat run.  The yaml tags
// name the keys accepted in a --config file.
type Config struct {
	// ── Connection ───────────────────────────────────────────────────
	Host      string        `yaml:"host"`
	Port      int           `yaml:"port"`
	LocalPort int           `yaml:"local_port"` // -p: local bind port
	NoDNS     bool          `yaml:"no_dns"`
	Timeout   time.Duration `yaml:"timeout"`    // dial + handshake
	IOTimeout time.Duration `yaml:"io_timeout"` // each send / receive

	// ── TLS ──────────────────────────────────────────────────────────
	CAFile                 string `yaml:"ca_file"`
	CertFile               string `yaml:"cert_file"`
	KeyFile                string `yaml:"key_file"`
	ServerName             string `yaml:"server_name"`
	Personalization        string `yaml:"personalization"`
	ReportVerifyFailure    bool   `yaml:"report_verify_failure"`
	AllowPartialClientAuth bool   `yaml:"allow_partial_client_auth"`
	MaxHandshakeSteps      int    `yaml:"max_handshake_steps"`

	// ── SSH jump host ────────────────────────────────────────────────
	JumpSpec          string `yaml:"jump"` // raw [user@]host[:port] from -J
	JumpEnabled       bool   `yaml:"-"`
	JumpUser          string `yaml:"-"`
	JumpHost          string `yaml:"-"`
	JumpPort          int    `yaml:"-"`
	SSHKeyPath        string `yaml:"jump_key"`
	SSHPassword       bool   `yaml:"-"` // true → prompt interactively
	UseSSHAgent       bool   `yaml:"jump_agent"`
	StrictHostKey     bool   `yaml:"jump_strict_hostkey"`
	KnownHostsPath    string `yaml:"jump_known_hosts"`
	KeepAliveInterval int    `yaml:"jump_keepalive"` // seconds, 0 = off
	JumpAttempts      int    `yaml:"jump_attempts"`

	// ── Execution ────────────────────────────────────────────────────
	Execute string `yaml:"exec"`    // -e: program path
	Command string `yaml:"command"` // -c: shell command

	// ── Output ───────────────────────────────────────────────────────
	Verbose     int    `yaml:"verbose"`
	MetricsAddr string `yaml:"metrics_addr"`
	ConfigFile  string `yaml:"-"`
}

// Address returns host:port of the TLS server.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// checkNumericHost rejects anything but an IP literal when -n is set.
func checkNumericHost(host string, noDNS bool) error {
	if noDNS && net.ParseIP(host) == nil {
		return fmt.Errorf("cannot parse %q as an IP address (DNS disabled with -n)", host)
	}
	return nil
}

// ── Port parsing ─────────────────────────────────────────────────────

// ParsePort accepts a number or a TCP service name such as "https".
func ParsePort(spec string) (int, error) {
	port, err := strconv.Atoi(spec)
	if err != nil {
		port, err = net.LookupPort("tcp", spec)
		if err != nil {
			return 0, fmt.Errorf("invalid port %q", spec)
		}
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return port, nil
}

// ── Jump host ────────────────────────────────────────────────────────

// ResolveJump parses JumpSpec into the Jump* fields.  defUser is used
// when JumpSpec has no user part.
func (c *Config) ResolveJump(defUser string) error {
	if c.JumpSpec == "" {
		c.JumpEnabled = false
		return nil
	}
	jc, err := tunnel.ParseJump(c.JumpSpec, defUser)
	if err != nil {
		return &ncerr.ConfigError{
			Field:   "jump",
			Value:   c.JumpSpec,
			Message: err.Error(),
			Hint:    "expected [user@]host[:port], e.g. -J ops@bastion:2222",
		}
	}
	c.JumpEnabled = true
	c.JumpUser, c.JumpHost, c.JumpPort = jc.User, jc.Host, jc.Port
	return nil
}

// JumpConfig returns the tunnel settings for the jump host.
func (c *Config) JumpConfig() *tunnel.JumpConfig {
	return &tunnel.JumpConfig{
		User:          c.JumpUser,
		Host:          c.JumpHost,
		Port:          c.JumpPort,
		KeyPath:       c.SSHKeyPath,
		PromptPass:    c.SSHPassword,
		UseAgent:      c.UseSSHAgent,
		StrictHostKey: c.StrictHostKey,
		KnownHosts:    c.KnownHostsPath,
		ConnTimeout:   c.Timeout,
		KeepAlive:     time.Duration(c.KeepAliveInterval) * time.Second,
		Attempts:      c.JumpAttempts,
	}
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Every failure is a *errors.ConfigError carrying a hint.
func (c *Config) Validate() error {
	if c.Host == "" {
		return &ncerr.ConfigError{
			Field:   "host",
			Message: "hostname is required",
			Hint:    "usage: tlscat [flags] <host> [port]",
		}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &ncerr.ConfigError{
			Field:   "port",
			Value:   c.Port,
			Message: "port out of range 1-65535",
		}
	}
	if err := checkNumericHost(c.Host, c.NoDNS); err != nil {
		return &ncerr.ConfigError{
			Field:   "no-dns",
			Value:   c.Host,
			Message: err.Error(),
			Hint:    "drop -n or pass a numeric address",
		}
	}
	if c.Timeout < 0 || c.IOTimeout < 0 {
		return &ncerr.ConfigError{
			Field:   "timeout",
			Message: "timeouts must not be negative",
		}
	}
	if c.MaxHandshakeSteps < 0 {
		return &ncerr.ConfigError{
			Field:   "max-handshake-steps",
			Value:   c.MaxHandshakeSteps,
			Message: "must not be negative",
			Hint:    "0 leaves the handshake bounded by --timeout only",
		}
	}
	if (c.CertFile == "") != (c.KeyFile == "") && !c.AllowPartialClientAuth {
		field := "cert"
		if c.CertFile == "" {
			field = "key"
		}
		return &ncerr.ConfigError{
			Field:   field,
			Message: "client certificate and key must be given together",
			Hint:    "pass both --cert and --key, or --allow-partial-client-auth to connect without client auth",
		}
	}
	if c.Execute != "" && c.Command != "" {
		return &ncerr.ConfigError{
			Field:   "exec",
			Value:   c.Execute,
			Message: "-e and -c are mutually exclusive",
		}
	}
	if c.JumpEnabled && c.JumpHost == "" {
		return &ncerr.ConfigError{Field: "jump", Message: "jump host is required"}
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			return &ncerr.ConfigError{
				Field:   "metrics-addr",
				Value:   c.MetricsAddr,
				Message: err.Error(),
				Hint:    "use host:port, e.g. 127.0.0.1:9464",
			}
		}
	}
	return nil
}
