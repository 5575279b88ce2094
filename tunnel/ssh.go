package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "tlscat/internal/errors"
	"tlscat/internal/retry"
	"tlscat/util"
)

// JumpConfig describes the SSH jump host.
type JumpConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// KeepAlive is the interval between keepalive@openssh.com probes.
	// 0 disables them.
	KeepAlive time.Duration

	// Attempts bounds connection attempts to the jump host (default 1).
	Attempts int
}

// ParseJump parses "[user@]host[:port]" in the style of ssh -J.  The
// user defaults to defUser and the port to 22.
func ParseJump(spec, defUser string) (*JumpConfig, error) {
	cfg := &JumpConfig{User: defUser, Port: 22}
	if spec == "" {
		return nil, fmt.Errorf("empty jump host")
	}
	if at := strings.LastIndex(spec, "@"); at >= 0 {
		cfg.User, spec = spec[:at], spec[at+1:]
	}
	host := spec
	if h, p, err := net.SplitHostPort(spec); err == nil {
		port, perr := strconv.Atoi(p)
		if perr != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid jump port %q", p)
		}
		host, cfg.Port = h, port
	}
	if host == "" {
		return nil, fmt.Errorf("jump host missing in %q", spec)
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("jump user missing in %q", spec)
	}
	cfg.Host = host
	return cfg, nil
}

// Addr returns host:port of the jump host.
func (c *JumpConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// JumpHost implements [Tunnel] over one SSH client connection.
type JumpHost struct {
	config *JumpConfig
	logger *util.Logger

	mu     sync.RWMutex
	client *ssh.Client
	alive  bool
	stop   chan struct{}
}

// NewJumpHost returns a JumpHost that is ready to [JumpHost.Connect].
func NewJumpHost(cfg *JumpConfig, logger *util.Logger) *JumpHost {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	return &JumpHost{config: cfg, logger: logger}
}

// Connect dials the jump host and authenticates.  Transient network
// failures are retried up to Attempts times.
func (j *JumpHost) Connect(ctx context.Context) error {
	auth, err := BuildAuthMethods(j.config)
	if err != nil {
		return ncerr.WrapSSH("auth", j.config.Host, j.config.Port, err)
	}
	hostKey, err := hostKeyCallback(j.config)
	if err != nil {
		return ncerr.WrapSSH("hostkey", j.config.Host, j.config.Port, err)
	}
	clientCfg := &ssh.ClientConfig{
		User:            j.config.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         j.config.ConnTimeout,
	}

	backoff := retry.DefaultBackoff()
	backoff.MaxAttempts = j.config.Attempts
	backoff.OnRetry = func(attempt int, err error, wait time.Duration) {
		j.logger.Verbose("jump host attempt %d failed: %v (retry in %s)", attempt, err, wait.Round(time.Millisecond))
	}
	var client *ssh.Client
	err = backoff.Do(ctx, func(attempt int) error {
		c, err := j.dial(ctx, clientCfg)
		if err != nil {
			if !ncerr.IsRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return err
	}

	j.mu.Lock()
	j.client = client
	j.alive = true
	j.stop = make(chan struct{})
	j.mu.Unlock()

	go j.monitor(client)
	if j.config.KeepAlive > 0 {
		go j.keepAlive(client, j.stop)
	}
	return nil
}

func (j *JumpHost) dial(ctx context.Context, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	addr := j.config.Addr()
	j.logger.Debug("SSH: dialing %s as %s", addr, j.config.User)

	dialer := net.Dialer{Timeout: j.config.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ncerr.NetworkError{Op: "dial", Addr: addr, Err: err, Retryable: ncerr.IsRetryable(err) || ncerr.IsTimeout(err)}
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, cfg)
	if err != nil {
		tcpConn.Close()
		op := "handshake"
		switch {
		case errors.Is(err, ncerr.ErrHostKeyMismatch):
			op = "hostkey"
		case strings.Contains(err.Error(), "unable to authenticate"):
			op, err = "auth", fmt.Errorf("%w: %w", ncerr.ErrAuthFailed, err)
		}
		return nil, ncerr.WrapSSH(op, j.config.Host, j.config.Port, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// Dial opens a direct-tcpip channel to address.  The returned conn
// supports deadlines.
func (j *JumpHost) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	j.mu.RLock()
	client, alive := j.client, j.alive
	j.mu.RUnlock()

	if !alive || client == nil {
		return nil, ncerr.ErrTunnelClosed
	}

	j.logger.Debug("tunnel: dialing %s %s", network, address)
	ch, err := client.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("tunnel dial %s: %w", address, err)
	}
	return withDeadlines(ch), nil
}

// Close shuts down the SSH connection.
func (j *JumpHost) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.alive = false
	if j.stop != nil {
		close(j.stop)
		j.stop = nil
	}
	if j.client != nil {
		err := j.client.Close()
		j.client = nil
		return err
	}
	return nil
}

// IsAlive reports whether the jump host connection is still up.
func (j *JumpHost) IsAlive() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.alive
}

// monitor blocks until the SSH connection closes and flips the alive flag.
func (j *JumpHost) monitor(client *ssh.Client) {
	err := client.Wait()

	j.mu.Lock()
	if j.client == client {
		j.alive = false
	}
	j.mu.Unlock()

	if err != nil {
		j.logger.Debug("SSH jump host closed: %v", err)
	} else {
		j.logger.Debug("SSH jump host closed")
	}
}

// keepAlive probes the server until stop is closed or a probe fails.
func (j *JumpHost) keepAlive(client *ssh.Client, stop <-chan struct{}) {
	tick := time.NewTicker(j.config.KeepAlive)
	defer tick.Stop()

	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				j.logger.Error("SSH jump host lost: %v", err)
				client.Close()
				return
			}
		}
	}
}
