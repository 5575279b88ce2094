package core

import (
	"fmt"
	"os/user"

	"tlscat/config"
	"tlscat/internal/capability"
	"tlscat/internal/metrics"
	"tlscat/internal/transport"
	"tlscat/tlsclient"
	"tlscat/util"
)

// Build constructs the Mode for cfg.  cfg must already be validated.
// Credential files are read here so that a missing file is reported
// before any network activity.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	creds, err := tlsclient.LoadCredentials(cfg.CAFile, cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}

	return &ConnectMode{
		Dialer:      buildDialer(cfg, logger),
		Capability:  buildCapability(cfg),
		Address:     cfg.Address(),
		Credentials: creds,
		Options:     buildOptions(cfg),
		Metrics:     metrics.New(),
		MetricsAddr: cfg.MetricsAddr,
		Logger:      logger,
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// buildOptions maps the config onto TLS connection options.
func buildOptions(cfg *config.Config) tlsclient.Options {
	serverName := cfg.ServerName
	if serverName == "" {
		serverName = cfg.Host
	}
	return tlsclient.Options{
		Personalization:        cfg.Personalization,
		ServerName:             serverName,
		ConnectTimeout:         cfg.Timeout,
		HandshakeTimeout:       cfg.Timeout,
		ReadTimeout:            cfg.IOTimeout,
		WriteTimeout:           cfg.IOTimeout,
		MaxHandshakeSteps:      cfg.MaxHandshakeSteps,
		ReportVerifyFailure:    cfg.ReportVerifyFailure,
		AllowPartialClientAuth: cfg.AllowPartialClientAuth,
	}
}

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.JumpEnabled {
		return transport.NewJumpDialer(cfg.JumpConfig(), logger.With("jump"))
	}
	return &transport.TCPDialer{
		Timeout:   cfg.Timeout,
		LocalPort: cfg.LocalPort,
		Logger:    logger,
	}
}

// buildCapability selects the per-connection behaviour.
func buildCapability(cfg *config.Config) capability.Capability {
	if cfg.Execute != "" || cfg.Command != "" {
		return &capability.Exec{
			Program: cfg.Execute,
			Command: cfg.Command,
		}
	}
	return &capability.Relay{}
}

// CurrentUser returns the login name used for a jump host spec without
// a user part.
func CurrentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}
