// Package cmd wires up the CLI flags and dispatches to the core layer.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"tlscat/config"
	"tlscat/internal/core"
	"tlscat/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X tlscat/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs tlscat.  Settings are layered as
// defaults, then the --config file, then TLSCAT_* environment
// variables, then flags the user actually passed.
func Execute(ctx context.Context, args []string) error {
	fc := &config.Config{} // flag values, applied selectively below
	fs := flag.NewFlagSet("tlscat", flag.ContinueOnError)

	// ── connection ───────────────────────────────────────────────
	fs.IntVarP(&fc.LocalPort, "port", "p", 0, "Local source port")
	fs.BoolVarP(&fc.NoDNS, "no-dns", "n", false, "Numeric-only, no DNS resolution")

	var timeoutSec, ioTimeoutSec int
	fs.IntVarP(&timeoutSec, "timeout", "w", 0, "Connect and handshake timeout in seconds (default 30)")
	fs.IntVar(&ioTimeoutSec, "io-timeout", 0, "Per send/receive timeout in seconds (default 30)")

	// ── TLS ──────────────────────────────────────────────────────
	fs.StringVar(&fc.CAFile, "ca", "", "PEM file of trusted CA certificates")
	fs.StringVar(&fc.CertFile, "cert", "", "PEM client certificate")
	fs.StringVar(&fc.KeyFile, "key", "", "PEM client private key")
	fs.StringVar(&fc.ServerName, "servername", "", "Name for SNI and certificate check (default: host)")
	fs.StringVar(&fc.Personalization, "personalization", "", "DRBG personalization string")
	fs.BoolVar(&fc.ReportVerifyFailure, "report-verify-failure", false, "Continue when the server certificate fails verification")
	fs.BoolVar(&fc.AllowPartialClientAuth, "allow-partial-client-auth", false, "Connect without client auth when only one of --cert/--key is given")
	fs.IntVar(&fc.MaxHandshakeSteps, "max-handshake-steps", 0, "Bound on handshake retries (0 = timeout only)")

	// ── SSH jump host ────────────────────────────────────────────
	fs.StringVarP(&fc.JumpSpec, "jump", "J", "", "Reach the server via SSH jump host [user@]host[:port]")
	fs.StringVar(&fc.SSHKeyPath, "jump-key", "", "SSH private key file")
	fs.BoolVar(&fc.SSHPassword, "jump-password", false, "Prompt for SSH password")
	fs.BoolVar(&fc.UseSSHAgent, "jump-agent", false, "Use SSH agent")
	fs.BoolVar(&fc.StrictHostKey, "jump-strict", false, "Verify SSH host keys")
	fs.StringVar(&fc.KnownHostsPath, "jump-known-hosts", "", "Custom known_hosts path")
	fs.IntVar(&fc.KeepAliveInterval, "jump-keepalive", 0, "SSH keepalive interval in seconds (default 30, 0 = off)")

	// ── execution ────────────────────────────────────────────────
	fs.StringVarP(&fc.Execute, "exec", "e", "", "Execute program after connect")
	fs.StringVarP(&fc.Command, "command", "c", "", "Execute shell command after connect")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&fc.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.StringVar(&fc.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on host:port")
	fs.StringVar(&fc.ConfigFile, "config", "", "YAML config file")

	var showVersion, showHelp, dryRun bool
	fs.BoolVar(&dryRun, "dry-run", false, "Validate configuration and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("tlscat %s\n", version)
		return nil
	}

	// ── layer sources ────────────────────────────────────────────
	cfg := config.Default()
	cfg.ConfigFile = os.Getenv("TLSCAT_CONFIG")
	if fc.ConfigFile != "" {
		cfg.ConfigFile = fc.ConfigFile
	}
	if cfg.ConfigFile != "" {
		if err := config.LoadFile(cfg.ConfigFile, cfg); err != nil {
			return err
		}
	}
	config.LoadFromEnv(cfg)

	applyFlags(fs, fc, cfg)
	if fs.Changed("timeout") {
		cfg.Timeout = time.Duration(timeoutSec) * time.Second
	}
	if fs.Changed("io-timeout") {
		cfg.IOTimeout = time.Duration(ioTimeoutSec) * time.Second
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── jump spec ────────────────────────────────────────────────
	if err := cfg.ResolveJump(core.CurrentUser()); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	if dryRun {
		printPlan(cfg)
		return nil
	}

	// ── build and run ────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// applyFlags copies every flag the user set from fc onto cfg.
func applyFlags(fs *flag.FlagSet, fc, cfg *config.Config) {
	setters := map[string]func(){
		"port":                      func() { cfg.LocalPort = fc.LocalPort },
		"no-dns":                    func() { cfg.NoDNS = fc.NoDNS },
		"ca":                        func() { cfg.CAFile = fc.CAFile },
		"cert":                      func() { cfg.CertFile = fc.CertFile },
		"key":                       func() { cfg.KeyFile = fc.KeyFile },
		"servername":                func() { cfg.ServerName = fc.ServerName },
		"personalization":           func() { cfg.Personalization = fc.Personalization },
		"report-verify-failure":     func() { cfg.ReportVerifyFailure = fc.ReportVerifyFailure },
		"allow-partial-client-auth": func() { cfg.AllowPartialClientAuth = fc.AllowPartialClientAuth },
		"max-handshake-steps":       func() { cfg.MaxHandshakeSteps = fc.MaxHandshakeSteps },
		"jump":                      func() { cfg.JumpSpec = fc.JumpSpec },
		"jump-key":                  func() { cfg.SSHKeyPath = fc.SSHKeyPath },
		"jump-password":             func() { cfg.SSHPassword = fc.SSHPassword },
		"jump-agent":                func() { cfg.UseSSHAgent = fc.UseSSHAgent },
		"jump-strict":               func() { cfg.StrictHostKey = fc.StrictHostKey },
		"jump-known-hosts":          func() { cfg.KnownHostsPath = fc.KnownHostsPath },
		"jump-keepalive":            func() { cfg.KeepAliveInterval = fc.KeepAliveInterval },
		"exec":                      func() { cfg.Execute = fc.Execute },
		"command":                   func() { cfg.Command = fc.Command },
		"verbose":                   func() { cfg.Verbose = fc.Verbose },
		"metrics-addr":              func() { cfg.MetricsAddr = fc.MetricsAddr },
	}
	fs.Visit(func(f *flag.Flag) {
		if set, ok := setters[f.Name]; ok {
			set()
		}
	})
}

// parsePositional reads "host [port]".  Both may instead come from the
// config file or environment.
func parsePositional(cfg *config.Config, remaining []string) error {
	switch len(remaining) {
	case 0:
	case 1:
		cfg.Host = remaining[0]
	case 2:
		cfg.Host = remaining[0]
		port, err := config.ParsePort(remaining[1])
		if err != nil {
			return fmt.Errorf("port: %w", err)
		}
		cfg.Port = port
	default:
		return fmt.Errorf("too many arguments (use --help for usage)")
	}
	return nil
}

func printPlan(cfg *config.Config) {
	fmt.Printf("connect  %s\n", cfg.Address())
	if cfg.JumpEnabled {
		fmt.Printf("via      ssh://%s@%s:%d\n", cfg.JumpUser, cfg.JumpHost, cfg.JumpPort)
	}
	ca := cfg.CAFile
	if ca == "" {
		ca = "(none, server not verified)"
	}
	fmt.Printf("ca       %s\n", ca)
	if cfg.CertFile != "" || cfg.KeyFile != "" {
		fmt.Printf("client   %s %s\n", cfg.CertFile, cfg.KeyFile)
	}
	fmt.Printf("timeouts connect=%s io=%s\n", cfg.Timeout, cfg.IOTimeout)
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `tlscat – TLS client for the command line v%s

Connects to a TLS server and relays stdin/stdout over the encrypted
stream, optionally through an SSH jump host.

Usage:
  tlscat [options] <host> [port]              Connect (port defaults to 443)
  tlscat -J user@gateway <host> [port]        Connect via SSH jump host

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  printf 'GET / HTTP/1.0\r\n\r\n' | tlscat example.com
  tlscat --ca ca.pem --cert me.pem --key me.key api.internal 8443
  tlscat -J ops@bastion db-internal 5433
  tlscat -c 'cat /etc/motd' logs.example.com 6514
`)
}
