package config

// loader.go - configuration loading from a YAML file and environment
// variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (LoadFromEnv)
//   3. Config file  (LoadFile)
//   4. Defaults   (defaults.go)

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ── Config file ──────────────────────────────────────────────────────

// LoadFile overlays the YAML document at path onto cfg.  Keys absent
// from the file keep their current value; unknown keys are an error.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the TLSCAT_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flags are applied so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	envString("TLSCAT_HOST", &cfg.Host)
	if v := envInt("TLSCAT_PORT"); v > 0 {
		cfg.Port = v
	}
	if v := envInt("TLSCAT_LOCAL_PORT"); v > 0 {
		cfg.LocalPort = v
	}
	if envBool("TLSCAT_NO_DNS") {
		cfg.NoDNS = true
	}
	if v := envInt("TLSCAT_TIMEOUT"); v > 0 {
		cfg.Timeout = secondsDuration(v)
	}
	if v := envInt("TLSCAT_IO_TIMEOUT"); v > 0 {
		cfg.IOTimeout = secondsDuration(v)
	}

	// TLS
	envString("TLSCAT_CA_FILE", &cfg.CAFile)
	envString("TLSCAT_CERT_FILE", &cfg.CertFile)
	envString("TLSCAT_KEY_FILE", &cfg.KeyFile)
	envString("TLSCAT_SERVER_NAME", &cfg.ServerName)
	envString("TLSCAT_PERSONALIZATION", &cfg.Personalization)
	if envBool("TLSCAT_REPORT_VERIFY_FAILURE") {
		cfg.ReportVerifyFailure = true
	}
	if envBool("TLSCAT_ALLOW_PARTIAL_CLIENT_AUTH") {
		cfg.AllowPartialClientAuth = true
	}

	// SSH jump host
	envString("TLSCAT_JUMP", &cfg.JumpSpec)
	envString("TLSCAT_JUMP_KEY", &cfg.SSHKeyPath)
	if envBool("TLSCAT_JUMP_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("TLSCAT_JUMP_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("TLSCAT_JUMP_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	envString("TLSCAT_JUMP_KNOWN_HOSTS", &cfg.KnownHostsPath)
	if v := envInt("TLSCAT_JUMP_KEEPALIVE"); v > 0 {
		cfg.KeepAliveInterval = v
	}

	// Output
	if v := envInt("TLSCAT_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
	envString("TLSCAT_METRICS_ADDR", &cfg.MetricsAddr)
}

// ── helpers ──────────────────────────────────────────────────────────

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
