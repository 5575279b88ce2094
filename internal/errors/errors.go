// Package errors provides domain-specific error types for tlscat.
//
// These types carry structured context (operation, address, failure
// kind, numeric cause) that helps callers decide how to handle failures
// and provides better diagnostics than plain string wrapping.
package errors

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"reflect"
	"syscall"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrTunnelClosed    = errors.New("tunnel is closed")
	ErrNotConnected    = errors.New("not connected")
	ErrTimeout         = errors.New("operation timed out")
	ErrAuthFailed      = errors.New("authentication failed")
	ErrHostKeyMismatch = errors.New("host key mismatch")

	// ErrWantRead and ErrWantWrite are returned by a TLS session step
	// that made partial progress and must be invoked again.
	ErrWantRead  = errors.New("tls: want read")
	ErrWantWrite = errors.New("tls: want write")

	// ErrEmptyWrite rejects zero-length writes on the stream.
	ErrEmptyWrite = errors.New("empty write")
)

// IsWouldBlock reports whether err is one of the retryable session
// step results.
func IsWouldBlock(err error) bool {
	return errors.Is(err, ErrWantRead) || errors.Is(err, ErrWantWrite)
}

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // operation: "dial", "setsockopt", "write", "read"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey", "channel"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── TLS connection errors ────────────────────────────────────────────

// Kind classifies a TLS connection failure by the lifecycle step that
// produced it.
type Kind int

const (
	KindUnknown Kind = iota
	KindSocket
	KindConnect
	KindRNGSeed
	KindCertParse
	KindClientCert
	KindClientKey
	KindConfig
	KindHandshake
	KindVerification
	KindWrite
	KindRead
)

var kindNames = map[Kind]string{
	KindUnknown:      "unknown",
	KindSocket:       "socket",
	KindConnect:      "connect",
	KindRNGSeed:      "rng_seed",
	KindCertParse:    "cert_parse",
	KindClientCert:   "client_cert",
	KindClientKey:    "client_key",
	KindConfig:       "config",
	KindHandshake:    "handshake",
	KindVerification: "verification",
	KindWrite:        "write",
	KindRead:         "read",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// TLSError is returned by every fallible step of a TLS connection.
// Code carries the numeric cause (negated errno or TLS alert) when the
// underlying error has one, and is 0 otherwise.
type TLSError struct {
	Kind Kind
	Addr string
	Code int
	Err  error
}

func (e *TLSError) Error() string {
	s := "tls " + e.Kind.String()
	if e.Addr != "" {
		s += " " + e.Addr
	}
	if e.Code != 0 {
		s += fmt.Sprintf(" (-0x%x)", -e.Code)
	}
	return s + ": " + fmt.Sprint(e.Err)
}

func (e *TLSError) Unwrap() error { return e.Err }

// ── Constructors ─────────────────────────────────────────────────────

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// WrapTLS creates a TLSError of the given kind, extracting a numeric
// code from err where possible.
func WrapTLS(kind Kind, addr string, err error) *TLSError {
	return &TLSError{Kind: kind, Addr: addr, Code: codeOf(err), Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// KindOf returns the Kind of the first TLSError in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var te *TLSError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// CodeOf returns the numeric cause carried by err, or 0.
func CodeOf(err error) int {
	var te *TLSError
	if errors.As(err, &te) {
		return te.Code
	}
	return codeOf(err)
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// IsTimeout reports whether err was caused by an expired deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	// net.OpError with Temporary() hint
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	// DNS errors
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

func codeOf(err error) int {
	if err == nil {
		return 0
	}
	var alert tls.AlertError
	if errors.As(err, &alert) {
		return -int(alert)
	}
	// Alerts received from the peer arrive as an unexported uint8 type.
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "remote error" {
		if v := reflect.ValueOf(opErr.Err); v.Kind() == reflect.Uint8 {
			return -int(v.Uint())
		}
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return -int(errno)
	}
	return 0
}
