// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of TLS connections.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.  A
// Collector also implements prometheus.Collector so the same counters
// can be scraped.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for tlscat connections.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	bytesIn           atomic.Int64
	bytesOut          atomic.Int64
	handshakes        atomic.Int64
	handshakeFailures atomic.Int64
	handshakeNanos    atomic.Int64
	verifyFailures    atomic.Int64
	wouldBlockRetries atomic.Int64
	errorsTotal       atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n plaintext bytes read from the TLS session.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n plaintext bytes written to the TLS session.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Handshake metrics ────────────────────────────────────────────────

// HandshakeCompleted records a successful handshake and its duration.
func (c *Collector) HandshakeCompleted(d time.Duration) {
	if c == nil {
		return
	}
	c.handshakes.Add(1)
	c.handshakeNanos.Add(int64(d))
}

// HandshakeFailed records a handshake that ended in a terminal error.
func (c *Collector) HandshakeFailed() {
	if c == nil {
		return
	}
	c.handshakeFailures.Add(1)
}

// VerifyFailed records a peer certificate that did not verify.
func (c *Collector) VerifyFailed() {
	if c == nil {
		return
	}
	c.verifyFailures.Add(1)
}

// WouldBlock records one retried would-block step.
func (c *Collector) WouldBlock() {
	if c == nil {
		return
	}
	c.wouldBlockRetries.Add(1)
}

// Handshakes returns the number of completed handshakes.
func (c *Collector) Handshakes() int64 {
	if c == nil {
		return 0
	}
	return c.handshakes.Load()
}

// HandshakeFailures returns the number of failed handshakes.
func (c *Collector) HandshakeFailures() int64 {
	if c == nil {
		return 0
	}
	return c.handshakeFailures.Load()
}

// VerifyFailures returns the number of peer verification failures.
func (c *Collector) VerifyFailures() int64 {
	if c == nil {
		return 0
	}
	return c.verifyFailures.Load()
}

// WouldBlockRetries returns the number of retried would-block steps.
func (c *Collector) WouldBlockRetries() int64 {
	if c == nil {
		return 0
	}
	return c.wouldBlockRetries.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime               string `json:"uptime"`
	ConnectionsActive    int64  `json:"connections_active"`
	ConnectionsTotal     int64  `json:"connections_total"`
	BytesIn              int64  `json:"bytes_in"`
	BytesOut             int64  `json:"bytes_out"`
	Handshakes           int64  `json:"handshakes"`
	HandshakeFailures    int64  `json:"handshake_failures"`
	AvgHandshakeDuration string `json:"avg_handshake_duration,omitempty"`
	VerifyFailures       int64  `json:"verify_failures"`
	WouldBlockRetries    int64  `json:"would_block_retries"`
	ErrorsTotal          int64  `json:"errors_total"`
	LastError            string `json:"last_error,omitempty"`
	LastErrorMessage     string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesOut:          c.bytesOut.Load(),
		Handshakes:        c.handshakes.Load(),
		HandshakeFailures: c.handshakeFailures.Load(),
		VerifyFailures:    c.verifyFailures.Load(),
		WouldBlockRetries: c.wouldBlockRetries.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
	}
	if s.Handshakes > 0 {
		avg := time.Duration(c.handshakeNanos.Load() / s.Handshakes)
		s.AvgHandshakeDuration = avg.String()
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
