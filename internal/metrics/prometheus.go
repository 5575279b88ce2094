package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tlscat"

var (
	descConnectionsActive = prometheus.NewDesc(namespace+"_connections_active",
		"Currently open TLS connections", nil, nil)
	descConnectionsTotal = prometheus.NewDesc(namespace+"_connections_total",
		"TLS connections established", nil, nil)
	descBytes = prometheus.NewDesc(namespace+"_bytes_total",
		"Plaintext bytes moved through TLS sessions", []string{"direction"}, nil)
	descHandshakes = prometheus.NewDesc(namespace+"_handshakes_total",
		"Handshakes by outcome", []string{"outcome"}, nil)
	descHandshakeSeconds = prometheus.NewDesc(namespace+"_handshake_seconds_total",
		"Cumulative time spent in completed handshakes", nil, nil)
	descVerifyFailures = prometheus.NewDesc(namespace+"_verify_failures_total",
		"Peer certificates that failed verification", nil, nil)
	descWouldBlock = prometheus.NewDesc(namespace+"_would_block_retries_total",
		"Retried would-block session steps", nil, nil)
	descErrors = prometheus.NewDesc(namespace+"_errors_total",
		"Errors recorded", nil, nil)
)

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descConnectionsActive
	ch <- descConnectionsTotal
	ch <- descBytes
	ch <- descHandshakes
	ch <- descHandshakeSeconds
	ch <- descVerifyFailures
	ch <- descWouldBlock
	ch <- descErrors
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c == nil {
		return
	}
	gauge := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), labels...)
	}
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}

	gauge(descConnectionsActive, c.connectionsActive.Load())
	counter(descConnectionsTotal, float64(c.connectionsTotal.Load()))
	counter(descBytes, float64(c.bytesIn.Load()), "in")
	counter(descBytes, float64(c.bytesOut.Load()), "out")
	counter(descHandshakes, float64(c.handshakes.Load()), "ok")
	counter(descHandshakes, float64(c.handshakeFailures.Load()), "failed")
	counter(descHandshakeSeconds, float64(c.handshakeNanos.Load())/1e9)
	counter(descVerifyFailures, float64(c.verifyFailures.Load()))
	counter(descWouldBlock, float64(c.wouldBlockRetries.Load()))
	counter(descErrors, float64(c.errorsTotal.Load()))
}

// Registry returns a fresh registry with c registered alongside the
// Go runtime and process collectors.
func (c *Collector) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns an http.Handler serving c in the Prometheus text
// exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{})
}
