package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"tlscat/config"
	"tlscat/internal/metrics"
	"tlscat/util"
)

// MetricsServer exposes a Collector over HTTP: Prometheus text on
// /metrics and the JSON snapshot on /stats.
type MetricsServer struct {
	srv    *http.Server
	addr   net.Addr
	logger *util.Logger
	done   chan struct{}
}

// StartMetricsServer listens on addr and serves c in the background.
func StartMetricsServer(addr string, c *metrics.Collector, logger *util.Logger) (*MetricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, c.JSON())
	})

	s := &MetricsServer{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		addr:   ln.Addr(),
		logger: logger,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server: %v", err)
		}
	}()
	logger.Verbose("metrics on http://%s/metrics", s.addr)
	return s, nil
}

// Addr returns the bound listen address.
func (s *MetricsServer) Addr() net.Addr { return s.addr }

// Shutdown stops the server, waiting up to config.DefaultShutdownGrace
// for in-flight scrapes.
func (s *MetricsServer) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownGrace)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Debug("metrics shutdown: %v", err)
	}
	<-s.done
}
