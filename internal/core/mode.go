// Package core is the orchestration layer.  It composes transports,
// the TLS client and capabilities into a complete run and provides a
// builder that assembles that run from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  tlsclient  →  capability  →  session  →  core  →  cmd (CLI)
package core

import "context"

// Mode represents a complete operational mode of tlscat.  Each mode
// owns its full lifecycle from connection establishment to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
