package capability

import (
	"context"

	"tlscat/internal/session"
	"tlscat/util"
)

// Relay copies data bidirectionally between the TLS stream and the
// session's stdin/stdout.  This is the default interactive / pipe mode.
type Relay struct{}

// Handle shuttles bytes between the stream and the local I/O endpoints
// until the server closes, the stream fails, or the context is
// cancelled.  EOF on stdin alone keeps the receive side running.
func (r *Relay) Handle(ctx context.Context, sess *session.Session) error {
	rs := newRelayStream(sess.Stream)
	defer rs.shutdown()
	return util.BidirectionalCopy(ctx, rs, sess.Stdin, sess.Stdout)
}
