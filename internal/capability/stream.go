package capability

import (
	"io"
	"sync"
	"sync/atomic"

	"tlscat/tlsclient"
)

// relayStream adapts a tlsclient.Stream for goroutine-driven copies.
//
// Read waits for data in poll-interval slices instead of one long
// receive, so an idle but healthy connection is never failed by the
// read timeout.  shutdown interrupts pending calls and waits for them
// to return; afterwards the stream can be stopped safely even if a
// copy goroutine still holds a reference.
type relayStream struct {
	s *tlsclient.Stream

	mu     sync.RWMutex // held shared by every call, exclusively by shutdown
	closed atomic.Bool
	once   sync.Once
}

func newRelayStream(s *tlsclient.Stream) *relayStream {
	return &relayStream{s: s}
}

func (r *relayStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, done, err := r.tryRead(p)
		if done {
			return n, err
		}
	}
}

// tryRead runs one poll slice.  done is false when nothing arrived.
func (r *relayStream) tryRead(p []byte) (int, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed.Load() {
		return 0, true, io.EOF
	}
	if r.s.HasData() {
		n, err := r.s.Read(p)
		return n, true, err
	}
	if !r.s.Conn().Connected() {
		return 0, true, io.EOF
	}
	return 0, false, nil
}

func (r *relayStream) Write(p []byte) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	return r.s.Write(p)
}

// Interrupt unblocks pending calls without releasing the stream.
func (r *relayStream) Interrupt() error {
	return r.s.Interrupt()
}

// Close is shutdown.  The underlying stream is stopped by its owner.
func (r *relayStream) Close() error {
	r.shutdown()
	return nil
}

// shutdown fails every later call and waits for in-flight calls.
func (r *relayStream) shutdown() {
	r.once.Do(func() {
		r.closed.Store(true)
		r.s.Interrupt() //nolint:errcheck
		r.mu.Lock()
		r.mu.Unlock() //nolint:staticcheck // barrier
	})
}
