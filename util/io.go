package util

import (
	"context"
	"errors"
	"io"
	"net"

	ncerr "tlscat/internal/errors"
)

// DefaultBufSize is the buffer size for stream I/O: one TLS record of
// plaintext (16 KiB), so each copied read becomes at most one record.
const DefaultBufSize = 16 * 1024

// closeWriter is implemented by streams that support half-close.
type closeWriter interface {
	CloseWrite() error
}

// interrupter is implemented by streams that must not be released
// while a copy goroutine still uses them.  Interrupt only unblocks
// pending calls; the caller releases the stream after the copy and
// must keep later calls on it safe.
type interrupter interface {
	Interrupt() error
}

// BidirectionalCopy shuffles data between an established stream (a
// TLS stream in practice) and an arbitrary reader/writer pair
// (typically stdin/stdout) until one side reaches EOF or the context
// is cancelled.
//
// For an interrupter stream, a read from r that is still blocked when
// the stream side ends is abandoned rather than waited for; a terminal
// read cannot be unblocked and would otherwise keep the process alive.
func BidirectionalCopy(ctx context.Context, conn io.ReadWriteCloser, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outDone := make(chan error, 1) // stream → writer
	inDone := make(chan error, 1)  // reader → stream

	go func() {
		buf := GetBuf()
		defer PutBuf(buf)
		_, err := io.CopyBuffer(w, conn, *buf)
		outDone <- err
		cancel()
	}()

	go func() {
		buf := GetBuf()
		defer PutBuf(buf)
		_, err := io.CopyBuffer(conn, r, *buf)
		// Half-close the write side so the remote knows we're done
		// sending, but keep the read side open to drain any remaining
		// data from the server (the other goroutine handles that).
		if cw, ok := conn.(closeWriter); ok {
			cw.CloseWrite() //nolint:errcheck
		}
		inDone <- err
		// A normal EOF from the reader must not tear down the stream
		// before the remote finishes sending.
		if err != nil {
			cancel()
		}
	}()

	<-ctx.Done()
	// unblock any pending reads/writes
	in, canInterrupt := conn.(interrupter)
	if canInterrupt {
		in.Interrupt() //nolint:errcheck
	} else {
		conn.Close()
	}

	errs := []error{<-outDone}
	if canInterrupt {
		select {
		case err := <-inDone:
			errs = append(errs, err)
		default:
		}
	} else {
		errs = append(errs, <-inDone)
	}

	for _, err := range errs {
		if err != nil && !isHarmless(err) {
			return err
		}
	}
	return nil
}

// isHarmless returns true for errors that are expected during shutdown.
func isHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	// the stream was stopped underneath a pending copy
	if errors.Is(err, ncerr.ErrNotConnected) {
		return true
	}
	// net.OpError wrapping "use of closed network connection"
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
