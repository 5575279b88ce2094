package tlsclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	ncerr "tlscat/internal/errors"
	"tlscat/internal/metrics"
	"tlscat/internal/retry"
)

// handshakeBackoff paces would-block retries.  The delays stay small:
// a want-read step is normally satisfied within one round trip.
func handshakeBackoff(maxSteps int) *retry.Backoff {
	return &retry.Backoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  maxSteps,
	}
}

// runHandshake drives sess until the handshake completes.  ErrWantRead
// and ErrWantWrite are retried until ctx expires or maxSteps steps have
// run; any other step error ends the loop.  An exhausted budget is
// reported as ErrTimeout.
func runHandshake(ctx context.Context, sess Session, maxSteps int, m *metrics.Collector) (steps int, err error) {
	err = handshakeBackoff(maxSteps).Do(ctx, func(attempt int) error {
		steps = attempt
		stepErr := sess.HandshakeStep(ctx)
		switch {
		case stepErr == nil:
			return nil
		case ncerr.IsWouldBlock(stepErr):
			m.WouldBlock()
			return stepErr
		default:
			return retry.Permanent(stepErr)
		}
	})
	if err == nil {
		return steps, nil
	}
	if errors.Is(err, retry.ErrExhausted) || errors.Is(err, context.DeadlineExceeded) {
		return steps, fmt.Errorf("%w: %w", ncerr.ErrTimeout, err)
	}
	return steps, err
}
