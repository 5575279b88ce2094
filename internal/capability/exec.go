package capability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"time"

	"tlscat/internal/session"
	"tlscat/util"
)

// DefaultWaitDelay bounds how long Exec waits for the stream copies
// after the child exits.
const DefaultWaitDelay = 500 * time.Millisecond

// Exec wires the TLS stream to a child process's stdio.
// Either Program (-e) or Command (-c) must be set.
type Exec struct {
	Program   string        // -e: execute a program directly
	Command   string        // -c: execute via the system shell
	WaitDelay time.Duration // 0 means DefaultWaitDelay
}

// Handle starts the child process with its stdin/stdout/stderr
// connected to the session's stream.  The child's exit ends the
// session; data still queued from the server is discarded.
func (e *Exec) Handle(ctx context.Context, sess *session.Session) error {
	var cmd *exec.Cmd

	switch {
	case e.Command != "":
		if runtime.GOOS == "windows" {
			cmd = exec.CommandContext(ctx, "cmd.exe", "/C", e.Command)
		} else {
			cmd = exec.CommandContext(ctx, "/bin/sh", "-c", e.Command)
		}
	case e.Program != "":
		cmd = exec.CommandContext(ctx, e.Program)
	default:
		return fmt.Errorf("no command specified for exec mode")
	}

	rs := newRelayStream(sess.Stream)
	defer rs.shutdown()

	cmd.Stdout = rs
	cmd.Stderr = rs
	cmd.WaitDelay = e.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("exec stdin: %w", err)
	}

	sess.Logger.Debug("exec: %s", cmd.String())

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("exec %q: %w", cmd.Path, err)
	}

	// stream → child stdin; Wait closes stdin once the child exits
	fed := make(chan struct{})
	go func() {
		defer close(fed)
		buf := util.GetBuf()
		defer util.PutBuf(buf)
		io.CopyBuffer(stdin, rs, *buf) //nolint:errcheck
		stdin.Close()
	}()

	err = cmd.Wait()
	rs.shutdown()
	<-fed

	if err != nil && !errors.Is(err, exec.ErrWaitDelay) {
		return fmt.Errorf("exec %q: %w", cmd.Path, err)
	}
	return nil
}
