package term

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"

	"github.com/creack/pty"
)

// LocalRunner runs commands through the local shell on a pseudo-terminal,
// so programs that adjust behavior for interactive use (prompts, column
// width) behave as they would for a person at the keyboard.
type LocalRunner struct {
	shell string
	cols  uint16
	rows  uint16
}

// NewLocalRunner creates a runner using the given shell ("sh" when
// empty) and terminal geometry.
func NewLocalRunner(shell string, cols, rows uint16) *LocalRunner {
	if shell == "" {
		shell = "sh"
	}
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 40
	}
	return &LocalRunner{shell: shell, cols: cols, rows: rows}
}

// Run executes cmd via `shell -c` and returns its combined output with
// the trailing newline trimmed. Cancellation kills the process group.
func (r *LocalRunner) Run(ctx context.Context, cmd string) (string, error) {
	c := exec.Command(r.shell, "-c", cmd)

	f, err := pty.StartWithSize(c, &pty.Winsize{Cols: r.cols, Rows: r.rows})
	if err != nil {
		return "", fmt.Errorf("start pty: %w", err)
	}
	defer f.Close()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.Process.Kill()
		case <-done:
		}
	}()

	var buf bytes.Buffer
	_, readErr := io.Copy(&buf, f)
	waitErr := c.Wait()
	close(done)

	out := strings.TrimRight(buf.String(), "\r\n")
	if ctx.Err() != nil {
		return out, ctx.Err()
	}
	// The pty master returns EIO once the child side is closed; that is
	// the normal end of stream, not a failure.
	if readErr != nil && !errors.Is(readErr, syscall.EIO) {
		return out, fmt.Errorf("read pty: %w", readErr)
	}
	if waitErr != nil {
		return out, fmt.Errorf("command %q: %w", cmd, waitErr)
	}
	return out, nil
}

// Close is a no-op; each Run owns its own process and pty.
func (r *LocalRunner) Close() error { return nil }
