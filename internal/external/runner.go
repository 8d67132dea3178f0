// Package external runs the opaque helper processes the build delegates to.
package external

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
)

// stderrTail bounds how much of a failed process's stderr is kept.
const stderrTail = 4 << 10

// ProcessError is a collaborator-process fault.
type ProcessError struct {
	Command  []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	cmd := strings.Join(e.Command, " ")
	if e.ExitCode > 0 {
		msg := fmt.Sprintf("%s exited with status %d", cmd, e.ExitCode)
		if e.Stderr != "" {
			msg += ": " + e.Stderr
		}
		return msg
	}
	return fmt.Sprintf("%s: %v", cmd, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Runner starts helper processes in a fixed working directory.
type Runner struct {
	Dir string
	Env []string
}

// Run executes command followed by args and waits for it to finish. Output
// lines are forwarded to the context logger at debug level.
func (r *Runner) Run(ctx context.Context, command []string, args ...string) error {
	if len(command) == 0 {
		return &ProcessError{Err: errors.New("empty command")}
	}
	logger := ctxlog.FromContext(ctx).With("command", command[0])

	argv := append(append([]string{}, command[1:]...), args...)
	cmd := exec.CommandContext(ctx, command[0], argv...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	var stderr tailBuffer
	cmd.Stderr = &stderr

	full := append([]string{command[0]}, argv...)
	logger.Debug("Starting helper process.", "args", argv)
	if err := cmd.Start(); err != nil {
		return &ProcessError{Command: full, Err: err}
	}

	// stdout must be drained before Wait closes the pipe.
	forward(stdout, func(line string) { logger.Debug(line, "stream", "stdout") })

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pe := &ProcessError{Command: full, Stderr: strings.TrimSpace(stderr.String()), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			pe.ExitCode = exitErr.ExitCode()
		}
		return pe
	}
	return nil
}

func forward(r io.Reader, emit func(string)) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			emit(line)
		}
	}
}

// tailBuffer keeps the last stderrTail bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - stderrTail; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
