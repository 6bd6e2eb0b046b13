// Package brew runs the Homebrew command-line tool as a subprocess and
// captures its output. Each Run is a synchronous, one-shot invocation.
package brew

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"strings"
	"time"
)

// DefaultBinary is the executable looked up on PATH when Runner.Binary is empty.
const DefaultBinary = "brew"

// waitDelay bounds how long Run waits for output pipes to drain after the
// process has been killed.
const waitDelay = 2 * time.Second

// ErrTimeout is matched by errors returned when a run exceeds Runner.Timeout.
var ErrTimeout = errors.New("brew: command timed out")

// Result is the captured outcome of a single run.
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExitError reports a run that started but exited with a non-zero status.
type ExitError struct {
	Result Result
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("brew: %s: exit status %d", e.Result.Command, e.Result.ExitCode)
}

// TimeoutError reports a run killed because it exceeded Runner.Timeout.
type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("brew: %s: timed out after %s", e.Command, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// Runner invokes the package-manager binary.
type Runner struct {
	// Binary is the executable name or path. Names without a path separator are
	// resolved on PATH.
	Binary string
	// Timeout bounds each run. Zero leaves the run bounded only by ctx.
	Timeout time.Duration
	// Env holds extra KEY=VALUE entries appended to the inherited environment.
	Env []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
}

// New returns a Runner for the given binary.
func New(binary string) *Runner {
	return &Runner{Binary: binary}
}

func (r *Runner) binary() string {
	if r.Binary == "" {
		return DefaultBinary
	}
	return r.Binary
}

// CommandLine returns the space-joined command line for args, as used in
// results and log records.
func (r *Runner) CommandLine(args ...string) string {
	return strings.Join(append([]string{r.binary()}, args...), " ")
}

// Run executes the binary with args and waits for it to finish. On success the
// returned Result holds the captured output and a nil error. A non-zero exit
// yields an *ExitError alongside the populated Result; an expired Timeout
// yields a *TimeoutError matching ErrTimeout; any other error means the process could not be started.
func (r *Runner) Run(ctx context.Context, args ...string) (Result, error) {
	res := Result{Command: r.CommandLine(args...)}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := osexec.CommandContext(ctx, r.binary(), args...) //nolint:gosec // binary comes from configuration, args from the fixed catalogue
	cmd.Dir = r.Dir
	cmd.WaitDelay = waitDelay
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	if err == nil {
		return res, nil
	}

	res.ExitCode = -1

	if ctxErr := ctx.Err(); ctxErr != nil {
		if r.Timeout > 0 && errors.Is(ctxErr, context.DeadlineExceeded) {
			return res, &TimeoutError{Command: res.Command, Timeout: r.Timeout}
		}
		return res, fmt.Errorf("brew: run %s: %w", res.Command, ctxErr)
	}

	var exitErr *osexec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &ExitError{Result: res}
	}

	return res, fmt.Errorf("brew: run %s: %w", res.Command, err)
}
