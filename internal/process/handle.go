// Package process represents a spawned engine command and its lifecycle.
package process

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/joshrwolf/engine-exec/internal/output"
)

var (
	// ErrExitCodeMismatch is the sentinel wrapped by ExitCodeMismatchError.
	ErrExitCodeMismatch = errors.New("unexpected exit code")

	// ErrExitedBeforeReady is returned by WaitReady when the process ended first.
	ErrExitedBeforeReady = errors.New("process exited before becoming ready")
)

// ExitCodeMismatchError is returned when the observed exit code differs from the required one.
type ExitCodeMismatchError struct {
	Args []string
	Want int
	Got  int
}

func (e *ExitCodeMismatchError) Error() string {
	return fmt.Sprintf("%s: exit code %d, want %d", strings.Join(e.Args, " "), e.Got, e.Want)
}

// Unwrap returns ErrExitCodeMismatch for errors.Is.
func (e *ExitCodeMismatchError) Unwrap() error { return ErrExitCodeMismatch }

// ReadyType selects which stream gates the handle's readiness.
type ReadyType int

const (
	ReadyStdout ReadyType = iota
	ReadyStderr
)

// ExitExpectation tells a wait whether to confirm a specific exit code.
type ExitExpectation struct {
	code    int
	enforce bool
}

// AnyExit accepts whatever exit code the process returns.
var AnyExit = ExitExpectation{}

// Expect requires the process to exit with code.
func Expect(code int) ExitExpectation {
	return ExitExpectation{code: code, enforce: true}
}

// Code returns the required code and whether one is required.
func (x ExitExpectation) Code() (int, bool) { return x.code, x.enforce }

// Handle is one external invocation. The exit slot is written exactly once.
type Handle struct {
	args      []string
	container string
	stdout    *output.Buffer
	stderr    *output.Buffer
	readyType ReadyType

	once     sync.Once
	done     chan struct{}
	exitCode int
	err      error
}

// New creates a pending handle for args. container is empty for engine commands.
func New(args []string, container string, stdout, stderr *output.Buffer, ready ReadyType) *Handle {
	return &Handle{
		args:      args,
		container: container,
		stdout:    stdout,
		stderr:    stderr,
		readyType: ready,
		done:      make(chan struct{}),
	}
}

// Finish records the exit code. err reports a failure to observe the process at all.
// Only the first call has any effect.
func (h *Handle) Finish(code int, err error) {
	h.once.Do(func() {
		h.stdout.Close()
		h.stderr.Close()
		h.exitCode = code
		h.err = err
		close(h.done)
	})
}

// Args returns the full command line.
func (h *Handle) Args() []string { return h.args }

// Container returns the target container, empty for engine commands.
func (h *Handle) Container() string { return h.container }

// Stdout returns the stdout buffer without waiting.
func (h *Handle) Stdout() *output.Buffer { return h.stdout }

// Stderr returns the stderr buffer without waiting.
func (h *Handle) Stderr() *output.Buffer { return h.stderr }

// Done is closed once the exit code is known.
func (h *Handle) Done() <-chan struct{} { return h.done }

// WaitExit blocks until the process exits and returns its code.
func (h *Handle) WaitExit(ctx context.Context, exp ExitExpectation) (int, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return -1, fmt.Errorf("waiting for %s: %w", h.args[0], ctx.Err())
	}

	if h.err != nil {
		return h.exitCode, h.err
	}
	if want, ok := exp.Code(); ok && h.exitCode != want {
		return h.exitCode, &ExitCodeMismatchError{Args: h.args, Want: want, Got: h.exitCode}
	}
	return h.exitCode, nil
}

// ConfirmExit reports whether the process exited with code.
func (h *Handle) ConfirmExit(ctx context.Context, code int) bool {
	_, err := h.WaitExit(ctx, Expect(code))
	return err == nil
}

// WaitStdout waits for exit and returns the stdout buffer.
func (h *Handle) WaitStdout(ctx context.Context, exp ExitExpectation) (*output.Buffer, error) {
	if _, err := h.WaitExit(ctx, exp); err != nil {
		return nil, err
	}
	return h.stdout, nil
}

// WaitStderr waits for exit and returns the stderr buffer.
func (h *Handle) WaitStderr(ctx context.Context, exp ExitExpectation) (*output.Buffer, error) {
	if _, err := h.WaitExit(ctx, exp); err != nil {
		return nil, err
	}
	return h.stderr, nil
}

// Ready is closed when the gating stream becomes ready.
func (h *Handle) Ready() <-chan struct{} {
	if h.readyType == ReadyStderr {
		return h.stderr.Ready()
	}
	return h.stdout.Ready()
}

// WaitReady blocks until the gating stream is ready. A zero timeout means output.DefaultTimeout.
func (h *Handle) WaitReady(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = output.DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	ready := h.Ready()
	select {
	case <-ready:
		return nil
	case <-h.done:
		// The final output may have made the stream ready just before exit.
		select {
		case <-ready:
			return nil
		default:
			return ErrExitedBeforeReady
		}
	case <-timer.C:
		return &output.TimeoutError{Pattern: "<ready>", After: timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}
