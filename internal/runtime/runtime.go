package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshrwolf/engine-exec/internal/output"
	"github.com/joshrwolf/engine-exec/internal/process"
)

// Executor issues container engine commands and in-container executions
type Executor interface {
	// IsContainerRunnerRunning reports whether the named container can accept execs.
	// It must not block.
	IsContainerRunnerRunning(name string) bool

	// Command issues an engine-level command: <engine> <cmd> <args...>
	Command(ctx context.Context, cmd string, args ...string) (*process.Handle, error)

	// Exec runs cmd inside a running container: <engine> exec <container> <cmd> <args...>
	// It fails with ErrNotRunning without spawning anything when the container is not running.
	Exec(ctx context.Context, container, cmd string, args []string, opts ExecOptions) (*process.Handle, error)

	// WhichCache returns the executor's executable path cache
	WhichCache() *WhichCache
}

// ExecOptions configures an in-container execution
type ExecOptions struct {
	// Buffer output line by line instead of as raw writes
	OutputAsLines bool

	// Bound the bytes retained per stream; zero is unbounded
	OutputLimit int

	// Readiness predicates for each stream
	StdoutReady output.ReadyFunc
	StderrReady output.ReadyFunc

	// Which stream's readiness gates the handle's Ready signal
	OutputReadyType process.ReadyType

	// User to run as (docker exec --user)
	User string

	// Working directory inside the container (docker exec --workdir)
	WorkDir string

	// Environment variables
	Env map[string]string
}

// StdoutOptions returns the buffer options for the stdout stream.
func (o ExecOptions) StdoutOptions() output.Options {
	return output.Options{Lines: o.OutputAsLines, Limit: o.OutputLimit, Ready: o.StdoutReady}
}

// StderrOptions returns the buffer options for the stderr stream.
func (o ExecOptions) StderrOptions() output.Options {
	return output.Options{Lines: o.OutputAsLines, Limit: o.OutputLimit, Ready: o.StderrReady}
}

var (
	// ErrNotRunning is the sentinel wrapped by NotRunningError.
	ErrNotRunning = errors.New("container runner is not running")

	// ErrResolutionFailure is the sentinel wrapped by ResolutionError.
	ErrResolutionFailure = errors.New("executable could not be resolved")
)

// NotRunningError is returned by Exec when the target container is not running.
type NotRunningError struct {
	Container string
}

func (e *NotRunningError) Error() string {
	return fmt.Sprintf("container %q is not running", e.Container)
}

// Unwrap returns ErrNotRunning for errors.Is.
func (e *NotRunningError) Unwrap() error { return ErrNotRunning }

// ResolutionError is returned when an executable could not be found inside a container.
type ResolutionError struct {
	Container string
	Command   string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving %q in container %q: not found", e.Command, e.Container)
}

// Unwrap returns ErrResolutionFailure for errors.Is.
func (e *ResolutionError) Unwrap() error { return ErrResolutionFailure }

// CheckRunning returns a NotRunningError unless the container runner is running.
// Every Executor calls it before spawning an exec.
func CheckRunning(e Executor, container string) error {
	if !e.IsContainerRunnerRunning(container) {
		return &NotRunningError{Container: container}
	}
	return nil
}
