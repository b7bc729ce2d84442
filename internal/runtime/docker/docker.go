package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os/exec"
	"slices"

	"github.com/chainguard-dev/clog"
	"github.com/joshrwolf/engine-exec/internal/output"
	"github.com/joshrwolf/engine-exec/internal/process"
	"github.com/joshrwolf/engine-exec/internal/runtime"
	"golang.org/x/sync/errgroup"
)

// ExecCommandFunc creates the process for a command line.
// It allows injection of mock implementations for testing.
type ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

// RunnerFunc reports whether the named container's runner is active.
type RunnerFunc func(name string) bool

// Option configures an Executor.
type Option func(*Executor)

// WithBinary sets the engine binary (default: "docker").
func WithBinary(path string) Option {
	return func(d *Executor) {
		d.dockerPath = path
	}
}

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) Option {
	return func(d *Executor) {
		d.execCommand = fn
	}
}

// WithRunnerFunc sets the container liveness check used before every exec.
func WithRunnerFunc(fn RunnerFunc) Option {
	return func(d *Executor) {
		d.isRunning = fn
	}
}

// WithWhichCache shares an existing cache instead of creating one.
func WithWhichCache(c *runtime.WhichCache) Option {
	return func(d *Executor) {
		d.which = c
	}
}

// Executor drives a docker-compatible engine by spawning its CLI.
type Executor struct {
	// Path to docker binary (default: "docker")
	dockerPath  string
	execCommand ExecCommandFunc
	isRunning   RunnerFunc
	which       *runtime.WhichCache
}

var _ runtime.Executor = (*Executor)(nil)

// New creates a new docker executor.
// Without WithRunnerFunc no container is considered running.
func New(opts ...Option) *Executor {
	d := &Executor{
		dockerPath:  "docker",
		execCommand: exec.CommandContext,
		isRunning:   func(string) bool { return false },
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.which == nil {
		d.which = runtime.NewWhichCache()
	}
	return d
}

// IsContainerRunnerRunning implements runtime.Executor
func (d *Executor) IsContainerRunnerRunning(name string) bool {
	return d.isRunning(name)
}

// Command implements runtime.Executor
func (d *Executor) Command(ctx context.Context, cmd string, args ...string) (*process.Handle, error) {
	argv := append([]string{cmd}, args...)
	return d.spawn(ctx, argv, "", runtime.ExecOptions{})
}

// Exec implements runtime.Executor
func (d *Executor) Exec(ctx context.Context, container, cmd string, args []string, opts runtime.ExecOptions) (*process.Handle, error) {
	if err := runtime.CheckRunning(d, container); err != nil {
		return nil, err
	}
	return d.spawn(ctx, d.buildExecArgs(container, cmd, args, opts), container, opts)
}

// WhichCache implements runtime.Executor
func (d *Executor) WhichCache() *runtime.WhichCache {
	return d.which
}

// buildExecArgs builds the docker exec arguments
//
// Generated command: <binary> exec [-u user] [-w dir] [-e K=V...] <container> <cmd> <args...>
func (d *Executor) buildExecArgs(container, cmd string, args []string, opts runtime.ExecOptions) []string {
	argv := []string{"exec"}

	if opts.User != "" {
		argv = append(argv, "--user", opts.User)
	}
	if opts.WorkDir != "" {
		argv = append(argv, "--workdir", opts.WorkDir)
	}

	// Sorted so the command line is stable
	for _, k := range slices.Sorted(maps.Keys(opts.Env)) {
		argv = append(argv, "-e", fmt.Sprintf("%s=%s", k, opts.Env[k]))
	}

	argv = append(argv, container, cmd)
	return append(argv, args...)
}

// spawn starts the engine process and returns a handle that is finished in the background
func (d *Executor) spawn(ctx context.Context, argv []string, container string, opts runtime.ExecOptions) (*process.Handle, error) {
	log := clog.FromContext(ctx)

	cmd := d.execCommand(ctx, d.dockerPath, argv...)
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdout: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stderr: %w", err)
	}

	stdout := output.New(opts.StdoutOptions())
	stderr := output.New(opts.StderrOptions())
	h := process.New(append([]string{d.dockerPath}, argv...), container, stdout, stderr, opts.OutputReadyType)

	log.Debug("running engine command", "engine", d.String(), "args", argv)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s %s: %w", d.dockerPath, argv[0], err)
	}

	go func() {
		// Both pipes must be drained before Wait, so the exit code is only
		// published once all output has been appended.
		var g errgroup.Group
		g.Go(func() error { return copyStream(stdout, stdoutPipe) })
		g.Go(func() error { return copyStream(stderr, stderrPipe) })
		readErr := g.Wait()

		code, err := exitCode(cmd.Wait())
		if err == nil && readErr != nil {
			err = readErr
		}
		log.Debug("docker exited", "args", argv, "code", code)
		h.Finish(code, err)
	}()

	return h, nil
}

// Available checks if docker is available
func (d *Executor) Available(ctx context.Context) bool {
	cmd := d.execCommand(ctx, d.dockerPath, "version", "--format", "json")
	return cmd.Run() == nil
}

// String returns the runtime name
func (d *Executor) String() string {
	return d.dockerPath
}

func copyStream(dst *output.Buffer, src io.Reader) error {
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("reading output: %w", err)
	}
	return nil
}

// exitCode extracts the exit code from a Wait error. A non-zero exit is not an error.
func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("waiting for docker: %w", err)
}
