package runtime

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/joshrwolf/engine-exec/internal/output"
	"github.com/joshrwolf/engine-exec/internal/process"
)

// AnyOutput matches output containing at least one character.
var AnyOutput = regexp.MustCompile(`(?s).`)

// whichTimeout bounds how long ExecWhich waits for the command name to show up.
const whichTimeout = 5 * time.Second

// StringOptions configures the *String helpers.
type StringOptions struct {
	// Expect confirms the exit code before reading output
	Expect process.ExitExpectation
	// Pattern the output must match before it is returned; nil means AnyOutput
	Pattern *regexp.Regexp
	// Timeout for the pattern wait; zero means output.DefaultTimeout
	Timeout time.Duration
	// Trim surrounding whitespace
	Trim bool
}

// WhichOptions configures ExecWhich.
type WhichOptions struct {
	// IgnoreCache forces a fresh lookup, replacing any cached entry
	IgnoreCache bool
	// Default is returned when the command cannot be resolved
	Default string
}

// ExecAndWaitExit runs cmd in container and waits for its exit code.
func ExecAndWaitExit(ctx context.Context, e Executor, container, cmd string, args []string, opts ExecOptions, exp process.ExitExpectation) (int, error) {
	h, err := e.Exec(ctx, container, cmd, args, opts)
	if err != nil {
		return -1, err
	}
	return h.WaitExit(ctx, exp)
}

// ExecAndConfirmExit runs cmd in container and reports whether it exited with code.
func ExecAndConfirmExit(ctx context.Context, e Executor, container, cmd string, args []string, opts ExecOptions, code int) bool {
	_, err := ExecAndWaitExit(ctx, e, container, cmd, args, opts, process.Expect(code))
	return err == nil
}

// ExecAndWaitStdout runs cmd in container and returns its stdout once it exits.
func ExecAndWaitStdout(ctx context.Context, e Executor, container, cmd string, args []string, opts ExecOptions, exp process.ExitExpectation) (*output.Buffer, error) {
	h, err := e.Exec(ctx, container, cmd, args, opts)
	if err != nil {
		return nil, err
	}
	return h.WaitStdout(ctx, exp)
}

// ExecAndWaitStderr runs cmd in container and returns its stderr once it exits.
func ExecAndWaitStderr(ctx context.Context, e Executor, container, cmd string, args []string, opts ExecOptions, exp process.ExitExpectation) (*output.Buffer, error) {
	h, err := e.Exec(ctx, container, cmd, args, opts)
	if err != nil {
		return nil, err
	}
	return h.WaitStderr(ctx, exp)
}

// ExecAndWaitStdoutString runs cmd and returns stdout as a string once it matches sopts.Pattern.
func ExecAndWaitStdoutString(ctx context.Context, e Executor, container, cmd string, args []string, opts ExecOptions, sopts StringOptions) (string, error) {
	buf, err := ExecAndWaitStdout(ctx, e, container, cmd, args, opts, sopts.Expect)
	if err != nil {
		return "", err
	}
	return BufferString(ctx, buf, sopts)
}

// ExecAndWaitStderrString runs cmd and returns stderr as a string once it matches sopts.Pattern.
func ExecAndWaitStderrString(ctx context.Context, e Executor, container, cmd string, args []string, opts ExecOptions, sopts StringOptions) (string, error) {
	buf, err := ExecAndWaitStderr(ctx, e, container, cmd, args, opts, sopts.Expect)
	if err != nil {
		return "", err
	}
	return BufferString(ctx, buf, sopts)
}

// BufferString waits for buf to match sopts.Pattern and materializes it.
func BufferString(ctx context.Context, buf *output.Buffer, sopts StringOptions) (string, error) {
	re := sopts.Pattern
	if re == nil {
		re = AnyOutput
	}
	s, err := buf.WaitForMatch(ctx, re, sopts.Timeout)
	if err != nil {
		return "", err
	}
	if sopts.Trim {
		s = strings.TrimSpace(s)
	}
	return s, nil
}

// ExecWhich resolves the absolute path of command inside container.
// Results, including "not found", are cached per executor.
func ExecWhich(ctx context.Context, e Executor, container, command string, wopts WhichOptions) (string, error) {
	log := clog.FromContext(ctx)
	cache := e.WhichCache()

	path, ok := "", false
	if !wopts.IgnoreCache {
		path, ok = cache.Get(container, command)
	}
	if !ok {
		var err error
		path, err = cache.Resolve(container, command, func() (string, error) {
			return which(ctx, e, container, command)
		})
		if err != nil {
			return "", err
		}
		log.Debug("resolved executable", "container", container, "command", command, "path", path)
	}

	if path != "" {
		return path, nil
	}
	if wopts.Default != "" {
		return wopts.Default, nil
	}
	return "", &ResolutionError{Container: container, Command: command}
}

// which runs `which command`. A missing executable resolves to "" with no error;
// only failures to observe the lookup are returned.
func which(ctx context.Context, e Executor, container, command string) (string, error) {
	out, err := ExecAndWaitStdoutString(ctx, e, container, "which", []string{command}, ExecOptions{}, StringOptions{
		Expect:  process.AnyExit,
		Pattern: regexp.MustCompile(regexp.QuoteMeta(command)),
		Timeout: whichTimeout,
		Trim:    true,
	})
	switch {
	case err == nil:
	case errors.Is(err, output.ErrNoMatch), errors.Is(err, output.ErrTimeout):
		return "", nil
	default:
		return "", fmt.Errorf("running which %s: %w", command, err)
	}

	if first, _, found := strings.Cut(out, "\n"); found {
		out = strings.TrimSpace(first)
	}
	// Some which implementations report "no <command> in (...)" on stdout.
	if !strings.HasPrefix(out, "/") {
		return "", nil
	}
	return out, nil
}
