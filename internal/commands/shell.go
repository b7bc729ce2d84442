package commands

import (
	"context"
	"strings"

	"github.com/joshrwolf/engine-exec/internal/process"
	"github.com/joshrwolf/engine-exec/internal/runtime"
)

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// FlattenScript replaces every line break with a single space.
// Multi-line scripts are not supported; statements must already be joined.
func FlattenScript(script string) string {
	return lineBreaks.Replace(script)
}

// ResolveShell returns bash if the container has it, otherwise sh (default /bin/sh).
func ResolveShell(ctx context.Context, e runtime.Executor, container string) (string, error) {
	bash, err := runtime.ExecWhich(ctx, e, container, "bash", runtime.WhichOptions{})
	if err == nil {
		return bash, nil
	}
	if !isResolutionFailure(err) {
		return "", err
	}
	return runtime.ExecWhich(ctx, e, container, "sh", runtime.WhichOptions{Default: "/bin/sh"})
}

// Shell runs script inside container as `<shell> -c <script>`, optionally through sudo.
func Shell(ctx context.Context, e runtime.Executor, container, script string, sudo bool) (*process.Handle, error) {
	return ShellWithOptions(ctx, e, container, script, sudo, runtime.ExecOptions{})
}

// ShellWithOptions is Shell with explicit exec options.
func ShellWithOptions(ctx context.Context, e runtime.Executor, container, script string, sudo bool, opts runtime.ExecOptions) (*process.Handle, error) {
	shell, err := ResolveShell(ctx, e, container)
	if err != nil {
		return nil, err
	}

	args := []string{"-c", FlattenScript(script)}
	if !sudo {
		return e.Exec(ctx, container, shell, args, opts)
	}

	sudoPath, err := runtime.ExecWhich(ctx, e, container, "sudo", runtime.WhichOptions{})
	if err != nil {
		return nil, err
	}
	return e.Exec(ctx, container, sudoPath, append([]string{shell}, args...), opts)
}
