package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/joshrwolf/engine-exec/internal/process"
	"github.com/joshrwolf/engine-exec/internal/runtime"
)

const namesFormat = "{{.Names}}"

// PsContainerNames lists container names, including stopped ones when all is set.
func PsContainerNames(ctx context.Context, e runtime.Executor, all bool) ([]string, error) {
	args := []string{"ps"}
	if all {
		args = append(args, "-a")
	}
	args = append(args, "--format", namesFormat)

	h, err := e.Command(ctx, args[0], args[1:]...)
	if err != nil {
		return nil, err
	}
	buf, err := h.WaitStdout(ctx, process.Expect(0))
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}
	return strings.Fields(buf.String()), nil
}

// RunningSet returns a liveness check backed by one `ps` snapshot.
func RunningSet(ctx context.Context, e runtime.Executor) (func(name string) bool, error) {
	names, err := PsContainerNames(ctx, e, false)
	if err != nil {
		return nil, err
	}
	running := make(map[string]struct{}, len(names))
	for _, name := range names {
		running[name] = struct{}{}
	}
	return func(name string) bool {
		_, ok := running[name]
		return ok
	}, nil
}
