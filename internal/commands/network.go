package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/joshrwolf/engine-exec/internal/process"
	"github.com/joshrwolf/engine-exec/internal/runtime"
)

// CreateNetwork runs `network create name` and returns the created name.
func CreateNetwork(ctx context.Context, e runtime.Executor, name string) (string, error) {
	if err := networkCommand(ctx, e, name, "create", name); err != nil {
		return "", err
	}
	return name, nil
}

// RemoveNetwork runs `network rm name`.
func RemoveNetwork(ctx context.Context, e runtime.Executor, name string) error {
	return networkCommand(ctx, e, name, "rm", name)
}

// ConnectNetwork attaches container to network.
func ConnectNetwork(ctx context.Context, e runtime.Executor, network, container string) error {
	if isBlank(container) {
		return fmt.Errorf("container: %w", ErrBlankName)
	}
	return networkCommand(ctx, e, network, "connect", network, container)
}

// DisconnectNetwork detaches container from network.
func DisconnectNetwork(ctx context.Context, e runtime.Executor, network, container string) error {
	if isBlank(container) {
		return fmt.Errorf("container: %w", ErrBlankName)
	}
	return networkCommand(ctx, e, network, "disconnect", network, container)
}

func networkCommand(ctx context.Context, e runtime.Executor, name, verb string, args ...string) error {
	if isBlank(name) {
		return fmt.Errorf("network: %w", ErrBlankName)
	}

	h, err := e.Command(ctx, "network", append([]string{verb}, args...)...)
	if err != nil {
		return err
	}
	if _, err := h.WaitExit(ctx, process.Expect(0)); err != nil {
		return fmt.Errorf("network %s %s: %w", verb, name, err)
	}
	clog.FromContext(ctx).Debug("network command succeeded", "verb", verb, "network", name)
	return nil
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }
