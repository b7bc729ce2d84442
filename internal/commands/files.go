package commands

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/joshrwolf/engine-exec/internal/process"
	"github.com/joshrwolf/engine-exec/internal/runtime"
	"mvdan.cc/sh/v3/syntax"
)

// catFallback is used when the container has no `which` hit for cat.
const catFallback = "/bin/cat"

// PutFile replaces path inside container with content.
func PutFile(ctx context.Context, e runtime.Executor, container, path, content string) error {
	return WriteFile(ctx, e, container, path, content, false)
}

// AppendFile appends content to path inside container.
func AppendFile(ctx context.Context, e runtime.Executor, container, path, content string) error {
	return WriteFile(ctx, e, container, path, content, true)
}

// WriteFile writes content to path inside container. The content travels
// base64 encoded so it never needs shell escaping:
//
//	echo "<base64>" | <base64-bin> --decode | tee [-a] <path> > /dev/null
func WriteFile(ctx context.Context, e runtime.Executor, container, path, content string, appendMode bool) error {
	log := clog.FromContext(ctx)

	script, err := WriteFileScript(ctx, e, container, path, content, appendMode)
	if err != nil {
		return err
	}

	h, err := Shell(ctx, e, container, script, false)
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if _, err := h.WaitExit(ctx, process.Expect(0)); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	log.Debug("wrote file", "container", container, "path", path, "bytes", len(content), "append", appendMode)
	return nil
}

// WriteFileScript builds the pipeline WriteFile runs, resolving base64 in container.
func WriteFileScript(ctx context.Context, e runtime.Executor, container, path, content string, appendMode bool) (string, error) {
	b64, err := runtime.ExecWhich(ctx, e, container, "base64", runtime.WhichOptions{})
	if err != nil {
		return "", err
	}

	quoted, err := syntax.Quote(path, syntax.LangPOSIX)
	if err != nil {
		return "", fmt.Errorf("quoting path %q: %w", path, err)
	}

	tee := "tee"
	if appendMode {
		tee = "tee -a"
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	return fmt.Sprintf(`echo "%s" | %s --decode | %s %s > /dev/null`, encoded, b64, tee, quoted), nil
}

// Cat returns the contents of path inside container.
func Cat(ctx context.Context, e runtime.Executor, container, path string, trim bool) (string, error) {
	cat, err := runtime.ExecWhich(ctx, e, container, "cat", runtime.WhichOptions{Default: catFallback})
	if err != nil {
		return "", err
	}

	buf, err := runtime.ExecAndWaitStdout(ctx, e, container, cat, []string{path}, runtime.ExecOptions{}, process.Expect(0))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	// The stream is closed at exit, so this is the complete file.
	out := buf.String()
	if trim {
		out = strings.TrimSpace(out)
	}
	return out, nil
}

func isResolutionFailure(err error) bool {
	return errors.Is(err, runtime.ErrResolutionFailure)
}
