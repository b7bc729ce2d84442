package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"github.com/joshrwolf/engine-exec/internal/commands"
	"github.com/joshrwolf/engine-exec/internal/process"
	"github.com/joshrwolf/engine-exec/internal/script"
)

func (o *options) shellCmd() *cobra.Command {
	var command string
	var sudo bool

	cmd := &cobra.Command{
		Use:   "shell <container> [script]",
		Short: "Run a shell script inside a container",
		Long: `Run a shell script inside a container with bash, falling back to sh.

Scripts are flattened to a single line first. A script may carry
#!engine-exec lines with extra flags and a "# /// engine-exec" YAML
block setting user, workdir, env and sudo.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := clog.FromContext(ctx)

			container := args[0]
			execOpts := o.execOptions()
			useSudo := sudo || o.cfg.Sudo

			var line string
			switch {
			case command != "" && len(args) == 2:
				return fmt.Errorf("use either -c or a script file, not both")
			case command != "":
				line = command
			case len(args) == 2:
				s, err := parseScriptFile(args[1])
				if err != nil {
					return err
				}
				// Directives are flags for this command.
				for _, d := range s.Directives {
					if err := cmd.Flags().Parse(strings.Fields(d)); err != nil {
						return fmt.Errorf("applying script directive %q: %w", d, err)
					}
				}
				useSudo = useSudo || sudo
				if s.Options != nil {
					execOpts.User = s.Options.User
					execOpts.WorkDir = s.Options.WorkDir
					execOpts.Env = s.Options.Env
					useSudo = useSudo || s.Options.Sudo
				}
				line = s.Flat
			default:
				return fmt.Errorf("either provide a script or use -c")
			}

			e, err := o.containerExecutor(ctx)
			if err != nil {
				return err
			}

			log.Debug("running shell", "container", container, "sudo", useSudo, "script", line)
			h, err := commands.ShellWithOptions(ctx, e, container, line, useSudo, execOpts)
			if err != nil {
				return err
			}
			return streamResult(cmd, h)
		},
	}
	cmd.Flags().StringVarP(&command, "command", "c", "", "script to run instead of a script file")
	cmd.Flags().BoolVar(&sudo, "sudo", false, "run through sudo")
	return cmd
}

func parseScriptFile(path string) (*script.Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening script: %w", err)
	}
	defer f.Close()

	s, err := script.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing script: %w", err)
	}
	return s, nil
}

// streamResult waits for h, copies its output and maps a non-zero exit to ExitError.
func streamResult(cmd *cobra.Command, h *process.Handle) error {
	code, err := h.WaitExit(cmd.Context(), process.AnyExit)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), h.Stdout().String())
	fmt.Fprint(cmd.ErrOrStderr(), h.Stderr().String())
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
