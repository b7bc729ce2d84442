package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshrwolf/engine-exec/internal/commands"
	"github.com/joshrwolf/engine-exec/internal/runtime"
)

func (o *options) psCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List container names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := commands.PsContainerNames(cmd.Context(), o.engineExecutor(), all)
			if err != nil {
				return err
			}
			printLines(cmd, names)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include stopped containers")
	return cmd
}

func (o *options) ipCmd() *cobra.Command {
	var wait uint64

	cmd := &cobra.Command{
		Use:   "ip <container>",
		Short: "Print a container's IP address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := o.engineExecutor()

			var ip string
			var err error
			if wait > 0 {
				ip, err = commands.WaitContainerIP(cmd.Context(), e, args[0], wait)
			} else {
				ip, err = commands.ContainerIP(cmd.Context(), e, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ip)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&wait, "wait", 0, "retry up to N times while the container has no address")
	return cmd
}

func (o *options) whichCmd() *cobra.Command {
	var fallback string

	cmd := &cobra.Command{
		Use:   "which <container> <command>",
		Short: "Resolve an executable inside a container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := o.containerExecutor(cmd.Context())
			if err != nil {
				return err
			}
			path, err := runtime.ExecWhich(cmd.Context(), e, args[0], args[1], runtime.WhichOptions{Default: fallback})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&fallback, "default", "", "path to print when the command is not found")
	return cmd
}

func (o *options) putCmd() *cobra.Command {
	var appendMode bool
	var file string

	cmd := &cobra.Command{
		Use:   "put <container> <path>",
		Short: "Write stdin or a local file to a path inside a container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("opening %s: %w", file, err)
				}
				defer f.Close()
				r = f
			}
			content, err := io.ReadAll(r)
			if err != nil {
				return fmt.Errorf("reading content: %w", err)
			}

			e, err := o.containerExecutor(cmd.Context())
			if err != nil {
				return err
			}
			return commands.WriteFile(cmd.Context(), e, args[0], args[1], string(content), appendMode)
		},
	}
	cmd.Flags().BoolVar(&appendMode, "append", false, "append instead of overwriting")
	cmd.Flags().StringVarP(&file, "file", "f", "", "local file to copy (default stdin)")
	return cmd
}

func (o *options) catCmd() *cobra.Command {
	var trim bool

	cmd := &cobra.Command{
		Use:   "cat <container> <path>",
		Short: "Print a file from inside a container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := o.containerExecutor(cmd.Context())
			if err != nil {
				return err
			}
			content, err := commands.Cat(cmd.Context(), e, args[0], args[1], trim)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), content)
			if trim {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&trim, "trim", false, "trim surrounding whitespace")
	return cmd
}
