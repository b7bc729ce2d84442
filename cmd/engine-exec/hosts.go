package main

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/joshrwolf/engine-exec/internal/commands"
	"github.com/joshrwolf/engine-exec/internal/hostmap"
)

func (o *options) hostsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hosts",
		Short: "Manage container /etc/hosts entries",
	}

	var file string
	var wait uint64
	syncCmd := &cobra.Command{
		Use:   "sync [containers...]",
		Short: "Make containers resolve each other by name",
		Long: `Append /etc/hosts entries so every container can resolve its siblings.

Addresses come from a YAML request file (-f) or are discovered with
inspect for the named containers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var req commands.HostMappingRequest
			switch {
			case file != "" && len(args) > 0:
				return fmt.Errorf("use either -f or container names, not both")
			case file != "":
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("opening %s: %w", file, err)
				}
				defer f.Close()
				if req, err = hostmap.Parse(f); err != nil {
					return err
				}
			case len(args) > 1:
				var err error
				if req, err = discover(cmd, o, args, wait); err != nil {
					return err
				}
			default:
				return fmt.Errorf("at least two containers are required")
			}

			e, err := o.containerExecutor(ctx)
			if err != nil {
				return err
			}
			results := commands.AddContainersHostMapping(ctx, e, req)
			fmt.Fprint(cmd.OutOrStdout(), renderHostResults(results))

			var failed []string
			for name, ok := range commands.HostMappingSucceeded(results) {
				if !ok {
					failed = append(failed, name)
				}
			}
			if len(failed) > 0 {
				slices.Sort(failed)
				return fmt.Errorf("host mapping failed for %s", strings.Join(failed, ", "))
			}
			return nil
		},
	}
	syncCmd.Flags().StringVarP(&file, "file", "f", "", "YAML host-mapping request")
	syncCmd.Flags().Uint64Var(&wait, "wait", 3, "retries while a container has no address")

	var out string
	export := &cobra.Command{
		Use:   "export <containers...>",
		Short: "Write the discovered host-mapping request as YAML",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := discover(cmd, o, args, wait)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("creating %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}
			return hostmap.Encode(w, req)
		},
	}
	export.Flags().StringVarP(&out, "output", "o", "", "file to write (default stdout)")
	export.Flags().Uint64Var(&wait, "wait", 3, "retries while a container has no address")

	cmd.AddCommand(syncCmd, export)
	return cmd
}

// discover builds a request from each container's attached networks.
func discover(cmd *cobra.Command, o *options, containers []string, wait uint64) (commands.HostMappingRequest, error) {
	ctx := cmd.Context()
	e := o.engineExecutor()

	req := make(commands.HostMappingRequest, len(containers))
	for _, name := range containers {
		if _, err := commands.WaitContainerIP(ctx, e, name, wait); err != nil {
			return nil, fmt.Errorf("discovering %s: %w", name, err)
		}
		networks, err := commands.ContainerNetworks(ctx, e, name)
		if err != nil {
			return nil, fmt.Errorf("discovering %s: %w", name, err)
		}
		req[name] = networks
	}
	return req, nil
}

func renderHostResults(results map[string]error) string {
	var sb strings.Builder

	nameStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39"))

	okStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	failStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("196"))

	detailStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245"))

	for _, name := range slices.Sorted(maps.Keys(results)) {
		if err := results[name]; err != nil {
			fmt.Fprintf(&sb, "%s %s %s\n", failStyle.Render("✗"), nameStyle.Render(name), detailStyle.Render(err.Error()))
			continue
		}
		fmt.Fprintf(&sb, "%s %s\n", okStyle.Render("✓"), nameStyle.Render(name))
	}
	return sb.String()
}
