package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshrwolf/engine-exec/internal/commands"
)

func (o *options) networkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "network",
		Short: "Manage engine networks",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "create <name>",
			Short: "Create a network",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				name, err := commands.CreateNetwork(cmd.Context(), o.engineExecutor(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), name)
				return nil
			},
		},
		&cobra.Command{
			Use:     "rm <name>",
			Aliases: []string{"remove"},
			Short:   "Remove a network",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return commands.RemoveNetwork(cmd.Context(), o.engineExecutor(), args[0])
			},
		},
		&cobra.Command{
			Use:   "connect <network> <container>",
			Short: "Attach a container to a network",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return commands.ConnectNetwork(cmd.Context(), o.engineExecutor(), args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "disconnect <network> <container>",
			Short: "Detach a container from a network",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return commands.DisconnectNetwork(cmd.Context(), o.engineExecutor(), args[0], args[1])
			},
		},
	)
	return cmd
}
