package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/chainguard-dev/clog/slag"
	"github.com/charmbracelet/fang"
	charmlog "github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/joshrwolf/engine-exec/internal/commands"
	"github.com/joshrwolf/engine-exec/internal/config"
	"github.com/joshrwolf/engine-exec/internal/runtime"
	"github.com/joshrwolf/engine-exec/internal/runtime/docker"
)

// Version is set at build time.
var Version = "dev"

type options struct {
	logLevel   slag.Level
	configFile string
	engine     string

	cfg   *config.Config
	which *runtime.WhichCache
}

// ExitError carries the exit code of a process run inside a container.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// setupLogging configures logging for the command
func (o *options) setupLogging(ctx context.Context, cmd *cobra.Command) context.Context {
	level := o.logLevel
	if !cmd.Flags().Changed("log-level") {
		_ = level.Set(o.cfg.LogLevel)
	}

	l := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		Level:           charmlog.Level(level),
		ReportTimestamp: true,
	})
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		l.SetFormatter(charmlog.JSONFormatter)
	}
	ctx = clog.WithLogger(ctx, clog.New(l))
	slog.SetDefault(slog.New(l))
	return ctx
}

func main() {
	ctx := context.Background()

	if err := fang.Execute(ctx, newRootCmd(), fang.WithVersion(Version), fang.WithNotifySignal(os.Interrupt)); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "engine-exec",
		Short:         "Run commands in containers and synchronize their output",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.LoadOptions{ConfigFile: opts.configFile})
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("engine") {
				cfg.Engine = opts.engine
			}
			opts.cfg = cfg
			opts.which = runtime.NewWhichCache()

			ctx := opts.setupLogging(cmd.Context(), cmd)
			if cfg.CommandTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.CommandTimeout)
				cobra.OnFinalize(cancel)
			}
			cmd.SetContext(ctx)
			return nil
		},
	}

	// Define flags
	rootCmd.PersistentFlags().Var(&opts.logLevel, "log-level", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default $XDG_CONFIG_HOME/engine-exec/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.engine, "engine", "", "container engine binary (default docker)")

	rootCmd.AddCommand(
		opts.psCmd(),
		opts.ipCmd(),
		opts.whichCmd(),
		opts.putCmd(),
		opts.catCmd(),
		opts.shellCmd(),
		opts.networkCmd(),
		opts.hostsCmd(),
	)
	return rootCmd
}

// engineExecutor drives engine-level commands; it treats no container as running.
func (o *options) engineExecutor() *docker.Executor {
	return docker.New(docker.WithBinary(o.cfg.Engine), docker.WithWhichCache(o.which))
}

// containerExecutor snapshots the running containers before returning an
// executor that can exec into them.
func (o *options) containerExecutor(ctx context.Context) (*docker.Executor, error) {
	running, err := commands.RunningSet(ctx, o.engineExecutor())
	if err != nil {
		return nil, fmt.Errorf("listing running containers: %w", err)
	}
	return docker.New(
		docker.WithBinary(o.cfg.Engine),
		docker.WithWhichCache(o.which),
		docker.WithRunnerFunc(running),
	), nil
}

func (o *options) execOptions() runtime.ExecOptions {
	return runtime.ExecOptions{OutputLimit: o.cfg.OutputLimit}
}

func printLines(cmd *cobra.Command, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.Join(lines, "\n"))
}
