// Command optenv serves and exercises compiler optimization environments.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/optenv/manager"
	"github.com/tailored-agentic-units/optenv/rpc"
)

type options struct {
	configFile string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "optenv",
		Short:         "Session manager for compiler optimization environments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to a JSON or YAML config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging to stderr")

	root.AddCommand(
		newServeCmd(opts),
		newFuzzCmd(opts),
		newBenchmarksCmd(opts),
	)
	return root
}

func (o *options) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *options) managerConfig() (*manager.Config, error) {
	if o.configFile == "" {
		cfg := manager.DefaultConfig()
		return &cfg, nil
	}
	cfg, err := manager.LoadConfig(o.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func (o *options) serverConfig() (*rpc.ServerConfig, error) {
	if o.configFile == "" {
		cfg := rpc.DefaultServerConfig()
		return &cfg, nil
	}
	cfg, err := rpc.LoadServerConfig(o.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}
	return cfg, nil
}
