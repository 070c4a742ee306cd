package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/optenv/client"
	"github.com/tailored-agentic-units/optenv/manager"
	"github.com/tailored-agentic-units/optenv/observability"
	"github.com/tailored-agentic-units/optenv/rpc"
)

func newFuzzCmd(opts *options) *cobra.Command {
	var (
		addr string
		cfg  client.FuzzConfig
	)

	cmd := &cobra.Command{
		Use:   "fuzz <benchmark>",
		Short: "Check that forked sessions replay identically to their source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Benchmark = args[0]

			var backend client.Backend
			if addr != "" {
				backend = rpc.NewClient(http.DefaultClient, addr)
			} else {
				mcfg, err := opts.managerConfig()
				if err != nil {
					return err
				}
				m, err := manager.New(mcfg, manager.WithObserver(
					observability.NewSlogObserver(opts.logger(cmd.ErrOrStderr())),
				))
				if err != nil {
					return err
				}
				defer m.Shutdown(cmd.Context())
				backend = m
			}

			report, err := client.FuzzFork(cmd.Context(), backend, cfg)
			if err != nil {
				var d *client.Divergence
				if errors.As(err, &d) {
					fmt.Fprintf(cmd.OutOrStdout(), "diverged: episode %d step %d action %d: %s\n", d.Episode, d.Step, d.Action, d.Reason)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d episodes, %d steps\n", report.Episodes, report.Steps)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "base URL of a running server; empty runs in process")
	cmd.Flags().IntVar(&cfg.Episodes, "episodes", 0, "number of episodes (default 10)")
	cmd.Flags().IntVar(&cfg.WarmupSteps, "warmup", 0, "random steps before each fork (default 10)")
	cmd.Flags().IntVar(&cfg.ForkSteps, "steps", 0, "paired steps after each fork (default 10)")
	cmd.Flags().Uint64Var(&cfg.Seed, "seed", 0, "random seed")
	cmd.Flags().IntVar(&cfg.Workers, "workers", 0, "concurrent episodes (default 2x CPUs)")
	return cmd
}
