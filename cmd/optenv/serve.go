package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/optenv/manager"
	"github.com/tailored-agentic-units/optenv/observability"
	"github.com/tailored-agentic-units/optenv/rpc"
)

const metricsPath = "/metrics"

func newServeCmd(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mcfg, err := opts.managerConfig()
			if err != nil {
				return err
			}
			scfg, err := opts.serverConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				scfg.Addr = addr
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			observer := observability.NewMultiObserver(
				observability.NewSlogObserver(opts.logger(cmd.ErrOrStderr())),
				observability.NewPrometheusObserver(reg),
			)

			m, err := manager.New(mcfg, manager.WithObserver(observer))
			if err != nil {
				return err
			}

			mux := rpc.NewHandler(m, observer)
			mux.Handle(metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

			srv := rpc.NewServer(scfg, mux, observer)
			serveErr := srv.ListenAndServe(cmd.Context())

			ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 10*time.Second)
			defer cancel()
			if err := m.Shutdown(ctx); err != nil && serveErr == nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return serveErr
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
