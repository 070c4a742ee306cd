package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/optenv/manager"
	"github.com/tailored-agentic-units/optenv/rpc"
)

func newBenchmarksCmd(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "benchmarks",
		Short: "List available benchmarks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				uris []string
				err  error
			)
			if addr != "" {
				uris, err = rpc.NewClient(http.DefaultClient, addr).Benchmarks(cmd.Context())
			} else {
				mcfg, cerr := opts.managerConfig()
				if cerr != nil {
					return cerr
				}
				mcfg.Observer = "noop"
				m, merr := manager.New(mcfg)
				if merr != nil {
					return merr
				}
				uris, err = m.Benchmarks(cmd.Context())
			}
			if err != nil {
				return err
			}

			for _, uri := range uris {
				fmt.Fprintln(cmd.OutOrStdout(), uri)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "base URL of a running server; empty lists in process")
	return cmd
}
