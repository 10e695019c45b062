package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/benchkit/api"
	"github.com/stellarlinkco/benchkit/internal/artifact"
	"github.com/stellarlinkco/benchkit/internal/store"
)

var (
	openStore = store.Open
	newServer = api.NewServer
	runServer = (*api.Server).Run
)

func newServeCmd(st *cliState) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve run history and reports over HTTP",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadState(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(st, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func runServe(st *cliState, addr string) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("serve: missing config (internal error)")
	}

	stor, err := openStore(st.cfg)
	if err != nil {
		return err
	}
	defer stor.Close()

	layout := artifact.Layout{Root: st.cfg.Evaluation.OutputsDir}
	srv, err := newServer(st.cfg, stor, layout)
	if err != nil {
		return err
	}

	if strings.TrimSpace(addr) == "" {
		addr = st.cfg.Server.Addr
	}
	return runServer(srv, addr)
}
