package cli

import (
	"github.com/spf13/cobra"

	"github.com/me/corun/internal/assistant"
	"github.com/me/corun/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the assistant over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}

			answerer, err := newAnswerer(cmd.Context(), cfg.LLM, logger)
			if err != nil {
				return err
			}
			svc := assistant.NewService(orch, answerer, logger)

			srv := server.New(cfg.Server, svc, logger, server.WithClockMode(cfg.Scheduler.Clock))
			return srv.ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}
