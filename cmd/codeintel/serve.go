package main

import (
	"github.com/dshills/codeintel/internal/app"
	"github.com/dshills/codeintel/internal/mcpserver"
	"github.com/spf13/cobra"
)

func newServeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve code intelligence as MCP tools on stdin and stdout",
		Long: `Serve runs the completion core with store and workspace watching enabled and
exposes it as Model Context Protocol tools over stdio. Logs go to stderr or to
the configured log file, never to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			core, logger, stop, err := g.startCore(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer stop()

			session := app.NewSession(core)
			defer session.CloseAll()

			core.OnProviderDown(func(name string, err error) {
				logger.WithField("provider", name).Warn("provider down: %v", err)
			})
			return mcpserver.New(session, logger).ServeStdio()
		},
	}
}
