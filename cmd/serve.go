// -- cmd/serve.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dipshanrana/clipfetch/internal/browser"
	"github.com/dipshanrana/clipfetch/internal/config"
	"github.com/dipshanrana/clipfetch/internal/extract"
	"github.com/dipshanrana/clipfetch/internal/fetch"
	"github.com/dipshanrana/clipfetch/internal/observability"
	"github.com/dipshanrana/clipfetch/internal/server"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logger := observability.GetLogger()
			defer observability.Sync()

			manager := browser.NewManager(cfg.Browser, logger)
			loader := browser.NewLoader(cfg.Browser, logger)
			engine := extract.NewEngine(manager, loader, cfg.Extract, logger)
			fetcher := fetch.NewFetcher(cfg.Fetch, cfg.Download, manager, loader, logger)

			srv := server.NewServer(cfg.Server, engine, fetcher, logger, manager)
			return srv.Run(cmd.Context())
		},
	}
	return cmd
}
