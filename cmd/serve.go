package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thypress/thypress/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve the site over HTTP",
	Long: `Serve starts the site server. In dynamic mode (the default) content,
templates, config and redirects are watched, changes apply incrementally,
and connected browsers reload automatically.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := server.NewRuntime(cfg, log)
		if err != nil {
			return err
		}
		if err := rt.Prepare(ctx); err != nil {
			return err
		}
		return rt.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
