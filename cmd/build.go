package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thypress/thypress/internal/build"
	"github.com/thypress/thypress/internal/config"
	"github.com/thypress/thypress/internal/server"
)

var buildServe bool

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Export a static site into build/",
	Long: `Build renders every page, taxonomy listing, meta document, theme asset
and image variant into the build directory, with gzip and brotli siblings
for compressible files. With --serve the exported site is previewed
afterwards in static_preview mode.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Exporting always renders with static semantics.
		if viper.GetString("mode") == "" || viper.GetString("mode") == string(config.ModeDynamic) {
			viper.Set("mode", string(config.ModeStatic))
		}
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

		exporter := build.NewExporter(cfg, log, rt.Store, rt.Themes, rt.Optimizer)
		if err := exporter.Run(ctx); err != nil {
			return err
		}
		if !buildServe {
			return nil
		}

		cfg.Mode = config.ModeStaticPreview
		return rt.Serve(ctx)
	},
}

func init() {
	buildCmd.Flags().BoolVar(&buildServe, "serve", false, "serve the exported site after building")
	rootCmd.AddCommand(buildCmd)
}
