package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thypress/thypress/internal/config"
	"github.com/thypress/thypress/internal/content"
	"github.com/thypress/thypress/internal/errors"
	"github.com/thypress/thypress/internal/logging"
	"github.com/thypress/thypress/internal/redirect"
	"github.com/thypress/thypress/internal/render"
	"github.com/thypress/thypress/internal/theme"
)

var validateCmd = &cobra.Command{
	Use:       "validate [theme|content|redirects]",
	Short:     "Check the site for problems without serving",
	Long:      `Validate checks configuration plus, optionally, a single area: the composed theme, every content file, or the redirects table. Without an argument all areas are checked.`,
	ValidArgs: []string{"theme", "content", "redirects"},
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger()
		ctx := context.Background()

		area := ""
		if len(args) == 1 {
			area = args[0]
		}

		collector := errors.NewCollector()
		if area == "" || area == "theme" {
			validateTheme(ctx, cfg, log, collector)
		}
		if area == "" || area == "content" {
			validateContent(ctx, cfg, log, collector)
		}
		if area == "" || area == "redirects" {
			validateRedirects(cfg, collector)
		}

		for _, d := range collector.All() {
			switch d.Severity {
			case errors.SeverityWarning:
				log.Warn(ctx, nil, d.Message, "source", d.Source)
			case errors.SeverityError, errors.SeverityFatal:
				log.Error(ctx, nil, d.Message, "source", d.Source)
			default:
				log.Info(ctx, d.Message, "source", d.Source)
			}
		}
		if collector.HasErrors() {
			return fmt.Errorf("validation failed with %d error(s)", len(collector.BySeverity(errors.SeverityError)))
		}
		log.Success(ctx, "validation passed")
		return nil
	},
}

func validateTheme(ctx context.Context, cfg *config.Config, log logging.Logger, collector *errors.Collector) {
	resolver := theme.NewResolver(cfg, render.NewHTMLEngine(), log)
	composed, err := resolver.Build(ctx)
	if err != nil {
		collector.Errorf("theme", "%v", err)
		return
	}
	for _, e := range composed.Validation.Errors {
		collector.Errorf("theme", "%s", e)
	}
	for _, w := range composed.Validation.Warnings {
		collector.Warnf("theme", "%s", w)
	}
}

func validateContent(ctx context.Context, cfg *config.Config, log logging.Logger, collector *errors.Collector) {
	store := content.NewStore()
	pipeline := content.NewPipeline(cfg, log)
	if err := pipeline.IngestAll(ctx, store); err != nil {
		collector.Errorf("content", "%v", err)
		return
	}
	if store.Len() == 0 {
		collector.Warnf("content", "no content files found under %s", cfg.ContentRoot())
	}
}

func validateRedirects(cfg *config.Config, collector *errors.Collector) {
	table, problems, err := redirect.Load(cfg.RedirectsPath())
	if err != nil {
		collector.Errorf("redirects", "%v", err)
		return
	}
	for _, problem := range problems {
		collector.Warnf("redirects", "%s", problem)
	}
	for _, rule := range table.Rules() {
		if allowed, reason := redirect.AllowExternal(&cfg.Site, rule.To); !allowed {
			collector.Warnf("redirects", "%s -> %s: %s", rule.From, rule.To, reason)
		}
	}
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
