package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thypress/thypress/internal/redirect"
)

var redirectsCmd = &cobra.Command{
	Use:   "redirects",
	Short: "Inspect and test the redirects table",
}

var redirectsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the redirects file for dropped or suspicious rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger()
		ctx := context.Background()

		table, problems, err := redirect.Load(cfg.RedirectsPath())
		if err != nil {
			return err
		}
		for _, problem := range problems {
			log.Warn(ctx, nil, problem)
		}
		log.Success(ctx, "redirects validated", "rules", table.Len(), "problems", len(problems))
		return nil
	},
}

var redirectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every active rule in lookup order",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		table, _, err := redirect.Load(cfg.RedirectsPath())
		if err != nil {
			return err
		}
		for _, rule := range table.Rules() {
			fmt.Fprintf(cmd.OutOrStdout(), "%d  %s -> %s\n", rule.StatusCode, rule.From, rule.To)
		}
		return nil
	},
}

var redirectsTestCmd = &cobra.Command{
	Use:   "test <path>",
	Short: "Show how a request path would redirect",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		table, _, err := redirect.Load(cfg.RedirectsPath())
		if err != nil {
			return err
		}
		match, ok := table.Lookup(args[0])
		if !ok {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: no match\n", args[0])
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%d, rule %s)\n", args[0], match.Location, match.StatusCode, match.Rule.From)
		return nil
	},
}

var redirectsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check every destination against the external-redirect policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		table, _, err := redirect.Load(cfg.RedirectsPath())
		if err != nil {
			return err
		}
		blocked := 0
		for _, rule := range table.Rules() {
			if allowed, reason := redirect.AllowExternal(&cfg.Site, rule.To); !allowed {
				fmt.Fprintf(cmd.OutOrStdout(), "BLOCKED  %s -> %s: %s\n", rule.From, rule.To, reason)
				blocked++
			}
		}
		if blocked > 0 {
			return fmt.Errorf("%d destination(s) would be blocked at runtime", blocked)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "all %d destination(s) allowed\n", table.Len())
		return nil
	},
}

func init() {
	redirectsCmd.AddCommand(redirectsValidateCmd, redirectsListCmd, redirectsTestCmd, redirectsCheckCmd)
	rootCmd.AddCommand(redirectsCmd)
}
