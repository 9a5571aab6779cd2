// Package cmd provides the thypress command-line interface.
//
// Configuration precedence, highest to lowest:
//  1. Command-line flags (--mode, --host, --port)
//  2. THYPRESS_* environment variables (THYPRESS_MODE, THYPRESS_SERVER_PORT, ...)
//     plus the bare PORT variable
//  3. config.json in the site root
//  4. Built-in defaults
package cmd

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/thypress/thypress/internal/config"
	"github.com/thypress/thypress/internal/logging"
)

var rootDir string

// rootCmd is the base command; without a subcommand it serves.
var rootCmd = &cobra.Command{
	Use:   "thypress",
	Short: "A file-first static site publisher",
	Long: `THYPRESS turns a directory of markdown, text and HTML files into a
website. It serves with live reload during writing and exports a fully
static build for publishing.

Quick start:
  thypress serve                  Serve the current directory with live reload
  thypress build                  Export a static site into build/
  thypress build --serve          Export, then preview the static output
  thypress validate               Check config, content, theme and redirects`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI, mapping any error to exit code 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger().Fatal(context.Background(), err, "unrecoverable error")
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initViper)

	// Accept underscore spellings (--log_level) alongside the dashed ones.
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.PersistentFlags().StringVarP(&rootDir, "root", "r", ".", "site root directory")
	rootCmd.PersistentFlags().String("mode", "", "serving mode (dynamic, static, static_preview)")
	rootCmd.PersistentFlags().String("host", "", "bind host")
	rootCmd.PersistentFlags().IntP("port", "p", 0, "bind port")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")

	viper.BindPFlag("mode", rootCmd.PersistentFlags().Lookup("mode"))
	viper.BindPFlag("server.host", rootCmd.PersistentFlags().Lookup("host"))
	viper.BindPFlag("server.port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initViper() {
	viper.SetEnvPrefix("THYPRESS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// loadConfig resolves the site root and merged configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(rootDir)
}

// logger builds the process logger from the log flags.
func logger() logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(viper.GetString("log.level")),
		Format: viper.GetString("log.format"),
		Output: os.Stderr,
	})
}
