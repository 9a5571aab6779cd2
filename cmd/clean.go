package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove generated artifacts",
	Long: `Clean deletes the build output and the derivative cache directory.
Both are reconstructed on demand, so this is always safe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger()
		ctx := context.Background()

		for _, dir := range []string{cfg.BuildDir(), cfg.CacheDir()} {
			if err := os.RemoveAll(dir); err != nil {
				return err
			}
			log.Info(ctx, "removed", "dir", dir)
		}
		log.Success(ctx, "clean complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
