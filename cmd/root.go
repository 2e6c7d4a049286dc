package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chadRoberge/avitar-suite-sub003/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "avitar-assess",
	Short: "Municipal property assessment engine",
	Long:  "Calculates land, building, and parcel assessed values for municipal tax years and runs mass or selective recalculations.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
