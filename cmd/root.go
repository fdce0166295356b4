package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/open-supply/facility-registry/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "facility-registry",
	Short: "Facility record ingestion pipeline",
	Long:  "Ingests bulk-uploaded facility lists, normalizes and geocodes each row, and resolves rows to canonical facility entities with a human review fallback.",
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
