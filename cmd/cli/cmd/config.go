package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"sda-calculator/internal/config"
)

// configCmd manages configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration after file and environment overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *config.Get()
		if cfg.Database.Password != "" {
			cfg.Database.Password = "****"
		}
		if cfg.Database.URL != "" {
			cfg.Database.URL = cfg.Database.Redacted()
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write the default configuration to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Default().Save(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote default configuration to %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
