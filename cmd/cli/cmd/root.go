// Package cmd provides the CLI commands for sda.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sda-calculator/internal/config"
	"sda-calculator/internal/logging"
)

// Version is set at build time with -ldflags
var Version = "0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sda",
	Short: "Calculate NDIS Specialist Disability Accommodation payments",
	Long: `sda computes SDA payment breakdowns from dated pricing tables.

It validates a dwelling description against the SDA rules, resolves the
base price and location factor in force on a date and produces the
annual amount, the MRRC and the net NDIA payment with full lineage.

Examples:
  sda calculate --stock-type POST_2023 --building-type "Apartment, 1 bedroom, 1 resident" \
      --design-category FA --ooa-status NO_OOA --itc-claimed true \
      --region "NSW - Sydney - Inner City"
  sda options --stock-type EXISTING
  sda import base-prices prices.csv --effective-from 2025-07-01
  sda serve`,
	SilenceUsage: true,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml; SDA_* env vars override it)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if verbose {
		cfg.Logging.Level = "debug"
	}
	config.Set(cfg)

	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
	}
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sda version %s\n", Version)
	},
}
