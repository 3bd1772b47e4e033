package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sda-calculator/internal/app"
	"sda-calculator/internal/config"
	"sda-calculator/internal/logging"
	"sda-calculator/pkg/client"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the calculator HTTP API",
	Long: `Start the HTTP API on the configured address.

Empty tables are seeded with the reference data on first start, and the
served snapshot is reloaded from the database on the refresh schedule.`,
	RunE: runServe,
}

var (
	serveAddr      string
	serveNoRefresh bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveNoRefresh, "no-refresh", false, "serve the startup snapshot without periodic reloads")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := *config.Get()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveNoRefresh {
		cfg.Refresh.Enabled = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logging.Sync()

	a, err := app.New(ctx, &cfg, Version, logging.Named("sda"))
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintf(cmd.ErrOrStderr(), "SDA Calculator API v%s listening on %s\n", Version, cfg.Server.Addr)
	logging.Debug("serve config",
		zap.String("database", cfg.Database.Driver),
		zap.Bool("refresh", cfg.Refresh.Enabled),
		zap.String("schedule", cfg.Refresh.Schedule),
	)
	return a.Run(ctx)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the API at client.base_url",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		c := client.New(cfg.Client.BaseURL, cfg.Client.Timeout)
		h, err := c.Health(context.Background())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is %s (database %s)\n", c.BaseURL(), h.Status, h.Database)
		return nil
	},
}
