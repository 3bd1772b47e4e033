package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sda-calculator/db"
	"sda-calculator/db/ingestion"
	"sda-calculator/internal/app"
	"sda-calculator/internal/config"
	"sda-calculator/internal/errors"
	"sda-calculator/internal/logging"
	"sda-calculator/pkg/client"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Inspect the pricing tables",
}

var tablesStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show table row counts and the current snapshot",
	RunE:  runTablesStatus,
}

var tablesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Audit stored tables for overlapping or dangling rows",
	Long: `Load every stored row and run the governance checks against it.

Reports overlapping intervals for the same key, more than one active
MRRC rate, unknown building types or regions and out of range values.
Exits non-zero when any error is found.`,
	RunE: runTablesCheck,
}

var tablesRemote bool

func init() {
	rootCmd.AddCommand(tablesCmd)
	tablesCmd.AddCommand(tablesStatusCmd)
	tablesCmd.AddCommand(tablesCheckCmd)

	tablesStatusCmd.Flags().BoolVar(&tablesRemote, "remote", false, "query the API at client.base_url")
}

func runTablesStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Get()
	out := cmd.OutOrStdout()

	if tablesRemote {
		status, err := client.New(cfg.Client.BaseURL, cfg.Client.Timeout).DBStatus(ctx)
		if err != nil {
			return err
		}
		printTableCounts(cmd, status.Stats, status.Initialized)
		if status.Snapshot != nil {
			fmt.Fprintf(out, "\nServing snapshot %s (%s), loaded %s\n",
				status.Snapshot.ID, status.Snapshot.Source, status.Snapshot.LoadedAt)
		}
		return nil
	}

	store, err := app.OpenStore(ctx, cfg.Database, logging.Named("db"))
	if err != nil {
		return err
	}
	defer store.Close()

	status, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	printTableCounts(cmd, status.Tables, status.Initialized)

	snap, err := store.LoadSnapshot(ctx, db.LoadOptions{})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nSnapshot %s (hash %s)\n", snap.ID, snap.ContentHash.Short())
	return nil
}

func printTableCounts(cmd *cobra.Command, counts db.TableCounts, initialized bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "  %-18s %8s\n", "TABLE", "ROWS")
	fmt.Fprintf(out, "  %-18s %8d\n", "building_types", counts.BuildingTypes)
	fmt.Fprintf(out, "  %-18s %8d\n", "sa4_regions", counts.Regions)
	fmt.Fprintf(out, "  %-18s %8d\n", "mrrc_rates", counts.RentRates)
	fmt.Fprintf(out, "  %-18s %8d\n", "location_factors", counts.LocationFactors)
	fmt.Fprintf(out, "  %-18s %8d\n", "base_prices", counts.BasePrices)
	if initialized {
		fmt.Fprintln(out, "\n✓ Full import present")
	} else {
		fmt.Fprintln(out, "\n✗ Tables hold less than a full import; some calculations will return NOT_FOUND")
	}
}

func runTablesCheck(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	store, err := app.OpenStore(ctx, config.Get().Database, logging.Named("db"))
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := store.LoadSnapshot(ctx, db.LoadOptions{})
	if err != nil {
		return err
	}

	issues := ingestion.NewGovernor().Audit(snap)
	if len(issues) == 0 {
		fmt.Fprintf(out, "✓ Snapshot %s passed all checks\n", snap.ID)
		return nil
	}

	for _, issue := range issues {
		fmt.Fprintf(out, "  - %s\n", issue)
	}
	n := ingestion.CountErrors(issues)
	logging.Warn("table audit found issues",
		zap.String("snapshot", string(snap.ID)),
		zap.Int("issues", len(issues)),
		zap.Int("errors", n))
	fmt.Fprintf(out, "\n%d issue(s), %d error(s)\n", len(issues), n)
	if n > 0 {
		return errors.Newf(errors.TypeIntegrity, "%d table integrity error(s)", n)
	}
	return nil
}
