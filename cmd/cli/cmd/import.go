package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"sda-calculator/core/temporal"
	"sda-calculator/db"
	"sda-calculator/db/ingestion"
	"sda-calculator/internal/app"
	"sda-calculator/internal/config"
	"sda-calculator/internal/errors"
	"sda-calculator/internal/logging"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import pricing tables (operator only)",
	Long: `Import pricing tables into the configured database.

Every import runs the same pipeline:
  1. FETCH    - Read and normalize the source (no DB writes)
  2. GOVERN   - Check overlaps, references and ranges (abort on any error)
  3. COMMIT   - Write the batch

Use --dry-run to stop after governance.`,
}

var importSeedCmd = &cobra.Command{
	Use:   "seed [file]",
	Short: "Import reference data from an HCL seed file (default: built-in seed)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runImportSeed,
}

var importBasePricesCmd = &cobra.Command{
	Use:   "base-prices <csv-file>",
	Short: "Import a base price list from CSV",
	Long: `Import base prices from a CSV file with the header

  stock_type,building_type,resident_count,design_category,ooa_status,fire_sprinklers,itc_claimed,price[,effective_from,effective_to]

With --supersede, open rows for the imported keys are closed the day
before --effective-from so the new price list takes over from that date.`,
	Args: cobra.ExactArgs(1),
	RunE: runImportBasePrices,
}

var importWorkbookCmd = &cobra.Command{
	Use:   "workbook <xlsx-file>",
	Short: "Import location factors from an Excel workbook",
	Args:  cobra.ExactArgs(1),
	RunE:  runImportWorkbook,
}

var (
	importDryRun        bool
	importEffectiveFrom string
	importSupersede     bool
	importJSON          bool
	importTimeout       time.Duration
)

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importSeedCmd)
	importCmd.AddCommand(importBasePricesCmd)
	importCmd.AddCommand(importWorkbookCmd)

	importCmd.PersistentFlags().BoolVar(&importDryRun, "dry-run", false, "validate only, no database writes")
	importCmd.PersistentFlags().BoolVar(&importJSON, "json", false, "print the report as JSON")
	importCmd.PersistentFlags().DurationVar(&importTimeout, "timeout", 5*time.Minute, "timeout for the import")

	importBasePricesCmd.Flags().StringVar(&importEffectiveFrom, "effective-from", "", "start date YYYY-MM-DD for rows without one (default 2025-07-01)")
	importBasePricesCmd.Flags().BoolVar(&importSupersede, "supersede", false, "close open rows for the imported keys")
	importWorkbookCmd.Flags().StringVar(&importEffectiveFrom, "effective-from", "", "start date YYYY-MM-DD of every factor (default 2025-07-01)")
}

func runImportSeed(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	src, err := app.SeedSource(path)
	if err != nil {
		return err
	}
	return runImport(cmd, src)
}

func runImportBasePrices(cmd *cobra.Command, args []string) error {
	from, err := effectiveFrom()
	if err != nil {
		return err
	}
	return runImport(cmd, ingestion.NewBasePriceCSV(args[0], ingestion.CSVOptions{
		EffectiveFrom: from,
		Supersede:     importSupersede,
	}))
}

func runImportWorkbook(cmd *cobra.Command, args []string) error {
	from, err := effectiveFrom()
	if err != nil {
		return err
	}
	return runImport(cmd, ingestion.NewWorkbookFile(args[0], ingestion.WorkbookOptions{EffectiveFrom: from}))
}

func effectiveFrom() (time.Time, error) {
	if importEffectiveFrom == "" {
		return time.Time{}, nil
	}
	from, err := temporal.ParseDate(importEffectiveFrom)
	if err != nil {
		return time.Time{}, errors.InputField("effective_from", err.Error())
	}
	return from, nil
}

func runImport(cmd *cobra.Command, src ingestion.Source) error {
	ctx, cancel := context.WithTimeout(context.Background(), importTimeout)
	defer cancel()

	store, err := app.OpenStore(ctx, config.Get().Database, logging.Named("db"))
	if err != nil {
		return err
	}
	defer store.Close()

	report, runErr := ingestion.NewPipeline(store, logging.Named("ingestion")).
		WithDryRun(importDryRun).
		Run(ctx, src)
	if report != nil {
		if importJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			printReport(cmd.OutOrStdout(), report)
		}
	}
	return runErr
}

func printReport(w io.Writer, r *ingestion.Report) {
	fmt.Fprintln(w, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                      IMPORT REPORT                           ║")
	fmt.Fprintln(w, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintf(w, "Batch:    %s\n", r.BatchID)
	fmt.Fprintf(w, "Source:   %s\n", r.Source)
	fmt.Fprintf(w, "Duration: %s\n", r.Duration)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-18s %8s %8s\n", "TABLE", "FETCHED", "WRITTEN")
	printCounts(w, r.Fetched, r.Written)
	if r.Closed > 0 {
		fmt.Fprintf(w, "\nClosed %d superseded base price row(s)\n", r.Closed)
	}

	if len(r.Issues) > 0 {
		fmt.Fprintf(w, "\nIssues (%d, %d blocking):\n", len(r.Issues), ingestion.CountErrors(r.Issues))
		for _, issue := range r.Issues {
			fmt.Fprintf(w, "  - %s\n", issue)
		}
	}

	fmt.Fprintln(w)
	switch {
	case r.Committed:
		fmt.Fprintln(w, "✓ Batch committed")
	case r.DryRun && ingestion.CountErrors(r.Issues) == 0:
		fmt.Fprintln(w, "✓ Dry run passed, nothing written")
	default:
		fmt.Fprintln(w, "✗ Nothing committed")
	}
}

func printCounts(w io.Writer, fetched, written db.TableCounts) {
	rows := []struct {
		name    string
		fetched int64
		written int64
	}{
		{"building_types", fetched.BuildingTypes, written.BuildingTypes},
		{"sa4_regions", fetched.Regions, written.Regions},
		{"mrrc_rates", fetched.RentRates, written.RentRates},
		{"location_factors", fetched.LocationFactors, written.LocationFactors},
		{"base_prices", fetched.BasePrices, written.BasePrices},
	}
	for _, row := range rows {
		fmt.Fprintf(w, "  %-18s %8d %8d\n", row.name, row.fetched, row.written)
	}
}
