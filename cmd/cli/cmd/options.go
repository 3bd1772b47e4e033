package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"sda-calculator/core/options"
	"sda-calculator/core/output"
	"sda-calculator/internal/app"
	"sda-calculator/internal/config"
	"sda-calculator/pkg/client"
)

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "List the legal input options",
	Long: `List stock types, building types, design categories and SA4 regions.

Building types are narrowed by --stock-type. Design categories and their
OOA statuses are listed once both --stock-type and --building-type are set.`,
	RunE: runOptions,
}

var (
	optStockType    string
	optBuildingType string
	optFormat       string
	optRemote       bool
)

func init() {
	rootCmd.AddCommand(optionsCmd)

	optionsCmd.Flags().StringVarP(&optStockType, "stock-type", "s", "", "stock type to narrow building types")
	optionsCmd.Flags().StringVarP(&optBuildingType, "building-type", "b", "", "building type to list design categories for")
	optionsCmd.Flags().StringVarP(&optFormat, "format", "f", "", "output format (cli, json)")
	optionsCmd.Flags().BoolVar(&optRemote, "remote", false, "query the API at client.base_url")
}

func runOptions(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Get()

	var (
		opts options.Options
		err  error
	)
	if optRemote {
		var remote *options.Options
		remote, err = client.New(cfg.Client.BaseURL, cfg.Client.Timeout).Options(ctx, optStockType, optBuildingType)
		if remote != nil {
			opts = *remote
		}
	} else {
		opts, err = withLocalApp(ctx, func(a *app.App) (options.Options, error) {
			return a.Engine.Options(optStockType, optBuildingType)
		})
	}
	if err != nil {
		return err
	}

	format := optFormat
	if format == "" {
		format = cfg.Output.DefaultFormat
	}
	if output.Format(format) == output.FormatJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(opts)
	}
	printOptions(cmd.OutOrStdout(), opts)
	return nil
}

func printOptions(w io.Writer, opts options.Options) {
	stocks := make([]string, 0, len(opts.StockTypes))
	for _, s := range opts.StockTypes {
		stocks = append(stocks, string(s))
	}
	fmt.Fprintf(w, "Stock types: %s\n", strings.Join(stocks, ", "))

	fmt.Fprintf(w, "\nBuilding types (%d):\n", len(opts.BuildingTypes))
	for _, bt := range opts.BuildingTypes {
		robust := ""
		if bt.AllowsRobust {
			robust = "  [robust]"
		}
		fmt.Fprintf(w, "  %-50s %d resident(s)%s\n", bt.Name, bt.ResidentCount, robust)
	}

	if len(opts.DesignCategories) > 0 {
		fmt.Fprintln(w, "\nDesign categories:")
		for _, dc := range opts.DesignCategories {
			ooa := make([]string, 0, len(dc.OOAAvailable))
			for _, o := range dc.OOAAvailable {
				ooa = append(ooa, string(o))
			}
			fmt.Fprintf(w, "  %-32s OOA: %s\n", output.DesignLabel(string(dc.Code)), strings.Join(ooa, ", "))
		}
	}

	fmt.Fprintf(w, "\nSA4 regions (%d):\n", len(opts.SA4Regions))
	for _, r := range opts.SA4Regions {
		fmt.Fprintf(w, "  %-4s %s\n", r.State, r.Name)
	}
}
