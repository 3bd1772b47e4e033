package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sda-calculator/core/engine"
	"sda-calculator/core/output"
	"sda-calculator/core/pricing"
	"sda-calculator/internal/app"
	"sda-calculator/internal/config"
	"sda-calculator/internal/errors"
	"sda-calculator/internal/logging"
	"sda-calculator/pkg/client"
)

var calculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Calculate an SDA payment breakdown",
	Long: `Calculate the annual SDA amount, MRRC and net NDIA payment for a dwelling.

Pricing runs against the local database by default. With --remote the
request is sent to the API at client.base_url instead.

Examples:
  sda calculate --stock-type POST_2023 --building-type "Apartment, 1 bedroom, 1 resident" \
      --design-category FA --ooa-status NO_OOA --itc-claimed true \
      --region "NSW - Sydney - Inner City" --as-of 2025-07-01
  sda calculate ... --format json --lineage`,
	RunE: runCalculate,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a dwelling against the SDA eligibility rules without pricing it",
	RunE:  runValidate,
}

var (
	calcStockType      string
	calcBuildingType   string
	calcDesignCategory string
	calcOOAStatus      string
	calcFireSprinklers bool
	calcITCClaimed     string
	calcRegion         string
	calcAsOf           string
	calcFormat         string
	calcLineage        bool
	calcRemote         bool
)

func init() {
	rootCmd.AddCommand(calculateCmd)
	rootCmd.AddCommand(validateCmd)

	for _, c := range []*cobra.Command{calculateCmd, validateCmd} {
		c.Flags().StringVarP(&calcStockType, "stock-type", "s", "", "stock type (POST_2023, PRE_2023, EXISTING, LEGACY)")
		c.Flags().StringVarP(&calcBuildingType, "building-type", "b", "", "building type name")
		c.Flags().StringVarP(&calcDesignCategory, "design-category", "d", "", "design category (BASIC, IL, FA, ROBUST, ROBUST_BO, HPS)")
		c.Flags().StringVar(&calcOOAStatus, "ooa-status", "", "on-site overnight assistance (NO_OOA, WITH_OOA)")
		c.Flags().BoolVar(&calcFireSprinklers, "fire-sprinklers", false, "dwelling has fire sprinklers")
		c.Flags().StringVar(&calcITCClaimed, "itc-claimed", "", "input tax credit claimed (true, false); required for POST_2023, omit otherwise")
		c.Flags().StringVarP(&calcRegion, "region", "r", "", "SA4 region name")
	}

	calculateCmd.Flags().StringVar(&calcAsOf, "as-of", "", "price as of date YYYY-MM-DD (default today)")
	calculateCmd.Flags().StringVarP(&calcFormat, "format", "f", "", "output format (cli, json)")
	calculateCmd.Flags().BoolVar(&calcLineage, "lineage", false, "print the formula steps")
	calculateCmd.Flags().BoolVar(&calcRemote, "remote", false, "price against the API at client.base_url")
}

func calculateRequest() (engine.CalculateRequest, error) {
	req := engine.CalculateRequest{
		StockType:      calcStockType,
		BuildingType:   calcBuildingType,
		DesignCategory: calcDesignCategory,
		OOAStatus:      calcOOAStatus,
		FireSprinklers: calcFireSprinklers,
		SA4Region:      calcRegion,
		AsOf:           calcAsOf,
	}
	if s := strings.TrimSpace(calcITCClaimed); s != "" {
		itc, err := strconv.ParseBool(s)
		if err != nil {
			return req, errors.InputField("itc_claimed", fmt.Sprintf("--itc-claimed must be true or false, got %q", calcITCClaimed))
		}
		req.ITCClaimed = &itc
	}
	return req, nil
}

func runCalculate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Get()
	start := time.Now()

	// Step 1: Build the request
	req, err := calculateRequest()
	if err != nil {
		return err
	}

	// Step 2: Formatter
	format := calcFormat
	if format == "" {
		format = cfg.Output.DefaultFormat
	}
	formatter, err := formatterFor(output.Format(format), calcLineage || cfg.Output.ShowLineage)
	if err != nil {
		return err
	}

	// Step 3: Price it locally or remotely
	var (
		breakdown *pricing.Breakdown
		source    = "local"
	)
	if calcRemote {
		c := client.New(cfg.Client.BaseURL, cfg.Client.Timeout)
		source = c.BaseURL()
		breakdown, err = c.Calculate(ctx, req)
	} else {
		breakdown, err = withLocalApp(ctx, func(a *app.App) (*pricing.Breakdown, error) {
			return a.Engine.Calculate(ctx, req)
		})
	}
	if err != nil {
		return err
	}

	// Step 4: Render
	result := &output.CalculationResult{
		Request:   summarize(req),
		Breakdown: breakdown,
		Metadata: output.CalculationMetadata{
			Timestamp: start.UTC().Format(time.RFC3339),
			Duration:  time.Since(start).String(),
			Source:    source,
			Version:   Version,
		},
	}
	return formatter.Render(cmd.OutOrStdout(), result)
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	req, err := calculateRequest()
	if err != nil {
		return err
	}

	a, err := openLocalApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	violations, err := a.Engine.Validate(req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(violations) == 0 {
		fmt.Fprintln(out, "✓ Combination is eligible")
		return nil
	}
	fmt.Fprintf(out, "✗ %d rule violation(s):\n", len(violations))
	for _, v := range violations {
		fmt.Fprintf(out, "  - [%s] %s: %s\n", v.Rule, v.Field, v.Message)
	}
	return errors.Newf(errors.TypeValidation, "%d rule violation(s)", len(violations))
}

// summarize echoes the request with enumerations in canonical case
func summarize(req engine.CalculateRequest) output.RequestSummary {
	canonical := func(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
	return output.RequestSummary{
		StockType:      canonical(req.StockType),
		BuildingType:   strings.TrimSpace(req.BuildingType),
		DesignCategory: canonical(req.DesignCategory),
		OOAStatus:      canonical(req.OOAStatus),
		FireSprinklers: req.FireSprinklers,
		ITCClaimed:     req.ITCClaimed,
		SA4Region:      strings.TrimSpace(req.SA4Region),
	}
}

func formatterFor(format output.Format, lineage bool) (output.Formatter, error) {
	registry := output.NewRegistry()
	registry.Register(output.NewCLIFormatter(lineage))
	f, err := registry.Get(format)
	if err != nil {
		return nil, errors.Config("output format", err)
	}
	return f, nil
}

// openLocalApp opens the configured database and loads its snapshot
func openLocalApp(ctx context.Context) (*app.App, error) {
	cfg := *config.Get()
	cfg.Refresh.Enabled = false
	return app.New(ctx, &cfg, Version, logging.Named("sda"))
}

func withLocalApp[T any](ctx context.Context, fn func(*app.App) (T, error)) (T, error) {
	var zero T
	a, err := openLocalApp(ctx)
	if err != nil {
		return zero, err
	}
	defer a.Close()
	return fn(a)
}
