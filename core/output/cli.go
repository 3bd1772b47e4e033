package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"sda-calculator/core/determinism"
	"sda-calculator/core/types"
)

const boxWidth = 73

// CLIFormatter renders a boxed text summary
type CLIFormatter struct {
	showLineage bool
}

// NewCLIFormatter creates a CLI formatter
func NewCLIFormatter(showLineage bool) *CLIFormatter {
	return &CLIFormatter{showLineage: showLineage}
}

// Format returns FormatCLI
func (f *CLIFormatter) Format() Format {
	return FormatCLI
}

// Render writes the summary
func (f *CLIFormatter) Render(w io.Writer, result *CalculationResult) error {
	b := result.Breakdown
	if b == nil {
		return fmt.Errorf("no breakdown to render")
	}

	p := &printer{w: w}
	p.rule("┌", "┐")
	p.center("SDA PAYMENT BREAKDOWN")
	p.rule("├", "┤")
	p.row("Stock type", result.Request.StockType)
	p.row("Building type", result.Request.BuildingType)
	p.row("Design category", DesignLabel(result.Request.DesignCategory))
	p.row("OOA", result.Request.OOAStatus)
	p.row("Fire sprinklers", yesNo(result.Request.FireSprinklers))
	if result.Request.ITCClaimed != nil {
		p.row("ITC claimed", yesNo(*result.Request.ITCClaimed))
	}
	p.row("SA4 region", result.Request.SA4Region)
	p.rule("├", "┤")
	p.row("Base price", money(b.BasePrice))
	p.row("Location factor", b.LocationFactor.StringFixed(4))
	p.row("Annual SDA amount", money(b.AnnualSDAAmount))
	p.row("MRRC single (fortnightly)", money(b.MRRC.Single.Fortnightly))
	p.row("MRRC single (annual)", money(b.MRRC.Single.Annual))
	p.row("MRRC couple (fortnightly)", money(b.MRRC.Couple.Fortnightly))
	p.row("MRRC couple (annual)", money(b.MRRC.Couple.Annual))
	p.rule("├", "┤")
	p.row("NET NDIA (single)", money(b.NetNDIASingle))
	p.row("NET NDIA (couple)", money(b.NetNDIACouple))
	p.rule("└", "┘")

	p.printf("\nPrices effective %s, calculated as of %s\n", b.EffectiveDate, b.AsOf)

	if f.showLineage {
		p.printf("Snapshot %s, location key %s, %s\n", b.Lineage.SnapshotID, b.LocationKey, b.Lineage.ITCFilter)
		for _, step := range b.Lineage.Formula {
			p.printf("  %-20s %s = %s\n", step.Name, step.Expression, step.Output)
		}
	}

	for _, issue := range b.IntegrityIssues {
		p.printf("WARNING: %d active %s rows matched; row %d was used\n", issue.Candidates, issue.Table, issue.RowID)
	}

	if result.Metadata.Duration != "" {
		p.printf("\nCalculation completed in %s\n", result.Metadata.Duration)
	}
	return p.err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) rule(left, right string) {
	p.printf("%s%s%s\n", left, strings.Repeat("─", boxWidth), right)
}

func (p *printer) center(title string) {
	pad := (boxWidth - len(title)) / 2
	p.printf("│%s%s%s│\n", strings.Repeat(" ", pad), title, strings.Repeat(" ", boxWidth-pad-len(title)))
}

func (p *printer) row(label, value string) {
	p.printf("│ %-30s %40s │\n", label, truncate(value, 40))
}

func money(d decimal.Decimal) string {
	return determinism.NewMoneyFromDecimal(d).Display()
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// DesignLabel renders a design category code with its display name
func DesignLabel(code string) string {
	d, err := types.ParseDesignCategory(code)
	if err != nil {
		return code
	}
	return fmt.Sprintf("%s (%s)", d.DisplayName(), d)
}
