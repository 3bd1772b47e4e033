// Package ingestion - Calculator workbook source
package ingestion

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"sda-calculator/core/temporal"
	"sda-calculator/core/types"
	"sda-calculator/internal/errors"
)

// Location factor sheet layout of the published calculator workbook
const (
	SheetNewBuilds     = "Location Factors - New Builds"
	SheetOther         = "Location Factors - Other"
	SheetLegacyFactors = "Location Factors"

	firstRegionRow = 6
	lastRegionRow  = 94
	regionColumn   = 2 // B
	firstFactorCol = 3 // C is building type column 1
	factorScale    = 4
)

// WorkbookOptions tunes workbook import
type WorkbookOptions struct {
	// EffectiveFrom is the start date of every imported factor
	EffectiveFrom time.Time
}

// WorkbookSource reads SA4 regions and location factors from the
// calculator workbook.
type WorkbookSource struct {
	name string
	open func() (*excelize.File, error)
	opts WorkbookOptions
}

// NewWorkbookFile reads the workbook at path
func NewWorkbookFile(path string, opts WorkbookOptions) *WorkbookSource {
	return &WorkbookSource{
		name: path,
		open: func() (*excelize.File, error) { return excelize.OpenFile(path) },
		opts: opts,
	}
}

// NewWorkbookReader reads a workbook from r
func NewWorkbookReader(name string, r io.Reader, opts WorkbookOptions) *WorkbookSource {
	return &WorkbookSource{
		name: name,
		open: func() (*excelize.File, error) { return excelize.OpenReader(r) },
		opts: opts,
	}
}

// Name returns the source name
func (s *WorkbookSource) Name() string {
	return "workbook:" + s.name
}

// Fetch extracts every region row of each location factor sheet
func (s *WorkbookSource) Fetch(ctx context.Context) (*Batch, error) {
	xl, err := s.open()
	if err != nil {
		return nil, errors.Parsing(fmt.Sprintf("open workbook %s", s.name), err)
	}
	defer func() { _ = xl.Close() }()

	from := s.opts.EffectiveFrom
	if from.IsZero() {
		from = DefaultEffectiveFrom
	}

	sheets := factorSheets(xl.GetSheetList())
	if len(sheets) == 0 {
		return nil, errors.Parsing(fmt.Sprintf("%s: no location factor sheets (found %s)",
			s.name, strings.Join(xl.GetSheetList(), ", ")), nil)
	}

	batch := &Batch{FactorMode: FactorsReplace}
	known := make(map[string]bool)

	for _, sh := range sheets {
		for row := firstRegionRow; row <= lastRegionRow; row++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			name, err := s.cell(xl, sh.name, regionColumn, row)
			if err != nil {
				return nil, err
			}
			if name == "" {
				continue
			}
			state, err := types.StateFromRegionName(name)
			if err != nil {
				batch.Notes = append(batch.Notes, fmt.Sprintf("%s row %d: skipped %q: %v", sh.name, row, name, err))
				continue
			}
			if !known[name] {
				known[name] = true
				batch.Regions = append(batch.Regions, types.SA4Region{
					Name:         name,
					State:        state,
					DisplayOrder: len(batch.Regions) + 1,
				})
			}

			for col := types.MinLocationColumn; col <= types.MaxLocationColumn; col++ {
				raw, err := s.cell(xl, sh.name, firstFactorCol+col-1, row)
				if err != nil {
					return nil, err
				}
				if raw == "" {
					continue
				}
				factor, err := decimal.NewFromString(raw)
				if err != nil {
					batch.Notes = append(batch.Notes, fmt.Sprintf("%s row %d column %d: invalid factor %q", sh.name, row, col, raw))
					continue
				}
				batch.LocationFactors = append(batch.LocationFactors, types.LocationFactor{
					SA4Region:          name,
					StockCategory:      sh.category,
					BuildingTypeColumn: col,
					Factor:             factor.Round(factorScale),
					Interval:           temporal.OpenFrom(from),
				})
			}
		}
	}

	return batch, nil
}

func (s *WorkbookSource) cell(xl *excelize.File, sheet string, col, row int) (string, error) {
	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return "", errors.Internal("cell reference", err)
	}
	v, err := xl.GetCellValue(sheet, ref, excelize.Options{RawCellValue: true})
	if err != nil {
		return "", errors.Parsing(fmt.Sprintf("%s %s!%s", s.name, sheet, ref), err)
	}
	return strings.TrimSpace(v), nil
}

type factorSheet struct {
	name     string
	category types.StockCategory
}

// factorSheets maps workbook sheets to stock categories. Older workbooks
// carry a single sheet, which is read as new builds.
func factorSheets(names []string) []factorSheet {
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}

	var out []factorSheet
	if present[SheetNewBuilds] {
		out = append(out, factorSheet{SheetNewBuilds, types.StockCategoryNewBuilds})
	} else if present[SheetLegacyFactors] {
		out = append(out, factorSheet{SheetLegacyFactors, types.StockCategoryNewBuilds})
	}
	if present[SheetOther] {
		out = append(out, factorSheet{SheetOther, types.StockCategoryOther})
	}
	return out
}
