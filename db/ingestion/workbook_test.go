package ingestion

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sda-calculator/core/types"
	"sda-calculator/internal/errors"
)

// buildWorkbook writes a calculator-shaped workbook. rows maps sheet name
// to region rows; each region row holds eleven factors.
func buildWorkbook(t *testing.T, rows map[string][][]any) *bytes.Buffer {
	t.Helper()
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	first := true
	for _, sheet := range []string{SheetNewBuilds, SheetOther, SheetLegacyFactors} {
		data, ok := rows[sheet]
		if !ok {
			continue
		}
		if first {
			require.NoError(t, xl.SetSheetName(xl.GetSheetName(0), sheet))
			first = false
		} else {
			_, err := xl.NewSheet(sheet)
			require.NoError(t, err)
		}
		require.NoError(t, xl.SetCellValue(sheet, "B2", "SDA Location Factors"))
		for i, row := range data {
			cell, err := excelize.CoordinatesToCellName(regionColumn, firstRegionRow+i)
			require.NoError(t, err)
			require.NoError(t, xl.SetSheetRow(sheet, cell, &row))
		}
	}

	buf, err := xl.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func factorRow(region string, factors ...any) []any {
	return append([]any{region}, factors...)
}

func elevenOf(v float64) []any {
	out := make([]any, 11)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestWorkbookSource(t *testing.T) {
	buf := buildWorkbook(t, map[string][][]any{
		SheetNewBuilds: {
			factorRow(sydney, elevenOf(1.15)...),
			factorRow("VIC - Geelong", elevenOf(1.0123456)...),
		},
		SheetOther: {
			factorRow(sydney, elevenOf(1.025)...),
			factorRow(hobart, elevenOf(0.98)...),
		},
	})

	batch, err := NewWorkbookReader("calc.xlsx", buf, WorkbookOptions{EffectiveFrom: day("2025-07-01")}).Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, FactorsReplace, batch.FactorMode)
	require.Len(t, batch.Regions, 3)
	assert.Equal(t, types.SA4Region{Name: sydney, State: types.StateNSW, DisplayOrder: 1}, batch.Regions[0])
	assert.Equal(t, types.SA4Region{Name: "VIC - Geelong", State: types.StateVIC, DisplayOrder: 2}, batch.Regions[1])
	assert.Equal(t, types.SA4Region{Name: hobart, State: types.StateTAS, DisplayOrder: 3}, batch.Regions[2])

	require.Len(t, batch.LocationFactors, 4*11)
	counts := map[types.StockCategory]int{}
	for _, f := range batch.LocationFactors {
		counts[f.StockCategory]++
		assert.Equal(t, day("2025-07-01"), f.From)
		switch {
		case f.SA4Region == "VIC - Geelong":
			assert.True(t, f.Factor.Equal(dec("1.0123")), f.Factor.String())
		case f.SA4Region == sydney && f.StockCategory == types.StockCategoryOther:
			assert.True(t, f.Factor.Equal(dec("1.025")), f.Factor.String())
		}
	}
	assert.Equal(t, 22, counts[types.StockCategoryNewBuilds])
	assert.Equal(t, 22, counts[types.StockCategoryOther])
}

func TestWorkbookColumnsMapToBuildingColumns(t *testing.T) {
	factors := make([]any, 11)
	for i := range factors {
		factors[i] = 1 + float64(i+1)/100
	}
	buf := buildWorkbook(t, map[string][][]any{SheetNewBuilds: {factorRow(sydney, factors...)}})

	batch, err := NewWorkbookReader("calc.xlsx", buf, WorkbookOptions{}).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.LocationFactors, 11)
	assert.Equal(t, 1, batch.LocationFactors[0].BuildingTypeColumn)
	assert.True(t, batch.LocationFactors[0].Factor.Equal(dec("1.01")))
	assert.Equal(t, 11, batch.LocationFactors[10].BuildingTypeColumn)
	assert.True(t, batch.LocationFactors[10].Factor.Equal(dec("1.11")))
	assert.Equal(t, DefaultEffectiveFrom, batch.LocationFactors[0].From)
}

func TestWorkbookSkipsUnusableRows(t *testing.T) {
	partial := make([]any, 11)
	partial[0] = 1.2
	partial[1] = "n/a"
	buf := buildWorkbook(t, map[string][][]any{
		SheetLegacyFactors: {
			factorRow("Notes: factors apply from 1 July", elevenOf(1)...),
			factorRow(sydney, partial...),
			{},
			factorRow(hobart, elevenOf(1)...),
		},
	})

	batch, err := NewWorkbookReader("old.xlsx", buf, WorkbookOptions{}).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Regions, 2)
	assert.Len(t, batch.LocationFactors, 1+11)
	assert.Len(t, batch.Notes, 2)
	for _, f := range batch.LocationFactors {
		assert.Equal(t, types.StockCategoryNewBuilds, f.StockCategory)
	}
}

func TestWorkbookWithoutFactorSheets(t *testing.T) {
	xl := excelize.NewFile()
	buf, err := xl.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, xl.Close())

	_, err = NewWorkbookReader("empty.xlsx", buf, WorkbookOptions{}).Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeParsing))
	assert.Contains(t, err.Error(), "Sheet1")
}
