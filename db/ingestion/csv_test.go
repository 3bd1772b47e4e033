package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sda-calculator/core/types"
	"sda-calculator/internal/errors"
)

const priceList = `stock_type,building_type,resident_count,design_category,ooa_status,fire_sprinklers,itc_claimed,price
POST_2023,"Apartment, 1 bedroom, 1 resident",1,FA,NO_OOA,false,true,38000.00
POST_2023,"Apartment, 1 bedroom, 1 resident",1,FA,NO_OOA,false,false,"$41,000.00"
EXISTING,"Apartment, 1 bedroom, 1 resident",1,BASIC,NO_OOA,True,,21000
`

func TestBasePriceCSV(t *testing.T) {
	batch, err := NewBasePriceCSVReader("prices.csv", strings.NewReader(priceList), CSVOptions{}).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.BasePrices, 3)
	assert.Nil(t, batch.SupersedeFrom)

	first := batch.BasePrices[0]
	assert.Equal(t, types.StockPost2023, first.StockType)
	assert.Equal(t, apartment, first.BuildingType)
	assert.Equal(t, types.DesignFA, first.DesignCategory)
	require.NotNil(t, first.ITCClaimed)
	assert.True(t, *first.ITCClaimed)
	assert.True(t, first.Price.Equal(dec("38000")))
	assert.Equal(t, day("2025-07-01"), first.From)
	assert.True(t, first.IsOpen())

	assert.True(t, batch.BasePrices[1].Price.Equal(dec("41000")))

	third := batch.BasePrices[2]
	assert.Nil(t, third.ITCClaimed)
	assert.True(t, third.FireSprinklers)
}

func TestBasePriceCSVEffectiveDates(t *testing.T) {
	data := `stock_type,building_type,resident_count,design_category,ooa_status,fire_sprinklers,itc_claimed,price,effective_from,effective_to
PRE_2023,House,2,HPS,WITH_OOA,false,true,90000,2024-07-01,2025-07-01
PRE_2023,House,2,HPS,WITH_OOA,false,true,95000,,
`
	batch, err := NewBasePriceCSVReader("dated.csv", strings.NewReader(data), CSVOptions{EffectiveFrom: day("2026-07-01"), Supersede: true}).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.BasePrices, 2)

	require.NotNil(t, batch.SupersedeFrom)
	assert.Equal(t, day("2026-07-01"), *batch.SupersedeFrom)

	assert.Equal(t, day("2024-07-01"), batch.BasePrices[0].From)
	require.NotNil(t, batch.BasePrices[0].To)
	assert.Equal(t, day("2025-07-01"), *batch.BasePrices[0].To)
	assert.Equal(t, day("2026-07-01"), batch.BasePrices[1].From)
}

func TestBasePriceCSVErrors(t *testing.T) {
	header := "stock_type,building_type,resident_count,design_category,ooa_status,fire_sprinklers,itc_claimed,price\n"
	tests := []struct {
		name     string
		data     string
		contains string
	}{
		{"missing column", "stock_type,building_type\nPOST_2023,x\n", `missing column "resident_count"`},
		{"bad stock type", header + "NEW,x,1,FA,NO_OOA,false,true,1\n", "line 2"},
		{"bad itc", header + "POST_2023,x,1,FA,NO_OOA,false,maybe,1\n", "itc_claimed"},
		{"bad price", header + "POST_2023,x,1,FA,NO_OOA,false,true,abc\n", "price"},
		{"bad residents", header + "EXISTING,x,1,FA,NO_OOA,false,,1\nEXISTING,x,two,FA,NO_OOA,false,,1\n", "line 3"},
		{"empty file", "", "header"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBasePriceCSVReader("bad.csv", strings.NewReader(tt.data), CSVOptions{}).Fetch(context.Background())
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.TypeParsing))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestBasePriceCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte(priceList), 0600))

	src := NewBasePriceCSV(path, CSVOptions{})
	assert.Equal(t, "csv:"+path, src.Name())
	batch, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, batch.BasePrices, 3)

	_, err = NewBasePriceCSV(path+".missing", CSVOptions{}).Fetch(context.Background())
	assert.True(t, errors.IsType(err, errors.TypeParsing))
}
