package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sda-calculator/core/resolver"
	"sda-calculator/core/temporal"
	"sda-calculator/core/types"
	"sda-calculator/internal/errors"
)

const (
	apartment = "Apartment, 1 bedroom, 1 resident"
	legacy6   = "Legacy Stock, 6 residents"
	sydney    = "NSW - Sydney - Inner City"
	hobart    = "TAS - Hobart"
)

func day(s string) time.Time {
	d, err := temporal.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func dayPtr(s string) *time.Time {
	d := day(s)
	return &d
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testBuilder() *SnapshotBuilder {
	return NewSnapshotBuilder().
		AddBuildingTypes(
			types.BuildingType{Name: apartment, ResidentCount: 1, Category: types.CategoryApartment, LocationFactorColumn: 1, DisplayOrder: 1},
			types.BuildingType{Name: legacy6, ResidentCount: 6, Category: types.CategoryLegacy, AllowsRobust: true, LocationFactorColumn: 11, DisplayOrder: 12},
		).
		AddRegions(
			types.SA4Region{Name: sydney, State: types.StateNSW, DisplayOrder: 1},
			types.SA4Region{Name: hobart, State: types.StateTAS, DisplayOrder: 1},
		).
		AddBasePrices(
			types.BasePrice{ID: 1, StockType: types.StockPost2023, BuildingType: apartment, ResidentCount: 1, DesignCategory: types.DesignFA, OOAStatus: types.OOANone, ITCClaimed: types.Bool(true), Price: dec("36000.00"), Interval: temporal.NewInterval(day("2024-07-01"), dayPtr("2025-07-01"))},
			types.BasePrice{ID: 2, StockType: types.StockPost2023, BuildingType: apartment, ResidentCount: 1, DesignCategory: types.DesignFA, OOAStatus: types.OOANone, ITCClaimed: types.Bool(true), Price: dec("38000.00"), Interval: temporal.OpenFrom(day("2025-07-01"))},
			types.BasePrice{ID: 3, StockType: types.StockPost2023, BuildingType: apartment, ResidentCount: 1, DesignCategory: types.DesignFA, OOAStatus: types.OOANone, ITCClaimed: types.Bool(false), Price: dec("41000.00"), Interval: temporal.OpenFrom(day("2025-07-01"))},
			types.BasePrice{ID: 4, StockType: types.StockLegacy, BuildingType: legacy6, ResidentCount: 6, DesignCategory: types.DesignHPS, OOAStatus: types.OOANone, Price: dec("20000.00"), Interval: temporal.OpenFrom(day("2025-07-01"))},
		).
		AddLocationFactors(
			types.LocationFactor{ID: 1, SA4Region: sydney, StockCategory: types.StockCategoryNewBuilds, BuildingTypeColumn: 1, Factor: dec("1.1500"), Interval: temporal.OpenFrom(day("2024-07-01"))},
			types.LocationFactor{ID: 2, SA4Region: sydney, StockCategory: types.StockCategoryOther, BuildingTypeColumn: 11, Factor: dec("1.0250"), Interval: temporal.OpenFrom(day("2024-07-01"))},
		).
		AddRentRates(
			types.RentContributionRate{ID: 1, SingleRateFortnightly: dec("506.56"), CoupleRateFortnightly: dec("320.98"), Interval: temporal.OpenFrom(day("2025-03-20"))},
		)
}

func scenario() Request {
	return Request{
		StockType:      types.StockPost2023,
		BuildingType:   apartment,
		DesignCategory: types.DesignFA,
		OOAStatus:      types.OOANone,
		ITCClaimed:     types.Bool(true),
		SA4Region:      sydney,
		AsOf:           dayPtr("2025-07-01"),
	}
}

func TestCalculateScenario(t *testing.T) {
	snap := testBuilder().Build()
	engine := NewEngine(EngineConfig{}, nil)

	b, err := engine.Calculate(snap, scenario())
	require.NoError(t, err)

	assert.True(t, b.BasePrice.Equal(dec("38000")))
	assert.True(t, b.LocationFactor.Equal(dec("1.15")))
	assert.True(t, b.AnnualSDAAmount.Equal(dec("43700")), "annual %s", b.AnnualSDAAmount)
	assert.True(t, b.MRRC.Single.Annual.Equal(dec("13170.56")))
	assert.True(t, b.MRRC.Couple.Annual.Equal(dec("8345.48")))
	assert.True(t, b.NetNDIASingle.Equal(dec("30529.44")))
	assert.True(t, b.NetNDIACouple.Equal(dec("35354.52")))
	assert.Equal(t, "2025-07-01", b.EffectiveDate)
	assert.Equal(t, "2025-07-01", b.AsOf)
	assert.Equal(t, resolver.LocationKey{StockCategory: types.StockCategoryNewBuilds, Column: 1}, b.LocationKey)

	assert.Equal(t, snap.ID, b.Lineage.SnapshotID)
	assert.Equal(t, int64(2), b.Lineage.BasePriceID)
	assert.Equal(t, int64(1), b.Lineage.LocationFactorID)
	assert.Equal(t, int64(1), b.Lineage.RentRateID)
	assert.Len(t, b.Lineage.Formula, 5)
	assert.Empty(t, b.IntegrityIssues)
}

func TestCalculateUsesRowActiveAtAsOf(t *testing.T) {
	snap := testBuilder().Build()
	engine := NewEngine(EngineConfig{}, nil)

	req := scenario()
	req.AsOf = dayPtr("2025-06-30")

	b, err := engine.Calculate(snap, req)
	require.NoError(t, err)
	assert.True(t, b.BasePrice.Equal(dec("36000")))
	assert.Equal(t, "2024-07-01", b.EffectiveDate)
	assert.True(t, b.AnnualSDAAmount.Equal(dec("41400")))
}

func TestCalculateDefaultsAsOfToToday(t *testing.T) {
	snap := testBuilder().Build()
	engine := NewEngine(EngineConfig{Now: func() time.Time { return time.Date(2026, 1, 15, 18, 30, 0, 0, time.UTC) }}, nil)

	req := scenario()
	req.AsOf = nil

	b, err := engine.Calculate(snap, req)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-15", b.AsOf)
}

func TestCalculateITCSelectsRow(t *testing.T) {
	snap := testBuilder().Build()
	engine := NewEngine(EngineConfig{}, nil)

	req := scenario()
	req.ITCClaimed = types.Bool(false)

	b, err := engine.Calculate(snap, req)
	require.NoError(t, err)
	assert.True(t, b.BasePrice.Equal(dec("41000")))
	assert.Equal(t, "itc_claimed = false", b.Lineage.ITCFilter)
}

func TestCalculateLegacyUsesColumn11(t *testing.T) {
	snap := testBuilder().Build()
	engine := NewEngine(EngineConfig{}, nil)

	b, err := engine.Calculate(snap, Request{
		StockType:      types.StockLegacy,
		BuildingType:   legacy6,
		DesignCategory: types.DesignHPS,
		OOAStatus:      types.OOANone,
		SA4Region:      sydney,
		AsOf:           dayPtr("2025-07-01"),
	})
	require.NoError(t, err)
	assert.Equal(t, resolver.LocationKey{StockCategory: types.StockCategoryOther, Column: 11}, b.LocationKey)
	assert.True(t, b.AnnualSDAAmount.Equal(dec("20500")))
}

func TestCalculateIsIdempotent(t *testing.T) {
	snap := testBuilder().Build()
	engine := NewEngine(EngineConfig{}, nil)

	first, err := engine.Calculate(snap, scenario())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := engine.Calculate(snap, scenario())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCalculateNotFound(t *testing.T) {
	snap := testBuilder().Build()
	engine := NewEngine(EngineConfig{}, nil)

	tests := []struct {
		name  string
		mod   func(*Request)
		table string
	}{
		{"unknown building type", func(r *Request) { r.BuildingType = "Castle" }, types.TableBuildingType},
		{"no base price for design", func(r *Request) { r.DesignCategory = types.DesignHPS }, types.TableBasePrice},
		{"no base price before first vintage", func(r *Request) { r.AsOf = dayPtr("2020-01-01") }, types.TableBasePrice},
		{"region without factor", func(r *Request) { r.SA4Region = hobart }, types.TableLocationFactor},
		{"MRRC not yet effective", func(r *Request) {
			r.AsOf = dayPtr("2024-08-01")
		}, types.TableRentContributionRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := scenario()
			tt.mod(&req)

			b, err := engine.Calculate(snap, req)
			require.Error(t, err)
			assert.Nil(t, b)

			e, ok := errors.As(err)
			require.True(t, ok)
			assert.Equal(t, errors.TypeNotFound, e.Type)
			assert.Equal(t, tt.table, e.Table())
		})
	}
}

func TestCalculateAmbiguity(t *testing.T) {
	snap := testBuilder().
		AddLocationFactors(types.LocationFactor{ID: 9, SA4Region: sydney, StockCategory: types.StockCategoryNewBuilds, BuildingTypeColumn: 1, Factor: dec("2.0000"), Interval: temporal.OpenFrom(day("2025-01-01"))}).
		Build()

	t.Run("strict", func(t *testing.T) {
		b, err := NewEngine(EngineConfig{Ambiguity: PolicyStrict}, nil).Calculate(snap, scenario())
		require.Error(t, err)
		assert.Nil(t, b)
		e, _ := errors.As(err)
		assert.Equal(t, errors.TypeIntegrity, e.Type)
		assert.Equal(t, types.TableLocationFactor, e.Table())
	})

	t.Run("first", func(t *testing.T) {
		b, err := NewEngine(EngineConfig{Ambiguity: PolicyFirst}, nil).Calculate(snap, scenario())
		require.NoError(t, err)
		assert.True(t, b.LocationFactor.Equal(dec("1.15")))
		require.Len(t, b.IntegrityIssues, 1)
		assert.Equal(t, IntegrityIssue{Table: types.TableLocationFactor, Candidates: 2, RowID: 1}, b.IntegrityIssues[0])
	})
}

func TestComposeRounding(t *testing.T) {
	tests := []struct {
		price  string
		factor string
		want   string
	}{
		{"38000.00", "1.1500", "43700"},
		{"10001.00", "1.0005", "10006"},  // 10006.0005
		{"10000.00", "1.00005", "10001"}, // 10000.5 rounds up
		{"10001.00", "0.5000", "5001"},   // 5000.5 rounds up
		{"10000.00", "0.99994", "9999"},  // 9999.4
	}

	for _, tt := range tests {
		t.Run(tt.price+"x"+tt.factor, func(t *testing.T) {
			b := Compose(dec(tt.price), dec(tt.factor), dec("506.56"), dec("320.98"))
			assert.True(t, b.AnnualSDAAmount.Equal(dec(tt.want)), "got %s", b.AnnualSDAAmount)
			assert.True(t, b.MRRC.Single.Annual.Equal(dec("506.56").Mul(decimal.NewFromInt(26))))
		})
	}
}

func TestParseAmbiguityPolicy(t *testing.T) {
	p, err := ParseAmbiguityPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyStrict, p)

	p, err = ParseAmbiguityPolicy(" First ")
	require.NoError(t, err)
	assert.Equal(t, PolicyFirst, p)

	_, err = ParseAmbiguityPolicy("random")
	assert.Error(t, err)
}
