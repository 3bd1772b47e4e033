package db

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sda-calculator/core/pricing"
	"sda-calculator/core/resolver"
	"sda-calculator/core/rules"
	"sda-calculator/core/temporal"
	"sda-calculator/core/types"
	"sda-calculator/internal/errors"
)

const (
	apartment = "Apartment, 1 bedroom, 1 resident"
	sydney    = "NSW - Sydney - Inner City"
)

func setupStore(t *testing.T) *GormStore {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// every pooled connection to :memory: is a separate database
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store := NewGormStore(gdb, nil)
	require.NoError(t, store.EnsureSchema(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

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

func apartmentPrice(price, from string, itc *bool) types.BasePrice {
	return types.BasePrice{
		StockType:      types.StockPost2023,
		BuildingType:   apartment,
		ResidentCount:  1,
		DesignCategory: types.DesignFA,
		OOAStatus:      types.OOANone,
		ITCClaimed:     itc,
		Price:          dec(price),
		Interval:       temporal.OpenFrom(day(from)),
	}
}

func seedReference(t *testing.T, store *GormStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.SaveBuildingTypes(ctx, []types.BuildingType{
		{Name: apartment, ResidentCount: 1, Category: types.CategoryApartment, LocationFactorColumn: 1, DisplayOrder: 1},
	})
	require.NoError(t, err)
	_, err = store.SaveRegions(ctx, []types.SA4Region{{Name: sydney, State: types.StateNSW, DisplayOrder: 1}})
	require.NoError(t, err)
	_, err = store.SaveRentRates(ctx, []types.RentContributionRate{{
		SingleRateFortnightly: dec("506.56"),
		CoupleRateFortnightly: dec("320.98"),
		DSPBase:               dec("1053.50"),
		PensionSupplement:     dec("81.60"),
		CRASingle:             dec("186.80"),
		CRACouple:             dec("176.00"),
		Interval:              temporal.OpenFrom(day("2025-03-20")),
	}})
	require.NoError(t, err)
	_, err = store.ReplaceLocationFactors(ctx, []types.LocationFactor{{
		SA4Region: sydney, StockCategory: types.StockCategoryNewBuilds, BuildingTypeColumn: 1,
		Factor: dec("1.1500"), Interval: temporal.OpenFrom(day("2024-07-01")),
	}})
	require.NoError(t, err)
	_, err = store.SaveBasePrices(ctx, []types.BasePrice{apartmentPrice("38000.00", "2025-07-01", types.Bool(true))})
	require.NoError(t, err)
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	store := setupStore(t)
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, store.Ping(context.Background()))
}

func TestLoadSnapshotPricesScenario(t *testing.T) {
	store := setupStore(t)
	seedReference(t, store)

	snap, err := store.LoadSnapshot(context.Background(), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, pricing.SourceDatabase, snap.Source)
	assert.True(t, snap.Verify())

	engine := pricing.NewEngine(pricing.EngineConfig{}, nil)
	got, err := engine.Calculate(snap, pricing.Request{
		StockType:      types.StockPost2023,
		BuildingType:   apartment,
		DesignCategory: types.DesignFA,
		OOAStatus:      types.OOANone,
		ITCClaimed:     types.Bool(true),
		SA4Region:      sydney,
		AsOf:           dayPtr("2025-07-01"),
	})
	require.NoError(t, err)
	assert.True(t, got.AnnualSDAAmount.Equal(dec("43700")), got.AnnualSDAAmount.String())
	assert.True(t, got.MRRC.Single.Annual.Equal(dec("13170.56")), got.MRRC.Single.Annual.String())
	assert.True(t, got.NetNDIASingle.Equal(dec("30529.44")), got.NetNDIASingle.String())
	assert.Equal(t, "2025-07-01", got.EffectiveDate)
}

func TestLoadSnapshotRoundTripsRows(t *testing.T) {
	store := setupStore(t)
	seedReference(t, store)

	snap, err := store.LoadSnapshot(context.Background(), LoadOptions{})
	require.NoError(t, err)

	rates := snap.RentRates()
	require.Len(t, rates, 1)
	assert.True(t, rates[0].CRACouple.Equal(dec("176.00")))
	assert.Equal(t, day("2025-03-20"), rates[0].From)
	assert.Nil(t, rates[0].To)

	prices := snap.BasePrices()
	require.Len(t, prices, 1)
	require.NotNil(t, prices[0].ITCClaimed)
	assert.True(t, *prices[0].ITCClaimed)
	assert.NotZero(t, prices[0].ID)

	bt, err := snap.FindBuildingType(apartment)
	require.NoError(t, err)
	assert.Equal(t, types.CategoryApartment, bt.Category)
}

func TestLoadSnapshotRetiredBefore(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	old := apartmentPrice("36000.00", "2024-07-01", types.Bool(true))
	old.To = dayPtr("2025-07-01")
	_, err := store.SaveBasePrices(ctx, []types.BasePrice{old, apartmentPrice("38000.00", "2025-07-01", types.Bool(true))})
	require.NoError(t, err)

	full, err := store.LoadSnapshot(ctx, LoadOptions{})
	require.NoError(t, err)
	assert.Len(t, full.BasePrices(), 2)

	pruned, err := store.LoadSnapshot(ctx, LoadOptions{RetiredBefore: day("2025-07-01")})
	require.NoError(t, err)
	require.Len(t, pruned.BasePrices(), 1)
	assert.True(t, pruned.BasePrices()[0].Price.Equal(dec("38000")))
}

func TestSaveRegionsInsertsOnlyMissing(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	regions := []types.SA4Region{
		{Name: sydney, State: types.StateNSW, DisplayOrder: 1},
		{Name: "TAS - Hobart", State: types.StateTAS, DisplayOrder: 1},
	}

	n, err := store.SaveRegions(ctx, regions)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.SaveRegions(ctx, append(regions, types.SA4Region{Name: "VIC - Geelong", State: types.StateVIC, DisplayOrder: 2}))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Tables.Regions)
}

func TestSaveBuildingTypesUpserts(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	bt := types.BuildingType{Name: "House, 2 residents", ResidentCount: 2, Category: types.CategoryHouse, AllowsRobust: false, LocationFactorColumn: 7, DisplayOrder: 9}
	_, err := store.SaveBuildingTypes(ctx, []types.BuildingType{bt})
	require.NoError(t, err)

	bt.AllowsRobust = true
	_, err = store.SaveBuildingTypes(ctx, []types.BuildingType{bt})
	require.NoError(t, err)

	snap, err := store.LoadSnapshot(ctx, LoadOptions{})
	require.NoError(t, err)
	got, err := snap.FindBuildingType(bt.Name)
	require.NoError(t, err)
	assert.True(t, got.AllowsRobust)
	assert.Equal(t, 1, snap.Stats().BuildingTypes)
}

func TestSaveBuildingTypesKeepsRobustFalse(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	bt := types.BuildingType{Name: apartment, ResidentCount: 1, Category: types.CategoryApartment, AllowsRobust: false, LocationFactorColumn: 1, DisplayOrder: 1}
	for i := 0; i < 2; i++ {
		_, err := store.SaveBuildingTypes(ctx, []types.BuildingType{bt})
		require.NoError(t, err)
	}

	var rec BuildingTypeRecord
	require.NoError(t, store.DB().Where("name = ?", apartment).First(&rec).Error)
	assert.False(t, rec.AllowsRobust)

	snap, err := store.LoadSnapshot(ctx, LoadOptions{})
	require.NoError(t, err)
	got, err := snap.FindBuildingType(apartment)
	require.NoError(t, err)
	assert.False(t, got.AllowsRobust)

	violations := rules.Validate(rules.NewInput(types.StockPost2023, got, types.DesignRobust, types.OOANone))
	require.Len(t, violations, 1)
	assert.Equal(t, rules.FieldDesignCategory, violations[0].Field)
}

func TestSaveRentRatesSkipsKnownEffectiveDate(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	rate := types.RentContributionRate{SingleRateFortnightly: dec("506.56"), CoupleRateFortnightly: dec("320.98"), Interval: temporal.OpenFrom(day("2025-03-20"))}

	n, err := store.SaveRentRates(ctx, []types.RentContributionRate{rate})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.SaveRentRates(ctx, []types.RentContributionRate{rate})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSaveRentRatesClosesPreviousOpenRow(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	march := types.RentContributionRate{SingleRateFortnightly: dec("506.56"), CoupleRateFortnightly: dec("320.98"), Interval: temporal.OpenFrom(day("2025-03-20"))}
	september := types.RentContributionRate{SingleRateFortnightly: dec("512.10"), CoupleRateFortnightly: dec("324.40"), Interval: temporal.OpenFrom(day("2025-09-20"))}

	n, err := store.SaveRentRates(ctx, []types.RentContributionRate{september, march})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snap, err := store.LoadSnapshot(ctx, LoadOptions{})
	require.NoError(t, err)

	m, err := snap.FindRentContributionRate(day("2025-09-19"))
	require.NoError(t, err)
	assert.False(t, m.Ambiguous())
	assert.True(t, m.Row.SingleRateFortnightly.Equal(dec("506.56")))

	m, err = snap.FindRentContributionRate(day("2025-09-20"))
	require.NoError(t, err)
	assert.False(t, m.Ambiguous())
	assert.True(t, m.Row.SingleRateFortnightly.Equal(dec("512.10")))
}

func TestReplaceLocationFactors(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	factor := func(col int, f string) types.LocationFactor {
		return types.LocationFactor{SA4Region: sydney, StockCategory: types.StockCategoryOther, BuildingTypeColumn: col, Factor: dec(f), Interval: temporal.OpenFrom(day("2024-07-01"))}
	}

	n, err := store.ReplaceLocationFactors(ctx, []types.LocationFactor{factor(1, "1.0100"), factor(2, "1.0200")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.ReplaceLocationFactors(ctx, []types.LocationFactor{factor(11, "1.0250")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	snap, err := store.LoadSnapshot(ctx, LoadOptions{})
	require.NoError(t, err)
	require.Len(t, snap.LocationFactors(), 1)

	m, err := snap.FindLocationFactor(sydney, resolver.LocationKey{StockCategory: types.StockCategoryOther, Column: 11}, day("2025-07-01"))
	require.NoError(t, err)
	assert.True(t, m.Row.Factor.Equal(dec("1.025")))
}

func TestSupersedeBasePrices(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := store.SaveBasePrices(ctx, []types.BasePrice{
		apartmentPrice("36000.00", "2024-07-01", types.Bool(true)),
		apartmentPrice("39000.00", "2024-07-01", types.Bool(false)),
	})
	require.NoError(t, err)

	res, err := store.SupersedeBasePrices(ctx, day("2025-07-01"), []types.BasePrice{
		apartmentPrice("38000.00", "2000-01-01", types.Bool(true)),
	})
	require.NoError(t, err)
	assert.Equal(t, SupersedeResult{Closed: 1, Inserted: 1}, res)

	snap, err := store.LoadSnapshot(ctx, LoadOptions{})
	require.NoError(t, err)

	key := pricing.BasePriceKey{
		StockType:      types.StockPost2023,
		BuildingType:   apartment,
		DesignCategory: types.DesignFA,
		OOAStatus:      types.OOANone,
		ITC:            resolver.ITCFilter{Mode: resolver.ITCExact, Value: true},
	}

	tests := []struct {
		asOf string
		want string
	}{
		{"2025-06-30", "36000"},
		{"2025-07-01", "38000"},
		{"2026-01-01", "38000"},
	}
	for _, tt := range tests {
		t.Run(tt.asOf, func(t *testing.T) {
			m, err := snap.FindBasePrice(key, day(tt.asOf))
			require.NoError(t, err)
			assert.False(t, m.Ambiguous())
			assert.True(t, m.Row.Price.Equal(dec(tt.want)), m.Row.Price.String())
		})
	}

	// the ITC=false row is a different key and stays open
	key.ITC.Value = false
	m, err := snap.FindBasePrice(key, day("2026-01-01"))
	require.NoError(t, err)
	assert.True(t, m.Row.Price.Equal(dec("39000")))
}

func TestStats(t *testing.T) {
	store := setupStore(t)
	seedReference(t, store)

	st, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TableCounts{BasePrices: 1, LocationFactors: 1, RentRates: 1, BuildingTypes: 1, Regions: 1}, st.Tables)
	assert.False(t, st.Initialized)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "mysql"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeConfig))
}

func TestOpenSQLiteFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = t.TempDir() + "/sda.db"

	store, err := Open(cfg, nil)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.EnsureSchema(context.Background()))
	st, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.Tables.BasePrices)
}
