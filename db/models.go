package db

import (
	"time"

	"github.com/shopspring/decimal"

	"sda-calculator/core/temporal"
	"sda-calculator/core/types"
)

// BasePriceRecord is the base_prices row
type BasePriceRecord struct {
	ID             int64           `gorm:"primaryKey"`
	StockType      string          `gorm:"size:20;not null;index:idx_base_price_lookup,priority:1"`
	BuildingType   string          `gorm:"size:100;not null;index:idx_base_price_lookup,priority:2"`
	ResidentCount  int             `gorm:"not null"`
	DesignCategory string          `gorm:"size:20;not null;index:idx_base_price_lookup,priority:3"`
	OOAStatus      string          `gorm:"column:ooa_status;size:10;not null;index:idx_base_price_lookup,priority:4"`
	FireSprinklers bool            `gorm:"not null;index:idx_base_price_lookup,priority:5"`
	ITCClaimed     *bool           `gorm:"column:itc_claimed;index:idx_base_price_lookup,priority:6"`
	Price          decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	EffectiveFrom  time.Time       `gorm:"type:date;not null;index:idx_base_price_lookup,priority:7"`
	EffectiveTo    *time.Time      `gorm:"type:date"`
}

// TableName overrides the table name
func (BasePriceRecord) TableName() string { return "base_prices" }

// LocationFactorRecord is the location_factors row
type LocationFactorRecord struct {
	ID                 int64           `gorm:"primaryKey"`
	SA4Region          string          `gorm:"column:sa4_region;size:100;not null;index:idx_location_factor_lookup,priority:1"`
	StockCategory      string          `gorm:"size:20;not null;index:idx_location_factor_lookup,priority:2"`
	BuildingTypeColumn int             `gorm:"not null;index:idx_location_factor_lookup,priority:3"`
	LocationFactor     decimal.Decimal `gorm:"type:numeric(5,4);not null"`
	EffectiveFrom      time.Time       `gorm:"type:date;not null;index:idx_location_factor_lookup,priority:4"`
	EffectiveTo        *time.Time      `gorm:"type:date"`
}

// TableName overrides the table name
func (LocationFactorRecord) TableName() string { return "location_factors" }

// RentRateRecord is the mrrc_rates row
type RentRateRecord struct {
	ID                    int64           `gorm:"primaryKey"`
	EffectiveFrom         time.Time       `gorm:"type:date;not null;index:idx_mrrc_effective"`
	EffectiveTo           *time.Time      `gorm:"type:date"`
	SingleRateFortnightly decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	CoupleRateFortnightly decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	DSPBase               decimal.Decimal `gorm:"column:dsp_base;type:numeric(10,2);not null"`
	PensionSupplement     decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	CRASingle             decimal.Decimal `gorm:"column:cra_single;type:numeric(10,2);not null"`
	CRACouple             decimal.Decimal `gorm:"column:cra_couple;type:numeric(10,2);not null"`
}

// TableName overrides the table name
func (RentRateRecord) TableName() string { return "mrrc_rates" }

// BuildingTypeRecord is the building_types row
type BuildingTypeRecord struct {
	ID                   int64  `gorm:"primaryKey"`
	Name                 string `gorm:"size:100;not null;uniqueIndex"`
	ResidentCount        int    `gorm:"not null"`
	BuildingCategory     string `gorm:"size:50;not null"`
	AllowsRobust         bool   `gorm:"not null"`
	LocationFactorColumn int    `gorm:"not null"`
	DisplayOrder         int    `gorm:"not null"`
}

// TableName overrides the table name
func (BuildingTypeRecord) TableName() string { return "building_types" }

// SA4RegionRecord is the sa4_regions row
type SA4RegionRecord struct {
	ID           int64  `gorm:"primaryKey"`
	Name         string `gorm:"size:100;not null;uniqueIndex"`
	State        string `gorm:"size:10;not null"`
	DisplayOrder int    `gorm:"not null"`
}

// TableName overrides the table name
func (SA4RegionRecord) TableName() string { return "sa4_regions" }

func allModels() []any {
	return []any{
		&BasePriceRecord{},
		&LocationFactorRecord{},
		&RentRateRecord{},
		&BuildingTypeRecord{},
		&SA4RegionRecord{},
	}
}

func dateOnly(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := temporal.Day(*t)
	return &d
}

func (r BasePriceRecord) toDomain() types.BasePrice {
	return types.BasePrice{
		ID:             r.ID,
		StockType:      types.StockType(r.StockType),
		BuildingType:   r.BuildingType,
		ResidentCount:  r.ResidentCount,
		DesignCategory: types.DesignCategory(r.DesignCategory),
		OOAStatus:      types.OOAStatus(r.OOAStatus),
		FireSprinklers: r.FireSprinklers,
		ITCClaimed:     r.ITCClaimed,
		Price:          r.Price,
		Interval:       temporal.NewInterval(r.EffectiveFrom, r.EffectiveTo),
	}
}

func basePriceRecord(p types.BasePrice) BasePriceRecord {
	return BasePriceRecord{
		StockType:      string(p.StockType),
		BuildingType:   p.BuildingType,
		ResidentCount:  p.ResidentCount,
		DesignCategory: string(p.DesignCategory),
		OOAStatus:      string(p.OOAStatus),
		FireSprinklers: p.FireSprinklers,
		ITCClaimed:     p.ITCClaimed,
		Price:          p.Price,
		EffectiveFrom:  temporal.Day(p.From),
		EffectiveTo:    dateOnly(p.To),
	}
}

func (r LocationFactorRecord) toDomain() types.LocationFactor {
	return types.LocationFactor{
		ID:                 r.ID,
		SA4Region:          r.SA4Region,
		StockCategory:      types.StockCategory(r.StockCategory),
		BuildingTypeColumn: r.BuildingTypeColumn,
		Factor:             r.LocationFactor,
		Interval:           temporal.NewInterval(r.EffectiveFrom, r.EffectiveTo),
	}
}

func locationFactorRecord(f types.LocationFactor) LocationFactorRecord {
	return LocationFactorRecord{
		SA4Region:          f.SA4Region,
		StockCategory:      string(f.StockCategory),
		BuildingTypeColumn: f.BuildingTypeColumn,
		LocationFactor:     f.Factor,
		EffectiveFrom:      temporal.Day(f.From),
		EffectiveTo:        dateOnly(f.To),
	}
}

func (r RentRateRecord) toDomain() types.RentContributionRate {
	return types.RentContributionRate{
		ID:                    r.ID,
		SingleRateFortnightly: r.SingleRateFortnightly,
		CoupleRateFortnightly: r.CoupleRateFortnightly,
		DSPBase:               r.DSPBase,
		PensionSupplement:     r.PensionSupplement,
		CRASingle:             r.CRASingle,
		CRACouple:             r.CRACouple,
		Interval:              temporal.NewInterval(r.EffectiveFrom, r.EffectiveTo),
	}
}

func rentRateRecord(r types.RentContributionRate) RentRateRecord {
	return RentRateRecord{
		EffectiveFrom:         temporal.Day(r.From),
		EffectiveTo:           dateOnly(r.To),
		SingleRateFortnightly: r.SingleRateFortnightly,
		CoupleRateFortnightly: r.CoupleRateFortnightly,
		DSPBase:               r.DSPBase,
		PensionSupplement:     r.PensionSupplement,
		CRASingle:             r.CRASingle,
		CRACouple:             r.CRACouple,
	}
}

func (r BuildingTypeRecord) toDomain() types.BuildingType {
	return types.BuildingType{
		Name:                 r.Name,
		ResidentCount:        r.ResidentCount,
		Category:             types.BuildingCategory(r.BuildingCategory),
		AllowsRobust:         r.AllowsRobust,
		LocationFactorColumn: r.LocationFactorColumn,
		DisplayOrder:         r.DisplayOrder,
	}
}

func buildingTypeRecord(b types.BuildingType) BuildingTypeRecord {
	return BuildingTypeRecord{
		Name:                 b.Name,
		ResidentCount:        b.ResidentCount,
		BuildingCategory:     string(b.Category),
		AllowsRobust:         b.AllowsRobust,
		LocationFactorColumn: b.LocationFactorColumn,
		DisplayOrder:         b.DisplayOrder,
	}
}

func (r SA4RegionRecord) toDomain() types.SA4Region {
	return types.SA4Region{Name: r.Name, State: types.State(r.State), DisplayOrder: r.DisplayOrder}
}

func regionRecord(r types.SA4Region) SA4RegionRecord {
	return SA4RegionRecord{Name: r.Name, State: string(r.State), DisplayOrder: r.DisplayOrder}
}
