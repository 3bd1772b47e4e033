// Package types - Lookup table rows
package types

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"sda-calculator/core/temporal"
)

// Location factor columns run 1..11 across the published sheets
const (
	MinLocationColumn    = 1
	MaxLocationColumn    = 11
	LegacyLocationColumn = 11
)

// Table names used in lookup errors and store statistics
const (
	TableBasePrice            = "base_price"
	TableLocationFactor       = "location_factor"
	TableRentContributionRate = "rent_contribution_rate"
	TableBuildingType         = "building_type"
	TableSA4Region            = "sa4_region"
)

// BasePrice is an annual base price for one dwelling configuration
type BasePrice struct {
	ID             int64           `json:"id"`
	StockType      StockType       `json:"stock_type"`
	BuildingType   string          `json:"building_type"`
	ResidentCount  int             `json:"resident_count"`
	DesignCategory DesignCategory  `json:"design_category"`
	OOAStatus      OOAStatus       `json:"ooa_status"`
	FireSprinklers bool            `json:"fire_sprinklers"`
	ITCClaimed     *bool           `json:"itc_claimed"`
	Price          decimal.Decimal `json:"price"`
	temporal.Interval
}

// Key returns the uniqueness key of the row (everything except the interval)
func (b BasePrice) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%t|%s",
		b.StockType, b.BuildingType, b.DesignCategory, b.OOAStatus, b.FireSprinklers, FormatOptionalBool(b.ITCClaimed))
}

// LocationFactor is a regional multiplier for one location column
type LocationFactor struct {
	ID                 int64           `json:"id"`
	SA4Region          string          `json:"sa4_region"`
	StockCategory      StockCategory   `json:"stock_category"`
	BuildingTypeColumn int             `json:"building_type_column"`
	Factor             decimal.Decimal `json:"location_factor"`
	temporal.Interval
}

// Key returns the uniqueness key of the row
func (l LocationFactor) Key() string {
	return fmt.Sprintf("%s|%s|%d", l.SA4Region, l.StockCategory, l.BuildingTypeColumn)
}

// RentContributionRate is the maximum reasonable rent contribution (MRRC)
// schedule. Only the fortnightly rates feed the formula; the remaining
// amounts are the published inputs they were derived from.
type RentContributionRate struct {
	ID                    int64           `json:"id"`
	SingleRateFortnightly decimal.Decimal `json:"single_rate_fortnightly"`
	CoupleRateFortnightly decimal.Decimal `json:"couple_rate_fortnightly"`
	DSPBase               decimal.Decimal `json:"dsp_base"`
	PensionSupplement     decimal.Decimal `json:"pension_supplement"`
	CRASingle             decimal.Decimal `json:"cra_single"`
	CRACouple             decimal.Decimal `json:"cra_couple"`
	temporal.Interval
}

// BuildingType is a catalog entry describing a dwelling configuration
type BuildingType struct {
	Name                 string           `json:"name"`
	ResidentCount        int              `json:"resident_count"`
	Category             BuildingCategory `json:"building_category"`
	AllowsRobust         bool             `json:"allows_robust"`
	LocationFactorColumn int              `json:"location_factor_column"`
	DisplayOrder         int              `json:"display_order"`
}

// IsLegacy reports whether the building type is legacy (6-10 resident) stock
func (b BuildingType) IsLegacy() bool {
	return b.Category == CategoryLegacy
}

// SA4Region is an ABS statistical area used as the location key
type SA4Region struct {
	Name         string `json:"name"`
	State        State  `json:"state"`
	DisplayOrder int    `json:"display_order"`
}

// Bool returns a pointer to v
func Bool(v bool) *bool {
	return &v
}

// FormatOptionalBool renders a tri-state flag as "true", "false" or "null"
func FormatOptionalBool(v *bool) string {
	if v == nil {
		return "null"
	}
	return strconv.FormatBool(*v)
}
