// Package resolver derives the effective lookup keys of a calculation
// from the raw inputs and the building type catalog.
package resolver

import (
	"fmt"

	"sda-calculator/core/types"
	"sda-calculator/internal/errors"
)

// BuildingTypeFinder looks up a catalogued building type
type BuildingTypeFinder interface {
	FindBuildingType(name string) (types.BuildingType, error)
}

// LocationKey selects a location factor row for a region
type LocationKey struct {
	StockCategory types.StockCategory `json:"stock_category"`
	Column        int                 `json:"building_type_column"`
}

// String returns the key as CATEGORY/column
func (k LocationKey) String() string {
	return fmt.Sprintf("%s/%d", k.StockCategory, k.Column)
}

// StockCategoryFor maps a stock type onto its location factor sheet
func StockCategoryFor(stock types.StockType) types.StockCategory {
	if stock.IsNewBuild() {
		return types.StockCategoryNewBuilds
	}
	return types.StockCategoryOther
}

// ResolveLocationKey derives the location factor key for a building.
// Legacy stock always reads the legacy column, whatever the catalog says.
func ResolveLocationKey(stock types.StockType, buildingType string, catalog BuildingTypeFinder) (LocationKey, error) {
	bt, err := catalog.FindBuildingType(buildingType)
	if err != nil {
		if e, ok := errors.As(err); ok && e.Is(errors.TypeNotFound) {
			return LocationKey{}, err
		}
		return LocationKey{}, errors.NotFound(types.TableBuildingType, buildingType)
	}

	key := LocationKey{
		StockCategory: StockCategoryFor(stock),
		Column:        bt.LocationFactorColumn,
	}
	if stock == types.StockLegacy {
		key.Column = types.LegacyLocationColumn
	}
	return key, nil
}

// ITCMode describes how a base price row's itc_claimed column is matched
type ITCMode int

const (
	// ITCExact matches the caller-supplied value
	ITCExact ITCMode = iota
	// ITCTrue forces itc_claimed = true
	ITCTrue
	// ITCNull forces itc_claimed IS NULL
	ITCNull
	// ITCNever matches no row
	ITCNever
)

// String returns the mode name
func (m ITCMode) String() string {
	switch m {
	case ITCExact:
		return "exact"
	case ITCTrue:
		return "true"
	case ITCNull:
		return "null"
	case ITCNever:
		return "never"
	default:
		return "unknown"
	}
}

// ITCFilter is the predicate applied to a base price row's itc_claimed
type ITCFilter struct {
	Mode  ITCMode
	Value bool
}

// Matches reports whether a row's itc_claimed satisfies the filter
func (f ITCFilter) Matches(itc *bool) bool {
	switch f.Mode {
	case ITCExact:
		return itc != nil && *itc == f.Value
	case ITCTrue:
		return itc != nil && *itc
	case ITCNull:
		return itc == nil
	default:
		return false
	}
}

// String renders the predicate for lineage and log output
func (f ITCFilter) String() string {
	switch f.Mode {
	case ITCExact:
		return fmt.Sprintf("itc_claimed = %t", f.Value)
	case ITCTrue:
		return "itc_claimed = true"
	case ITCNull:
		return "itc_claimed IS NULL"
	default:
		return "itc_claimed unresolved"
	}
}

// ResolveITCFilter derives the ITC predicate for a stock type.
// POST_2023 requires a caller value; the boundary rejects a missing one,
// and a nil here resolves to a filter that matches nothing.
func ResolveITCFilter(stock types.StockType, itcClaimed *bool) ITCFilter {
	switch stock {
	case types.StockPost2023:
		if itcClaimed == nil {
			return ITCFilter{Mode: ITCNever}
		}
		return ITCFilter{Mode: ITCExact, Value: *itcClaimed}
	case types.StockPre2023:
		return ITCFilter{Mode: ITCTrue}
	default:
		return ITCFilter{Mode: ITCNull}
	}
}
