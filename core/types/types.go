// Package types defines core domain types shared across all layers.
// This package contains NO business logic - only type definitions.
package types

import (
	"fmt"
	"strings"
)

// StockType is the regulatory vintage of a dwelling
type StockType string

const (
	StockPost2023 StockType = "POST_2023"
	StockPre2023  StockType = "PRE_2023"
	StockExisting StockType = "EXISTING"
	StockLegacy   StockType = "LEGACY"
)

// AllStockTypes lists stock types in presentation order
var AllStockTypes = []StockType{StockPost2023, StockPre2023, StockExisting, StockLegacy}

// String returns the string representation of the stock type
func (s StockType) String() string {
	return string(s)
}

// IsValid checks if the stock type is known
func (s StockType) IsValid() bool {
	switch s {
	case StockPost2023, StockPre2023, StockExisting, StockLegacy:
		return true
	default:
		return false
	}
}

// IsNewBuild reports whether the stock type prices against new-build location factors
func (s StockType) IsNewBuild() bool {
	return s == StockPost2023 || s == StockPre2023
}

// DesignCategory is the SDA design standard of a dwelling
type DesignCategory string

const (
	DesignBasic    DesignCategory = "BASIC"
	DesignIL       DesignCategory = "IL"
	DesignFA       DesignCategory = "FA"
	DesignRobust   DesignCategory = "ROBUST"
	DesignRobustBO DesignCategory = "ROBUST_BO"
	DesignHPS      DesignCategory = "HPS"
)

// AllDesignCategories lists design categories in presentation order
var AllDesignCategories = []DesignCategory{DesignBasic, DesignIL, DesignFA, DesignRobust, DesignRobustBO, DesignHPS}

// String returns the string representation of the design category
func (d DesignCategory) String() string {
	return string(d)
}

// IsValid checks if the design category is known
func (d DesignCategory) IsValid() bool {
	switch d {
	case DesignBasic, DesignIL, DesignFA, DesignRobust, DesignRobustBO, DesignHPS:
		return true
	default:
		return false
	}
}

// DisplayName returns the human-readable category name
func (d DesignCategory) DisplayName() string {
	switch d {
	case DesignBasic:
		return "Basic"
	case DesignIL:
		return "Improved Liveability"
	case DesignFA:
		return "Fully Accessible"
	case DesignRobust:
		return "Robust"
	case DesignRobustBO:
		return "Robust with Breakout Room"
	case DesignHPS:
		return "High Physical Support"
	default:
		return string(d)
	}
}

// OOAStatus records whether on-site overnight assistance is provided
type OOAStatus string

const (
	OOANone OOAStatus = "NO_OOA"
	OOAWith OOAStatus = "WITH_OOA"
)

// AllOOAStatuses lists OOA statuses in presentation order
var AllOOAStatuses = []OOAStatus{OOANone, OOAWith}

// String returns the string representation of the OOA status
func (o OOAStatus) String() string {
	return string(o)
}

// IsValid checks if the OOA status is known
func (o OOAStatus) IsValid() bool {
	return o == OOANone || o == OOAWith
}

// StockCategory selects the location factor sheet
type StockCategory string

const (
	StockCategoryNewBuilds StockCategory = "NEW_BUILDS"
	StockCategoryOther     StockCategory = "OTHER"
)

// String returns the string representation of the stock category
func (c StockCategory) String() string {
	return string(c)
}

// IsValid checks if the stock category is known
func (c StockCategory) IsValid() bool {
	return c == StockCategoryNewBuilds || c == StockCategoryOther
}

// BuildingCategory groups building types
type BuildingCategory string

const (
	CategoryApartment BuildingCategory = "Apartment"
	CategoryVilla     BuildingCategory = "Villa"
	CategoryHouse     BuildingCategory = "House"
	CategoryGroupHome BuildingCategory = "Group Home"
	CategoryLegacy    BuildingCategory = "Legacy"
)

// IsValid checks if the building category is known
func (c BuildingCategory) IsValid() bool {
	switch c {
	case CategoryApartment, CategoryVilla, CategoryHouse, CategoryGroupHome, CategoryLegacy:
		return true
	default:
		return false
	}
}

// State is an Australian state or territory
type State string

const (
	StateNSW State = "NSW"
	StateVIC State = "VIC"
	StateQLD State = "QLD"
	StateSA  State = "SA"
	StateWA  State = "WA"
	StateTAS State = "TAS"
	StateNT  State = "NT"
	StateACT State = "ACT"
)

// AllStates lists the known jurisdictions
var AllStates = []State{StateNSW, StateVIC, StateQLD, StateSA, StateWA, StateTAS, StateNT, StateACT}

// IsValid checks if the state is known
func (s State) IsValid() bool {
	for _, known := range AllStates {
		if s == known {
			return true
		}
	}
	return false
}

// StateFromRegionName derives the state from an SA4 region name prefix
// such as "NSW - Sydney - Inner City".
func StateFromRegionName(name string) (State, error) {
	prefix, _, _ := strings.Cut(strings.TrimSpace(name), " ")
	state := State(prefix)
	if !state.IsValid() {
		return "", fmt.Errorf("cannot derive state from region %q", name)
	}
	return state, nil
}

// ParseStockType parses and validates a stock type
func ParseStockType(s string) (StockType, error) {
	st := StockType(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("unknown stock type %q", s)
	}
	return st, nil
}

// ParseDesignCategory parses and validates a design category
func ParseDesignCategory(s string) (DesignCategory, error) {
	dc := DesignCategory(strings.ToUpper(strings.TrimSpace(s)))
	if !dc.IsValid() {
		return "", fmt.Errorf("unknown design category %q", s)
	}
	return dc, nil
}

// ParseOOAStatus parses and validates an OOA status
func ParseOOAStatus(s string) (OOAStatus, error) {
	o := OOAStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !o.IsValid() {
		return "", fmt.Errorf("unknown OOA status %q", s)
	}
	return o, nil
}

// ParseStockCategory parses and validates a stock category
func ParseStockCategory(s string) (StockCategory, error) {
	c := StockCategory(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("unknown stock category %q", s)
	}
	return c, nil
}
