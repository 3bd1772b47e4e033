// Package rules - Eligibility rules for SDA input combinations
// Each rule is a (predicate, violation) pair. The same predicates are used
// in enumerate mode by the options provider, so whatever Validate accepts is
// exactly what the options offer.
//
// The rule set, in evaluation order:
//
//	basic_requires_existing_stock          BASIC only for EXISTING stock
//	robust_requires_capable_building       ROBUST and ROBUST_BO need allows_robust
//	basic_requires_no_ooa                  BASIC only with NO_OOA
//	legacy_stock_requires_legacy_building  LEGACY stock only on Legacy buildings
//	legacy_building_requires_legacy_stock  Legacy buildings only for LEGACY stock
//	legacy_stock_requires_no_ooa           LEGACY stock only with NO_OOA
//
// The last two close the gap between validation and what the options
// provider enumerates for Legacy buildings and Legacy stock.
package rules

import (
	mapset "github.com/deckarep/golang-set/v2"

	"sda-calculator/core/types"
	"sda-calculator/internal/errors"
)

// Field names reported on violations
const (
	FieldStockType      = "stock_type"
	FieldBuildingType   = "building_type"
	FieldDesignCategory = "design_category"
	FieldOOAStatus      = "ooa_status"
)

var robustCategories = mapset.NewSet(types.DesignRobust, types.DesignRobustBO)

// IsRobust reports whether a design category needs a robust-capable building
func IsRobust(d types.DesignCategory) bool {
	return robustCategories.Contains(d)
}

// Input is the combination a rule is evaluated against
type Input struct {
	StockType        types.StockType
	BuildingType     string
	BuildingCategory types.BuildingCategory
	DesignCategory   types.DesignCategory
	OOAStatus        types.OOAStatus
	AllowsRobust     bool
}

// NewInput builds a rule input from a catalogued building type
func NewInput(stock types.StockType, bt types.BuildingType, design types.DesignCategory, ooa types.OOAStatus) Input {
	return Input{
		StockType:        stock,
		BuildingType:     bt.Name,
		BuildingCategory: bt.Category,
		DesignCategory:   design,
		OOAStatus:        ooa,
		AllowsRobust:     bt.AllowsRobust,
	}
}

// Violation is a broken rule attributed to an input field
type Violation struct {
	Rule    string `json:"rule"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Rule pairs a predicate that must hold with the violation reported otherwise
type Rule struct {
	Name    string
	Field   string
	Message string
	Holds   func(Input) bool
}

// Rules is the full rule set, evaluated in order without short-circuit
var Rules = []Rule{
	{
		Name:    "basic_requires_existing_stock",
		Field:   FieldDesignCategory,
		Message: "Basic design category is only available for Existing Stock",
		Holds:   func(in Input) bool { return BasicAllowedForStock(in.StockType, in.DesignCategory) },
	},
	{
		Name:    "robust_requires_capable_building",
		Field:   FieldDesignCategory,
		Message: "Robust design categories are not available for Apartments",
		Holds:   func(in Input) bool { return DesignAllowedForBuilding(in.DesignCategory, in.AllowsRobust) },
	},
	{
		Name:    "basic_requires_no_ooa",
		Field:   FieldOOAStatus,
		Message: "Basic design category is only available without On-site Overnight Assistance",
		Holds:   func(in Input) bool { return in.DesignCategory != types.DesignBasic || in.OOAStatus == types.OOANone },
	},
	{
		Name:    "legacy_stock_requires_legacy_building",
		Field:   FieldBuildingType,
		Message: "Legacy stock type requires Legacy Stock building types (6-10 residents)",
		Holds:   func(in Input) bool { return in.StockType != types.StockLegacy || in.BuildingCategory == types.CategoryLegacy },
	},
	{
		Name:    "legacy_building_requires_legacy_stock",
		Field:   FieldBuildingType,
		Message: "Legacy Stock building types are only available for Legacy stock type",
		Holds:   func(in Input) bool { return in.StockType == types.StockLegacy || in.BuildingCategory != types.CategoryLegacy },
	},
	{
		Name:    "legacy_stock_requires_no_ooa",
		Field:   FieldOOAStatus,
		Message: "Legacy stock type is only available without On-site Overnight Assistance",
		Holds:   func(in Input) bool { return in.StockType != types.StockLegacy || in.OOAStatus == types.OOANone },
	},
}

// Validate evaluates every rule and returns the violations in rule order.
// An empty result means the combination is legal.
func Validate(in Input) []Violation {
	var violations []Violation
	for _, r := range Rules {
		if !r.Holds(in) {
			violations = append(violations, Violation{Rule: r.Name, Field: r.Field, Message: r.Message})
		}
	}
	return violations
}

// FieldErrors converts violations into error fields
func FieldErrors(violations []Violation) []errors.FieldError {
	fields := make([]errors.FieldError, 0, len(violations))
	for _, v := range violations {
		fields = append(fields, errors.FieldError{Field: v.Field, Message: v.Message})
	}
	return fields
}

// BasicAllowedForStock reports whether design is legal for the stock type
func BasicAllowedForStock(stock types.StockType, design types.DesignCategory) bool {
	return design != types.DesignBasic || stock == types.StockExisting
}

// DesignAllowedForBuilding reports whether design is legal for the building
func DesignAllowedForBuilding(design types.DesignCategory, allowsRobust bool) bool {
	return !IsRobust(design) || allowsRobust
}

// BuildingAllowedForStock reports whether a building category may be used
// with the stock type. Legacy buildings go with Legacy stock and nothing else.
func BuildingAllowedForStock(stock types.StockType, category types.BuildingCategory) bool {
	return (stock == types.StockLegacy) == (category == types.CategoryLegacy)
}

// OOAStatuses returns the OOA statuses legal for a stock type and design
func OOAStatuses(stock types.StockType, design types.DesignCategory) []types.OOAStatus {
	if design == types.DesignBasic || stock == types.StockLegacy {
		return []types.OOAStatus{types.OOANone}
	}
	return []types.OOAStatus{types.OOANone, types.OOAWith}
}
