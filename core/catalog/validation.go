// Package catalog - Catalog validation
// Ensures catalog integrity before a catalog is used for pricing.
package catalog

import (
	"fmt"
	"strings"

	"sda-calculator/core/types"
)

// BuildingTypeRule is a building type validation rule
type BuildingTypeRule func(types.BuildingType) error

// RegionRule is a region validation rule
type RegionRule func(types.SA4Region) error

// DefaultBuildingTypeRules returns the standard building type rules
func DefaultBuildingTypeRules() []BuildingTypeRule {
	return []BuildingTypeRule{
		validateBuildingName,
		validateBuildingCategory,
		validateLocationColumn,
		validateLegacyColumn,
		validateResidentCount,
	}
}

// DefaultRegionRules returns the standard region rules
func DefaultRegionRules() []RegionRule {
	return []RegionRule{
		validateRegionState,
	}
}

// Validate checks the catalog against the default rules.
// Errors are returned in display order.
func (c *Catalog) Validate() []error {
	var errs []error

	for _, bt := range c.BuildingTypes() {
		for _, rule := range DefaultBuildingTypeRules() {
			if err := rule(bt); err != nil {
				errs = append(errs, fmt.Errorf("building type %q: %w", bt.Name, err))
			}
		}
	}

	for _, r := range c.Regions() {
		for _, rule := range DefaultRegionRules() {
			if err := rule(r); err != nil {
				errs = append(errs, fmt.Errorf("region %q: %w", r.Name, err))
			}
		}
	}

	return errs
}

func validateBuildingName(bt types.BuildingType) error {
	if strings.TrimSpace(bt.Name) == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

func validateBuildingCategory(bt types.BuildingType) error {
	if !bt.Category.IsValid() {
		return fmt.Errorf("unknown building category %q", bt.Category)
	}
	return nil
}

func validateLocationColumn(bt types.BuildingType) error {
	if bt.LocationFactorColumn < types.MinLocationColumn || bt.LocationFactorColumn > types.MaxLocationColumn {
		return fmt.Errorf("location factor column %d outside %d-%d",
			bt.LocationFactorColumn, types.MinLocationColumn, types.MaxLocationColumn)
	}
	return nil
}

// Legacy stock always prices against the last column
func validateLegacyColumn(bt types.BuildingType) error {
	if bt.IsLegacy() && bt.LocationFactorColumn != types.LegacyLocationColumn {
		return fmt.Errorf("legacy building type must use column %d, got %d",
			types.LegacyLocationColumn, bt.LocationFactorColumn)
	}
	return nil
}

func validateResidentCount(bt types.BuildingType) error {
	if bt.ResidentCount < 1 {
		return fmt.Errorf("resident count must be positive, got %d", bt.ResidentCount)
	}
	return nil
}

func validateRegionState(r types.SA4Region) error {
	state, err := types.StateFromRegionName(r.Name)
	if err != nil {
		return err
	}
	if state != r.State {
		return fmt.Errorf("state %s does not match name prefix %s", r.State, state)
	}
	return nil
}
