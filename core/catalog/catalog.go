// Package catalog - Building type and SA4 region reference lists
// The catalog is the source of truth for which building types exist and
// which location factor column each one prices against.
package catalog

import (
	"sda-calculator/core/determinism"
	"sda-calculator/core/types"
	"sda-calculator/internal/errors"
)

// Catalog holds the building type catalog and the SA4 region list
type Catalog struct {
	buildingTypes map[string]types.BuildingType
	regions       map[string]types.SA4Region
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{
		buildingTypes: make(map[string]types.BuildingType),
		regions:       make(map[string]types.SA4Region),
	}
}

// RegisterBuildingType adds or replaces a building type
func (c *Catalog) RegisterBuildingType(bt types.BuildingType) {
	c.buildingTypes[bt.Name] = bt
}

// RegisterRegion adds or replaces a region
func (c *Catalog) RegisterRegion(r types.SA4Region) {
	c.regions[r.Name] = r
}

// FindBuildingType returns the catalog entry for a building type name
func (c *Catalog) FindBuildingType(name string) (types.BuildingType, error) {
	bt, ok := c.buildingTypes[name]
	if !ok {
		return types.BuildingType{}, errors.NotFound(types.TableBuildingType, name)
	}
	return bt, nil
}

// FindRegion returns the region entry for a name
func (c *Catalog) FindRegion(name string) (types.SA4Region, error) {
	r, ok := c.regions[name]
	if !ok {
		return types.SA4Region{}, errors.NotFound(types.TableSA4Region, name)
	}
	return r, nil
}

// BuildingTypes returns all building types ordered by display order
func (c *Catalog) BuildingTypes() []types.BuildingType {
	result := make([]types.BuildingType, 0, len(c.buildingTypes))
	for _, bt := range c.buildingTypes {
		result = append(result, bt)
	}
	determinism.SortSlice(result, func(a, b types.BuildingType) bool {
		if a.DisplayOrder != b.DisplayOrder {
			return a.DisplayOrder < b.DisplayOrder
		}
		return a.Name < b.Name
	})
	return result
}

// Regions returns all regions ordered by state code, then display order
func (c *Catalog) Regions() []types.SA4Region {
	result := make([]types.SA4Region, 0, len(c.regions))
	for _, r := range c.regions {
		result = append(result, r)
	}
	determinism.SortSlice(result, func(a, b types.SA4Region) bool {
		if a.State != b.State {
			return a.State < b.State
		}
		if a.DisplayOrder != b.DisplayOrder {
			return a.DisplayOrder < b.DisplayOrder
		}
		return a.Name < b.Name
	})
	return result
}

// Stats returns catalog statistics
func (c *Catalog) Stats() CatalogStats {
	stats := CatalogStats{
		BuildingTypes: len(c.buildingTypes),
		Regions:       len(c.regions),
		ByCategory:    make(map[types.BuildingCategory]int),
		ByState:       make(map[types.State]int),
	}
	for _, bt := range c.buildingTypes {
		stats.ByCategory[bt.Category]++
	}
	for _, r := range c.regions {
		stats.ByState[r.State]++
	}
	return stats
}

// CatalogStats holds catalog statistics
type CatalogStats struct {
	BuildingTypes int
	Regions       int
	ByCategory    map[types.BuildingCategory]int
	ByState       map[types.State]int
}
