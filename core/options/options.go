// Package options derives the legal value sets for a partially filled request.
// Every set is computed from the predicates in package rules.
package options

import (
	mapset "github.com/deckarep/golang-set/v2"

	"sda-calculator/core/rules"
	"sda-calculator/core/types"
)

// Catalog is the reference data the provider enumerates
type Catalog interface {
	BuildingTypes() []types.BuildingType
	Regions() []types.SA4Region
	FindBuildingType(name string) (types.BuildingType, error)
}

// BuildingTypeOption is an offered building type
type BuildingTypeOption struct {
	Name          string                 `json:"name"`
	ResidentCount int                    `json:"resident_count"`
	Category      types.BuildingCategory `json:"building_category"`
	AllowsRobust  bool                   `json:"allows_robust"`
}

// DesignCategoryOption is an offered design category with its legal OOA statuses
type DesignCategoryOption struct {
	Code         types.DesignCategory `json:"code"`
	Name         string               `json:"name"`
	OOAAvailable []types.OOAStatus    `json:"ooa_available"`
}

// RegionOption is an offered SA4 region
type RegionOption struct {
	Name  string      `json:"name"`
	State types.State `json:"state"`
}

// Options is the aggregate returned for a partial input.
// Design categories are only present when both stock type and a catalogued
// building type were given.
type Options struct {
	StockTypes       []types.StockType      `json:"stock_types"`
	BuildingTypes    []BuildingTypeOption   `json:"building_types"`
	DesignCategories []DesignCategoryOption `json:"design_categories,omitempty"`
	SA4Regions       []RegionOption         `json:"sa4_regions"`
}

// Provider enumerates legal options against a catalog
type Provider struct {
	catalog Catalog
}

// NewProvider creates an options provider
func NewProvider(catalog Catalog) *Provider {
	return &Provider{catalog: catalog}
}

// StockTypes returns every stock type
func (p *Provider) StockTypes() []types.StockType {
	return append([]types.StockType(nil), types.AllStockTypes...)
}

// BuildingTypes returns the building types legal for a stock type, in
// display order. A nil stock type returns all of them.
func (p *Provider) BuildingTypes(stock *types.StockType) []BuildingTypeOption {
	result := []BuildingTypeOption{}
	for _, bt := range p.catalog.BuildingTypes() {
		if stock != nil && !rules.BuildingAllowedForStock(*stock, bt.Category) {
			continue
		}
		result = append(result, BuildingTypeOption{
			Name:          bt.Name,
			ResidentCount: bt.ResidentCount,
			Category:      bt.Category,
			AllowsRobust:  bt.AllowsRobust,
		})
	}
	return result
}

// DesignCategories returns the design categories legal for a stock type and
// catalogued building type. Unknown buildings yield nothing.
func (p *Provider) DesignCategories(stock types.StockType, buildingType string) []DesignCategoryOption {
	bt, err := p.catalog.FindBuildingType(buildingType)
	if err != nil {
		return nil
	}

	result := []DesignCategoryOption{}
	for _, design := range types.AllDesignCategories {
		if !rules.BasicAllowedForStock(stock, design) {
			continue
		}
		if !rules.DesignAllowedForBuilding(design, bt.AllowsRobust) {
			continue
		}
		result = append(result, DesignCategoryOption{
			Code:         design,
			Name:         design.DisplayName(),
			OOAAvailable: rules.OOAStatuses(stock, design),
		})
	}
	return result
}

// Regions returns every region ordered by state, then display order
func (p *Provider) Regions() []RegionOption {
	result := []RegionOption{}
	for _, r := range p.catalog.Regions() {
		result = append(result, RegionOption{Name: r.Name, State: r.State})
	}
	return result
}

// Options builds the aggregate for an optional stock type and building type
func (p *Provider) Options(stock *types.StockType, buildingType *string) Options {
	opts := Options{
		StockTypes:    p.StockTypes(),
		BuildingTypes: p.BuildingTypes(stock),
		SA4Regions:    p.Regions(),
	}
	if stock != nil && buildingType != nil {
		opts.DesignCategories = p.DesignCategories(*stock, *buildingType)
	}
	return opts
}

// Offered reports whether the combination is reachable through the options:
// the building is offered for the stock type and the (design, ooa) pair is
// offered for that building.
func (p *Provider) Offered(stock types.StockType, buildingType string, design types.DesignCategory, ooa types.OOAStatus) bool {
	buildings := mapset.NewSet[string]()
	for _, bt := range p.BuildingTypes(&stock) {
		buildings.Add(bt.Name)
	}
	if !buildings.Contains(buildingType) {
		return false
	}

	for _, d := range p.DesignCategories(stock, buildingType) {
		if d.Code != design {
			continue
		}
		return mapset.NewSet(d.OOAAvailable...).Contains(ooa)
	}
	return false
}
