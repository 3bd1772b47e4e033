// Package pricing provides immutable table snapshots and the SDA pricing engine.
package pricing

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"sda-calculator/core/catalog"
	"sda-calculator/core/determinism"
	"sda-calculator/core/resolver"
	"sda-calculator/core/temporal"
	"sda-calculator/core/types"
	"sda-calculator/internal/errors"
)

// SnapshotID uniquely identifies a table snapshot
type SnapshotID string

// Source indicates where snapshot data came from
type Source int

const (
	SourceDatabase Source = iota // From the table store
	SourceSeed                   // From a reference seed file
	SourceManual                 // Assembled in code
)

// String returns the source name
func (s Source) String() string {
	switch s {
	case SourceDatabase:
		return "database"
	case SourceSeed:
		return "seed"
	case SourceManual:
		return "manual"
	default:
		return "unknown"
	}
}

// Snapshot is IMMUTABLE after creation.
// It holds every versioned row of the three rate tables plus the catalog,
// in natural (id) order.
type Snapshot struct {
	ID          SnapshotID
	ContentHash determinism.ContentHash
	CreatedAt   time.Time
	Source      Source

	basePrices      []types.BasePrice
	locationFactors []types.LocationFactor
	rentRates       []types.RentContributionRate
	catalog         *catalog.Catalog

	sealed bool
}

// SnapshotStats counts the rows in a snapshot
type SnapshotStats struct {
	BasePrices      int `json:"base_prices"`
	LocationFactors int `json:"location_factors"`
	RentRates       int `json:"rent_contribution_rates"`
	BuildingTypes   int `json:"building_types"`
	Regions         int `json:"sa4_regions"`
}

// SnapshotBuilder builds a snapshot
type SnapshotBuilder struct {
	source          Source
	createdAt       time.Time
	basePrices      []types.BasePrice
	locationFactors []types.LocationFactor
	rentRates       []types.RentContributionRate
	buildingTypes   []types.BuildingType
	regions         []types.SA4Region
}

// NewSnapshotBuilder creates a new builder
func NewSnapshotBuilder() *SnapshotBuilder {
	return &SnapshotBuilder{
		source:    SourceManual,
		createdAt: time.Now().UTC(),
	}
}

// WithSource sets the snapshot source
func (b *SnapshotBuilder) WithSource(source Source) *SnapshotBuilder {
	b.source = source
	return b
}

// WithCreatedAt sets the creation time
func (b *SnapshotBuilder) WithCreatedAt(t time.Time) *SnapshotBuilder {
	b.createdAt = t
	return b
}

// AddBasePrices appends base price rows
func (b *SnapshotBuilder) AddBasePrices(rows ...types.BasePrice) *SnapshotBuilder {
	b.basePrices = append(b.basePrices, rows...)
	return b
}

// AddLocationFactors appends location factor rows
func (b *SnapshotBuilder) AddLocationFactors(rows ...types.LocationFactor) *SnapshotBuilder {
	b.locationFactors = append(b.locationFactors, rows...)
	return b
}

// AddRentRates appends MRRC rows
func (b *SnapshotBuilder) AddRentRates(rows ...types.RentContributionRate) *SnapshotBuilder {
	b.rentRates = append(b.rentRates, rows...)
	return b
}

// AddBuildingTypes registers catalog entries
func (b *SnapshotBuilder) AddBuildingTypes(rows ...types.BuildingType) *SnapshotBuilder {
	b.buildingTypes = append(b.buildingTypes, rows...)
	return b
}

// AddRegions registers SA4 regions
func (b *SnapshotBuilder) AddRegions(rows ...types.SA4Region) *SnapshotBuilder {
	b.regions = append(b.regions, rows...)
	return b
}

// Build creates an immutable snapshot. Rows keep their insertion order,
// except that rows carrying ids are stably ordered by id.
func (b *SnapshotBuilder) Build() *Snapshot {
	basePrices := append([]types.BasePrice(nil), b.basePrices...)
	determinism.SortSlice(basePrices, func(x, y types.BasePrice) bool { return x.ID < y.ID })

	locationFactors := append([]types.LocationFactor(nil), b.locationFactors...)
	determinism.SortSlice(locationFactors, func(x, y types.LocationFactor) bool { return x.ID < y.ID })

	rentRates := append([]types.RentContributionRate(nil), b.rentRates...)
	determinism.SortSlice(rentRates, func(x, y types.RentContributionRate) bool { return x.ID < y.ID })

	cat := catalog.NewCatalog()
	for _, bt := range b.buildingTypes {
		cat.RegisterBuildingType(bt)
	}
	for _, r := range b.regions {
		cat.RegisterRegion(r)
	}

	snap := &Snapshot{
		CreatedAt:       b.createdAt,
		Source:          b.source,
		basePrices:      basePrices,
		locationFactors: locationFactors,
		rentRates:       rentRates,
		catalog:         cat,
	}

	snap.ContentHash = snap.computeHash()
	snap.ID = SnapshotID(snap.ContentHash.Short())
	snap.sealed = true

	return snap
}

// computeHash creates a content hash of every row
func (s *Snapshot) computeHash() determinism.ContentHash {
	h := sha256.New()
	write := func(table string, v any) {
		data, _ := json.Marshal(v)
		h.Write([]byte(table))
		h.Write([]byte{0})
		h.Write(data)
		h.Write([]byte{0})
	}

	for _, r := range s.basePrices {
		write(types.TableBasePrice, r)
	}
	for _, r := range s.locationFactors {
		write(types.TableLocationFactor, r)
	}
	for _, r := range s.rentRates {
		write(types.TableRentContributionRate, r)
	}
	for _, r := range s.catalog.BuildingTypes() {
		write(types.TableBuildingType, r)
	}
	for _, r := range s.catalog.Regions() {
		write(types.TableSA4Region, r)
	}

	var hash determinism.ContentHash
	copy(hash[:], h.Sum(nil))
	return hash
}

// Verify checks content hash integrity
func (s *Snapshot) Verify() bool {
	return s.sealed && s.computeHash() == s.ContentHash
}

// SnapshotID returns the snapshot identity
func (s *Snapshot) SnapshotID() SnapshotID {
	return s.ID
}

// Catalog returns the building type and region catalog
func (s *Snapshot) Catalog() *catalog.Catalog {
	return s.catalog
}

// FindBuildingType looks up a catalogued building type
func (s *Snapshot) FindBuildingType(name string) (types.BuildingType, error) {
	return s.catalog.FindBuildingType(name)
}

// BasePrices returns a copy of all base price rows
func (s *Snapshot) BasePrices() []types.BasePrice {
	return append([]types.BasePrice(nil), s.basePrices...)
}

// LocationFactors returns a copy of all location factor rows
func (s *Snapshot) LocationFactors() []types.LocationFactor {
	return append([]types.LocationFactor(nil), s.locationFactors...)
}

// RentRates returns a copy of all MRRC rows
func (s *Snapshot) RentRates() []types.RentContributionRate {
	return append([]types.RentContributionRate(nil), s.rentRates...)
}

// Stats returns row counts
func (s *Snapshot) Stats() SnapshotStats {
	cs := s.catalog.Stats()
	return SnapshotStats{
		BasePrices:      len(s.basePrices),
		LocationFactors: len(s.locationFactors),
		RentRates:       len(s.rentRates),
		BuildingTypes:   cs.BuildingTypes,
		Regions:         cs.Regions,
	}
}

// BasePriceKey is the full key of a base price lookup
type BasePriceKey struct {
	StockType      types.StockType
	BuildingType   string
	DesignCategory types.DesignCategory
	OOAStatus      types.OOAStatus
	FireSprinklers bool
	ITC            resolver.ITCFilter
}

// String renders the key for messages
func (k BasePriceKey) String() string {
	return fmt.Sprintf("%s, %s, %s, %s, fire_sprinklers=%t, %s",
		k.StockType, k.BuildingType, k.DesignCategory, k.OOAStatus, k.FireSprinklers, k.ITC)
}

// FindBasePrice returns the base price rows active at asOf for the key
func (s *Snapshot) FindBasePrice(key BasePriceKey, asOf time.Time) (temporal.Match[types.BasePrice], error) {
	m, err := temporal.Find(s.basePrices, asOf, func(r types.BasePrice) bool {
		return r.StockType == key.StockType &&
			r.BuildingType == key.BuildingType &&
			r.DesignCategory == key.DesignCategory &&
			r.OOAStatus == key.OOAStatus &&
			r.FireSprinklers == key.FireSprinklers &&
			key.ITC.Matches(r.ITCClaimed)
	})
	if err != nil {
		return m, notFound(types.TableBasePrice, key.String(), asOf, err)
	}
	return m, nil
}

// FindLocationFactor returns the location factor rows active at asOf
func (s *Snapshot) FindLocationFactor(region string, key resolver.LocationKey, asOf time.Time) (temporal.Match[types.LocationFactor], error) {
	m, err := temporal.Find(s.locationFactors, asOf, func(r types.LocationFactor) bool {
		return r.SA4Region == region &&
			r.StockCategory == key.StockCategory &&
			r.BuildingTypeColumn == key.Column
	})
	if err != nil {
		return m, notFound(types.TableLocationFactor, region+", "+key.String(), asOf, err)
	}
	return m, nil
}

// FindRentContributionRate returns the MRRC rows active at asOf
func (s *Snapshot) FindRentContributionRate(asOf time.Time) (temporal.Match[types.RentContributionRate], error) {
	m, err := temporal.Find(s.rentRates, asOf, nil)
	if err != nil {
		return m, notFound(types.TableRentContributionRate, "", asOf, err)
	}
	return m, nil
}

func notFound(table, key string, asOf time.Time, cause error) error {
	e := errors.NotFound(table, key).WithContext("as_of", temporal.Day(asOf).Format(temporal.DateLayout))
	e.Cause = cause
	return e
}
