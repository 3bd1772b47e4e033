// Package ingestion - Ingestion governance and validation
package ingestion

import (
	"fmt"
	"time"

	"sda-calculator/core/catalog"
	"sda-calculator/core/determinism"
	"sda-calculator/core/pricing"
	"sda-calculator/core/resolver"
	"sda-calculator/core/rules"
	"sda-calculator/core/temporal"
	"sda-calculator/core/types"
)

// Level is the severity of a governance issue
type Level string

const (
	// LevelError blocks the commit
	LevelError Level = "error"

	// LevelWarning is reported but does not block
	LevelWarning Level = "warning"
)

// Issue is a single governance finding
type Issue struct {
	Level   Level  `json:"level"`
	Table   string `json:"table"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// String renders the issue for CLI output
func (i Issue) String() string {
	if i.Row < 0 {
		return fmt.Sprintf("%s %s: %s", i.Level, i.Table, i.Message)
	}
	return fmt.Sprintf("%s %s row %d: %s", i.Level, i.Table, i.Row+1, i.Message)
}

// CountErrors counts blocking issues
func CountErrors(issues []Issue) int {
	n := 0
	for _, i := range issues {
		if i.Level == LevelError {
			n++
		}
	}
	return n
}

// Governor checks a batch against itself and the stored tables
type Governor struct{}

// NewGovernor creates a governor
func NewGovernor() *Governor {
	return &Governor{}
}

// issueLog collects findings
type issueLog []Issue

func (l *issueLog) errorf(table string, row int, format string, args ...any) {
	*l = append(*l, Issue{Level: LevelError, Table: table, Row: row, Message: fmt.Sprintf(format, args...)})
}

func (l *issueLog) warnf(table string, row int, format string, args ...any) {
	*l = append(*l, Issue{Level: LevelWarning, Table: table, Row: row, Message: fmt.Sprintf(format, args...)})
}

// Check runs every governance rule. Existing may be nil for an empty store.
func (g *Governor) Check(batch *Batch, existing *pricing.Snapshot) []Issue {
	if existing == nil {
		existing = pricing.NewSnapshotBuilder().Build()
	}
	var issues issueLog

	merged := g.checkCatalog(batch, existing, &issues)
	g.checkRentRates(batch, existing, &issues)
	g.checkLocationFactors(batch, existing, merged, &issues)
	g.checkBasePrices(batch, existing, merged, &issues)

	return issues
}

// Audit checks rows already stored, as loaded into snap. Unlike Check it
// takes every interval literally, so two open MRRC rows are an error.
func (g *Governor) Audit(snap *pricing.Snapshot) []Issue {
	empty := pricing.NewSnapshotBuilder().Build()
	var issues issueLog

	batch := &Batch{
		BuildingTypes:   snap.Catalog().BuildingTypes(),
		Regions:         snap.Catalog().Regions(),
		LocationFactors: snap.LocationFactors(),
		BasePrices:      snap.BasePrices(),
	}
	merged := g.checkCatalog(batch, empty, &issues)

	rates := snap.RentRates()
	periods := make([]temporal.Interval, len(rates))
	for i, r := range rates {
		periods[i] = r.Interval
		if err := r.Interval.Validate(); err != nil {
			issues.errorf(types.TableRentContributionRate, i, "%v", err)
		}
	}
	for _, pair := range overlapping(periods) {
		issues.errorf(types.TableRentContributionRate, pair[1], "more than one rate active: %s overlaps %s", periods[pair[0]], periods[pair[1]])
	}

	g.checkLocationFactors(batch, empty, merged, &issues)
	g.checkBasePrices(batch, empty, merged, &issues)
	return issues
}

// checkCatalog validates new catalog entries and returns the catalog the
// rest of the batch is checked against.
func (g *Governor) checkCatalog(batch *Batch, existing *pricing.Snapshot, issues *issueLog) *catalog.Catalog {
	incoming := catalog.NewCatalog()
	seen := make(map[string]bool)
	for i, bt := range batch.BuildingTypes {
		if seen[bt.Name] {
			issues.errorf(types.TableBuildingType, i, "duplicate building type %q", bt.Name)
		}
		seen[bt.Name] = true
		incoming.RegisterBuildingType(bt)
	}
	seen = make(map[string]bool)
	for i, r := range batch.Regions {
		if seen[r.Name] {
			issues.errorf(types.TableSA4Region, i, "duplicate region %q", r.Name)
		}
		seen[r.Name] = true
		incoming.RegisterRegion(r)
	}
	for _, err := range incoming.Validate() {
		issues.errorf("catalog", -1, "%v", err)
	}

	merged := catalog.NewCatalog()
	for _, bt := range existing.Catalog().BuildingTypes() {
		merged.RegisterBuildingType(bt)
	}
	for _, r := range existing.Catalog().Regions() {
		merged.RegisterRegion(r)
	}
	for _, bt := range batch.BuildingTypes {
		merged.RegisterBuildingType(bt)
	}
	for _, r := range batch.Regions {
		merged.RegisterRegion(r)
	}
	return merged
}

func (g *Governor) checkRentRates(batch *Batch, existing *pricing.Snapshot, issues *issueLog) {
	const table = types.TableRentContributionRate

	stored := existing.RentRates()
	storedStarts := make(map[time.Time]bool, len(stored))
	for _, r := range stored {
		storedStarts[temporal.Day(r.From)] = true
	}

	var incoming []types.RentContributionRate
	for i, r := range batch.RentRates {
		if err := r.Interval.Validate(); err != nil {
			issues.errorf(table, i, "%v", err)
			continue
		}
		if !r.SingleRateFortnightly.IsPositive() || !r.CoupleRateFortnightly.IsPositive() {
			issues.errorf(table, i, "fortnightly rates must be positive")
		}
		if storedStarts[temporal.Day(r.From)] {
			issues.warnf(table, i, "rate effective %s already stored, will be skipped", r.From.Format(temporal.DateLayout))
			continue
		}
		incoming = append(incoming, r)
	}

	// newer rows close any open row that started earlier
	determinism.SortSlice(incoming, func(a, b types.RentContributionRate) bool { return a.From.Before(b.From) })
	periods := make([]temporal.Interval, 0, len(stored)+len(incoming))
	for _, r := range stored {
		periods = append(periods, r.Interval)
	}
	for _, r := range incoming {
		for j := range periods {
			if periods[j].IsOpen() && periods[j].From.Before(r.From) {
				periods[j] = periods[j].Close(r.From)
			}
		}
		periods = append(periods, r.Interval)
	}

	for _, pair := range overlapping(periods) {
		issues.errorf(table, -1, "more than one rate active: %s overlaps %s", periods[pair[0]], periods[pair[1]])
	}
}

func (g *Governor) checkLocationFactors(batch *Batch, existing *pricing.Snapshot, cat *catalog.Catalog, issues *issueLog) {
	const table = types.TableLocationFactor
	if len(batch.LocationFactors) == 0 {
		return
	}
	if batch.FactorMode == FactorsIfEmpty && len(existing.LocationFactors()) > 0 {
		return
	}

	groups := make(map[string][]int)
	for i, f := range batch.LocationFactors {
		if !f.StockCategory.IsValid() {
			issues.errorf(table, i, "unknown stock category %q", f.StockCategory)
		}
		if f.BuildingTypeColumn < types.MinLocationColumn || f.BuildingTypeColumn > types.MaxLocationColumn {
			issues.errorf(table, i, "building type column %d outside %d-%d",
				f.BuildingTypeColumn, types.MinLocationColumn, types.MaxLocationColumn)
		}
		if !f.Factor.IsPositive() {
			issues.errorf(table, i, "location factor must be positive, got %s", f.Factor)
		}
		if err := f.Interval.Validate(); err != nil {
			issues.errorf(table, i, "%v", err)
			continue
		}
		if _, err := cat.FindRegion(f.SA4Region); err != nil {
			issues.errorf(table, i, "unknown region %q", f.SA4Region)
		}
		groups[f.Key()] = append(groups[f.Key()], i)
	}

	for _, key := range determinism.SortedKeys(groups) {
		idx := groups[key]
		periods := make([]temporal.Interval, len(idx))
		for j, i := range idx {
			periods[j] = batch.LocationFactors[i].Interval
		}
		for _, pair := range overlapping(periods) {
			issues.errorf(table, idx[pair[1]], "overlaps row %d for %s", idx[pair[0]]+1, key)
		}
	}
}

func (g *Governor) checkBasePrices(batch *Batch, existing *pricing.Snapshot, cat *catalog.Catalog, issues *issueLog) {
	const table = types.TableBasePrice
	if len(batch.BasePrices) == 0 {
		return
	}

	incoming := make([]types.BasePrice, len(batch.BasePrices))
	copy(incoming, batch.BasePrices)
	if batch.SupersedeFrom != nil {
		for i := range incoming {
			incoming[i].Interval = temporal.NewInterval(*batch.SupersedeFrom, incoming[i].To)
		}
	}

	groups := make(map[string][]int)
	for i, p := range incoming {
		valid := true
		if !p.StockType.IsValid() {
			issues.errorf(table, i, "unknown stock type %q", p.StockType)
			valid = false
		}
		if !p.DesignCategory.IsValid() {
			issues.errorf(table, i, "unknown design category %q", p.DesignCategory)
			valid = false
		}
		if !p.OOAStatus.IsValid() {
			issues.errorf(table, i, "unknown OOA status %q", p.OOAStatus)
			valid = false
		}
		if !p.Price.IsPositive() {
			issues.errorf(table, i, "price must be positive, got %s", p.Price)
		}
		if err := p.Interval.Validate(); err != nil {
			issues.errorf(table, i, "%v", err)
			valid = false
		}

		bt, err := cat.FindBuildingType(p.BuildingType)
		if err != nil {
			issues.errorf(table, i, "unknown building type %q", p.BuildingType)
			valid = false
		} else if bt.ResidentCount != p.ResidentCount {
			issues.warnf(table, i, "resident count %d differs from catalog %d for %q", p.ResidentCount, bt.ResidentCount, bt.Name)
		}
		if !valid {
			continue
		}

		if !itcSelectable(p.StockType, p.ITCClaimed) {
			issues.warnf(table, i, "itc_claimed=%s can never be selected for %s", types.FormatOptionalBool(p.ITCClaimed), p.StockType)
		}
		if v := rules.Validate(rules.NewInput(p.StockType, bt, p.DesignCategory, p.OOAStatus)); len(v) > 0 {
			issues.warnf(table, i, "combination rejected by eligibility rules: %s", v[0].Message)
		}
		groups[p.Key()] = append(groups[p.Key()], i)
	}

	stored := make(map[string][]temporal.Interval)
	for _, p := range existing.BasePrices() {
		if _, ok := groups[p.Key()]; !ok {
			continue
		}
		iv := p.Interval
		if batch.SupersedeFrom != nil && iv.IsOpen() && iv.From.Before(temporal.Day(*batch.SupersedeFrom)) {
			iv = iv.Close(*batch.SupersedeFrom)
		}
		stored[p.Key()] = append(stored[p.Key()], iv)
	}

	for _, key := range determinism.SortedKeys(groups) {
		idx := groups[key]
		for _, i := range idx {
			for _, iv := range stored[key] {
				if incoming[i].Interval.Overlaps(iv) {
					issues.errorf(table, i, "overlaps stored row %s for %s", iv, key)
				}
			}
		}
		periods := make([]temporal.Interval, len(idx))
		for j, i := range idx {
			periods[j] = incoming[i].Interval
		}
		for _, pair := range overlapping(periods) {
			issues.errorf(table, idx[pair[1]], "overlaps row %d for %s", idx[pair[0]]+1, key)
		}
	}
}

// itcSelectable reports whether the ITC filter for the stock type can ever
// select a row with the given itc_claimed value.
func itcSelectable(stock types.StockType, itc *bool) bool {
	if stock == types.StockPost2023 {
		return itc != nil
	}
	return resolver.ResolveITCFilter(stock, nil).Matches(itc)
}

// overlapping returns index pairs (i < j) of intervals sharing a date
func overlapping(periods []temporal.Interval) [][2]int {
	var pairs [][2]int
	for i := 0; i < len(periods); i++ {
		for j := i + 1; j < len(periods); j++ {
			if periods[i].Overlaps(periods[j]) {
				pairs = append(pairs, [2]int{i, j})
			}
		}
	}
	return pairs
}
