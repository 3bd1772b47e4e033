// Package ingestion - HCL reference data source
package ingestion

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/shopspring/decimal"

	"sda-calculator/core/temporal"
	"sda-calculator/core/types"
	"sda-calculator/internal/errors"
)

//go:embed reference.hcl
var referenceSeed []byte

// ReferenceSeedName names the built-in seed in reports
const ReferenceSeedName = "reference.hcl"

type seedDocument struct {
	BuildingTypes []buildingTypeBlock `hcl:"building_type,block"`
	Regions       []regionBlock       `hcl:"region,block"`
	RentRates     []rentRateBlock     `hcl:"mrrc,block"`
	SampleFactors *sampleFactorsBlock `hcl:"sample_location_factors,block"`
	BasePrices    []basePriceBlock    `hcl:"base_price,block"`
}

type buildingTypeBlock struct {
	Name                 string `hcl:"name,label"`
	ResidentCount        int    `hcl:"resident_count"`
	Category             string `hcl:"category"`
	AllowsRobust         bool   `hcl:"allows_robust,optional"`
	LocationFactorColumn int    `hcl:"location_factor_column"`
	DisplayOrder         int    `hcl:"display_order"`
}

type regionBlock struct {
	Name         string `hcl:"name,label"`
	State        string `hcl:"state,optional"`
	DisplayOrder int    `hcl:"display_order"`
}

type rentRateBlock struct {
	EffectiveFrom         string `hcl:"effective_from"`
	EffectiveTo           string `hcl:"effective_to,optional"`
	SingleRateFortnightly string `hcl:"single_rate_fortnightly"`
	CoupleRateFortnightly string `hcl:"couple_rate_fortnightly"`
	DSPBase               string `hcl:"dsp_base,optional"`
	PensionSupplement     string `hcl:"pension_supplement,optional"`
	CRASingle             string `hcl:"cra_single,optional"`
	CRACouple             string `hcl:"cra_couple,optional"`
}

type sampleFactorsBlock struct {
	EffectiveFrom string            `hcl:"effective_from,optional"`
	Default       string            `hcl:"default"`
	Rules         []factorRuleBlock `hcl:"rule,block"`
}

type factorRuleBlock struct {
	States []string `hcl:"states"`
	Factor string   `hcl:"factor"`
}

type basePriceBlock struct {
	StockType      string `hcl:"stock_type"`
	BuildingType   string `hcl:"building_type"`
	ResidentCount  int    `hcl:"resident_count,optional"`
	DesignCategory string `hcl:"design_category"`
	OOAStatus      string `hcl:"ooa_status"`
	FireSprinklers bool   `hcl:"fire_sprinklers,optional"`
	ITCClaimed     *bool  `hcl:"itc_claimed,optional"`
	Price          string `hcl:"price"`
	EffectiveFrom  string `hcl:"effective_from,optional"`
	EffectiveTo    string `hcl:"effective_to,optional"`
}

// SeedSource reads reference data from an HCL document
type SeedSource struct {
	filename string
	src      []byte
}

// NewReferenceSeed returns the built-in reference data
func NewReferenceSeed() *SeedSource {
	return &SeedSource{filename: ReferenceSeedName, src: referenceSeed}
}

// NewSeedFile reads reference data from an HCL file
func NewSeedFile(path string) (*SeedSource, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Parsing(fmt.Sprintf("read seed %s", path), err)
	}
	return &SeedSource{filename: path, src: src}, nil
}

// NewSeedBytes parses reference data held in memory
func NewSeedBytes(filename string, src []byte) *SeedSource {
	return &SeedSource{filename: filename, src: src}
}

// Name returns the seed filename
func (s *SeedSource) Name() string {
	return "seed:" + s.filename
}

// Fetch parses the document and normalizes every block
func (s *SeedSource) Fetch(ctx context.Context) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(s.src, s.filename)
	if diags.HasErrors() {
		return nil, diagnosticsError(s.filename, diags)
	}

	var doc seedDocument
	if diags := gohcl.DecodeBody(file.Body, nil, &doc); diags.HasErrors() {
		return nil, diagnosticsError(s.filename, diags)
	}

	return s.normalize(&doc)
}

func (s *SeedSource) normalize(doc *seedDocument) (*Batch, error) {
	batch := &Batch{FactorMode: FactorsIfEmpty}
	residents := make(map[string]int, len(doc.BuildingTypes))

	for _, b := range doc.BuildingTypes {
		batch.BuildingTypes = append(batch.BuildingTypes, types.BuildingType{
			Name:                 b.Name,
			ResidentCount:        b.ResidentCount,
			Category:             types.BuildingCategory(b.Category),
			AllowsRobust:         b.AllowsRobust,
			LocationFactorColumn: b.LocationFactorColumn,
			DisplayOrder:         b.DisplayOrder,
		})
		residents[b.Name] = b.ResidentCount
	}

	for _, r := range doc.Regions {
		state := types.State(strings.ToUpper(r.State))
		if r.State == "" {
			derived, err := types.StateFromRegionName(r.Name)
			if err != nil {
				return nil, s.parseErr(err)
			}
			state = derived
		}
		batch.Regions = append(batch.Regions, types.SA4Region{Name: r.Name, State: state, DisplayOrder: r.DisplayOrder})
	}

	for i, r := range doc.RentRates {
		rate, err := s.rentRate(r)
		if err != nil {
			return nil, s.parseErr(fmt.Errorf("mrrc block %d: %w", i+1, err))
		}
		batch.RentRates = append(batch.RentRates, rate)
	}

	if doc.SampleFactors != nil {
		factors, err := sampleFactors(doc.SampleFactors, batch.Regions)
		if err != nil {
			return nil, s.parseErr(err)
		}
		batch.LocationFactors = factors
	}

	for i, p := range doc.BasePrices {
		price, err := s.basePrice(p, residents)
		if err != nil {
			return nil, s.parseErr(fmt.Errorf("base_price block %d: %w", i+1, err))
		}
		batch.BasePrices = append(batch.BasePrices, price)
	}

	return batch, nil
}

func (s *SeedSource) rentRate(r rentRateBlock) (types.RentContributionRate, error) {
	interval, err := parseInterval(r.EffectiveFrom, r.EffectiveTo)
	if err != nil {
		return types.RentContributionRate{}, err
	}
	amounts := make([]decimal.Decimal, 6)
	for i, raw := range []string{r.SingleRateFortnightly, r.CoupleRateFortnightly, r.DSPBase, r.PensionSupplement, r.CRASingle, r.CRACouple} {
		if amounts[i], err = parseAmount(raw); err != nil {
			return types.RentContributionRate{}, err
		}
	}
	return types.RentContributionRate{
		SingleRateFortnightly: amounts[0],
		CoupleRateFortnightly: amounts[1],
		DSPBase:               amounts[2],
		PensionSupplement:     amounts[3],
		CRASingle:             amounts[4],
		CRACouple:             amounts[5],
		Interval:              interval,
	}, nil
}

func (s *SeedSource) basePrice(p basePriceBlock, residents map[string]int) (types.BasePrice, error) {
	stock, err := types.ParseStockType(p.StockType)
	if err != nil {
		return types.BasePrice{}, err
	}
	design, err := types.ParseDesignCategory(p.DesignCategory)
	if err != nil {
		return types.BasePrice{}, err
	}
	ooa, err := types.ParseOOAStatus(p.OOAStatus)
	if err != nil {
		return types.BasePrice{}, err
	}
	price, err := decimal.NewFromString(strings.TrimSpace(p.Price))
	if err != nil {
		return types.BasePrice{}, fmt.Errorf("price %q: %w", p.Price, err)
	}
	interval, err := parseInterval(p.EffectiveFrom, p.EffectiveTo)
	if err != nil {
		return types.BasePrice{}, err
	}
	count := p.ResidentCount
	if count == 0 {
		count = residents[p.BuildingType]
	}
	return types.BasePrice{
		StockType:      stock,
		BuildingType:   p.BuildingType,
		ResidentCount:  count,
		DesignCategory: design,
		OOAStatus:      ooa,
		FireSprinklers: p.FireSprinklers,
		ITCClaimed:     p.ITCClaimed,
		Price:          price,
		Interval:       interval,
	}, nil
}

// sampleFactors expands per-state placeholder factors over every region,
// both stock categories and all eleven columns.
func sampleFactors(block *sampleFactorsBlock, regions []types.SA4Region) ([]types.LocationFactor, error) {
	from, err := parseOptionalDate(block.EffectiveFrom, DefaultEffectiveFrom)
	if err != nil {
		return nil, err
	}
	fallback, err := decimal.NewFromString(block.Default)
	if err != nil {
		return nil, fmt.Errorf("sample factor default %q: %w", block.Default, err)
	}

	type stateRule struct {
		states mapset.Set[types.State]
		factor decimal.Decimal
	}
	rules := make([]stateRule, 0, len(block.Rules))
	for _, r := range block.Rules {
		f, err := decimal.NewFromString(r.Factor)
		if err != nil {
			return nil, fmt.Errorf("sample factor %q: %w", r.Factor, err)
		}
		states := mapset.NewSet[types.State]()
		for _, st := range r.States {
			states.Add(types.State(strings.ToUpper(st)))
		}
		rules = append(rules, stateRule{states: states, factor: f})
	}

	var out []types.LocationFactor
	for _, region := range regions {
		factor := fallback
		for _, r := range rules {
			if r.states.Contains(region.State) {
				factor = r.factor
				break
			}
		}
		for _, category := range []types.StockCategory{types.StockCategoryNewBuilds, types.StockCategoryOther} {
			for col := types.MinLocationColumn; col <= types.MaxLocationColumn; col++ {
				out = append(out, types.LocationFactor{
					SA4Region:          region.Name,
					StockCategory:      category,
					BuildingTypeColumn: col,
					Factor:             factor,
					Interval:           temporal.OpenFrom(from),
				})
			}
		}
	}
	return out, nil
}

func (s *SeedSource) parseErr(err error) error {
	return errors.Parsing(fmt.Sprintf("seed %s", s.filename), err)
}

// parseInterval parses a required start date and an optional end date
func parseInterval(from, to string) (temporal.Interval, error) {
	start, err := temporal.ParseDate(from)
	if err != nil {
		return temporal.Interval{}, err
	}
	if to == "" {
		return temporal.OpenFrom(start), nil
	}
	end, err := temporal.ParseDate(to)
	if err != nil {
		return temporal.Interval{}, err
	}
	return temporal.NewInterval(start, &end), nil
}

// parseAmount parses an optional money amount; empty is zero
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q: %w", s, err)
	}
	return d, nil
}

// diagnosticsError flattens HCL diagnostics into a parsing error
func diagnosticsError(filename string, diags hcl.Diagnostics) error {
	var msgs []string
	for _, diag := range diags {
		if diag.Severity != hcl.DiagError {
			continue
		}
		line := 0
		if diag.Subject != nil {
			line = diag.Subject.Start.Line
		}
		msgs = append(msgs, fmt.Sprintf("line %d: %s: %s", line, diag.Summary, diag.Detail))
	}
	return errors.Parsing(fmt.Sprintf("seed %s", filename), fmt.Errorf("%s", strings.Join(msgs, "; ")))
}
