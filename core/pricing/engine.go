package pricing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sda-calculator/core/determinism"
	"sda-calculator/core/resolver"
	"sda-calculator/core/temporal"
	"sda-calculator/core/types"
	"sda-calculator/internal/errors"
)

// FortnightsPerYear annualises fortnightly MRRC rates
const FortnightsPerYear = 26

var fortnights = decimal.NewFromInt(FortnightsPerYear)

// AmbiguityPolicy decides what happens when a lookup matches several rows
type AmbiguityPolicy string

const (
	// PolicyStrict fails with a data integrity error
	PolicyStrict AmbiguityPolicy = "strict"
	// PolicyFirst takes the first row in table order and records the issue
	PolicyFirst AmbiguityPolicy = "first"
)

// ParseAmbiguityPolicy parses a policy name; empty means strict
func ParseAmbiguityPolicy(s string) (AmbiguityPolicy, error) {
	switch p := AmbiguityPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyFirst:
		return PolicyFirst, nil
	default:
		return "", fmt.Errorf("unknown ambiguity policy %q (expected strict or first)", s)
	}
}

// Tables is the read-only view of the lookup tables the engine prices against
type Tables interface {
	SnapshotID() SnapshotID
	FindBuildingType(name string) (types.BuildingType, error)
	FindBasePrice(key BasePriceKey, asOf time.Time) (temporal.Match[types.BasePrice], error)
	FindLocationFactor(region string, key resolver.LocationKey, asOf time.Time) (temporal.Match[types.LocationFactor], error)
	FindRentContributionRate(asOf time.Time) (temporal.Match[types.RentContributionRate], error)
}

// EngineConfig configures the pricing engine
type EngineConfig struct {
	Ambiguity AmbiguityPolicy

	// Now supplies the default as-of date; nil means time.Now
	Now func() time.Time
}

// Engine computes SDA payment breakdowns.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	config EngineConfig
	logger *zap.Logger
}

// NewEngine creates a pricing engine
func NewEngine(config EngineConfig, logger *zap.Logger) *Engine {
	if config.Ambiguity == "" {
		config.Ambiguity = PolicyStrict
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{config: config, logger: logger}
}

// Request is a fully validated pricing request
type Request struct {
	StockType      types.StockType
	BuildingType   string
	DesignCategory types.DesignCategory
	OOAStatus      types.OOAStatus
	FireSprinklers bool
	ITCClaimed     *bool
	SA4Region      string

	// AsOf defaults to today
	AsOf *time.Time
}

// RentAmount is an MRRC amount in both periods
type RentAmount struct {
	Fortnightly decimal.Decimal `json:"fortnightly"`
	Annual      decimal.Decimal `json:"annual"`
}

// RentBreakdown holds MRRC for single and couple residents
type RentBreakdown struct {
	Single RentAmount `json:"single"`
	Couple RentAmount `json:"couple"`
}

// Breakdown is the result of a calculation.
// It is either complete or not returned at all.
type Breakdown struct {
	BasePrice       decimal.Decimal      `json:"base_price"`
	LocationFactor  decimal.Decimal      `json:"location_factor"`
	AnnualSDAAmount decimal.Decimal      `json:"annual_sda_amount"`
	MRRC            RentBreakdown        `json:"mrrc"`
	NetNDIASingle   decimal.Decimal      `json:"net_ndia_single"`
	NetNDIACouple   decimal.Decimal      `json:"net_ndia_couple"`
	EffectiveDate   string               `json:"effective_date"`
	AsOf            string               `json:"as_of"`
	LocationKey     resolver.LocationKey `json:"location_key"`
	Lineage         Lineage              `json:"lineage"`
	IntegrityIssues []IntegrityIssue     `json:"integrity_issues,omitempty"`
}

// Lineage tracks the full derivation of a breakdown
type Lineage struct {
	SnapshotID       SnapshotID           `json:"snapshot_id"`
	BasePriceID      int64                `json:"base_price_id"`
	LocationFactorID int64                `json:"location_factor_id"`
	RentRateID       int64                `json:"rent_contribution_rate_id"`
	ITCFilter        string               `json:"itc_filter"`
	Formula          []FormulaApplication `json:"formula"`
}

// FormulaApplication tracks how one amount was calculated
type FormulaApplication struct {
	Name       string            `json:"name"`
	Expression string            `json:"expression"`
	Inputs     map[string]string `json:"inputs"`
	Output     string            `json:"output"`
}

// IntegrityIssue records an ambiguous lookup tolerated by PolicyFirst
type IntegrityIssue struct {
	Table      string `json:"table"`
	Candidates int    `json:"candidates"`
	RowID      int64  `json:"row_id"`
}

// Calculate prices a request against the tables
func (e *Engine) Calculate(tables Tables, req Request) (*Breakdown, error) {
	asOf := temporal.Day(e.config.Now())
	if req.AsOf != nil {
		asOf = temporal.Day(*req.AsOf)
	}

	var issues []IntegrityIssue

	// Step 1: Resolve lookup keys
	locKey, err := resolver.ResolveLocationKey(req.StockType, req.BuildingType, tables)
	if err != nil {
		return nil, err
	}
	itc := resolver.ResolveITCFilter(req.StockType, req.ITCClaimed)

	// Step 2: Base price
	bpMatch, err := tables.FindBasePrice(BasePriceKey{
		StockType:      req.StockType,
		BuildingType:   req.BuildingType,
		DesignCategory: req.DesignCategory,
		OOAStatus:      req.OOAStatus,
		FireSprinklers: req.FireSprinklers,
		ITC:            itc,
	}, asOf)
	if err != nil {
		return nil, err
	}
	if err := e.settle(types.TableBasePrice, bpMatch.Candidates, bpMatch.Row.ID, &issues); err != nil {
		return nil, err
	}

	// Step 3: Location factor
	lfMatch, err := tables.FindLocationFactor(req.SA4Region, locKey, asOf)
	if err != nil {
		return nil, err
	}
	if err := e.settle(types.TableLocationFactor, lfMatch.Candidates, lfMatch.Row.ID, &issues); err != nil {
		return nil, err
	}

	// Step 4: MRRC
	rateMatch, err := tables.FindRentContributionRate(asOf)
	if err != nil {
		return nil, err
	}
	if err := e.settle(types.TableRentContributionRate, rateMatch.Candidates, rateMatch.Row.ID, &issues); err != nil {
		return nil, err
	}

	// Step 5: Compose
	bp, lf, rate := bpMatch.Row, lfMatch.Row, rateMatch.Row
	b := Compose(bp.Price, lf.Factor, rate.SingleRateFortnightly, rate.CoupleRateFortnightly)
	b.EffectiveDate = bp.From.Format(temporal.DateLayout)
	b.AsOf = asOf.Format(temporal.DateLayout)
	b.LocationKey = locKey
	b.IntegrityIssues = issues
	b.Lineage.SnapshotID = tables.SnapshotID()
	b.Lineage.BasePriceID = bp.ID
	b.Lineage.LocationFactorID = lf.ID
	b.Lineage.RentRateID = rate.ID
	b.Lineage.ITCFilter = itc.String()

	e.logger.Debug("calculated SDA amount",
		zap.String("stock_type", req.StockType.String()),
		zap.String("building_type", req.BuildingType),
		zap.String("sa4_region", req.SA4Region),
		zap.String("as_of", b.AsOf),
		zap.String("annual_sda_amount", b.AnnualSDAAmount.String()),
		zap.String("snapshot_id", string(b.Lineage.SnapshotID)),
	)

	return b, nil
}

// settle applies the ambiguity policy to a lookup result
func (e *Engine) settle(table string, candidates int, rowID int64, issues *[]IntegrityIssue) error {
	if candidates <= 1 {
		return nil
	}
	if e.config.Ambiguity != PolicyFirst {
		return errors.Integrity(table, candidates)
	}

	e.logger.Warn("ambiguous temporal lookup, using first row",
		zap.String("table", table),
		zap.Int("candidates", candidates),
		zap.Int64("row_id", rowID),
	)
	*issues = append(*issues, IntegrityIssue{Table: table, Candidates: candidates, RowID: rowID})
	return nil
}

// Compose applies the SDA formula to the looked-up values:
//
//	annual = round_half_up(price * factor)
//	mrrc_annual = fortnightly * 26
//	net = annual - mrrc_annual
func Compose(price, factor, singleFortnightly, coupleFortnightly decimal.Decimal) *Breakdown {
	raw := price.Mul(factor)
	annual := determinism.RoundHalfUp(raw)
	singleAnnual := singleFortnightly.Mul(fortnights)
	coupleAnnual := coupleFortnightly.Mul(fortnights)
	netSingle := annual.Sub(singleAnnual)
	netCouple := annual.Sub(coupleAnnual)

	return &Breakdown{
		BasePrice:       price,
		LocationFactor:  factor,
		AnnualSDAAmount: annual,
		MRRC: RentBreakdown{
			Single: RentAmount{Fortnightly: singleFortnightly, Annual: singleAnnual},
			Couple: RentAmount{Fortnightly: coupleFortnightly, Annual: coupleAnnual},
		},
		NetNDIASingle: netSingle,
		NetNDIACouple: netCouple,
		Lineage: Lineage{
			Formula: []FormulaApplication{
				{
					Name:       "annual_sda_amount",
					Expression: "round_half_up(base_price * location_factor)",
					Inputs:     map[string]string{"base_price": price.String(), "location_factor": factor.String(), "unrounded": raw.String()},
					Output:     annual.String(),
				},
				{
					Name:       "mrrc_single_annual",
					Expression: "single_rate_fortnightly * 26",
					Inputs:     map[string]string{"single_rate_fortnightly": singleFortnightly.String()},
					Output:     singleAnnual.String(),
				},
				{
					Name:       "mrrc_couple_annual",
					Expression: "couple_rate_fortnightly * 26",
					Inputs:     map[string]string{"couple_rate_fortnightly": coupleFortnightly.String()},
					Output:     coupleAnnual.String(),
				},
				{
					Name:       "net_ndia_single",
					Expression: "annual_sda_amount - mrrc_single_annual",
					Inputs:     map[string]string{"annual_sda_amount": annual.String(), "mrrc_single_annual": singleAnnual.String()},
					Output:     netSingle.String(),
				},
				{
					Name:       "net_ndia_couple",
					Expression: "annual_sda_amount - mrrc_couple_annual",
					Inputs:     map[string]string{"annual_sda_amount": annual.String(), "mrrc_couple_annual": coupleAnnual.String()},
					Output:     netCouple.String(),
				},
			},
		},
	}
}
