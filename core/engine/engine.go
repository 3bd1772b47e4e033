// Package engine provides the API-primary SDA calculation engine.
// CLI and HTTP are thin wrappers around this engine.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"sda-calculator/core/options"
	"sda-calculator/core/pricing"
	"sda-calculator/core/rules"
	"sda-calculator/core/temporal"
	"sda-calculator/core/types"
	"sda-calculator/internal/errors"
)

// SnapshotProvider supplies the table snapshot a calculation runs against
type SnapshotProvider interface {
	Snapshot() *pricing.Snapshot
}

// StaticSnapshot serves one fixed snapshot
type StaticSnapshot struct {
	snap *pricing.Snapshot
}

// NewStaticSnapshot wraps a snapshot as a provider
func NewStaticSnapshot(snap *pricing.Snapshot) *StaticSnapshot {
	return &StaticSnapshot{snap: snap}
}

// Snapshot returns the wrapped snapshot
func (s *StaticSnapshot) Snapshot() *pricing.Snapshot {
	return s.snap
}

// Engine validates raw requests and prices them.
// It never returns a partial breakdown.
type Engine struct {
	snapshots SnapshotProvider
	pricer    *pricing.Engine
	logger    *zap.Logger
}

// NewEngine creates a calculation engine
func NewEngine(snapshots SnapshotProvider, config pricing.EngineConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		snapshots: snapshots,
		pricer:    pricing.NewEngine(config, logger),
		logger:    logger,
	}
}

// CalculateRequest is a calculation request as received at the boundary
type CalculateRequest struct {
	StockType      string `json:"stock_type"`
	BuildingType   string `json:"building_type"`
	DesignCategory string `json:"design_category"`
	OOAStatus      string `json:"ooa_status"`
	FireSprinklers bool   `json:"fire_sprinklers"`
	ITCClaimed     *bool  `json:"itc_claimed"`
	SA4Region      string `json:"sa4_region"`

	// AsOf is an optional YYYY-MM-DD date; empty means today
	AsOf string `json:"as_of,omitempty"`
}

// Calculate runs boundary checks, the rule validator and the pricing engine
func (e *Engine) Calculate(ctx context.Context, req CalculateRequest) (*pricing.Breakdown, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 1: Boundary checks
	parsed, err := ParseRequest(req)
	if err != nil {
		return nil, err
	}

	// Step 2: Snapshot
	snap, err := e.snapshot()
	if err != nil {
		return nil, err
	}

	// Step 3: Catalog
	bt, err := snap.FindBuildingType(parsed.BuildingType)
	if err != nil {
		return nil, errors.InputField(rules.FieldBuildingType,
			fmt.Sprintf("Unknown building type: %s", parsed.BuildingType))
	}

	// Step 4: Eligibility rules
	if violations := rules.Validate(rules.NewInput(parsed.StockType, bt, parsed.DesignCategory, parsed.OOAStatus)); len(violations) > 0 {
		e.logger.Debug("request rejected by eligibility rules", zap.Int("violations", len(violations)))
		return nil, errors.Validation(rules.FieldErrors(violations))
	}

	// Step 5: Price
	return e.pricer.Calculate(snap, parsed)
}

// Validate runs boundary checks and the rule validator without pricing
func (e *Engine) Validate(req CalculateRequest) ([]rules.Violation, error) {
	parsed, err := ParseRequest(req)
	if err != nil {
		return nil, err
	}
	snap, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	bt, err := snap.FindBuildingType(parsed.BuildingType)
	if err != nil {
		return nil, errors.InputField(rules.FieldBuildingType,
			fmt.Sprintf("Unknown building type: %s", parsed.BuildingType))
	}
	return rules.Validate(rules.NewInput(parsed.StockType, bt, parsed.DesignCategory, parsed.OOAStatus)), nil
}

// Options returns the legal options for an optional stock type and building type
func (e *Engine) Options(stockType, buildingType string) (options.Options, error) {
	snap, err := e.snapshot()
	if err != nil {
		return options.Options{}, err
	}

	var stock *types.StockType
	if strings.TrimSpace(stockType) != "" {
		st, err := types.ParseStockType(stockType)
		if err != nil {
			return options.Options{}, errors.InputField(rules.FieldStockType, err.Error())
		}
		stock = &st
	}

	var building *string
	if strings.TrimSpace(buildingType) != "" {
		building = &buildingType
	}

	return options.NewProvider(snap.Catalog()).Options(stock, building), nil
}

// BuildingTypes returns the building types legal for an optional stock type
func (e *Engine) BuildingTypes(stockType string) ([]options.BuildingTypeOption, error) {
	opts, err := e.Options(stockType, "")
	if err != nil {
		return nil, err
	}
	return opts.BuildingTypes, nil
}

// Regions returns every SA4 region
func (e *Engine) Regions() ([]options.RegionOption, error) {
	snap, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	return options.NewProvider(snap.Catalog()).Regions(), nil
}

func (e *Engine) snapshot() (*pricing.Snapshot, error) {
	snap := e.snapshots.Snapshot()
	if snap == nil {
		return nil, errors.New(errors.TypeStorage, "pricing tables not loaded")
	}
	return snap, nil
}

// ParseRequest checks enumerations, ITC applicability and the as-of date,
// reporting every failing field at once.
func ParseRequest(req CalculateRequest) (pricing.Request, error) {
	var fields []errors.FieldError
	fail := func(field string, err error) {
		fields = append(fields, errors.FieldError{Field: field, Message: err.Error()})
	}

	stock, err := types.ParseStockType(req.StockType)
	if err != nil {
		fail(rules.FieldStockType, err)
	}
	design, err := types.ParseDesignCategory(req.DesignCategory)
	if err != nil {
		fail(rules.FieldDesignCategory, err)
	}
	ooa, err := types.ParseOOAStatus(req.OOAStatus)
	if err != nil {
		fail(rules.FieldOOAStatus, err)
	}

	building := strings.TrimSpace(req.BuildingType)
	if building == "" {
		fail(rules.FieldBuildingType, fmt.Errorf("building_type is required"))
	}
	region := strings.TrimSpace(req.SA4Region)
	if region == "" {
		fail("sa4_region", fmt.Errorf("sa4_region is required"))
	}

	if stock.IsValid() {
		if err := CheckITC(stock, req.ITCClaimed); err != nil {
			fail("itc_claimed", err)
		}
	}

	var asOf *time.Time
	if req.AsOf != "" {
		d, err := temporal.ParseDate(req.AsOf)
		if err != nil {
			fail("as_of", err)
		} else {
			asOf = &d
		}
	}

	if len(fields) > 0 {
		e := errors.New(errors.TypeInput, fields[0].Message)
		e.Fields = fields
		return pricing.Request{}, e
	}

	return pricing.Request{
		StockType:      stock,
		BuildingType:   building,
		DesignCategory: design,
		OOAStatus:      ooa,
		FireSprinklers: req.FireSprinklers,
		ITCClaimed:     req.ITCClaimed,
		SA4Region:      region,
		AsOf:           asOf,
	}, nil
}

// CheckITC enforces itc_claimed applicability: required for POST_2023,
// forbidden for every other stock type.
func CheckITC(stock types.StockType, itcClaimed *bool) error {
	if stock == types.StockPost2023 && itcClaimed == nil {
		return fmt.Errorf("itc_claimed is required for POST_2023 stock type")
	}
	if stock != types.StockPost2023 && itcClaimed != nil {
		return fmt.Errorf("itc_claimed only applicable to POST_2023 stock type")
	}
	return nil
}
