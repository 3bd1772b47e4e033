// Package ingestion - Lookup table ingestion pipeline
// Strictly separated from pricing: fetch → normalize → govern → commit
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sda-calculator/core/pricing"
	"sda-calculator/core/temporal"
	"sda-calculator/core/types"
	"sda-calculator/db"
	"sda-calculator/internal/errors"
)

// DefaultEffectiveFrom is the start date applied when an import omits one
var DefaultEffectiveFrom = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

// FactorMode controls how a batch's location factors are committed
type FactorMode int

const (
	// FactorsReplace swaps the whole location factor table
	FactorsReplace FactorMode = iota

	// FactorsIfEmpty only writes when the table has no rows
	FactorsIfEmpty
)

// Batch is a normalized set of rows produced by a source
type Batch struct {
	BuildingTypes   []types.BuildingType
	Regions         []types.SA4Region
	RentRates       []types.RentContributionRate
	BasePrices      []types.BasePrice
	LocationFactors []types.LocationFactor

	// FactorMode applies when LocationFactors is non-empty
	FactorMode FactorMode

	// SupersedeFrom, when set, closes open base prices for the batch's
	// keys at this date and inserts the batch as the new vintage.
	SupersedeFrom *time.Time

	// Notes are non-fatal source findings, such as skipped rows
	Notes []string
}

// Counts returns row counts per table
func (b *Batch) Counts() db.TableCounts {
	return db.TableCounts{
		BasePrices:      int64(len(b.BasePrices)),
		LocationFactors: int64(len(b.LocationFactors)),
		RentRates:       int64(len(b.RentRates)),
		BuildingTypes:   int64(len(b.BuildingTypes)),
		Regions:         int64(len(b.Regions)),
	}
}

// Source fetches and normalizes rows from one input
type Source interface {
	// Name identifies the source in reports and logs
	Name() string

	// Fetch reads the input and returns normalized rows
	Fetch(ctx context.Context) (*Batch, error)
}

// Report summarizes one pipeline run
type Report struct {
	BatchID   uuid.UUID      `json:"batch_id"`
	Source    string         `json:"source"`
	StartedAt time.Time      `json:"started_at"`
	Duration  string         `json:"duration"`
	Fetched   db.TableCounts `json:"fetched"`
	Written   db.TableCounts `json:"written"`
	Closed    int            `json:"closed_base_prices"`
	Issues    []Issue        `json:"issues,omitempty"`
	DryRun    bool           `json:"dry_run"`
	Committed bool           `json:"committed"`
}

// Pipeline orchestrates the full ingestion flow
type Pipeline struct {
	store    db.PricingStore
	governor *Governor
	logger   *zap.Logger
	dryRun   bool
}

// NewPipeline creates a new ingestion pipeline
func NewPipeline(store db.PricingStore, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		store:    store,
		governor: NewGovernor(),
		logger:   logger,
	}
}

// WithDryRun skips the commit step
func (p *Pipeline) WithDryRun(dryRun bool) *Pipeline {
	p.dryRun = dryRun
	return p
}

// Run fetches, governs and commits one source.
// If governance reports any error, nothing is written.
func (p *Pipeline) Run(ctx context.Context, src Source) (*Report, error) {
	report := &Report{
		BatchID:   uuid.New(),
		Source:    src.Name(),
		StartedAt: time.Now().UTC(),
		DryRun:    p.dryRun,
	}
	log := p.logger.With(zap.String("batch_id", report.BatchID.String()), zap.String("source", src.Name()))
	defer func() { report.Duration = time.Since(report.StartedAt).String() }()

	// Step 1: Fetch and normalize
	batch, err := src.Fetch(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch %s: %w", src.Name(), err)
	}
	report.Fetched = batch.Counts()

	// Step 2: Govern against what is already stored
	existing, err := p.store.LoadSnapshot(ctx, db.LoadOptions{})
	if err != nil {
		return report, err
	}
	for _, note := range batch.Notes {
		report.Issues = append(report.Issues, Issue{Level: LevelWarning, Table: "source", Row: -1, Message: note})
	}
	report.Issues = append(report.Issues, p.governor.Check(batch, existing)...)
	if n := CountErrors(report.Issues); n > 0 {
		log.Warn("batch rejected by governance", zap.Int("errors", n), zap.Int("issues", len(report.Issues)))
		return report, errors.Newf(errors.TypeIntegrity, "%s: %d governance errors, nothing committed", src.Name(), n)
	}

	if p.dryRun {
		log.Info("dry run complete", zap.Int("issues", len(report.Issues)))
		return report, nil
	}

	// Step 3: Commit
	if err := p.commit(ctx, batch, existing, report); err != nil {
		return report, err
	}
	report.Committed = true

	log.Info("batch committed",
		zap.Int64("building_types", report.Written.BuildingTypes),
		zap.Int64("regions", report.Written.Regions),
		zap.Int64("mrrc_rates", report.Written.RentRates),
		zap.Int64("location_factors", report.Written.LocationFactors),
		zap.Int64("base_prices", report.Written.BasePrices),
		zap.Int("closed_base_prices", report.Closed))
	return report, nil
}

// commit writes catalog entries first so later tables can reference them
func (p *Pipeline) commit(ctx context.Context, batch *Batch, existing *pricing.Snapshot, report *Report) error {
	n, err := p.store.SaveBuildingTypes(ctx, batch.BuildingTypes)
	if err != nil {
		return err
	}
	report.Written.BuildingTypes = int64(n)

	if n, err = p.store.SaveRegions(ctx, batch.Regions); err != nil {
		return err
	}
	report.Written.Regions = int64(n)

	if n, err = p.store.SaveRentRates(ctx, batch.RentRates); err != nil {
		return err
	}
	report.Written.RentRates = int64(n)

	if len(batch.LocationFactors) > 0 {
		if batch.FactorMode == FactorsIfEmpty && len(existing.LocationFactors()) > 0 {
			p.logger.Info("location factors already present, skipping sample factors",
				zap.Int("existing", len(existing.LocationFactors())))
		} else {
			if n, err = p.store.ReplaceLocationFactors(ctx, batch.LocationFactors); err != nil {
				return err
			}
			report.Written.LocationFactors = int64(n)
		}
	}

	if len(batch.BasePrices) > 0 {
		if batch.SupersedeFrom != nil {
			res, err := p.store.SupersedeBasePrices(ctx, *batch.SupersedeFrom, batch.BasePrices)
			if err != nil {
				return err
			}
			report.Written.BasePrices = int64(res.Inserted)
			report.Closed = res.Closed
		} else {
			if n, err = p.store.SaveBasePrices(ctx, batch.BasePrices); err != nil {
				return err
			}
			report.Written.BasePrices = int64(n)
		}
	}
	return nil
}

// parseOptionalDate parses a date, returning fallback for an empty string
func parseOptionalDate(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	return temporal.ParseDate(s)
}
