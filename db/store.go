package db

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"sda-calculator/core/determinism"
	"sda-calculator/core/pricing"
	"sda-calculator/core/temporal"
	"sda-calculator/core/types"
	"sda-calculator/internal/errors"
)

// Thresholds above which the tables are considered fully imported
const (
	MinBasePrices      = 800
	MinRegions         = 80
	MinLocationFactors = 1500
)

// insertBatchSize bounds rows per INSERT statement
const insertBatchSize = 500

// PricingStore persists the lookup tables and loads them as snapshots
type PricingStore interface {
	Ping(ctx context.Context) error
	EnsureSchema(ctx context.Context) error
	LoadSnapshot(ctx context.Context, opts LoadOptions) (*pricing.Snapshot, error)
	Stats(ctx context.Context) (Status, error)

	SaveBuildingTypes(ctx context.Context, rows []types.BuildingType) (int, error)
	SaveRegions(ctx context.Context, rows []types.SA4Region) (int, error)
	SaveRentRates(ctx context.Context, rows []types.RentContributionRate) (int, error)
	SaveBasePrices(ctx context.Context, rows []types.BasePrice) (int, error)
	ReplaceLocationFactors(ctx context.Context, rows []types.LocationFactor) (int, error)
	SupersedeBasePrices(ctx context.Context, from time.Time, rows []types.BasePrice) (SupersedeResult, error)

	Close() error
}

// LoadOptions tunes snapshot loading
type LoadOptions struct {
	// RetiredBefore drops rows whose interval ended on or before this date.
	// Zero keeps the full history.
	RetiredBefore time.Time
}

// TableCounts counts rows per table
type TableCounts struct {
	BasePrices      int64 `json:"base_prices"`
	LocationFactors int64 `json:"location_factors"`
	RentRates       int64 `json:"mrrc_rates"`
	BuildingTypes   int64 `json:"building_types"`
	Regions         int64 `json:"sa4_regions"`
}

// Status reports the table counts and whether a full import is present
type Status struct {
	Tables      TableCounts `json:"tables"`
	Initialized bool        `json:"initialized"`
}

// SupersedeResult reports a base price vintage change
type SupersedeResult struct {
	Closed   int `json:"closed"`
	Inserted int `json:"inserted"`
}

// GormStore implements PricingStore on gorm
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore wraps an open gorm connection
func NewGormStore(db *gorm.DB, log *zap.Logger) *GormStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &GormStore{db: db, logger: log}
}

// Open connects to the configured database and tunes the pool
func Open(cfg Config, log *zap.Logger) (*GormStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Config("invalid database config", err)
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN())
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN())
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(gormLogLevel(cfg.LogLevel))})
	if err != nil {
		return nil, errors.Storage(fmt.Sprintf("connect %s", cfg.Redacted()), err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, errors.Storage("get underlying sql.DB", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, errors.Storage(fmt.Sprintf("ping %s", cfg.Redacted()), err)
	}

	if log != nil {
		log.Info("database connected", zap.String("driver", cfg.Driver), zap.String("dsn", cfg.Redacted()))
	}
	return NewGormStore(gdb, log), nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	default:
		return logger.Silent
	}
}

// DB exposes the gorm handle
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// Ping checks the connection
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Storage("get underlying sql.DB", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errors.Storage("ping database", err)
	}
	return nil
}

// Close releases the connection pool
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// EnsureSchema creates the tables and indexes if they do not exist
func (s *GormStore) EnsureSchema(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return errors.Storage("auto-migrate pricing tables", err)
	}
	return nil
}

// LoadSnapshot reads every table in id order and seals a snapshot
func (s *GormStore) LoadSnapshot(ctx context.Context, opts LoadOptions) (*pricing.Snapshot, error) {
	tx := s.db.WithContext(ctx)
	retired := func(q *gorm.DB) *gorm.DB {
		if opts.RetiredBefore.IsZero() {
			return q
		}
		return q.Where("effective_to IS NULL OR effective_to > ?", temporal.Day(opts.RetiredBefore))
	}

	var bases []BasePriceRecord
	if err := retired(tx.Order("id ASC")).Find(&bases).Error; err != nil {
		return nil, errors.Storage("load base_prices", err)
	}
	var factors []LocationFactorRecord
	if err := retired(tx.Order("id ASC")).Find(&factors).Error; err != nil {
		return nil, errors.Storage("load location_factors", err)
	}
	var rates []RentRateRecord
	if err := retired(tx.Order("id ASC")).Find(&rates).Error; err != nil {
		return nil, errors.Storage("load mrrc_rates", err)
	}
	var buildings []BuildingTypeRecord
	if err := tx.Order("id ASC").Find(&buildings).Error; err != nil {
		return nil, errors.Storage("load building_types", err)
	}
	var regions []SA4RegionRecord
	if err := tx.Order("id ASC").Find(&regions).Error; err != nil {
		return nil, errors.Storage("load sa4_regions", err)
	}

	b := pricing.NewSnapshotBuilder().WithSource(pricing.SourceDatabase)
	for _, r := range bases {
		b.AddBasePrices(r.toDomain())
	}
	for _, r := range factors {
		b.AddLocationFactors(r.toDomain())
	}
	for _, r := range rates {
		b.AddRentRates(r.toDomain())
	}
	for _, r := range buildings {
		b.AddBuildingTypes(r.toDomain())
	}
	for _, r := range regions {
		b.AddRegions(r.toDomain())
	}

	snap := b.Build()
	s.logger.Debug("snapshot loaded",
		zap.String("snapshot_id", string(snap.ID)),
		zap.Int("base_prices", len(bases)),
		zap.Int("location_factors", len(factors)),
		zap.Int("mrrc_rates", len(rates)))
	return snap, nil
}

// Stats counts the rows in each table
func (s *GormStore) Stats(ctx context.Context) (Status, error) {
	tx := s.db.WithContext(ctx)
	var st Status

	counts := []struct {
		model any
		dst   *int64
	}{
		{&BasePriceRecord{}, &st.Tables.BasePrices},
		{&LocationFactorRecord{}, &st.Tables.LocationFactors},
		{&RentRateRecord{}, &st.Tables.RentRates},
		{&BuildingTypeRecord{}, &st.Tables.BuildingTypes},
		{&SA4RegionRecord{}, &st.Tables.Regions},
	}
	for _, c := range counts {
		if err := tx.Model(c.model).Count(c.dst).Error; err != nil {
			return Status{}, errors.Storage("count rows", err)
		}
	}

	st.Initialized = st.Tables.BasePrices > MinBasePrices &&
		st.Tables.Regions > MinRegions &&
		st.Tables.LocationFactors > MinLocationFactors
	return st, nil
}

// SaveBuildingTypes upserts catalog entries by name
func (s *GormStore) SaveBuildingTypes(ctx context.Context, rows []types.BuildingType) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	recs := make([]BuildingTypeRecord, len(rows))
	for i, r := range rows {
		recs[i] = buildingTypeRecord(r)
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"resident_count", "building_category", "allows_robust", "location_factor_column", "display_order"}),
	}).Create(&recs)
	if res.Error != nil {
		return 0, errors.Storage("save building_types", res.Error)
	}
	return len(recs), nil
}

// SaveRegions inserts regions that are not yet present
func (s *GormStore) SaveRegions(ctx context.Context, rows []types.SA4Region) (int, error) {
	inserted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range rows {
			rec := regionRecord(r)
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
			if res.Error != nil {
				return res.Error
			}
			inserted += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, errors.Storage("save sa4_regions", err)
	}
	return inserted, nil
}

// SaveRentRates inserts MRRC rows whose effective_from is not yet present.
// An open row that started earlier is closed at the new row's start.
func (s *GormStore) SaveRentRates(ctx context.Context, rows []types.RentContributionRate) (int, error) {
	sorted := append([]types.RentContributionRate(nil), rows...)
	determinism.SortSlice(sorted, func(a, b types.RentContributionRate) bool { return a.From.Before(b.From) })

	inserted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range sorted {
			rec := rentRateRecord(r)
			var existing int64
			if err := tx.Model(&RentRateRecord{}).Where("effective_from = ?", rec.EffectiveFrom).Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 {
				continue
			}
			if err := tx.Model(&RentRateRecord{}).
				Where("effective_to IS NULL AND effective_from < ?", rec.EffectiveFrom).
				Update("effective_to", rec.EffectiveFrom).Error; err != nil {
				return err
			}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, errors.Storage("save mrrc_rates", err)
	}
	return inserted, nil
}

// SaveBasePrices appends base price rows
func (s *GormStore) SaveBasePrices(ctx context.Context, rows []types.BasePrice) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	recs := make([]BasePriceRecord, len(rows))
	for i, r := range rows {
		recs[i] = basePriceRecord(r)
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&recs, insertBatchSize).Error; err != nil {
		return 0, errors.Storage("save base_prices", err)
	}
	return len(recs), nil
}

// ReplaceLocationFactors swaps the whole location factor table in one transaction
func (s *GormStore) ReplaceLocationFactors(ctx context.Context, rows []types.LocationFactor) (int, error) {
	recs := make([]LocationFactorRecord, len(rows))
	for i, r := range rows {
		recs[i] = locationFactorRecord(r)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&LocationFactorRecord{}).Error; err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}
		return tx.CreateInBatches(&recs, insertBatchSize).Error
	})
	if err != nil {
		return 0, errors.Storage("replace location_factors", err)
	}
	return len(recs), nil
}

// SupersedeBasePrices closes the open rows for every key in rows at from,
// then inserts rows as the new vintage.
func (s *GormStore) SupersedeBasePrices(ctx context.Context, from time.Time, rows []types.BasePrice) (SupersedeResult, error) {
	day := temporal.Day(from)
	var result SupersedeResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seen := make(map[string]bool, len(rows))
		for _, r := range rows {
			if seen[r.Key()] {
				continue
			}
			seen[r.Key()] = true

			q := tx.Model(&BasePriceRecord{}).
				Where("stock_type = ? AND building_type = ? AND design_category = ? AND ooa_status = ? AND fire_sprinklers = ?",
					string(r.StockType), r.BuildingType, string(r.DesignCategory), string(r.OOAStatus), r.FireSprinklers).
				Where("effective_to IS NULL AND effective_from < ?", day)
			if r.ITCClaimed == nil {
				q = q.Where("itc_claimed IS NULL")
			} else {
				q = q.Where("itc_claimed = ?", *r.ITCClaimed)
			}
			res := q.Update("effective_to", day)
			if res.Error != nil {
				return res.Error
			}
			result.Closed += int(res.RowsAffected)
		}

		recs := make([]BasePriceRecord, len(rows))
		for i, r := range rows {
			r.Interval = temporal.NewInterval(day, r.To)
			recs[i] = basePriceRecord(r)
		}
		if len(recs) > 0 {
			if err := tx.CreateInBatches(&recs, insertBatchSize).Error; err != nil {
				return err
			}
		}
		result.Inserted = len(recs)
		return nil
	})
	if err != nil {
		return SupersedeResult{}, errors.Storage("supersede base_prices", err)
	}

	s.logger.Info("base prices superseded",
		zap.String("effective_from", day.Format(temporal.DateLayout)),
		zap.Int("closed", result.Closed),
		zap.Int("inserted", result.Inserted))
	return result, nil
}

var _ PricingStore = (*GormStore)(nil)
