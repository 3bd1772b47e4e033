// Package scheduler keeps the served pricing snapshot in step with the table store.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"sda-calculator/core/engine"
	"sda-calculator/core/pricing"
	"sda-calculator/db"
	"sda-calculator/internal/errors"
)

// DefaultSchedule reloads every ten minutes
const DefaultSchedule = "@every 10m"

const loadTimeout = 2 * time.Minute

// SnapshotLoader builds a snapshot from the table store
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, opts db.LoadOptions) (*pricing.Snapshot, error)
}

// Config controls the refresher
type Config struct {
	// Schedule is a cron spec or @every descriptor
	Schedule string

	// HistoryDays drops rows retired more than this many days ago; 0 keeps all
	HistoryDays int
}

// Refresher reloads the snapshot on a schedule.
// A failed reload keeps the snapshot already being served.
type Refresher struct {
	cron   *cron.Cron
	loader SnapshotLoader
	holder *engine.SnapshotHolder
	config Config
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	lastErr  error
	failures int
}

// NewRefresher creates a refresher feeding holder from loader
func NewRefresher(loader SnapshotLoader, holder *engine.SnapshotHolder, config Config, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Schedule == "" {
		config.Schedule = DefaultSchedule
	}

	return &Refresher{
		cron:   cron.New(),
		loader: loader,
		holder: holder,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Load builds a snapshot and swaps it in
func (r *Refresher) Load(ctx context.Context) error {
	start := r.now()
	snap, err := r.loader.LoadSnapshot(ctx, r.loadOptions())

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.lastErr = err
		r.failures++
		fields := []zap.Field{zap.Error(err), zap.Int("consecutive_failures", r.failures)}
		if cur := r.holder.Snapshot(); cur != nil {
			fields = append(fields, zap.String("serving", string(cur.ID)))
		}
		r.logger.Warn("snapshot reload failed, keeping current snapshot", fields...)
		return err
	}

	r.lastErr = nil
	r.failures = 0
	changed := r.holder.Store(snap)

	stats := snap.Stats()
	r.logger.Info("snapshot loaded",
		zap.String("snapshot_id", string(snap.ID)),
		zap.Bool("changed", changed),
		zap.Int("base_prices", stats.BasePrices),
		zap.Int("location_factors", stats.LocationFactors),
		zap.Int("rent_rates", stats.RentRates),
		zap.Duration("duration", r.now().Sub(start)),
	)
	return nil
}

func (r *Refresher) loadOptions() db.LoadOptions {
	if r.config.HistoryDays <= 0 {
		return db.LoadOptions{}
	}
	cutoff := r.now().UTC().AddDate(0, 0, -r.config.HistoryDays)
	return db.LoadOptions{RetiredBefore: cutoff}
}

// LastError returns the error of the most recent reload, nil after a success
func (r *Refresher) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Start schedules periodic reloads
func (r *Refresher) Start() error {
	if _, err := r.cron.AddFunc(r.config.Schedule, r.reload); err != nil {
		return errors.Config("invalid refresh schedule "+r.config.Schedule, err)
	}
	r.logger.Info("starting snapshot refresher", zap.String("schedule", r.config.Schedule))
	r.cron.Start()
	return nil
}

// Stop stops the schedule and waits for a running reload to finish
func (r *Refresher) Stop() {
	r.logger.Info("stopping snapshot refresher")
	<-r.cron.Stop().Done()
}

func (r *Refresher) reload() {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	_ = r.Load(ctx)
}
