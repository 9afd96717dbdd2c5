package server

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/jonwraymond/zerocache/observe"
)

// Janitor deletes expired cache rows on a fixed period.
type Janitor struct {
	db       *gorm.DB
	table    string
	interval time.Duration
	now      func() time.Time
	logger   observe.Logger
	metrics  *Metrics
}

// NewJanitor creates a janitor for table. metrics and logger may be nil.
func NewJanitor(db *gorm.DB, table string, interval time.Duration, logger observe.Logger, metrics *Metrics) *Janitor {
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Janitor{
		db:       db,
		table:    table,
		interval: interval,
		now:      time.Now,
		logger:   logger,
		metrics:  metrics,
	}
}

// Prune deletes rows whose ttl is before now and returns how many.
func (j *Janitor) Prune(ctx context.Context) (int64, error) {
	res := j.db.WithContext(ctx).
		Table(j.table).
		Where("ttl < ?", j.now().UnixMilli()).
		Delete(&Row{})
	if j.metrics != nil {
		j.metrics.prune(res.RowsAffected, res.Error)
	}
	if res.Error != nil {
		return 0, statementError(res.Error)
	}
	return res.RowsAffected, nil
}

// Run prunes every interval until ctx is done. A non-positive interval
// returns immediately.
func (j *Janitor) Run(ctx context.Context) {
	if j.interval <= 0 {
		return
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := j.Prune(ctx)
			switch {
			case err != nil && ctx.Err() == nil:
				j.logger.Warn(ctx, "prune failed", observe.F("table", j.table), observe.F("error", err))
			case n > 0:
				j.logger.Debug(ctx, "pruned expired rows", observe.F("table", j.table), observe.F("rows", n))
			}
		}
	}
}
