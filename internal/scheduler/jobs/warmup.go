package jobs

import (
	"context"
	"time"

	"github.com/wonny/globallink/internal/catalog"
	"github.com/wonny/globallink/internal/featurestore"
	"github.com/wonny/globallink/internal/pipeline"
	"github.com/wonny/globallink/pkg/logger"
)

// WarmupJob seeds series that are still empty, e.g. after an indicator is added to the catalog
type WarmupJob struct {
	catalog *catalog.Catalog
	store   *featurestore.Store
	sources []pipeline.SeriesSource
	years   int
	logger  *logger.Logger
}

// NewWarmupJob creates a new warm-up job
func NewWarmupJob(cat *catalog.Catalog, store *featurestore.Store, srcs []pipeline.SeriesSource, years int, log *logger.Logger) *WarmupJob {
	return &WarmupJob{
		catalog: cat,
		store:   store,
		sources: srcs,
		years:   years,
		logger:  log,
	}
}

// Name returns the job name
func (j *WarmupJob) Name() string {
	return "warmup"
}

// Schedule returns the cron schedule (weekdays before the open)
func (j *WarmupJob) Schedule() string {
	return "0 30 8 * * MON-FRI"
}

// Run seeds empty series; already seeded keys are left alone
func (j *WarmupJob) Run(ctx context.Context) error {
	res, err := pipeline.Warmup(ctx, j.catalog, j.store, j.sources, j.years, time.Now(), j.logger)
	if err != nil {
		return err
	}
	if len(res.Seeded) > 0 {
		j.logger.WithField("seeded", res.Seeded).Info("Warm-up seeded new series")
	}
	return nil
}
