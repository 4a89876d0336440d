package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/wonny/globallink/internal/acquisition"
	"github.com/wonny/globallink/internal/artifact"
	"github.com/wonny/globallink/internal/calculator"
	"github.com/wonny/globallink/internal/catalog"
	"github.com/wonny/globallink/internal/external/datacenter"
	"github.com/wonny/globallink/internal/external/eastmoney"
	"github.com/wonny/globallink/internal/external/shibor"
	"github.com/wonny/globallink/internal/external/sina"
	"github.com/wonny/globallink/internal/external/yahoo"
	"github.com/wonny/globallink/internal/featurestore"
	"github.com/wonny/globallink/internal/pipeline"
	"github.com/wonny/globallink/pkg/config"
	"github.com/wonny/globallink/pkg/database"
	"github.com/wonny/globallink/pkg/httputil"
	"github.com/wonny/globallink/pkg/logger"
	"github.com/wonny/globallink/pkg/metrics"
	"github.com/wonny/globallink/pkg/redis"
)

const redisPrefix = "globallink"

// app holds every wired component of one process
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	loc       *time.Location
	catalog   *catalog.Catalog
	raw       *artifact.Store
	processed *artifact.Store
	store     *featurestore.Store
	series    []pipeline.SeriesSource // warm-up order
	cycle     *pipeline.Cycle
	registry  *prometheus.Registry

	closers []func()
}

// newApp loads config and wires the pipeline
func newApp(ctx context.Context) (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if catalogFile != "" {
		cfg.CatalogPath = catalogFile
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	loc, err := cfg.Data.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	// 3. Load catalog; env overrides the technical window
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	cat.LotSize = cfg.LotSize
	cat.HistoryDays = cfg.HistoryLookbackDays

	a := &app{
		cfg:       cfg,
		log:       log,
		loc:       loc,
		catalog:   cat,
		raw:       artifact.NewRawStore(cfg.Data.RawDir()),
		processed: artifact.NewMetricsStore(cfg.Data.ProcessedDir()),
		registry:  prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(a.registry)

	// 4. Redis (optional)
	rdb, err := redis.New(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = rdb.Close() })

	// 5. History backend
	seriesLog, err := a.seriesLog(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = featurestore.NewStore(seriesLog, cat, loc, log)

	// 6. Providers
	reg := a.providers(rdb)
	if err := reg.Check(cat); err != nil {
		a.Close()
		return nil, fmt.Errorf("catalog references unknown providers: %w", err)
	}

	// 7. Pipeline
	harvester := acquisition.NewHarvester(cat, reg, a.raw, loc, cfg.Providers.Timeout, log).
		WithRecorder(recorder).
		WithConcurrency(cfg.Providers.Chains)
	calc := calculator.New(a.store, cat, a.processed, loc, log)
	a.cycle = pipeline.NewCycle(harvester, a.store, calc, a.raw, log).WithStageRecorder(recorder)
	if rdb.Enabled() {
		a.cycle.WithPublisher(pipeline.NewCachePublisher(redis.NewCache(rdb, redisPrefix)))
	}

	log.WithFields(map[string]interface{}{
		"indicators":  len(cat.Indicators),
		"instruments": len(cat.Instruments),
		"providers":   reg.Names(),
		"history":     cfg.Data.HistoryBackend,
		"redis":       rdb.Enabled(),
	}).Debug("Pipeline wired")

	return a, nil
}

func (a *app) seriesLog(ctx context.Context) (featurestore.SeriesLog, error) {
	if a.cfg.Data.HistoryBackend == config.HistoryBackendPostgres {
		db, err := database.New(ctx, a.cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)

		pg, err := featurestore.NewPostgresLog(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("init postgres history: %w", err)
		}
		return pg, nil
	}

	csv, err := featurestore.NewCSVLog(a.cfg.Data.HistoryDir(), a.loc, a.log)
	if err != nil {
		return nil, fmt.Errorf("init csv history: %w", err)
	}
	return csv, nil
}

// providers builds every adapter; with redis enabled each one shares a
// per-provider request budget across processes
func (a *app) providers(rdb *redis.Client) *acquisition.Registry {
	base := httputil.New(a.cfg, a.log).WithRetry(a.cfg.Providers.Retries, a.cfg.Providers.RetryDelay)
	limiter := redis.NewRateLimiter(rdb, redisPrefix)
	limited := func(name string) *httputil.Client {
		c := base.Clone()
		if rdb.Enabled() && a.cfg.Providers.RatePerSec > 0 {
			c.WithRateLimiter(limiter, redis.ProviderRateLimit(name, a.cfg.Providers.RatePerSec))
		}
		return c
	}

	p := a.cfg.Providers
	yh := yahoo.NewClient(a.log, a.loc)
	em := eastmoney.NewClient(limited(eastmoney.Name), a.log, p.EastmoneyQuoteURL, p.EastmoneyKlineURL).WithLocation(a.loc)
	dc := datacenter.NewClient(a.cfg, a.log, p.DatacenterURL).WithLocation(a.loc)
	a.series = []pipeline.SeriesSource{yh, em, dc}

	return acquisition.NewRegistry().
		Register(sina.NewClient(limited(sina.Name), a.log, p.SinaHQURL)).
		Register(em).
		Register(dc).
		Register(shibor.NewClient(limited(shibor.Name), a.log, p.ShiborURL)).
		Register(yh)
}

// Close releases database and redis connections
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
