package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/globallink/internal/catalog"
	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/internal/featurestore"
	"github.com/wonny/globallink/pkg/logger"
)

// SeriesSource serves daily closes of a provider symbol
type SeriesSource interface {
	Name() string
	Series(ctx context.Context, symbol string, from, to time.Time) ([]contracts.Point, error)
}

// WarmupResult maps indicator keys to the points seeded for them
type WarmupResult struct {
	Seeded  map[string]int    `json:"seeded"`
	Sources map[string]string `json:"sources"`           // source that served each seeded key
	Skipped []string          `json:"skipped,omitempty"` // already had history
	Failed  []string          `json:"failed,omitempty"`  // no source had data
}

// Warmup seeds empty series from daily history so percentiles are meaningful
// before many live cycles exist. Sources are tried in the given order among
// those the indicator lists a symbol for; the first one returning points wins.
// Flow points go through the same rescaling as live readings.
func Warmup(ctx context.Context, cat *catalog.Catalog, store *featurestore.Store, srcs []SeriesSource, years int, now time.Time, log *logger.Logger) (WarmupResult, error) {
	log = log.WithField("module", "warmup")
	res := WarmupResult{Seeded: make(map[string]int), Sources: make(map[string]string)}

	from := now.AddDate(-years, 0, 0)
	for _, ind := range cat.Indicators {
		candidates := seriesFor(ind, srcs)
		if len(candidates) == 0 {
			continue
		}

		existing, err := store.Series(ctx, ind.Key)
		if err != nil {
			return res, fmt.Errorf("warmup %s: %w", ind.Key, err)
		}
		if len(existing) > 0 {
			res.Skipped = append(res.Skipped, ind.Key)
			continue
		}

		seeded := false
		for _, c := range candidates {
			if err := ctx.Err(); err != nil {
				return res, err
			}

			points, err := c.src.Series(ctx, c.symbol, from, now)
			if err == nil && len(points) == 0 {
				err = contracts.Unavailable("%s %s: no points", c.src.Name(), c.symbol)
			}
			if err != nil {
				log.WithFields(map[string]interface{}{
					"key":    ind.Key,
					"source": c.src.Name(),
					"symbol": c.symbol,
				}).WithError(err).Warn("Warm-up source failed")
				continue
			}

			n, err := store.Seed(ctx, ind.Key, points)
			if err != nil {
				return res, fmt.Errorf("warmup %s: %w", ind.Key, err)
			}
			res.Seeded[ind.Key] = n
			res.Sources[ind.Key] = c.src.Name()
			seeded = true

			log.WithFields(map[string]interface{}{
				"key":    ind.Key,
				"source": c.src.Name(),
				"symbol": c.symbol,
				"points": n,
			}).Info("Series seeded")
			break
		}
		if !seeded {
			res.Failed = append(res.Failed, ind.Key)
		}
	}

	return res, nil
}

type seriesCandidate struct {
	src    SeriesSource
	symbol string
}

func seriesFor(ind catalog.Indicator, srcs []SeriesSource) []seriesCandidate {
	var out []seriesCandidate
	for _, src := range srcs {
		if symbol, ok := ind.SymbolFor(src.Name()); ok {
			out = append(out, seriesCandidate{src: src, symbol: symbol})
		}
	}
	return out
}
