package acquisition

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/globallink/internal/artifact"
	"github.com/wonny/globallink/internal/catalog"
	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/pkg/logger"
)

// Harvester runs every provider chain of the catalog and assembles a raw snapshot
// ⭐ SSOT: provider 호출은 Harvester를 통해서만
type Harvester struct {
	catalog  *catalog.Catalog
	registry *Registry
	raw      *artifact.Store
	timeout  time.Duration
	loc      *time.Location
	chains   int
	now      func() time.Time
	recorder Recorder
	logger   *logger.Logger
	hash     string
}

// NewHarvester creates a harvester; timeout bounds every single provider attempt
func NewHarvester(cat *catalog.Catalog, reg *Registry, raw *artifact.Store, loc *time.Location, timeout time.Duration, log *logger.Logger) *Harvester {
	hash, _ := catalog.Hash(cat)
	return &Harvester{
		catalog:  cat,
		registry: reg,
		raw:      raw,
		timeout:  timeout,
		loc:      loc,
		chains:   1,
		now:      time.Now,
		recorder: nopRecorder{},
		logger:   log.WithField("module", "acquisition"),
		hash:     hash,
	}
}

// WithRecorder sets the attempt recorder
func (h *Harvester) WithRecorder(r Recorder) *Harvester {
	if r != nil {
		h.recorder = r
	}
	return h
}

// WithConcurrency lets up to n chains run at once. The default of 1 runs
// indicators, then instruments, strictly in catalog order.
func (h *Harvester) WithConcurrency(n int) *Harvester {
	if n > 0 {
		h.chains = n
	}
	return h
}

// WithClock overrides the cycle clock
func (h *Harvester) WithClock(now func() time.Time) *Harvester {
	h.now = now
	return h
}

// Collect acquires a snapshot without persisting it. It never fails:
// an exhausted chain is a FAILED entry, not an error.
func (h *Harvester) Collect(ctx context.Context) *contracts.RawSnapshot {
	return h.collect(ctx, h.now().In(h.loc))
}

// Harvest acquires a snapshot and persists it to the archive and the latest pointer
func (h *Harvester) Harvest(ctx context.Context) (*contracts.RawSnapshot, string, error) {
	now := h.now().In(h.loc)
	snap := h.collect(ctx, now)

	path, err := h.raw.Write(now, snap)
	if err != nil {
		return snap, "", err
	}

	h.logger.WithFields(map[string]interface{}{
		"run_id": snap.Meta.RunID,
		"path":   path,
	}).Info("Raw snapshot persisted")
	return snap, path, nil
}

func (h *Harvester) collect(ctx context.Context, now time.Time) *contracts.RawSnapshot {
	start := time.Now()
	snap := &contracts.RawSnapshot{
		Meta: contracts.SnapshotMeta{
			Timestamp:   now.Format(contracts.TimestampLayout),
			Timezone:    h.loc.String(),
			RunID:       uuid.NewString(),
			CatalogHash: h.hash,
		},
		Macro:   make(map[string]contracts.Reading, len(h.catalog.Indicators)),
		Spot:    make([]contracts.InstrumentSnapshot, len(h.catalog.Instruments)),
		History: make(map[string]contracts.InstrumentHistory, len(h.catalog.Instruments)),
	}

	// chains never return errors; the group only bounds concurrency
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(h.chains)

	for _, ind := range h.catalog.Indicators {
		g.Go(func() error {
			r := h.reading(ctx, ind)
			h.recorder.IndicatorStatus(ind.Key, r.Status == contracts.StatusSuccess)
			mu.Lock()
			snap.Macro[ind.Key] = r
			mu.Unlock()
			return nil
		})
	}

	from := now.AddDate(0, 0, -h.catalog.HistoryDays)
	for i, inst := range h.catalog.Instruments {
		g.Go(func() error {
			snap.Spot[i] = h.quote(ctx, inst)
			hist := h.history(ctx, inst, from, now)
			mu.Lock()
			snap.History[inst.Code] = hist
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	macroOK, spotOK, historyOK := snap.Coverage()
	h.logger.WithFields(map[string]interface{}{
		"run_id":     snap.Meta.RunID,
		"timestamp":  snap.Meta.Timestamp,
		"macro":      fmt.Sprintf("%d/%d", macroOK, len(snap.Macro)),
		"spot":       fmt.Sprintf("%d/%d", spotOK, len(snap.Spot)),
		"history":    fmt.Sprintf("%d/%d", historyOK, len(snap.History)),
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Info("Snapshot collected")

	return snap
}

// reading walks the provider chain of one indicator in catalog order
func (h *Harvester) reading(ctx context.Context, ind catalog.Indicator) contracts.Reading {
	for _, ref := range ind.Providers {
		p, ok := h.registry.Indicator(ref.Name)
		if !ok {
			h.logger.WithFields(map[string]interface{}{"key": ind.Key, "provider": ref.Name}).Warn("Provider not registered")
			continue
		}

		obs, outcome, err := attempt(ctx, h.timeout, func(ctx context.Context) (contracts.Observation, error) {
			return p.FetchIndicator(ctx, ref.Symbol)
		})
		if err == nil {
			err = validObservation(ind.Kind, obs)
			if err != nil {
				outcome = OutcomeInvalid
			}
		}
		h.recorder.ProviderAttempt(RoleIndicator, ref.Name, string(outcome))

		if err != nil {
			h.logger.WithFields(map[string]interface{}{
				"key":      ind.Key,
				"provider": ref.Name,
				"symbol":   ref.Symbol,
				"outcome":  string(outcome),
			}).WithError(err).Debug("Provider attempt failed")
			continue
		}

		return toReading(ind, ref.Name, obs)
	}

	h.logger.WithField("key", ind.Key).Warn("Provider chain exhausted")
	return contracts.FailedReading(ind.Key, ind.Unit)
}

func validObservation(kind catalog.Kind, obs contracts.Observation) error {
	if !contracts.IsFinite(obs.Value) {
		return contracts.Malformed("non-finite value %v", obs.Value)
	}
	if kind == catalog.KindPrice && obs.Value <= 0 {
		return contracts.Malformed("non-positive price %v", obs.Value)
	}
	return nil
}

func toReading(ind catalog.Indicator, source string, obs contracts.Observation) contracts.Reading {
	r := contracts.Reading{
		Key:    ind.Key,
		Value:  contracts.Float(obs.Value),
		Status: contracts.StatusSuccess,
		Source: source,
		Unit:   ind.Unit,
		AsOf:   obs.AsOf,
	}
	if obs.ChangePct != nil && contracts.IsFinite(*obs.ChangePct) {
		r.ChangePct = contracts.Float(*obs.ChangePct)
	}

	switch ind.Kind {
	case catalog.KindPrice:
		r.Price = contracts.Float(obs.Value)
	case catalog.KindYield:
		r.Yield = contracts.Float(obs.Value)
	}
	return r
}

// quote walks the quote chain of one instrument
func (h *Harvester) quote(ctx context.Context, inst contracts.Instrument) contracts.InstrumentSnapshot {
	for _, name := range h.catalog.QuoteProviders {
		p, ok := h.registry.Quote(name)
		if !ok {
			continue
		}

		q, outcome, err := attempt(ctx, h.timeout, func(ctx context.Context) (contracts.Quote, error) {
			return p.FetchQuote(ctx, inst)
		})
		if err == nil && (!contracts.IsFinite(q.Price) || q.Price <= 0) {
			err, outcome = contracts.Malformed("price %v", q.Price), OutcomeInvalid
		}
		h.recorder.ProviderAttempt(RoleQuote, name, string(outcome))
		if err != nil {
			h.logger.WithFields(map[string]interface{}{
				"code":     inst.Code,
				"provider": name,
				"outcome":  string(outcome),
			}).WithError(err).Debug("Quote attempt failed")
			continue
		}

		snap := contracts.InstrumentSnapshot{
			Code:   inst.Code,
			Name:   inst.Name,
			Price:  contracts.Float(q.Price),
			Unit:   q.Unit,
			Status: contracts.StatusSuccess,
			Source: name,
		}
		if q.Name != "" {
			snap.Name = q.Name
		}
		if q.Volume != nil && contracts.IsFinite(*q.Volume) && *q.Volume >= 0 {
			snap.Volume = contracts.Float(*q.Volume)
		}
		if q.ChangePct != nil && contracts.IsFinite(*q.ChangePct) {
			snap.ChangePct = contracts.Float(*q.ChangePct)
		}
		return snap
	}

	h.logger.WithField("code", inst.Code).Warn("Quote chain exhausted")
	return contracts.InstrumentSnapshot{Code: inst.Code, Name: inst.Name, Status: contracts.StatusFailed}
}

// history walks the history chain of one instrument
func (h *Harvester) history(ctx context.Context, inst contracts.Instrument, from, to time.Time) contracts.InstrumentHistory {
	for _, name := range h.catalog.HistoryProviders {
		p, ok := h.registry.History(name)
		if !ok {
			continue
		}

		bars, outcome, err := attempt(ctx, h.timeout, func(ctx context.Context) ([]contracts.Bar, error) {
			return p.FetchHistory(ctx, inst, from, to)
		})
		if err == nil && len(bars) == 0 {
			err, outcome = contracts.Unavailable("no bars"), OutcomeInvalid
		}
		h.recorder.ProviderAttempt(RoleHistory, name, string(outcome))
		if err != nil {
			h.logger.WithFields(map[string]interface{}{
				"code":     inst.Code,
				"provider": name,
				"outcome":  string(outcome),
			}).WithError(err).Debug("History attempt failed")
			continue
		}

		contracts.SortBars(bars)
		return contracts.InstrumentHistory{Code: inst.Code, Status: contracts.StatusSuccess, Source: name, Bars: bars}
	}

	h.logger.WithField("code", inst.Code).Warn("History chain exhausted")
	return contracts.InstrumentHistory{Code: inst.Code, Status: contracts.StatusFailed, Bars: []contracts.Bar{}}
}
