package acquisition

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/globallink/internal/artifact"
	"github.com/wonny/globallink/internal/catalog"
	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/pkg/logger"
)

var cst = time.FixedZone("CST", 8*3600)

var cycleTime = time.Date(2024, 5, 10, 10, 30, 0, 0, cst)

// stub implements all three provider roles with overridable behaviour
type stub struct {
	name      string
	indicator func(ctx context.Context, symbol string) (contracts.Observation, error)
	quote     func(ctx context.Context, inst contracts.Instrument) (contracts.Quote, error)
	history   func(ctx context.Context, inst contracts.Instrument, from, to time.Time) ([]contracts.Bar, error)
}

func (s *stub) Name() string { return s.name }

func (s *stub) FetchIndicator(ctx context.Context, symbol string) (contracts.Observation, error) {
	if s.indicator == nil {
		return contracts.Observation{}, contracts.Unavailable("no indicator")
	}
	return s.indicator(ctx, symbol)
}

func (s *stub) FetchQuote(ctx context.Context, inst contracts.Instrument) (contracts.Quote, error) {
	if s.quote == nil {
		return contracts.Quote{}, contracts.Unavailable("no quote")
	}
	return s.quote(ctx, inst)
}

func (s *stub) FetchHistory(ctx context.Context, inst contracts.Instrument, from, to time.Time) ([]contracts.Bar, error) {
	if s.history == nil {
		return nil, contracts.Unavailable("no history")
	}
	return s.history(ctx, inst, from, to)
}

func value(v float64, pct float64) func(context.Context, string) (contracts.Observation, error) {
	return func(context.Context, string) (contracts.Observation, error) {
		return contracts.Observation{Value: v, ChangePct: contracts.Float(pct)}, nil
	}
}

func failing(context.Context, string) (contracts.Observation, error) {
	return contracts.Observation{}, contracts.Unavailable("down")
}

type recorded struct {
	role, provider string
	outcome        Outcome
}

type memRecorder struct {
	mu       sync.Mutex
	attempts []recorded
	statuses map[string]bool
}

func (m *memRecorder) ProviderAttempt(role, provider, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, recorded{role, provider, Outcome(outcome)})
}

func (m *memRecorder) IndicatorStatus(key string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statuses == nil {
		m.statuses = make(map[string]bool)
	}
	m.statuses[key] = ok
}

func chain(names ...string) []catalog.ProviderRef {
	refs := make([]catalog.ProviderRef, 0, len(names))
	for _, n := range names {
		refs = append(refs, catalog.ProviderRef{Name: n, Symbol: n + "-sym"})
	}
	return refs
}

func newHarvester(t *testing.T, cat *catalog.Catalog, providers ...*stub) *Harvester {
	t.Helper()
	reg := NewRegistry()
	for _, p := range providers {
		reg.Register(p)
	}
	raw := artifact.NewRawStore(filepath.Join(t.TempDir(), "raw"))
	return NewHarvester(cat, reg, raw, cst, 50*time.Millisecond, logger.NewNop()).
		WithClock(func() time.Time { return cycleTime })
}

func macroCatalog(indicators ...catalog.Indicator) *catalog.Catalog {
	return &catalog.Catalog{LotSize: 100, HistoryDays: 45, Indicators: indicators}
}

func TestCollect_ThirdProviderWins(t *testing.T) {
	cat := macroCatalog(catalog.Indicator{Key: "CNH", Kind: catalog.KindPrice, Providers: chain("a", "b", "c")})

	h := newHarvester(t, cat,
		&stub{name: "a", indicator: func(context.Context, string) (contracts.Observation, error) { panic("boom") }},
		&stub{name: "b", indicator: value(math.NaN(), 0)},
		&stub{name: "c", indicator: value(7.10, 0.05)},
	)

	snap := h.Collect(context.Background())
	r := snap.Macro["CNH"]

	assert.Equal(t, contracts.StatusSuccess, r.Status)
	assert.Equal(t, "c", r.Source)
	require.NotNil(t, r.Value)
	assert.Equal(t, 7.10, *r.Value)
	require.NotNil(t, r.Price)
	assert.Equal(t, 7.10, *r.Price)
	require.NotNil(t, r.ChangePct)
	assert.Equal(t, 0.05, *r.ChangePct)
	assert.Nil(t, r.Yield)
}

func TestCollect_SequentialByDefault(t *testing.T) {
	ref := func(provider, symbol string) catalog.ProviderRef {
		return catalog.ProviderRef{Name: provider, Symbol: symbol}
	}
	cat := macroCatalog(
		catalog.Indicator{Key: "CNH", Kind: catalog.KindPrice, Providers: []catalog.ProviderRef{ref("a", "cnh"), ref("b", "cnh")}},
		catalog.Indicator{Key: "VIX", Kind: catalog.KindPrice, Providers: []catalog.ProviderRef{ref("a", "vix"), ref("b", "vix")}},
		catalog.Indicator{Key: "Gold", Kind: catalog.KindPrice, Providers: []catalog.ProviderRef{ref("b", "gold")}},
	)

	var (
		mu       sync.Mutex
		calls    []string
		inFlight int
		peak     int
	)
	track := func(name string, obs contracts.Observation, err error) func(context.Context, string) (contracts.Observation, error) {
		return func(_ context.Context, symbol string) (contracts.Observation, error) {
			mu.Lock()
			calls = append(calls, name+":"+symbol)
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return obs, err
		}
	}

	h := newHarvester(t, cat,
		&stub{name: "a", indicator: track("a", contracts.Observation{}, contracts.Unavailable("down"))},
		&stub{name: "b", indicator: track("b", contracts.Observation{Value: 1}, nil)},
	)

	snap := h.Collect(context.Background())
	assert.Len(t, snap.Macro, 3)
	assert.Equal(t, []string{"a:cnh", "b:cnh", "a:vix", "b:vix", "b:gold"}, calls, "catalog order, chain order within each key")
	assert.Equal(t, 1, peak, "no two provider calls overlap")
}

func TestCollect_ExhaustedChain(t *testing.T) {
	cat := macroCatalog(
		catalog.Indicator{Key: "VIX", Kind: catalog.KindPrice, Providers: chain("a", "b")},
		catalog.Indicator{Key: "Gold", Kind: catalog.KindPrice, Providers: chain("b")},
	)

	h := newHarvester(t, cat,
		&stub{name: "a", indicator: failing},
		&stub{name: "b", indicator: value(0, 1)}, // non-positive price
	)

	snap := h.Collect(context.Background())

	require.Len(t, snap.Macro, 2, "every key is present")
	for _, key := range []string{"VIX", "Gold"} {
		r := snap.Macro[key]
		assert.Equal(t, contracts.StatusFailed, r.Status, key)
		assert.Nil(t, r.Value, key)
		assert.Empty(t, r.Source, key)
	}

	data, err := json.Marshal(snap.Macro["VIX"])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"value":null`)
}

func TestCollect_KindMapping(t *testing.T) {
	cat := macroCatalog(
		catalog.Indicator{Key: "US10Y", Kind: catalog.KindYield, Providers: chain("a")},
		catalog.Indicator{Key: "Northbound", Kind: catalog.KindFlow, Providers: chain("b")},
	)

	h := newHarvester(t, cat,
		&stub{name: "a", indicator: value(4.45, 0.2)},
		&stub{name: "b", indicator: value(-2.5e9, 0)}, // outflows are negative
	)

	snap := h.Collect(context.Background())

	us := snap.Macro["US10Y"]
	require.NotNil(t, us.Yield)
	assert.Equal(t, 4.45, *us.Yield)
	assert.Nil(t, us.Price)

	nb := snap.Macro["Northbound"]
	assert.Equal(t, contracts.StatusSuccess, nb.Status)
	require.NotNil(t, nb.Value)
	assert.Equal(t, -2.5e9, *nb.Value)
	assert.Nil(t, nb.Price)
	assert.Nil(t, nb.Yield)
}

func TestCollect_AttemptTimeout(t *testing.T) {
	cat := macroCatalog(catalog.Indicator{Key: "HangSeng", Kind: catalog.KindPrice, Providers: chain("slow", "fast")})

	release := make(chan struct{})
	defer close(release)

	rec := &memRecorder{}
	h := newHarvester(t, cat,
		&stub{name: "slow", indicator: func(ctx context.Context, _ string) (contracts.Observation, error) {
			<-release // ignores ctx
			return contracts.Observation{Value: 1}, nil
		}},
		&stub{name: "fast", indicator: value(18000, 1.2)},
	).WithRecorder(rec)

	snap := h.Collect(context.Background())

	assert.Equal(t, "fast", snap.Macro["HangSeng"].Source)
	require.Len(t, rec.attempts, 2)
	assert.Equal(t, recorded{RoleIndicator, "slow", OutcomeTimeout}, rec.attempts[0])
	assert.Equal(t, recorded{RoleIndicator, "fast", OutcomeOK}, rec.attempts[1])
	assert.True(t, rec.statuses["HangSeng"])
}

func TestCollect_UnregisteredProviderSkipped(t *testing.T) {
	cat := macroCatalog(catalog.Indicator{Key: "Nasdaq", Kind: catalog.KindPrice, Providers: chain("ghost", "a")})
	h := newHarvester(t, cat, &stub{name: "a", indicator: value(16000, 0.1)})

	snap := h.Collect(context.Background())
	assert.Equal(t, "a", snap.Macro["Nasdaq"].Source)
}

func TestCollect_Instruments(t *testing.T) {
	etf := contracts.Instrument{Code: "510300", Name: "沪深300ETF", Exchange: "sh"}
	dead := contracts.Instrument{Code: "159915", Name: "创业板ETF", Exchange: "sz"}

	cat := macroCatalog(catalog.Indicator{Key: "VIX", Kind: catalog.KindPrice, Providers: chain("a")})
	cat.Instruments = []contracts.Instrument{etf, dead}
	cat.QuoteProviders = []string{"a", "b"}
	cat.HistoryProviders = []string{"a", "b"}

	var gotFrom, gotTo time.Time
	var mu sync.Mutex

	h := newHarvester(t, cat,
		&stub{
			name:      "a",
			indicator: value(13, 0),
			quote: func(_ context.Context, inst contracts.Instrument) (contracts.Quote, error) {
				return contracts.Quote{Price: -1}, nil
			},
			history: func(context.Context, contracts.Instrument, time.Time, time.Time) ([]contracts.Bar, error) {
				return []contracts.Bar{}, nil
			},
		},
		&stub{
			name: "b",
			quote: func(_ context.Context, inst contracts.Instrument) (contracts.Quote, error) {
				if inst.Code == dead.Code {
					return contracts.Quote{}, contracts.Unavailable("suspended")
				}
				return contracts.Quote{Price: 3.5, Volume: contracts.Float(12), Unit: contracts.UnitLot}, nil
			},
			history: func(_ context.Context, inst contracts.Instrument, from, to time.Time) ([]contracts.Bar, error) {
				if inst.Code == dead.Code {
					return nil, errors.New("404")
				}
				mu.Lock()
				gotFrom, gotTo = from, to
				mu.Unlock()
				return []contracts.Bar{{Date: "2024-05-09", Close: 3.4}, {Date: "2024-05-08", Close: 3.3}}, nil
			},
		},
	)

	snap := h.Collect(context.Background())

	require.Len(t, snap.Spot, 2)
	live := snap.Spot[0]
	assert.Equal(t, "510300", live.Code)
	assert.Equal(t, "沪深300ETF", live.Name, "catalog name when the provider has none")
	assert.Equal(t, "b", live.Source)
	require.NotNil(t, live.Price)
	assert.Equal(t, 3.5, *live.Price)
	assert.Equal(t, contracts.UnitLot, live.Unit)

	failed := snap.Spot[1]
	assert.Equal(t, contracts.StatusFailed, failed.Status)
	assert.Nil(t, failed.Price)

	hist := snap.History["510300"]
	assert.Equal(t, "b", hist.Source)
	require.Len(t, hist.Bars, 2)
	assert.Equal(t, "2024-05-08", hist.Bars[0].Date, "bars are sorted")

	assert.Equal(t, contracts.StatusFailed, snap.History["159915"].Status)
	assert.NotNil(t, snap.History["159915"].Bars)

	assert.True(t, cycleTime.AddDate(0, 0, -45).Equal(gotFrom))
	assert.True(t, cycleTime.Equal(gotTo))
}

func TestCollect_Meta(t *testing.T) {
	cat := macroCatalog(catalog.Indicator{Key: "VIX", Kind: catalog.KindPrice, Providers: chain("a")})
	h := newHarvester(t, cat, &stub{name: "a", indicator: value(13, 0)})

	first := h.Collect(context.Background())
	second := h.Collect(context.Background())

	assert.Equal(t, "2024-05-10 10:30", first.Meta.Timestamp)
	assert.Equal(t, "CST", first.Meta.Timezone)
	assert.NotEmpty(t, first.Meta.RunID)
	assert.NotEqual(t, first.Meta.RunID, second.Meta.RunID)
	assert.NotEmpty(t, first.Meta.CatalogHash)
}

func TestHarvest_PersistsTwice(t *testing.T) {
	cat := macroCatalog(catalog.Indicator{Key: "VIX", Kind: catalog.KindPrice, Providers: chain("a")})
	h := newHarvester(t, cat, &stub{name: "a", indicator: value(13, 0)})

	snap, path, err := h.Harvest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "market_snap_20240510_1030.json", filepath.Base(path))

	archived, err := os.ReadFile(path)
	require.NoError(t, err)
	latest, err := os.ReadFile(filepath.Join(filepath.Dir(path), "latest_snap.json"))
	require.NoError(t, err)
	assert.Equal(t, archived, latest)

	var decoded contracts.RawSnapshot
	require.NoError(t, json.Unmarshal(latest, &decoded))
	assert.Equal(t, snap.Meta.RunID, decoded.Meta.RunID)
}

func TestHarvest_PersistenceError(t *testing.T) {
	cat := macroCatalog(catalog.Indicator{Key: "VIX", Kind: catalog.KindPrice, Providers: chain("a")})

	// a regular file where the raw directory should be
	blocker := filepath.Join(t.TempDir(), "raw")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	reg := NewRegistry().Register(&stub{name: "a", indicator: value(13, 0)})
	h := NewHarvester(cat, reg, artifact.NewRawStore(blocker), cst, time.Second, logger.NewNop()).
		WithClock(func() time.Time { return cycleTime })

	_, _, err := h.Harvest(context.Background())
	require.Error(t, err)
	assert.True(t, contracts.IsPersistence(err))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry().
		Register(&stub{name: "a"}).
		Register(&stub{name: "b"})

	assert.Equal(t, []string{"a", "b"}, reg.Names())

	cat := macroCatalog(catalog.Indicator{Key: "VIX", Kind: catalog.KindPrice, Providers: chain("a", "c")})
	err := reg.Check(cat)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"c"`)

	cat.Indicators[0].Providers = chain("a", "b")
	assert.NoError(t, reg.Check(cat))
}
