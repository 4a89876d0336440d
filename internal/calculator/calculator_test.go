package calculator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/globallink/internal/artifact"
	"github.com/wonny/globallink/internal/catalog"
	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/internal/featurestore"
	"github.com/wonny/globallink/pkg/logger"
)

var cst = time.FixedZone("CST", 8*3600)

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		LotSize:     100,
		HistoryDays: 45,
		Indicators: []catalog.Indicator{
			{Key: "CNH", Kind: catalog.KindPrice, Providers: []catalog.ProviderRef{{Name: "a", Symbol: "x"}}},
			{Key: "Northbound", Kind: catalog.KindFlow, Unit: "1e8 CNY", Providers: []catalog.ProviderRef{{Name: "a", Symbol: "y"}}},
			{Key: "VIX", Kind: catalog.KindPrice, Providers: []catalog.ProviderRef{{Name: "a", Symbol: "z"}}},
		},
	}
}

func newCalculator(t *testing.T, log featurestore.SeriesLog) (*Calculator, *featurestore.Store, string) {
	t.Helper()
	cat := testCatalog()
	store := featurestore.NewStore(log, cat, cst, logger.NewNop())
	dir := filepath.Join(t.TempDir(), "processed")
	return New(store, cat, artifact.NewMetricsStore(dir), cst, logger.NewNop()), store, dir
}

func day(d int) time.Time {
	return time.Date(2024, 5, d, 15, 0, 0, 0, cst)
}

func baseSnapshot() *contracts.RawSnapshot {
	return &contracts.RawSnapshot{
		Meta: contracts.SnapshotMeta{Timestamp: "2024-05-10 10:30", Timezone: "Asia/Shanghai", RunID: "run-1"},
		Macro: map[string]contracts.Reading{
			"CNH": {
				Key: "CNH", Value: contracts.Float(7.23456), Price: contracts.Float(7.23456),
				ChangePct: contracts.Float(0.12345), Status: contracts.StatusSuccess, Source: "sina",
			},
			"Northbound": {
				Key: "Northbound", Value: contracts.Float(5.2e9), ChangePct: nil,
				Status: contracts.StatusSuccess, Source: "eastmoney", Unit: "1e8 CNY",
			},
			"VIX": contracts.FailedReading("VIX", ""),
		},
	}
}

func TestCompute_MacroMatrix(t *testing.T) {
	calc, store, _ := newCalculator(t, featurestore.NewMemoryLog())
	ctx := context.Background()

	_, err := store.Seed(ctx, "VIX", []contracts.Point{
		{Timestamp: day(7), Value: 12},
		{Timestamp: day(8), Value: 14},
		{Timestamp: day(9), Value: 16},
	})
	require.NoError(t, err)

	m, err := calc.Compute(ctx, baseSnapshot())
	require.NoError(t, err)

	assert.Equal(t, "2024-05-10 10:30", m.AsOf)
	assert.Equal(t, "run-1", m.RunID)
	require.Len(t, m.MacroMatrix, 3)
	require.Len(t, m.MacroHealth, 3)

	cnh := m.MacroMatrix["CNH"]
	require.NotNil(t, cnh.Value)
	assert.Equal(t, 7.235, *cnh.Value)
	require.NotNil(t, cnh.ChangePct)
	assert.Equal(t, 0.123, *cnh.ChangePct)
	assert.Equal(t, "sina", cnh.Source)
	assert.Equal(t, contracts.NeutralFeatures(), cnh.Features, "no history yet")

	nb := m.MacroMatrix["Northbound"]
	require.NotNil(t, nb.Value)
	assert.Equal(t, 52.0, *nb.Value, "flows are rescaled to 1e8")
	assert.Nil(t, nb.ChangePct)
	assert.Equal(t, "1e8 CNY", nb.Unit)

	// failed today, but history still informs the features
	vix := m.MacroMatrix["VIX"]
	assert.Equal(t, contracts.StatusFailed, vix.Status)
	assert.Nil(t, vix.Value)
	assert.Empty(t, vix.Source)
	require.NotNil(t, vix.Features.Value)
	assert.Equal(t, 16.0, *vix.Features.Value)
	assert.Equal(t, 3, vix.Features.Samples)
	assert.Equal(t, 100.0, vix.Features.Percentile20)
	assert.Greater(t, vix.Features.Slope, 0.0)

	require.NotNil(t, m.MacroHealth["VIX"].LastUpdate)
	assert.Equal(t, "2024-05-09 15:00", *m.MacroHealth["VIX"].LastUpdate)
	assert.Equal(t, contracts.StatusFailed, m.MacroHealth["VIX"].Status)
	assert.Nil(t, m.MacroHealth["CNH"].LastUpdate)
	assert.Equal(t, []string{"VIX"}, m.Failed())
}

func TestCompute_MissingKeyIsFailed(t *testing.T) {
	calc, _, _ := newCalculator(t, featurestore.NewMemoryLog())

	snap := baseSnapshot()
	delete(snap.Macro, "CNH")
	snap.Macro["Extra"] = contracts.Reading{Key: "Extra", Value: contracts.Float(1), Status: contracts.StatusSuccess, Source: "a"}

	m, err := calc.Compute(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, contracts.StatusFailed, m.MacroMatrix["CNH"].Status)
	assert.Nil(t, m.MacroMatrix["CNH"].Value)
	assert.Contains(t, m.MacroMatrix, "Extra")
}

func TestCompute_JSONShape(t *testing.T) {
	calc, _, _ := newCalculator(t, featurestore.NewMemoryLog())

	m, err := calc.Compute(context.Background(), baseSnapshot())
	require.NoError(t, err)

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, field := range []string{"as_of", "macro_matrix", "macro_health", "technical_matrix"} {
		assert.Contains(t, raw, field)
	}

	var macro map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(raw["macro_matrix"], &macro))
	vix := macro["VIX"]
	assert.Contains(t, vix, "value")
	assert.Nil(t, vix["value"])
	assert.Contains(t, vix, "change_pct")

	assert.JSONEq(t, `[]`, string(raw["technical_matrix"]))
}

func TestCompute_TechnicalMatrix(t *testing.T) {
	calc, _, _ := newCalculator(t, featurestore.NewMemoryLog())

	snap := baseSnapshot()
	snap.Spot = []contracts.InstrumentSnapshot{
		live("510300", 15, 250, contracts.UnitShare),
		live("510500", 9, 250, contracts.UnitShare),
		live("512880", 10, 250, contracts.UnitShare),
		{Code: "159915", Status: contracts.StatusFailed},
	}
	snap.History = map[string]contracts.InstrumentHistory{
		"510300": history("510300", []float64{10, 10, 10, 10}, 250, contracts.UnitShare),
		"510500": history("510500", []float64{10, 10, 10, 10}, 250, contracts.UnitShare),
		"512880": history("512880", []float64{10, 10, 10}, 250, contracts.UnitShare),
		"159915": history("159915", []float64{10, 10, 10, 10}, 250, contracts.UnitShare),
	}

	m, err := calc.Compute(context.Background(), snap)
	require.NoError(t, err)

	require.Len(t, m.TechnicalMatrix, 2, "short history and failed quote are omitted")
	assert.Equal(t, "510500", m.TechnicalMatrix[0].Code)
	assert.Equal(t, "510300", m.TechnicalMatrix[1].Code)
	assert.Equal(t, 36.364, m.TechnicalMatrix[1].BiasPct)
}

type brokenLog struct{}

func (brokenLog) AppendIfNew(context.Context, string, contracts.Point) (featurestore.AppendOutcome, error) {
	return featurestore.Appended, nil
}

func (brokenLog) ReadAll(context.Context, string) ([]contracts.Point, error) {
	return nil, &contracts.PersistenceError{Artifact: "history", Err: errors.New("disk gone")}
}

func TestCompute_ReadFailure(t *testing.T) {
	calc, _, _ := newCalculator(t, brokenLog{})

	_, err := calc.Compute(context.Background(), baseSnapshot())
	require.Error(t, err)
	assert.True(t, contracts.IsPersistence(err))
}

func TestPersist(t *testing.T) {
	calc, _, dir := newCalculator(t, featurestore.NewMemoryLog())

	m, err := calc.Compute(context.Background(), baseSnapshot())
	require.NoError(t, err)

	path, err := calc.Persist(m)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "metrics_20240510_1030.json"), path)

	_, err = os.Stat(filepath.Join(dir, "latest_metrics.json"))
	require.NoError(t, err)

	var back contracts.MetricsMatrix
	require.NoError(t, artifact.ReadFile(path, &back))
	assert.Equal(t, m.RunID, back.RunID)
	assert.Len(t, back.MacroMatrix, 3)
}

func TestPersist_BadTimestamp(t *testing.T) {
	calc, _, _ := newCalculator(t, featurestore.NewMemoryLog())

	_, err := calc.Persist(&contracts.MetricsMatrix{AsOf: "yesterday"})
	require.Error(t, err)
	assert.True(t, contracts.IsPersistence(err))
}
