package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/globallink/internal/api/handlers"
	"github.com/wonny/globallink/internal/artifact"
	"github.com/wonny/globallink/internal/catalog"
	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/internal/featurestore"
	"github.com/wonny/globallink/pkg/logger"
	"github.com/wonny/globallink/pkg/metrics"
)

var cst = time.FixedZone("CST", 8*3600)

func newTestRouter(t *testing.T) (http.Handler, *artifact.Store, *featurestore.Store) {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	store := featurestore.NewStore(featurestore.NewMemoryLog(), cat, cst, logger.NewNop())
	processed := artifact.NewMetricsStore(filepath.Join(t.TempDir(), "processed"))

	reg := prometheus.NewRegistry()
	metrics.New(reg).IndicatorStatus("VIX", true)

	h := handlers.NewMatrixHandler(processed, store, cat, logger.NewNop())
	return NewRouter(h, reg, logger.NewNop()), processed, store
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := get(t, router, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := get(t, router, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `globallink_indicator_status{key="VIX"} 1`))
}

func TestMatrixLatest(t *testing.T) {
	router, processed, _ := newTestRouter(t)

	rec := get(t, router, "/api/matrix/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	m := &contracts.MetricsMatrix{
		AsOf: "2024-05-10 10:30",
		MacroMatrix: map[string]contracts.MacroEntry{
			"VIX": {Status: contracts.StatusFailed, Features: contracts.NeutralFeatures()},
		},
		MacroHealth:     map[string]contracts.HealthEntry{"VIX": {Status: contracts.StatusFailed}},
		TechnicalMatrix: []contracts.TechnicalSignal{},
	}
	_, err := processed.Write(time.Date(2024, 5, 10, 10, 30, 0, 0, cst), m)
	require.NoError(t, err)

	rec = get(t, router, "/api/matrix/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	var back contracts.MetricsMatrix
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &back))
	assert.Equal(t, "2024-05-10 10:30", back.AsOf)

	rec = get(t, router, "/api/matrix/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failed":["VIX"]`)
}

func TestFeatures(t *testing.T) {
	router, _, store := newTestRouter(t)

	_, err := store.Seed(context.Background(), "VIX", []contracts.Point{
		{Timestamp: time.Date(2024, 5, 9, 15, 0, 0, 0, cst), Value: 12},
		{Timestamp: time.Date(2024, 5, 10, 15, 0, 0, 0, cst), Value: 18},
	})
	require.NoError(t, err)

	rec := get(t, router, "/api/features/VIX")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Key      string                  `json:"key"`
		Features contracts.FeatureVector `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "VIX", body.Key)
	assert.Equal(t, 2, body.Features.Samples)
	require.NotNil(t, body.Features.Value)
	assert.Equal(t, 18.0, *body.Features.Value)

	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/features/NOPE").Code)
}
