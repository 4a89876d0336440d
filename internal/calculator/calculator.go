// Package calculator fuses a raw snapshot with feature-store history into
// the metrics matrix handed to downstream consumers.
package calculator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/globallink/internal/artifact"
	"github.com/wonny/globallink/internal/catalog"
	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/pkg/logger"
)

// Features is what the calculator needs from the feature store
type Features interface {
	contracts.FeatureSource
	Canonical(key string, r contracts.Reading) (float64, bool)
}

// Calculator builds and persists the metrics matrix
// ⭐ SSOT: macro/technical matrix 조립은 여기서만
type Calculator struct {
	features Features
	catalog  *catalog.Catalog
	metrics  *artifact.Store
	loc      *time.Location
	logger   *logger.Logger
}

// New creates a calculator
func New(features Features, cat *catalog.Catalog, metrics *artifact.Store, loc *time.Location, log *logger.Logger) *Calculator {
	return &Calculator{
		features: features,
		catalog:  cat,
		metrics:  metrics,
		loc:      loc,
		logger:   log.WithField("module", "calculator"),
	}
}

// Compute builds the matrix for snap. Only feature-store read failures are returned;
// an instrument whose signal is undefined is left out.
func (c *Calculator) Compute(ctx context.Context, snap *contracts.RawSnapshot) (*contracts.MetricsMatrix, error) {
	asOf := snap.Meta.Timestamp
	if ts, err := contracts.ParseTimestamp(asOf, c.loc); err == nil {
		asOf = ts.Format(contracts.TimestampLayout)
	}

	m := &contracts.MetricsMatrix{
		AsOf:        asOf,
		RunID:       snap.Meta.RunID,
		MacroMatrix: make(map[string]contracts.MacroEntry),
		MacroHealth: make(map[string]contracts.HealthEntry),
	}

	for _, key := range c.keys(snap) {
		entry, health, err := c.macro(ctx, key, snap.Macro[key])
		if err != nil {
			return nil, err
		}
		m.MacroMatrix[key] = entry
		m.MacroHealth[key] = health
	}

	m.TechnicalMatrix = c.technical(snap)

	c.logger.WithFields(map[string]interface{}{
		"run_id":    m.RunID,
		"as_of":     m.AsOf,
		"macro":     len(m.MacroMatrix),
		"failed":    len(m.Failed()),
		"technical": len(m.TechnicalMatrix),
	}).Info("Metrics matrix computed")

	return m, nil
}

// keys are the catalog keys in order, then any extra keys the snapshot carries
func (c *Calculator) keys(snap *contracts.RawSnapshot) []string {
	keys := c.catalog.Keys()
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		seen[k] = true
	}

	var extra []string
	for k := range snap.Macro {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

// Persist writes processed/metrics_<ts>.json and processed/latest_metrics.json
func (c *Calculator) Persist(m *contracts.MetricsMatrix) (string, error) {
	ts, err := contracts.ParseTimestamp(m.AsOf, c.loc)
	if err != nil {
		return "", &contracts.PersistenceError{Artifact: "metrics_matrix", Err: fmt.Errorf("bad as_of %q: %w", m.AsOf, err)}
	}

	path, err := c.metrics.Write(ts, m)
	if err != nil {
		return "", err
	}

	c.logger.WithField("path", path).Info("Metrics matrix persisted")
	return path, nil
}
