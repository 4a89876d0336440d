package calculator

import (
	"context"
	"fmt"

	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/internal/featurestore"
)

// macro joins today's reading with the key's history. Features are read
// whether or not today's fetch succeeded.
func (c *Calculator) macro(ctx context.Context, key string, r contracts.Reading) (contracts.MacroEntry, contracts.HealthEntry, error) {
	status := r.Status
	if status == "" {
		status = contracts.StatusFailed
	}

	unit := r.Unit
	if unit == "" {
		if ind, ok := c.catalog.Indicator(key); ok {
			unit = ind.Unit
		}
	}

	entry := contracts.MacroEntry{Status: status, Source: r.Source, Unit: unit}
	if status == contracts.StatusSuccess {
		if v, ok := c.features.Canonical(key, r); ok {
			entry.Value = contracts.Float(v)
		}
		if r.ChangePct != nil && contracts.IsFinite(*r.ChangePct) {
			entry.ChangePct = contracts.Float(featurestore.Round3(*r.ChangePct))
		}
	}

	features, err := c.features.GetFeatures(ctx, key)
	if err != nil {
		return entry, contracts.HealthEntry{}, fmt.Errorf("features %s: %w", key, err)
	}
	entry.Features = features

	health := contracts.HealthEntry{Status: status, Source: r.Source}
	last, ok, err := c.features.LastUpdate(ctx, key)
	if err != nil {
		return entry, health, fmt.Errorf("last update %s: %w", key, err)
	}
	if ok {
		health.LastUpdate = &last
	}

	return entry, health, nil
}
