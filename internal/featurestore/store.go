package featurestore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wonny/globallink/internal/catalog"
	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/pkg/logger"
)

// Flow indicators arrive in raw currency from some providers and in units of
// 1e8 (hundreds of millions) from others. Anything above the threshold is raw.
const (
	FlowRescaleThreshold = 1e6
	FlowUnit             = 1e8
)

// Store maintains indicator history and derives features from it
// ⭐ SSOT: history append와 feature 계산은 여기서만
type Store struct {
	log     SeriesLog
	catalog *catalog.Catalog
	loc     *time.Location
	logger  *logger.Logger
}

// UpdateResult counts what one Update did
type UpdateResult struct {
	Appended   int `json:"appended"`
	Duplicates int `json:"duplicates"`
	Stale      int `json:"stale"`
	Skipped    int `json:"skipped"` // FAILED or scalar-less readings
}

// NewStore creates a feature store over a series log
func NewStore(log SeriesLog, cat *catalog.Catalog, loc *time.Location, lg *logger.Logger) *Store {
	return &Store{
		log:     log,
		catalog: cat,
		loc:     loc,
		logger:  lg.WithField("module", "featurestore"),
	}
}

// Canonical extracts the number stored for a reading: scalar priority,
// flow rescaling, three decimals
func (s *Store) Canonical(key string, r contracts.Reading) (float64, bool) {
	v, ok := r.Scalar()
	if !ok {
		return 0, false
	}
	return s.normalize(key, v), true
}

func (s *Store) normalize(key string, v float64) float64 {
	if s.catalog.IsFlow(key) && math.Abs(v) > FlowRescaleThreshold {
		v /= FlowUnit
	}
	return Round3(v)
}

// Update appends every successful reading of the snapshot at the snapshot's
// cycle timestamp. A log failure aborts the update.
func (s *Store) Update(ctx context.Context, snap *contracts.RawSnapshot) (UpdateResult, error) {
	var res UpdateResult

	ts, err := contracts.ParseTimestamp(snap.Meta.Timestamp, s.loc)
	if err != nil {
		return res, fmt.Errorf("snapshot timestamp %q: %w", snap.Meta.Timestamp, err)
	}

	keys := make([]string, 0, len(snap.Macro))
	for k := range snap.Macro {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		reading := snap.Macro[key]
		if reading.Status != contracts.StatusSuccess {
			res.Skipped++
			continue
		}
		v, ok := s.Canonical(key, reading)
		if !ok {
			res.Skipped++
			continue
		}

		outcome, err := s.log.AppendIfNew(ctx, key, contracts.Point{Timestamp: ts, Value: v})
		if err != nil {
			return res, fmt.Errorf("append %s: %w", key, err)
		}

		switch outcome {
		case Appended:
			res.Appended++
		case Duplicate:
			res.Duplicates++
		case Stale:
			res.Stale++
			s.logger.WithFields(map[string]interface{}{
				"key":       key,
				"timestamp": snap.Meta.Timestamp,
			}).Warn("Ignored reading older than stored history")
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"timestamp":  snap.Meta.Timestamp,
		"appended":   res.Appended,
		"duplicates": res.Duplicates,
		"stale":      res.Stale,
		"skipped":    res.Skipped,
	}).Info("History updated")

	return res, nil
}

// Seed appends points in timestamp order after the same flow rescaling and
// rounding as Update; points at or before the stored tail are ignored
func (s *Store) Seed(ctx context.Context, key string, points []contracts.Point) (int, error) {
	sorted := make([]contracts.Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	appended := 0
	for _, p := range sorted {
		p.Value = s.normalize(key, p.Value)
		outcome, err := s.log.AppendIfNew(ctx, key, p)
		if err != nil {
			return appended, fmt.Errorf("seed %s: %w", key, err)
		}
		if outcome == Appended {
			appended++
		}
	}
	return appended, nil
}

// Series returns the stored points of key
func (s *Store) Series(ctx context.Context, key string) ([]contracts.Point, error) {
	return s.log.ReadAll(ctx, key)
}

// GetFeatures computes the feature vector of key from its stored series.
// No series yields the neutral vector.
func (s *Store) GetFeatures(ctx context.Context, key string) (contracts.FeatureVector, error) {
	points, err := s.log.ReadAll(ctx, key)
	if err != nil {
		return contracts.NeutralFeatures(), fmt.Errorf("read %s: %w", key, err)
	}
	return Features(points), nil
}

// LastUpdate returns the timestamp of the last stored point of key
func (s *Store) LastUpdate(ctx context.Context, key string) (string, bool, error) {
	points, err := s.log.ReadAll(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	if len(points) == 0 {
		return "", false, nil
	}
	return points[len(points)-1].Timestamp.In(s.loc).Format(contracts.TimestampLayout), true, nil
}
