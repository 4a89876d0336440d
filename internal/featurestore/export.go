package featurestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/wonny/globallink/internal/contracts"
)

// SeriesRow is one exported history point
type SeriesRow struct {
	Key       string  `parquet:"key"`
	Timestamp int64   `parquet:"ts"` // Unix milliseconds
	Local     string  `parquet:"timestamp"`
	Value     float64 `parquet:"value"`
}

// ExportParquet writes the series of key to a parquet file and returns the row count
func (s *Store) ExportParquet(ctx context.Context, key, path string) (int, error) {
	points, err := s.log.ReadAll(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	if len(points) == 0 {
		return 0, fmt.Errorf("no history for %s", key)
	}

	rows := make([]SeriesRow, len(points))
	for i, p := range points {
		rows[i] = SeriesRow{
			Key:       key,
			Timestamp: p.Timestamp.UnixMilli(),
			Local:     p.Timestamp.In(s.loc).Format(contracts.TimestampLayout),
			Value:     p.Value,
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, &contracts.PersistenceError{Artifact: "export", Path: path, Err: err}
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return 0, &contracts.PersistenceError{Artifact: "export", Path: path, Err: err}
	}
	return len(rows), nil
}
