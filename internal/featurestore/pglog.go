package featurestore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/pkg/database"
)

// SeriesSchema creates the postgres history table
var SeriesSchema = []string{
	`CREATE TABLE IF NOT EXISTS history_series (
		key   TEXT NOT NULL,
		ts    TIMESTAMPTZ NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (key, ts)
	)`,
}

// PostgresLog keeps all series in one table keyed by (key, ts)
type PostgresLog struct {
	db *database.DB
}

// NewPostgresLog migrates the schema and returns the log
func NewPostgresLog(ctx context.Context, db *database.DB) (*PostgresLog, error) {
	if err := db.Migrate(ctx, SeriesSchema...); err != nil {
		return nil, &contracts.PersistenceError{Artifact: "history", Path: "history_series", Err: err}
	}
	return &PostgresLog{db: db}, nil
}

// AppendIfNew implements SeriesLog
func (p *PostgresLog) AppendIfNew(ctx context.Context, key string, pt contracts.Point) (AppendOutcome, error) {
	var last *time.Time
	err := p.db.Pool.QueryRow(ctx,
		`SELECT max(ts) FROM history_series WHERE key = $1`, key,
	).Scan(&last)
	if err != nil {
		return Stale, p.wrap(key, err)
	}

	var lastPoint *contracts.Point
	if last != nil {
		lastPoint = &contracts.Point{Timestamp: *last}
	}
	outcome := decide(lastPoint, pt)
	if outcome != Appended {
		return outcome, nil
	}

	_, err = p.db.Pool.Exec(ctx,
		`INSERT INTO history_series (key, ts, value) VALUES ($1, $2, $3) ON CONFLICT (key, ts) DO NOTHING`,
		key, pt.Timestamp, pt.Value,
	)
	if err != nil {
		return Stale, p.wrap(key, err)
	}
	return Appended, nil
}

// ReadAll implements SeriesLog
func (p *PostgresLog) ReadAll(ctx context.Context, key string) ([]contracts.Point, error) {
	rows, err := p.db.Pool.Query(ctx,
		`SELECT ts, value FROM history_series WHERE key = $1 ORDER BY ts`, key,
	)
	if err != nil {
		return nil, p.wrap(key, err)
	}

	points, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (contracts.Point, error) {
		var pt contracts.Point
		err := row.Scan(&pt.Timestamp, &pt.Value)
		return pt, err
	})
	if err != nil {
		return nil, p.wrap(key, err)
	}
	return points, nil
}

func (p *PostgresLog) wrap(key string, err error) error {
	return &contracts.PersistenceError{Artifact: "history", Path: fmt.Sprintf("history_series/%s", key), Err: err}
}
