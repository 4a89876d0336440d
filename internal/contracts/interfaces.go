package contracts

import (
	"context"
	"time"
)

// IndicatorProvider fetches one macro indicator by provider-specific symbol
// ⭐ SSOT: 모든 macro provider는 이 인터페이스로 교체 가능
type IndicatorProvider interface {
	Name() string
	FetchIndicator(ctx context.Context, symbol string) (Observation, error)
}

// QuoteProvider fetches the live quote of an instrument
type QuoteProvider interface {
	Name() string
	FetchQuote(ctx context.Context, inst Instrument) (Quote, error)
}

// HistoryProvider fetches closed daily bars of an instrument in [from, to]
type HistoryProvider interface {
	Name() string
	FetchHistory(ctx context.Context, inst Instrument, from, to time.Time) ([]Bar, error)
}

// FeatureSource answers feature queries for the calculator
type FeatureSource interface {
	GetFeatures(ctx context.Context, key string) (FeatureVector, error)
	LastUpdate(ctx context.Context, key string) (string, bool, error)
}
