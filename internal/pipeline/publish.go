package pipeline

import (
	"context"
	"fmt"

	"github.com/wonny/globallink/internal/contracts"
	"github.com/wonny/globallink/pkg/redis"
)

// Publisher mirrors a persisted matrix to a shared store. Failures are
// logged by the cycle, never fatal: the file artifact is authoritative.
type Publisher interface {
	Publish(ctx context.Context, m *contracts.MetricsMatrix) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, *contracts.MetricsMatrix) error { return nil }

// CachePublisher writes the matrix to redis as the latest and per-cycle documents
type CachePublisher struct {
	cache *redis.Cache
}

// NewCachePublisher creates a redis publisher
func NewCachePublisher(cache *redis.Cache) *CachePublisher {
	return &CachePublisher{cache: cache}
}

// Publish implements Publisher
func (p *CachePublisher) Publish(ctx context.Context, m *contracts.MetricsMatrix) error {
	if err := p.cache.Set(ctx, redis.LatestMatrixKey(), m, redis.TTLCycle); err != nil {
		return fmt.Errorf("publish latest: %w", err)
	}
	if err := p.cache.Set(ctx, redis.MatrixKey(m.AsOf), m, redis.TTLDaily); err != nil {
		return fmt.Errorf("publish %s: %w", m.AsOf, err)
	}
	return nil
}
