package featurestore

import (
	"context"
	"sync"

	"github.com/wonny/globallink/internal/contracts"
)

// AppendOutcome says what AppendIfNew did
type AppendOutcome int

const (
	Appended  AppendOutcome = iota
	Duplicate               // same timestamp as the last stored point
	Stale                   // older than the last stored point
)

func (o AppendOutcome) String() string {
	switch o {
	case Appended:
		return "appended"
	case Duplicate:
		return "duplicate"
	default:
		return "stale"
	}
}

// SeriesLog is an append-only, per-indicator log of (timestamp, value).
// Timestamps within one key never decrease.
// ⭐ SSOT: history 저장소는 이 인터페이스로만 접근
type SeriesLog interface {
	AppendIfNew(ctx context.Context, key string, p contracts.Point) (AppendOutcome, error)
	ReadAll(ctx context.Context, key string) ([]contracts.Point, error)
}

// decide applies the append rule against the last stored point
func decide(last *contracts.Point, p contracts.Point) AppendOutcome {
	if last == nil {
		return Appended
	}
	switch {
	case p.Timestamp.Equal(last.Timestamp):
		return Duplicate
	case p.Timestamp.Before(last.Timestamp):
		return Stale
	default:
		return Appended
	}
}

// MemoryLog keeps series in memory
type MemoryLog struct {
	mu     sync.RWMutex
	series map[string][]contracts.Point
}

// NewMemoryLog creates an empty in-memory log
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{series: make(map[string][]contracts.Point)}
}

// AppendIfNew implements SeriesLog
func (m *MemoryLog) AppendIfNew(_ context.Context, key string, p contracts.Point) (AppendOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var last *contracts.Point
	if s := m.series[key]; len(s) > 0 {
		last = &s[len(s)-1]
	}

	outcome := decide(last, p)
	if outcome == Appended {
		m.series[key] = append(m.series[key], p)
	}
	return outcome, nil
}

// ReadAll implements SeriesLog
func (m *MemoryLog) ReadAll(_ context.Context, key string) ([]contracts.Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]contracts.Point, len(m.series[key]))
	copy(out, m.series[key])
	return out, nil
}
