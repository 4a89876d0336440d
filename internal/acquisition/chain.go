package acquisition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/globallink/internal/contracts"
)

// Outcome of one provider attempt, as recorded in metrics
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeError   Outcome = "error"
	OutcomeTimeout Outcome = "timeout"
	OutcomePanic   Outcome = "panic"
	OutcomeInvalid Outcome = "invalid"
)

// Provider roles
const (
	RoleIndicator = "indicator"
	RoleQuote     = "quote"
	RoleHistory   = "history"
)

// Recorder observes provider attempts and chain results
type Recorder interface {
	ProviderAttempt(role, provider, outcome string)
	IndicatorStatus(key string, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) ProviderAttempt(string, string, string) {}
func (nopRecorder) IndicatorStatus(string, bool)           {}

var errPanic = errors.New("provider panicked")

// attempt runs one provider call under its own timeout. Panics and
// overruns come back as errors; the call never outlives the timeout.
func attempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, Outcome, error) {
	type result struct {
		v   T
		err error
	}

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				ch <- result{zero, fmt.Errorf("%w: %v", errPanic, r)}
			}
		}()
		v, err := fn(actx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		switch {
		case errors.Is(r.err, errPanic):
			return r.v, OutcomePanic, r.err
		case errors.Is(r.err, context.DeadlineExceeded):
			return r.v, OutcomeTimeout, r.err
		case r.err != nil:
			return r.v, OutcomeError, r.err
		}
		return r.v, OutcomeOK, nil
	case <-actx.Done():
		var zero T
		return zero, OutcomeTimeout, fmt.Errorf("%w: %v", contracts.ErrProviderUnavailable, actx.Err())
	}
}
