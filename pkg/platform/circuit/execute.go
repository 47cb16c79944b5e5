package circuit

import (
	"context"
	"errors"
	"fmt"
)

// Op is an operation guarded by a breaker.
type Op[T any] func(ctx context.Context) (T, error)

// Execute runs primary through the breaker. When the circuit rejects
// the call, or primary fails, the fallback runs instead if one is
// provided. Without a fallback an open circuit yields ErrOpen and a
// primary failure is returned as-is.
//
// Context cancellation is not counted as a source failure: a client
// hanging up says nothing about source health.
func Execute[T any](ctx context.Context, b *Breaker, primary Op[T], fallback Op[T]) (T, error) {
	var zero T

	allowed, _ := b.Allow()
	if !allowed {
		if fallback != nil {
			return fallback(ctx)
		}
		return zero, fmt.Errorf("%w: %s", ErrOpen, b.Name())
	}

	out, err := primary(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return zero, err
		}
		b.RecordFailure()
		if fallback != nil {
			return fallback(ctx)
		}
		return zero, err
	}

	b.RecordSuccess()
	return out, nil
}
