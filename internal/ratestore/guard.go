package ratestore

import (
	"context"
	"errors"

	"github.com/noah-isme/backend-impor/internal/pricing"
	"github.com/noah-isme/backend-impor/internal/resilience"
)

// GuardedReader fails fast while the snapshot store is unhealthy so pricing
// requests surface RATE_SNAPSHOT_MISSING instead of queueing on a dead pool.
type GuardedReader struct {
	Reader  Reader
	Breaker *resilience.Breaker
}

// IsStoreFailure reports whether err should trip the breaker. A missing
// snapshot is an answer, not an outage.
func IsStoreFailure(err error) bool {
	return err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, context.Canceled)
}

// Latest implements Reader.
func (g GuardedReader) Latest(ctx context.Context) (*pricing.RateSnapshot, error) {
	var out *pricing.RateSnapshot
	err := g.Breaker.Do(ctx, func(ctx context.Context) error {
		snap, err := g.Reader.Latest(ctx)
		out = snap
		return err
	})
	return out, err
}

// ByVersion implements Reader.
func (g GuardedReader) ByVersion(ctx context.Context, version int64) (*pricing.RateSnapshot, error) {
	var out *pricing.RateSnapshot
	err := g.Breaker.Do(ctx, func(ctx context.Context) error {
		snap, err := g.Reader.ByVersion(ctx, version)
		out = snap
		return err
	})
	return out, err
}
