package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("connection refused")

func newTestBreaker(clock *time.Time) *Breaker {
	b := NewBreaker(BreakerConfig{Target: "ratestore", MinRequests: 2, FailureRatio: 0.5, OpenFor: time.Minute})
	b.now = func() time.Time { return *clock }
	return b
}

func TestBreakerTransitions(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBreaker(&clock)
	ctx := context.Background()
	fail := func(context.Context) error { return errDown }
	ok := func(context.Context) error { return nil }

	require.ErrorIs(t, b.Do(ctx, fail), errDown)
	require.ErrorIs(t, b.Do(ctx, fail), errDown)
	require.Equal(t, Open, b.State())

	calls := 0
	require.ErrorIs(t, b.Do(ctx, func(context.Context) error { calls++; return nil }), ErrOpenCircuit)
	require.Zero(t, calls)

	clock = clock.Add(time.Minute)
	require.NoError(t, b.Do(ctx, ok))
	require.Equal(t, Closed, b.State())
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBreaker(&clock)
	ctx := context.Background()
	_ = b.Do(ctx, func(context.Context) error { return errDown })
	_ = b.Do(ctx, func(context.Context) error { return errDown })

	clock = clock.Add(2 * time.Minute)
	require.ErrorIs(t, b.Do(ctx, func(context.Context) error { return errDown }), errDown)
	require.Equal(t, Open, b.State())
}

func TestBreakerIgnoresNeutralErrors(t *testing.T) {
	notFound := errors.New("not found")
	b := NewBreaker(BreakerConfig{MinRequests: 1, IsFailure: func(err error) bool {
		return err != nil && !errors.Is(err, notFound)
	}})
	for i := 0; i < 5; i++ {
		require.ErrorIs(t, b.Do(context.Background(), func(context.Context) error { return notFound }), notFound)
	}
	require.Equal(t, Closed, b.State())
}

func TestBreakerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegisterMetrics("impor", reg)
	t.Cleanup(func() { BreakerState, BreakerTransitions = nil, nil })

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBreaker(&clock)
	_ = b.Do(context.Background(), func(context.Context) error { return errDown })
	_ = b.Do(context.Background(), func(context.Context) error { return errDown })

	require.Equal(t, float64(Open), testutil.ToFloat64(BreakerState.WithLabelValues("ratestore")))
	require.Equal(t, float64(1), testutil.ToFloat64(BreakerTransitions.WithLabelValues("ratestore", "closed", "open")))

	MustRegisterMetrics("impor", reg)
	require.Equal(t, float64(1), testutil.ToFloat64(BreakerTransitions.WithLabelValues("ratestore", "closed", "open")))
}

func TestBackoffWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, Backoff(base, 1, 0))
	require.Equal(t, base*4, Backoff(base, 3, 0))

	d := Backoff(base, 2, 0.2)
	require.GreaterOrEqual(t, d, base*2-base*2/5)
	require.LessOrEqual(t, d, base*2+base*2/5)
}

func TestRetryStopsOnSuccessAndOpenCircuit(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 2 {
			return errDown
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	calls = 0
	err = Retry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		return ErrOpenCircuit
	})
	require.ErrorIs(t, err, ErrOpenCircuit)
	require.Equal(t, 1, calls)
}
