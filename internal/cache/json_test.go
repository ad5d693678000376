package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-impor/internal/cache"
)

type payload struct {
	Version int64  `json:"version"`
	Base    string `json:"base"`
}

func TestJSONRoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := cache.NewJSON(client, time.Minute)
	ctx := context.Background()

	var got payload
	ok, err := c.Get(ctx, cache.KeyLatestRates(), &got)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, cache.KeyLatestRates(), payload{Version: 3, Base: "XOF"}))
	ok, err = c.Get(ctx, cache.KeyLatestRates(), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payload{Version: 3, Base: "XOF"}, got)

	mr.FastForward(2 * time.Minute)
	ok, err = c.Get(ctx, cache.KeyLatestRates(), &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestJSONNilClientIsNoop(t *testing.T) {
	c := cache.NewJSON(nil, time.Minute)
	require.NoError(t, c.Set(context.Background(), "k", payload{}))
	ok, err := c.Get(context.Background(), "k", &payload{})
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, c.Delete(context.Background(), "k"))
}

func TestKeys(t *testing.T) {
	require.Equal(t, "impor:rates:v:7", cache.KeyRatesVersion(7))
	require.Equal(t, "impor:lock:cart:c1", cache.KeyOrderLock("c1"))
}
