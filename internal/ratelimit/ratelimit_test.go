//go:build integration

package ratelimit

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpay-core/pkg/logger"
)

func init() { _ = logger.Init("test", "development", "", "") }

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 14})
	require.NoError(t, client.FlushDB(context.Background()).Err())
	return client
}

func TestAllowPermitsUpToLimit(t *testing.T) {
	client := setupRedis(t)
	l := New(client, true, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "+14155552000")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := l.Allow(ctx, "+14155552000")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllowDisabledAlwaysPermits(t *testing.T) {
	client := setupRedis(t)
	l := New(client, false, 1)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := l.Allow(ctx, "+14155552001")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestCheckReturnsRateLimitedError(t *testing.T) {
	client := setupRedis(t)
	l := New(client, true, 1)
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "+14155552002"))
	err := l.Check(ctx, "+14155552002")
	assert.Error(t, err)
}
