package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/skybid/internal/cache"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewRedisCacheFromClient(client), mr
}

func TestBiddingPermitted_DeniedIsCached(t *testing.T) {
	rc, mr := newMiniCache(t)
	ctx := context.Background()
	pilotID := uuid.New()

	require.NoError(t, rc.SetBiddingPermitted(ctx, pilotID, false, time.Minute))

	permitted, found, err := rc.GetBiddingPermitted(ctx, pilotID)
	require.NoError(t, err)
	assert.True(t, found, "a negative answer is still a cache hit")
	assert.False(t, permitted)

	mr.FastForward(2 * time.Minute)
	_, found, err = rc.GetBiddingPermitted(ctx, pilotID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIncrWithExpiry_FirstIncrementSetsTTL(t *testing.T) {
	rc, mr := newMiniCache(t)
	ctx := context.Background()
	key := cache.RateLimitKey(uuid.New())

	n, err := rc.IncrWithExpiry(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, time.Minute, mr.TTL(key))

	mr.FastForward(40 * time.Second)
	n, err = rc.IncrWithExpiry(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 20*time.Second, mr.TTL(key))

	mr.FastForward(21 * time.Second)
	n, err = rc.IncrWithExpiry(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestClientSharesConnection(t *testing.T) {
	rc, mr := newMiniCache(t)
	require.NoError(t, rc.Client().Set(context.Background(), "shared", "v", 0).Err())
	got, err := mr.Get("shared")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}
