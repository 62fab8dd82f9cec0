package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetings-backend/internal/config"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewFromRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedisClient(config.RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = NewRedisClient(config.RedisConfig{})
	assert.Error(t, err)
}

func TestIncrWithTTL(t *testing.T) {
	c, mr := newTestCache(t)

	for want := int64(1); want <= 3; want++ {
		got, err := c.IncrWithTTL("rl:login:1.2.3.4", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, time.Minute, mr.TTL("rl:login:1.2.3.4"))

	mr.FastForward(time.Minute + time.Second)
	got, err := c.IncrWithTTL("rl:login:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got, "window restarts after expiry")
}

func TestIncrWithTTL_RepairsMissingExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("rl:login:5.6.7.8", "5"))
	require.Zero(t, mr.TTL("rl:login:5.6.7.8"))

	got, err := c.IncrWithTTL("rl:login:5.6.7.8", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(6), got)
	assert.Equal(t, time.Minute, mr.TTL("rl:login:5.6.7.8"))

	mr.FastForward(time.Minute + time.Second)
	assert.False(t, mr.Exists("rl:login:5.6.7.8"), "counter expires instead of living forever")
}

func TestRevokeToken(t *testing.T) {
	c, mr := newTestCache(t)

	revoked, err := c.IsRevoked("jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, c.RevokeToken("jti-1", time.Hour))
	revoked, err = c.IsRevoked("jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	mr.FastForward(2 * time.Hour)
	revoked, err = c.IsRevoked("jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, c.RevokeToken("jti-2", 0))
	revoked, err = c.IsRevoked("jti-2")
	require.NoError(t, err)
	assert.False(t, revoked, "already expired tokens are not stored")
}

func TestGetSetInt(t *testing.T) {
	c, _ := newTestCache(t)

	_, ok, err := c.GetInt("stats")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetInt("stats", 17, time.Minute))
	n, ok, err := c.GetInt("stats")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 17, n)
}
