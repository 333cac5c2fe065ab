package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/html-librarian/mig-catalog/internal/client"
	"github.com/html-librarian/mig-catalog/internal/config"
)

type payload struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	cfg := &config.Config{}
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.Redis.PoolSize = 5

	redisClient, err := client.NewRedisClient(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { redisClient.Close() })

	cache := NewCache(redisClient, config.CacheConfig{
		Enabled:    true,
		DefaultTTL: time.Minute,
	}, zap.NewNop())

	return cache, mr
}

func TestGetOrLoadCachesResult(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	loads := 0
	loader := func(ctx context.Context) (interface{}, error) {
		loads++
		return payload{Name: "widget", Price: 9.99}, nil
	}

	var first payload
	require.NoError(t, cache.GetOrLoad(ctx, "items:1", time.Minute, &first, loader))
	assert.Equal(t, "widget", first.Name)
	assert.Equal(t, 1, loads)

	var second payload
	require.NoError(t, cache.GetOrLoad(ctx, "items:1", time.Minute, &second, loader))
	assert.Equal(t, first, second)
	assert.Equal(t, 1, loads, "second read must come from cache")
}

func TestGetOrLoadPropagatesLoaderError(t *testing.T) {
	cache, _ := newTestCache(t)

	wantErr := errors.New("not found")
	var out payload
	err := cache.GetOrLoad(context.Background(), "items:missing", time.Minute, &out, func(ctx context.Context) (interface{}, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestGetOrLoadExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	loads := 0
	loader := func(ctx context.Context) (interface{}, error) {
		loads++
		return payload{Name: "widget"}, nil
	}

	var out payload
	require.NoError(t, cache.GetOrLoad(ctx, "items:1", time.Second, &out, loader))

	mr.FastForward(2 * time.Second)

	require.NoError(t, cache.GetOrLoad(ctx, "items:1", time.Second, &out, loader))
	assert.Equal(t, 2, loads, "expired entry must reload")
}

func TestInvalidatePrefix(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	loads := 0
	loader := func(ctx context.Context) (interface{}, error) {
		loads++
		return payload{Name: "widget"}, nil
	}

	var out payload
	require.NoError(t, cache.GetOrLoad(ctx, "items:list:10", time.Minute, &out, loader))
	require.NoError(t, cache.GetOrLoad(ctx, "items:list:20", time.Minute, &out, loader))
	require.NoError(t, cache.GetOrLoad(ctx, "articles:list:10", time.Minute, &out, loader))
	require.Equal(t, 3, loads)

	require.NoError(t, cache.InvalidatePrefix(ctx, "items:list:"))

	require.NoError(t, cache.GetOrLoad(ctx, "items:list:10", time.Minute, &out, loader))
	assert.Equal(t, 4, loads, "invalidated entry must reload")

	require.NoError(t, cache.GetOrLoad(ctx, "articles:list:10", time.Minute, &out, loader))
	assert.Equal(t, 4, loads, "other prefixes must survive")
}

func TestDisabledCacheAlwaysLoads(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.Config{}
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.Redis.PoolSize = 5

	redisClient, err := client.NewRedisClient(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { redisClient.Close() })

	cache := NewCache(redisClient, config.CacheConfig{Enabled: false}, zap.NewNop())

	loads := 0
	loader := func(ctx context.Context) (interface{}, error) {
		loads++
		return payload{Name: "widget"}, nil
	}

	var out payload
	require.NoError(t, cache.GetOrLoad(context.Background(), "items:1", time.Minute, &out, loader))
	require.NoError(t, cache.GetOrLoad(context.Background(), "items:1", time.Minute, &out, loader))
	assert.Equal(t, 2, loads)
}

func TestCacheSurvivesRedisOutage(t *testing.T) {
	cache, mr := newTestCache(t)

	mr.Close()

	loads := 0
	var out payload
	err := cache.GetOrLoad(context.Background(), "items:1", time.Minute, &out, func(ctx context.Context) (interface{}, error) {
		loads++
		return payload{Name: "widget"}, nil
	})
	require.NoError(t, err, "reads must fall through to the loader when Redis is down")
	assert.Equal(t, 1, loads)
	assert.Equal(t, "widget", out.Name)
}
