package masterdata

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestCacheFetchJSON(t *testing.T) {
	ctx := context.Background()

	t.Run("second read served from cache", func(t *testing.T) {
		cache := newTestCache(t)
		loads := 0
		loader := func(context.Context) (any, error) {
			loads++
			return Product{ID: 200, Name: "Widget", TaxPercent: 19}, nil
		}

		key, err := cache.BuildKey(ctx, keyProduct(200)...)
		require.NoError(t, err)

		var first, second Product
		require.NoError(t, cache.FetchJSON(ctx, key, &first, loader))
		require.NoError(t, cache.FetchJSON(ctx, key, &second, loader))

		assert.Equal(t, 1, loads)
		assert.Equal(t, first, second)
		assert.Equal(t, 19.0, second.TaxPercent)
	})

	t.Run("bump rotates keys", func(t *testing.T) {
		cache := newTestCache(t)

		before, err := cache.BuildKey(ctx, keyProduct(200)...)
		require.NoError(t, err)

		require.NoError(t, cache.Bump(ctx))

		after, err := cache.BuildKey(ctx, keyProduct(200)...)
		require.NoError(t, err)
		assert.NotEqual(t, before, after)
	})

	t.Run("nil cache passes through", func(t *testing.T) {
		var cache *Cache
		loads := 0

		var p Product
		err := cache.FetchJSON(ctx, "unused", &p, func(context.Context) (any, error) {
			loads++
			return Product{ID: 1}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, loads)
		assert.Equal(t, int64(1), p.ID)
	})

	t.Run("price miss is cached", func(t *testing.T) {
		cache := newTestCache(t)

		key, err := cache.BuildKey(ctx, keyBranchPrice(200, 1)...)
		require.NoError(t, err)

		loads := 0
		loader := func(context.Context) (any, error) {
			loads++
			return cachedPrice{Found: false}, nil
		}

		var cp cachedPrice
		require.NoError(t, cache.FetchJSON(ctx, key, &cp, loader))
		require.NoError(t, cache.FetchJSON(ctx, key, &cp, loader))

		assert.Equal(t, 1, loads)
		assert.False(t, cp.Found)
	})
}
