package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type releaseRecorder struct {
	mu       sync.Mutex
	released []string
}

func (r *releaseRecorder) release(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, handle)
}

func (r *releaseRecorder) handles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.released...)
}

func TestCache_Bound(t *testing.T) {
	rec := &releaseRecorder{}
	cache, err := NewCache(10, rec.release)
	require.NoError(t, err)

	for i := 0; i <= 10; i++ {
		cache.Set(fmt.Sprintf("conv-%d", i), fmt.Sprintf("h-%d", i))
	}

	assert.Equal(t, 10, cache.Len())
	assert.Equal(t, []string{"h-0"}, rec.handles())
	assert.Equal(t, int64(1), cache.Evictions())

	_, ok := cache.Get("conv-0")
	assert.False(t, ok)
}

func TestCache_GetRefreshesRecency(t *testing.T) {
	rec := &releaseRecorder{}
	cache, err := NewCache(3, rec.release)
	require.NoError(t, err)

	cache.Set("a", "ha")
	cache.Set("b", "hb")
	cache.Set("c", "hc")

	h, ok := cache.Get("a")
	require.True(t, ok)
	assert.Equal(t, "ha", h)

	cache.Set("d", "hd")
	assert.Equal(t, []string{"hb"}, rec.handles())
}

func TestCache_Set(t *testing.T) {
	t.Run("same handle only touches", func(t *testing.T) {
		rec := &releaseRecorder{}
		cache, err := NewCache(2, rec.release)
		require.NoError(t, err)

		cache.Set("a", "ha")
		cache.Set("b", "hb")
		cache.Set("a", "ha")
		cache.Set("c", "hc")

		assert.Equal(t, []string{"hb"}, rec.handles())
	})

	t.Run("new handle releases old one", func(t *testing.T) {
		rec := &releaseRecorder{}
		cache, err := NewCache(2, rec.release)
		require.NoError(t, err)

		cache.Set("a", "ha-1")
		cache.Set("a", "ha-2")

		h, ok := cache.Get("a")
		require.True(t, ok)
		assert.Equal(t, "ha-2", h)
		assert.Equal(t, []string{"ha-1"}, rec.handles())
		assert.Equal(t, 1, cache.Len())
	})
}

func TestCache_Clear(t *testing.T) {
	rec := &releaseRecorder{}
	cache, err := NewCache(0, rec.release)
	require.NoError(t, err)

	cache.Set("a", "ha")
	cache.Set("b", "hb")
	cache.Clear()

	assert.Equal(t, 0, cache.Len())
	assert.ElementsMatch(t, []string{"ha", "hb"}, rec.handles())
}

func TestCache_GetOrCompute(t *testing.T) {
	t.Run("computes once for concurrent callers", func(t *testing.T) {
		rec := &releaseRecorder{}
		cache, err := NewCache(10, rec.release)
		require.NoError(t, err)

		var calls atomic.Int32
		compute := func(ctx context.Context) (string, error) {
			calls.Add(1)
			time.Sleep(20 * time.Millisecond)
			return "computed", nil
		}

		var wg sync.WaitGroup
		results := make([]string, 8)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				h, err := cache.GetOrCompute(context.Background(), "conv", compute)
				assert.NoError(t, err)
				results[i] = h
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), calls.Load())
		for _, h := range results {
			assert.Equal(t, "computed", h)
		}
		assert.Empty(t, rec.handles())
	})

	t.Run("keeps a handle inserted while computing", func(t *testing.T) {
		rec := &releaseRecorder{}
		cache, err := NewCache(10, rec.release)
		require.NoError(t, err)

		h, err := cache.GetOrCompute(context.Background(), "conv", func(ctx context.Context) (string, error) {
			cache.Set("conv", "winner")
			return "loser", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "winner", h)
		assert.Equal(t, []string{"loser"}, rec.handles())
	})

	t.Run("propagates compute errors", func(t *testing.T) {
		cache, err := NewCache(10, nil)
		require.NoError(t, err)

		boom := errors.New("boom")
		_, err = cache.GetOrCompute(context.Background(), "conv", func(ctx context.Context) (string, error) {
			return "", boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, cache.Len())
	})
}
