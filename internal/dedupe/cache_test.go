package dedupe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCacheSeenDuplicate(t *testing.T) {
	cache := NewCache(10, time.Minute)
	require.False(t, cache.IsSeen("alpha"))
	cache.MarkSeen("alpha")
	require.True(t, cache.IsSeen("alpha"))
}

func TestCacheTTLExpiry(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewCache(10, time.Minute)
	cache.now = func() time.Time { return clock }

	cache.MarkSeen("beta")
	require.True(t, cache.IsSeen("beta"))

	clock = clock.Add(2 * time.Minute)
	require.False(t, cache.IsSeen("beta"))
}

func TestCacheCapacityEvictsOldest(t *testing.T) {
	cache := NewCache(1, time.Minute)
	cache.MarkSeen("first")
	cache.MarkSeen("second")

	require.False(t, cache.IsSeen("first"))
	require.True(t, cache.IsSeen("second"))
	require.Equal(t, 1, cache.Len())
}

func TestCacheObserve(t *testing.T) {
	cache := NewCache(10, time.Minute)
	require.False(t, cache.Observe("https://arxiv.org/abs/1"))
	require.True(t, cache.Observe("https://arxiv.org/abs/1"))
	require.False(t, cache.Observe("https://arxiv.org/abs/2"))
}
