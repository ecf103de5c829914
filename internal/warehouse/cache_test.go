package warehouse

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countCalls(q *fakeQuerier, substr string) int {
	n := 0
	for _, call := range q.calls {
		if strings.Contains(call, substr) {
			n++
		}
	}
	return n
}

func TestCacheServesFreshEntry(t *testing.T) {
	q := salesWarehouse()
	cache := NewMetadataCache(NewIntrospector(q), time.Hour)

	first, err := cache.FullSchema(context.Background())
	require.NoError(t, err)

	callsAfterFirst := len(q.calls)

	second, err := cache.FullSchema(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, callsAfterFirst, len(q.calls), "second read must not hit the warehouse")
}

func TestCacheExpiresByTTL(t *testing.T) {
	q := salesWarehouse()
	cache := NewMetadataCache(NewIntrospector(q), time.Hour)

	current := time.Now()
	cache.now = func() time.Time { return current }

	_, err := cache.FullSchema(context.Background())
	require.NoError(t, err)
	callsAfterFirst := len(q.calls)

	// Within the TTL: served from cache.
	current = current.Add(59 * time.Minute)
	_, err = cache.FullSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, len(q.calls))

	// Past the TTL: rebuilt.
	current = current.Add(2 * time.Minute)
	_, err = cache.FullSchema(context.Background())
	require.NoError(t, err)
	assert.Greater(t, len(q.calls), callsAfterFirst)
}

func TestCacheClear(t *testing.T) {
	q := salesWarehouse()
	cache := NewMetadataCache(NewIntrospector(q), time.Hour)

	_, err := cache.DataDictionary(context.Background())
	require.NoError(t, err)
	callsAfterFirst := len(q.calls)

	cache.Clear()

	_, err = cache.DataDictionary(context.Background())
	require.NoError(t, err)
	assert.Greater(t, len(q.calls), callsAfterFirst, "clear must force a rebuild")
}

func TestCacheRefreshWarmsAllKeys(t *testing.T) {
	q := salesWarehouse()
	cache := NewMetadataCache(NewIntrospector(q), time.Hour)

	require.NoError(t, cache.Refresh(context.Background()))

	assert.GreaterOrEqual(t, countCalls(q, "sqlite_master"), 3)

	// Everything is warm: subsequent reads never hit the warehouse.
	callsAfterRefresh := len(q.calls)
	_, _ = cache.FullSchema(context.Background())
	_, _ = cache.DataDictionary(context.Background())
	_, _ = cache.Relationships(context.Background())
	_, _ = cache.FewShotExamples(context.Background())
	assert.Equal(t, callsAfterRefresh, len(q.calls))
}

func TestCacheKeysAreIndependent(t *testing.T) {
	q := salesWarehouse()
	cache := NewMetadataCache(NewIntrospector(q), time.Hour)

	_, err := cache.FullSchema(context.Background())
	require.NoError(t, err)

	// A different key still needs its own build.
	before := len(q.calls)
	_, err = cache.Relationships(context.Background())
	require.NoError(t, err)
	assert.Greater(t, len(q.calls), before)
}

func TestCacheDefaultTTL(t *testing.T) {
	cache := NewMetadataCache(NewIntrospector(salesWarehouse()), 0)
	assert.Equal(t, time.Hour, cache.ttl)
}
