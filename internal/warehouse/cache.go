package warehouse

import (
	"context"
	"sync"
	"time"
)

// Cache keys, one per formatted metadata artifact.
const (
	keyFullSchema     = "full_schema"
	keyDataDictionary = "data_dictionary"
	keyRelationships  = "relationships"
	keyFewShot        = "few_shot_examples"
)

type cacheEntry struct {
	value    string
	storedAt time.Time
}

// MetadataCache serves the introspector's formatted artifacts with per-key
// TTL eviction. There is no invalidation hook on schema change: entries age
// out, Refresh rebuilds them, a restart clears everything.
type MetadataCache struct {
	intro *Introspector
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewMetadataCache creates a cache over the introspector. A non-positive ttl
// falls back to one hour.
func NewMetadataCache(intro *Introspector, ttl time.Duration) *MetadataCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MetadataCache{
		intro:   intro,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// FullSchema returns the cached DDL, rebuilding it when stale.
func (c *MetadataCache) FullSchema(ctx context.Context) (string, error) {
	return c.get(ctx, keyFullSchema, c.intro.FullSchema)
}

// DataDictionary returns the cached data dictionary, rebuilding it when stale.
func (c *MetadataCache) DataDictionary(ctx context.Context) (string, error) {
	return c.get(ctx, keyDataDictionary, c.intro.DataDictionary)
}

// Relationships returns the cached relationship text, rebuilding it when stale.
func (c *MetadataCache) Relationships(ctx context.Context) (string, error) {
	return c.get(ctx, keyRelationships, c.intro.Relationships)
}

// FewShotExamples returns the cached example text, rebuilding it when stale.
func (c *MetadataCache) FewShotExamples(ctx context.Context) (string, error) {
	return c.get(ctx, keyFewShot, c.intro.FewShotExamples)
}

func (c *MetadataCache) get(ctx context.Context, key string, build func(context.Context) (string, error)) (string, error) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	fresh := ok && c.now().Sub(entry.storedAt) < c.ttl
	c.mu.Unlock()

	if fresh {
		return entry.value, nil
	}

	value, err := build(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, storedAt: c.now()}
	c.mu.Unlock()
	return value, nil
}

// Clear drops every cached entry.
func (c *MetadataCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Refresh clears the cache and warms every artifact. The first error aborts
// the warm-up; remaining keys rebuild lazily on demand.
func (c *MetadataCache) Refresh(ctx context.Context) error {
	c.Clear()
	for _, build := range []func(context.Context) (string, error){
		c.FullSchema, c.DataDictionary, c.Relationships, c.FewShotExamples,
	} {
		if _, err := build(ctx); err != nil {
			return err
		}
	}
	return nil
}
