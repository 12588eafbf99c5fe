package storage

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is an in-process CacheStore backed by go-cache. Used when no
// database path is configured and as the cache tier in tests; go-cache owns
// TTL bookkeeping, so expiry needs no lazy delete of our own.
type MemoryCache struct {
	inner *gocache.Cache
}

// NewMemoryCache creates a memory cache with the standard 24h TTL.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		inner: gocache.New(CacheTTL, 10*time.Minute),
	}
}

func (m *MemoryCache) GetAnswer(tripID, question string) (*CacheEntry, bool, error) {
	v, ok := m.inner.Get(CacheKey(tripID, question))
	if !ok {
		return nil, false, nil
	}
	entry, ok := v.(CacheEntry)
	if !ok {
		return nil, false, nil
	}
	return &entry, true, nil
}

func (m *MemoryCache) PutAnswer(tripID, question, answer string, tokensUsed int) error {
	now := time.Now().UTC()
	key := CacheKey(tripID, question)
	m.inner.Set(key, CacheEntry{
		TripID:       tripID,
		QuestionHash: key,
		Answer:       answer,
		TokensUsed:   tokensUsed,
		CreatedAt:    now,
		ExpiresAt:    now.Add(CacheTTL),
	}, gocache.DefaultExpiration)
	return nil
}
