package studio

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
)

// featureCache keeps analyzed features by waveform content, so reloading a
// voicebank only analyzes files that changed.
type featureCache struct {
	items  *cache.Cache
	hits   atomic.Int64
	misses atomic.Int64
}

// newFeatureCache creates a cache whose entries expire after ttl. Expired
// entries are pruned at the start of each load instead of by a janitor.
func newFeatureCache(ttl time.Duration) *featureCache {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &featureCache{items: cache.New(ttl, 0)}
}

func contentKey(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (fc *featureCache) get(key string) ([]byte, bool) {
	if v, found := fc.items.Get(key); found {
		if features, ok := v.([]byte); ok {
			fc.hits.Add(1)
			return features, true
		}
	}
	fc.misses.Add(1)
	return nil, false
}

func (fc *featureCache) put(key string, features []byte) {
	fc.items.Set(key, features, cache.DefaultExpiration)
}

func (fc *featureCache) prune() {
	fc.items.DeleteExpired()
}

func (fc *featureCache) flush() {
	fc.items.Flush()
}

// stats returns lookups served from and missed by the cache.
func (fc *featureCache) stats() (hits, misses int64) {
	return fc.hits.Load(), fc.misses.Load()
}
