package features

import "sync"

// featureCache maps composite keys (imageID + "_" + regionName) to fully
// populated feature vectors. Entries are write-once: the first complete
// vector stored for a key wins, so readers either see nothing or a fully
// populated vector, never a partial one.
type featureCache struct {
	mu      sync.RWMutex
	entries map[string]*FeatureVector
}

func newFeatureCache() *featureCache {
	return &featureCache{entries: make(map[string]*FeatureVector)}
}

// get returns the cached vector for a key, if any.
func (c *featureCache) get(key string) (*FeatureVector, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// putIfAbsent stores a vector unless the key is already present, and
// returns the vector that ended up cached.
func (c *featureCache) putIfAbsent(key string, v *FeatureVector) *FeatureVector {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		return existing
	}
	c.entries[key] = v
	return v
}

// clear drops every entry.
func (c *featureCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*FeatureVector)
}

// len returns the number of cached entries.
func (c *featureCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
